package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func SetupRoutes(router *mux.Router, handler *Handler) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/health", handler.HealthCheck).Methods(http.MethodGet)
	v1.HandleFunc("/jobs", handler.ListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs", handler.CreateJob).Methods(http.MethodPost)
	v1.HandleFunc("/job", handler.GetJob).Methods(http.MethodGet)
	v1.HandleFunc("/job", handler.DeleteJob).Methods(http.MethodDelete)
	v1.HandleFunc("/job/xml", handler.GetJobXML).Methods(http.MethodGet)
	v1.HandleFunc("/manifest/apply", handler.ApplyManifest).Methods(http.MethodPost)
	v1.HandleFunc("/maintenance", handler.ListMaintenance).Methods(http.MethodGet)
	v1.HandleFunc("/scheduler/start", handler.StartScheduler).Methods(http.MethodPost)
	v1.HandleFunc("/scheduler/stop", handler.StopScheduler).Methods(http.MethodPost)
}

// NewRouter returns the API router with request ids, logging and CORS.
func NewRouter(handler *Handler) *mux.Router {
	router := mux.NewRouter()

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(handler.logger))
	router.Use(corsMiddleware)

	SetupRoutes(router, handler)
	return router
}
