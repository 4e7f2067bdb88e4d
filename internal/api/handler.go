package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/cron"
	"github.com/0xPuncker/task-watcher/internal/inventory"
	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/manifest"
	"github.com/0xPuncker/task-watcher/internal/notifications"
	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

type Handler struct {
	client    *job.Client
	inventory *inventory.Inventory
	scheduler *cron.Scheduler
	applier   *cron.ApplyManifestTask
	notifier  *notifications.NotificationService
	logger    *logrus.Logger
}

type JobView struct {
	Name     string       `json:"name"`
	Path     string       `json:"path"`
	Folder   string       `json:"folder"`
	Enabled  bool         `json:"enabled"`
	State    string       `json:"state"`
	Job      manifest.Job `json:"definition"`
	Warnings []string     `json:"warnings,omitempty"`
}

type JobsResponse struct {
	Folder      string    `json:"folder"`
	Jobs        []JobView `json:"jobs"`
	LastUpdated time.Time `json:"last_updated"`
}

type ApplyResult struct {
	Path  string   `json:"path"`
	Job   *JobView `json:"job,omitempty"`
	Error string   `json:"error,omitempty"`
}

type ApplyResponse struct {
	Applied  int           `json:"applied"`
	Failed   int           `json:"failed"`
	Duration string        `json:"duration"`
	Results  []ApplyResult `json:"results"`
}

// NewHandler wires the API to its collaborators. applier and notifier may be
// nil; without an applier the manifest endpoint reports 503.
func NewHandler(
	client *job.Client,
	inv *inventory.Inventory,
	scheduler *cron.Scheduler,
	applier *cron.ApplyManifestTask,
	notifier *notifications.NotificationService,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		client:    client,
		inventory: inv,
		scheduler: scheduler,
		applier:   applier,
		notifier:  notifier,
		logger:    logger,
	}
}

func newJobView(j *job.RegisteredJob) JobView {
	return JobView{
		Name:     j.Name,
		Path:     j.Path,
		Folder:   j.Folder(),
		Enabled:  j.Enabled,
		State:    j.State.String(),
		Job:      manifest.FromDefinition(j.Folder(), j.Name, j.Definition),
		Warnings: j.Warnings,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"scheduler": h.scheduler != nil && h.scheduler.IsRunning(),
	})
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	folder := taskservice.CleanPath(r.URL.Query().Get("folder"))
	refresh := r.URL.Query().Get("refresh") == "true"

	jobs, err := h.inventory.Jobs(folder, refresh)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response := JobsResponse{
		Folder:      folder,
		Jobs:        make([]JobView, 0, len(jobs)),
		LastUpdated: time.Now(),
	}
	for _, j := range jobs {
		response.Jobs = append(response.Jobs, newJobView(j))
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	folder, name, ok := h.jobParams(w, r)
	if !ok {
		return
	}

	j, err := h.client.Lookup(folder, name)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(j))
}

func (h *Handler) GetJobXML(w http.ResponseWriter, r *http.Request) {
	folder, name, ok := h.jobParams(w, r)
	if !ok {
		return
	}

	text, err := h.client.ExportXML(folder, name)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// CreateJob registers the manifest job entry in the request body, replacing
// any job of the same name.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var entry manifest.Job
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&entry); err != nil {
		h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if entry.XMLFile != "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("xml_file is not accepted over the API, send xml instead"))
		return
	}

	compiled, err := entry.Compile("")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	registered, err := manifest.Register(h.client, compiled)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.inventory.Invalidate(registered.Folder())

	if err := h.notifier.SendJobRegistered(registered); err != nil {
		h.logger.Warnf("Failed to send registration notification: %v", err)
	}

	writeJSON(w, http.StatusCreated, newJobView(registered))
}

func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	folder, name, ok := h.jobParams(w, r)
	if !ok {
		return
	}

	if err := h.client.Remove(folder, name); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.inventory.Invalidate(folder)

	path := taskservice.JoinPath(append(taskservice.SplitPath(folder), name)...)
	if err := h.notifier.SendJobRemoved(path); err != nil {
		h.logger.Warnf("Failed to send removal notification: %v", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ApplyManifest(w http.ResponseWriter, r *http.Request) {
	if h.applier == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, errors.New("no manifest configured"))
		return
	}

	report, err := h.applier.Apply()
	if report == nil {
		h.handleError(w, r, err)
		return
	}

	response := ApplyResponse{
		Applied:  report.Applied(),
		Failed:   len(report.Failed()),
		Duration: report.Duration.String(),
		Results:  make([]ApplyResult, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		result := ApplyResult{Path: res.Path}
		if res.Err != nil {
			result.Error = res.Err.Error()
		} else if res.Job != nil {
			view := newJobView(res.Job)
			result.Job = &view
		}
		response.Results = append(response.Results, result)
	}

	status := http.StatusOK
	if response.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, response)
}

func (h *Handler) ListMaintenance(w http.ResponseWriter, r *http.Request) {
	tasks := h.scheduler.ListTasks()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":   tasks,
		"running": h.scheduler.IsRunning(),
	})
}

func (h *Handler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Start(); err != nil {
		h.writeError(w, r, http.StatusConflict, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "scheduler started successfully",
	})
}

func (h *Handler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "scheduler stopped successfully",
	})
}

func (h *Handler) jobParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	query := r.URL.Query()
	name := strings.TrimSpace(query.Get("name"))
	if name == "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("query parameter name is required"))
		return "", "", false
	}
	return taskservice.CleanPath(query.Get("folder")), name, true
}

// statusFor maps an error kind to the HTTP status reported for it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, taskservice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, taskservice.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, taskservice.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, taskservice.ErrInvalidConfiguration),
		errors.Is(err, taskservice.ErrRegistrationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, taskservice.ErrServiceUnavailable),
		errors.Is(err, taskservice.ErrUnsupported):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeError(w, r, statusFor(err), err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	h.logger.WithFields(logrus.Fields{
		"request_id": RequestID(r.Context()),
		"path":       r.URL.Path,
		"status":     code,
		"error":      err,
	}).Error("Request failed")

	writeJSON(w, code, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
