package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dimiro1/banner"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/api"
	"github.com/0xPuncker/task-watcher/internal/backend"
	"github.com/0xPuncker/task-watcher/internal/config"
	"github.com/0xPuncker/task-watcher/internal/cron"
	"github.com/0xPuncker/task-watcher/internal/inventory"
	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/notifications"
	"github.com/0xPuncker/task-watcher/internal/poller"
)

const bannerText = `
{{ .Title "Task Watcher" "" 0 }}
{{ .AnsiBackground.BrightBlue }}{{ .AnsiColor.White }}
{{ .AnsiReset }}
`

func main() {
	banner.Init(colorable.NewColorableStdout(), true, true, strings.NewReader(bannerText))

	configPath := flag.String("config", "config/config.json", "path to config file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05-07:00",
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(cfg.Level())

	connector, err := backend.Open(cfg.Backend.Kind, logger)
	if err != nil {
		logger.Fatalf("Failed to open task backend: %v", err)
	}

	client := job.NewClient(connector, logger)
	inv := inventory.New(client, logger, cfg.InventoryTTL())
	inv.SetWatched(cfg.Inventory.WatchFolders)

	var notifier *notifications.NotificationService
	slack, err := notifications.NewSlackService(logger, cfg.Slack.WebhookURL)
	if err != nil {
		logger.Warnf("Slack notifications disabled: %v", err)
	} else {
		notifier = notifications.NewNotificationService(slack)
	}

	var applier *cron.ApplyManifestTask
	if cfg.Manifest.Path != "" {
		applier = cron.NewApplyManifestTask(cfg.Manifest.Path, client, inv, notifier, logger)
	}

	scheduler := cron.NewScheduler(logger, cfg.Jobs)
	if notifier != nil {
		scheduler.SetNotifier(notifier)
	}
	scheduler.RegisterTask(cron.RefreshInventoryTaskName, cron.NewRefreshInventoryTask(inv).Run)
	if applier != nil {
		scheduler.RegisterTask(cron.ApplyManifestTaskName, applier.Run)
	} else {
		scheduler.RegisterTask(cron.ApplyManifestTaskName, func() error {
			logger.Debug("No manifest configured, nothing to apply")
			return nil
		})
	}
	if err := scheduler.LoadPredefinedTasks(cfg.Jobs.Predefined); err != nil {
		logger.Fatalf("Failed to load maintenance tasks: %v", err)
	}

	if applier != nil && cfg.Manifest.ApplyOnStart {
		if _, err := applier.Apply(); err != nil {
			logger.Errorf("Initial manifest apply failed: %v", err)
		}
	}

	if err := inv.Refresh(); err != nil {
		logger.Warnf("Initial inventory refresh failed: %v", err)
	}

	var p *poller.Poller
	if cfg.Poller.Enabled {
		p = poller.New(inv, notifier, logger, cfg.PollerInterval())
		go p.Start()
	}

	if err := scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Server starting on port %s - Press Ctrl+C to stop.", cfg.Server.Port)

	handler := api.NewHandler(client, inv, scheduler, applier, notifier, logger)
	err = api.StartServer(ctx, handler, api.ServerOptions{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	})

	logger.Info("Shutting down server...")
	if p != nil {
		p.Stop()
	}
	scheduler.Stop()

	if err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}
