package cron

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/inventory"
	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/manifest"
)

const (
	ApplyManifestTaskName    = "apply-manifest"
	RefreshInventoryTaskName = "refresh-inventory"
)

// ReportNotifier is told about manifest runs that had failures.
type ReportNotifier interface {
	SendApplyReport(report *manifest.Report) error
}

// ApplyManifestTask re-applies the manifest file so that jobs removed or
// edited out of band are put back.
type ApplyManifestTask struct {
	path      string
	client    *job.Client
	inventory *inventory.Inventory
	notifier  ReportNotifier
	logger    *logrus.Logger
}

func NewApplyManifestTask(path string, client *job.Client, inv *inventory.Inventory, notifier ReportNotifier, logger *logrus.Logger) *ApplyManifestTask {
	return &ApplyManifestTask{
		path:      path,
		client:    client,
		inventory: inv,
		notifier:  notifier,
		logger:    logger,
	}
}

func (t *ApplyManifestTask) Run() error {
	_, err := t.Apply()
	return err
}

// Apply loads and applies the manifest. The returned error is non-nil when
// the manifest could not be loaded or any job failed.
func (t *ApplyManifestTask) Apply() (*manifest.Report, error) {
	if t.path == "" {
		return nil, fmt.Errorf("no manifest path configured")
	}

	m, err := manifest.Load(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", t.path, err)
	}

	report := manifest.Apply(t.client, m, t.logger)

	if t.inventory != nil {
		for _, res := range report.Results {
			if res.Job != nil {
				t.inventory.Invalidate(res.Job.Folder())
			}
		}
	}

	failed := report.Failed()
	if len(failed) == 0 {
		return report, nil
	}

	if t.notifier != nil {
		if err := t.notifier.SendApplyReport(report); err != nil {
			t.logger.Warnf("Failed to send manifest report: %v", err)
		}
	}
	return report, fmt.Errorf("%d of %d manifest jobs failed", len(failed), len(report.Results))
}

// RefreshInventoryTask re-lists every watched folder.
type RefreshInventoryTask struct {
	inventory *inventory.Inventory
}

func NewRefreshInventoryTask(inv *inventory.Inventory) *RefreshInventoryTask {
	return &RefreshInventoryTask{inventory: inv}
}

func (t *RefreshInventoryTask) Run() error {
	return t.inventory.Refresh()
}
