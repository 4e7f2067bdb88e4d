package cron

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPuncker/task-watcher/internal/inventory"
	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/manifest"
	"github.com/0xPuncker/task-watcher/internal/testutil"
)

type reportRecorder struct {
	reports []*manifest.Report
}

func (r *reportRecorder) SendApplyReport(report *manifest.Report) error {
	r.reports = append(r.reports, report)
	return nil
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestApplyManifestTask(t *testing.T) {
	store := testutil.NewStore(t)
	client := job.NewClient(store, testutil.Logger())
	inv := inventory.New(client, testutil.Logger(), time.Minute)
	recorder := &reportRecorder{}

	jobs, err := inv.Jobs(`\`, false)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	path := writeManifest(t, "jobs:\n  - folder: \\Ops\n    name: Sweep\n    actions:\n      - path: sweep.exe\n")
	task := NewApplyManifestTask(path, client, inv, recorder, testutil.Logger())

	require.NoError(t, task.Run())
	assert.Empty(t, recorder.reports)
	assert.False(t, inv.IsCached(`\`), "root listing invalidated")

	jobs, err = inv.Jobs(`\`, false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, `\Ops\Sweep`, jobs[0].Path)
}

func TestApplyManifestTaskReportsFailures(t *testing.T) {
	store := testutil.NewStore(t, `\Locked`)
	require.NoError(t, store.Deny(`\Locked`))
	client := job.NewClient(store, testutil.Logger())
	recorder := &reportRecorder{}

	path := writeManifest(t, "jobs:\n  - folder: \\Locked\n    name: Nope\n    actions:\n      - path: a.exe\n")
	task := NewApplyManifestTask(path, client, nil, recorder, testutil.Logger())

	report, err := task.Apply()
	assert.ErrorContains(t, err, "1 of 1 manifest jobs failed")
	require.NotNil(t, report)
	require.Len(t, recorder.reports, 1)
	assert.Same(t, report, recorder.reports[0])
}

func TestApplyManifestTaskLoadErrors(t *testing.T) {
	client := job.NewClient(testutil.NewStore(t), testutil.Logger())

	err := NewApplyManifestTask("", client, nil, nil, testutil.Logger()).Run()
	assert.ErrorContains(t, err, "no manifest path configured")

	err = NewApplyManifestTask(filepath.Join(t.TempDir(), "missing.yaml"), client, nil, nil, testutil.Logger()).Run()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRefreshInventoryTask(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.Tree(t, store)
	client := job.NewClient(store, testutil.Logger())
	inv := inventory.New(client, testutil.Logger(), time.Minute)
	inv.SetWatched([]string{`\Tree\A`})

	require.NoError(t, NewRefreshInventoryTask(inv).Run())
	assert.True(t, inv.IsCached(`\Tree\A`))
	assert.False(t, inv.IsCached(`\Tree\B`))
}
