package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/internal/testutil"
	"github.com/0xPuncker/task-watcher/pkg/types"
)

const sampleManifest = `
jobs:
  - folder: \Apps\Nightly
    name: Backup
    author: ops
    description: nightly backup
    principal:
      run_level: highest
      user_id: SYSTEM
    settings:
      execution_time_limit: 2h
      allow_hard_terminate: true
      idle:
        stop_on_idle_end: true
        idle_duration: 10m
        wait_timeout: PT1H
    triggers:
      - kind: idle
        execution_time_limit: 30s
        repetition_interval: 10s
      - kind: logon
        id: at-logon
        delay: 15s
    actions:
      - path: C:\backup.exe
        args: --full
        working_dir: C:\
  - folder: /Apps
    name: Cleanup
    hidden: true
    actions:
      - path: C:\cleanup.exe
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), "jobs.yaml", sampleManifest)

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Jobs, 2)

	c, err := m.Jobs[0].Compile(m.dir)
	require.NoError(t, err)
	assert.Equal(t, `\Apps\Nightly\Backup`, c.Path())
	assert.Equal(t, &types.Principal{RunLevel: types.RunLevelHighest, UserID: "SYSTEM"}, c.Principal)
	require.NotNil(t, c.Settings)
	assert.Equal(t, 2*time.Hour, c.Settings.ExecutionTimeLimit)
	require.NotNil(t, c.Settings.IdleSettings)
	assert.Equal(t, time.Hour, c.Settings.IdleSettings.WaitTimeout)
	require.Len(t, c.Triggers, 2)
	assert.Equal(t, types.LogonTrigger{ID: "at-logon", Delay: 15 * time.Second}, c.Triggers[1])

	cleanup, err := m.Jobs[1].Compile(m.dir)
	require.NoError(t, err)
	assert.Equal(t, `\Apps\Cleanup`, cleanup.Path())
	require.NotNil(t, cleanup.Hidden)
	assert.True(t, *cleanup.Hidden)
	assert.Nil(t, cleanup.Settings)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		contains string
	}{
		{
			name:     "malformed yaml",
			manifest: "jobs: [",
			contains: "failed to parse manifest",
		},
		{
			name:     "missing name",
			manifest: "jobs:\n  - folder: \\\n    actions:\n      - path: a.exe\n",
			contains: "jobs[0]: name: is required",
		},
		{
			name:     "no actions",
			manifest: "jobs:\n  - name: Empty\n",
			contains: "at least one action is required",
		},
		{
			name:     "unknown trigger",
			manifest: "jobs:\n  - name: J\n    triggers:\n      - kind: boot\n    actions:\n      - path: a.exe\n",
			contains: `triggers[0].kind: unknown trigger kind "boot"`,
		},
		{
			name:     "delay on idle trigger",
			manifest: "jobs:\n  - name: J\n    triggers:\n      - kind: idle\n        delay: 5s\n    actions:\n      - path: a.exe\n",
			contains: "triggers[0].delay: is only valid on logon triggers",
		},
		{
			name:     "bad duration",
			manifest: "jobs:\n  - name: J\n    settings:\n      execution_time_limit: soon\n    actions:\n      - path: a.exe\n",
			contains: "settings.execution_time_limit",
		},
		{
			name:     "negative duration",
			manifest: "jobs:\n  - name: J\n    triggers:\n      - kind: logon\n        delay: -5s\n    actions:\n      - path: a.exe\n",
			contains: "must not be negative",
		},
		{
			name:     "duplicate job",
			manifest: "jobs:\n  - name: J\n    actions:\n      - path: a.exe\n  - name: j\n    folder: /\n    actions:\n      - path: b.exe\n",
			contains: `jobs[1]: \j already defined by jobs[0]`,
		},
		{
			name:     "bad run level",
			manifest: "jobs:\n  - name: J\n    principal:\n      run_level: root\n    actions:\n      - path: a.exe\n",
			contains: "principal.run_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "jobs.yaml", tt.manifest)

			_, err := Load(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, taskservice.ErrInvalidConfiguration)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApply(t *testing.T) {
	store := testutil.NewStore(t)
	client := job.NewClient(store, testutil.Logger())

	path := writeFile(t, t.TempDir(), "jobs.yaml", sampleManifest)
	m, err := Load(path)
	require.NoError(t, err)

	report := Apply(client, m, testutil.Logger())
	require.Len(t, report.Results, 2)
	assert.Empty(t, report.Failed())
	assert.Equal(t, 2, report.Applied())
	assert.Equal(t, `\Apps\Nightly\Backup`, report.Results[0].Path)
	assert.Equal(t, `\Apps\Cleanup`, report.Results[1].Path)

	backup, err := client.Lookup(`\Apps\Nightly`, "Backup")
	require.NoError(t, err)
	def := backup.Definition
	assert.Equal(t, "ops", def.Author)
	assert.Equal(t, types.RunLevelHighest, def.Principal.RunLevel)
	assert.Len(t, def.IdleTriggers(), 1)
	assert.Len(t, def.LogonTriggers(), 1)
	assert.Equal(t, "--full", def.Actions[0].Args)

	jobs, err := client.ListAll(`\Apps`)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	// Applying again replaces rather than duplicates.
	report = Apply(client, m, testutil.Logger())
	assert.Empty(t, report.Failed())
	jobs, err = client.ListAll(`\Apps`)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	assert.Equal(t, 0, store.OpenSessions())
}

func TestApplyKeepsGoingAfterFailure(t *testing.T) {
	store := testutil.NewStore(t, `\Locked`)
	require.NoError(t, store.Deny(`\Locked`))
	client := job.NewClient(store, testutil.Logger())

	m := &Manifest{Jobs: []Job{
		{Folder: `\Locked`, Name: "Denied", Actions: []Action{{Path: "a.exe"}}},
		{Folder: `\Open`, Name: "Fine", Actions: []Action{{Path: "b.exe"}}},
		{Folder: `\Open`, Name: "", Actions: []Action{{Path: "c.exe"}}},
	}}

	report := Apply(client, m, testutil.Logger())
	require.Len(t, report.Results, 3)

	assert.ErrorIs(t, report.Results[0].Err, taskservice.ErrAccessDenied)
	assert.NoError(t, report.Results[1].Err)
	assert.NotNil(t, report.Results[1].Job)
	assert.ErrorIs(t, report.Results[2].Err, taskservice.ErrInvalidConfiguration)
	assert.Equal(t, 1, report.Applied())

	_, err := client.Lookup(`\Open`, "Fine")
	assert.NoError(t, err)
}

func TestApplyFromXMLFile(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.Seed(t, store, testutil.Job{Folder: `\Src`, Name: "Template", Path: `C:\tool.exe`, Args: "--quiet"})
	client := job.NewClient(store, testutil.Logger())

	text, err := client.ExportXML(`\Src`, "Template")
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "template.xml", text)
	path := writeFile(t, dir, "jobs.yaml", `
jobs:
  - folder: \Dst
    name: FromTemplate
    description: copied
    xml_file: template.xml
    triggers:
      - kind: logon
`)

	m, err := Load(path)
	require.NoError(t, err)

	report := Apply(client, m, testutil.Logger())
	require.Empty(t, report.Failed())

	copied, err := client.Lookup(`\Dst`, "FromTemplate")
	require.NoError(t, err)
	assert.Equal(t, "copied", copied.Definition.Description)
	require.Len(t, copied.Definition.Actions, 1)
	assert.Equal(t, "--quiet", copied.Definition.Actions[0].Args)
	assert.Len(t, copied.Definition.LogonTriggers(), 1)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{"", 0, true},
		{"90s", 90 * time.Second, true},
		{"PT90S", 90 * time.Second, true},
		{"P1DT1H", 25 * time.Hour, true},
		{"1 hour", 0, false},
		{"-1s", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseDuration("field", tt.raw)
			if !tt.ok {
				assert.ErrorIs(t, err, taskservice.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromDefinitionReapplies(t *testing.T) {
	store := testutil.NewStore(t)
	client := job.NewClient(store, testutil.Logger())

	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	require.Empty(t, Apply(client, m, testutil.Logger()).Failed())

	original, err := client.Lookup(`\Apps\Nightly`, "Backup")
	require.NoError(t, err)

	entry := FromDefinition(`\Copies`, "Backup", original.Definition)
	assert.Equal(t, "highest", entry.Principal.RunLevel)
	assert.Equal(t, "2h0m0s", entry.Settings.ExecutionTimeLimit)
	require.Len(t, entry.Triggers, 2)
	assert.Equal(t, "15s", entry.Triggers[1].Delay)

	compiled, err := entry.Compile("")
	require.NoError(t, err)
	copied, err := Register(client, compiled)
	require.NoError(t, err)

	assert.Equal(t, `\Copies\Backup`, copied.Path)
	assert.Equal(t, original.Definition, copied.Definition)
}
