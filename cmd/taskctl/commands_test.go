package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/internal/taskservice/memory"
	"github.com/0xPuncker/task-watcher/internal/testutil"
)

func run(t *testing.T, store *memory.Store, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand(testutil.Logger(), func(kind string) (taskservice.Connector, error) {
		if kind != "memory" {
			t.Errorf("opened backend %q", kind)
		}
		return store, nil
	})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--backend", "memory"}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	store := testutil.NewStore(t)
	paths := testutil.Tree(t, store)

	out, err := run(t, store, "list", `\Tree`)
	require.NoError(t, err)

	assert.Contains(t, out, "PATH")
	for _, p := range paths {
		assert.Contains(t, out, p)
	}
}

func TestGetAsYAMLAndJSON(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.Seed(t, store, testutil.Job{Folder: `\Apps`, Name: "Tool", Path: `C:\tool.exe`, Args: "quiet"})

	out, err := run(t, store, "get", `\Apps`, "Tool")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Tool")
	assert.Contains(t, out, "args: quiet")

	out, err = run(t, store, "get", `\Apps`, "Tool", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Tool"`)

	_, err = run(t, store, "get", `\Apps`, "Tool", "-o", "toml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestExportDeleteMkdir(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.Seed(t, store, testutil.Job{Folder: `\Apps`, Name: "Tool"})

	out, err := run(t, store, "export", `\Apps`, "Tool")
	require.NoError(t, err)
	assert.Contains(t, out, "<Task")

	out, err = run(t, store, "delete", `\Apps`, "Tool")
	require.NoError(t, err)
	assert.Contains(t, out, `removed \Apps\Tool`)

	_, err = run(t, store, "delete", `\Apps`, "Tool")
	assert.ErrorIs(t, err, taskservice.ErrNotFound)

	out, err = run(t, store, "mkdir", "/Deep/Er/Folder")
	require.NoError(t, err)
	assert.Contains(t, out, `created \Deep\Er\Folder`)
}

func TestApply(t *testing.T) {
	store := testutil.NewStore(t)
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  - folder: \\Ops\n    name: Sweep\n    actions:\n      - path: sweep.exe\n"), 0o644))

	out, err := run(t, store, "apply", path)
	require.NoError(t, err)
	assert.Contains(t, out, `ok   \Ops\Sweep`)

	_, err = job.NewClient(store, testutil.Logger()).Lookup(`\Ops`, "Sweep")
	assert.NoError(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, testutil.NewStore(t), "--log-level", "loud", "list")
	assert.ErrorContains(t, err, "invalid log level")
}
