// Package testutil builds in-memory task services for tests.
package testutil

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/internal/taskservice/memory"
)

// Logger returns a logger that discards its output.
func Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// NewStore returns an empty store holding the given folders.
func NewStore(t *testing.T, folders ...string) *memory.Store {
	t.Helper()

	store := memory.NewStore()
	for _, f := range folders {
		require.NoError(t, store.MkdirAll(f))
	}
	return store
}

// Job describes a job seeded straight into a store.
type Job struct {
	Folder string
	Name   string
	Path   string
	Args   string
	Hidden bool
}

// Seed registers jobs without going through the job package, creating
// folders as needed.
func Seed(t *testing.T, store *memory.Store, jobs ...Job) {
	t.Helper()

	svc, err := store.Connect()
	require.NoError(t, err)
	defer svc.Release()

	for _, j := range jobs {
		require.NoError(t, store.MkdirAll(j.Folder))

		def, err := svc.NewTask()
		require.NoError(t, err)

		actions, err := def.Get("Actions")
		require.NoError(t, err)
		action, err := actions.Call("Create", taskservice.ActionExec)
		require.NoError(t, err)

		path := j.Path
		if path == "" {
			path = `C:\Windows\System32\cmd.exe`
		}
		require.NoError(t, action.Set("Path", path))
		require.NoError(t, action.Set("Arguments", j.Args))

		settings, err := def.Get("Settings")
		require.NoError(t, err)
		require.NoError(t, settings.Set("Hidden", j.Hidden))

		folder, err := svc.GetFolder(j.Folder)
		require.NoError(t, err)
		_, err = folder.Call("RegisterTaskDefinition", j.Name, def, taskservice.CreateOrUpdate,
			"", "", taskservice.LogonInteractiveToken, "")
		require.NoError(t, err)
	}
}

// Tree seeds a three level folder tree with one job per folder, one of them
// hidden, and returns the job paths in depth-first order.
func Tree(t *testing.T, store *memory.Store) []string {
	t.Helper()

	Seed(t, store,
		Job{Folder: `\Tree`, Name: "Root"},
		Job{Folder: `\Tree\A`, Name: "InA", Hidden: true},
		Job{Folder: `\Tree\A\Deep`, Name: "InDeep"},
		Job{Folder: `\Tree\B`, Name: "InB"},
	)

	return []string{
		`\Tree\Root`,
		`\Tree\A\InA`,
		`\Tree\A\Deep\InDeep`,
		`\Tree\B\InB`,
	}
}

// SeedXML registers a job from its XML definition, creating folder as
// needed.
func SeedXML(t *testing.T, store *memory.Store, folder, name, text string) {
	t.Helper()

	require.NoError(t, store.MkdirAll(folder))

	svc, err := store.Connect()
	require.NoError(t, err)
	defer svc.Release()

	def, err := svc.NewTask()
	require.NoError(t, err)
	require.NoError(t, def.Set("XmlText", text))

	dir, err := svc.GetFolder(folder)
	require.NoError(t, err)
	_, err = dir.Call("RegisterTaskDefinition", name, def, taskservice.CreateOrUpdate,
		"", "", taskservice.LogonInteractiveToken, "")
	require.NoError(t, err)
}
