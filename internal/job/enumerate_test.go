package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/internal/testutil"
)

func paths(jobs []*RegisteredJob) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Path)
	}
	return out
}

func TestListAllVisitsEveryJobOnce(t *testing.T) {
	client, store := newTestClient(t)
	want := testutil.Tree(t, store)

	jobs, err := client.ListAll(`\Tree`)
	require.NoError(t, err)
	assert.Equal(t, want, paths(jobs))

	jobs, err = client.ListAll(`\Tree\A`)
	require.NoError(t, err)
	assert.Equal(t, []string{`\Tree\A\InA`, `\Tree\A\Deep\InDeep`}, paths(jobs))

	assert.Equal(t, 0, store.OpenSessions())
}

func TestListAllIncludesHidden(t *testing.T) {
	client, store := newTestClient(t)
	testutil.Seed(t, store,
		testutil.Job{Folder: `\H`, Name: "Visible"},
		testutil.Job{Folder: `\H`, Name: "Hidden", Hidden: true},
	)

	jobs, err := client.ListAll(`\H`)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[1].Definition.Hidden)
}

func TestListAllAbortsOnDeniedFolder(t *testing.T) {
	client, store := newTestClient(t)
	testutil.Tree(t, store)
	require.NoError(t, store.Deny(`\Tree\A\Deep`))

	jobs, err := client.ListAll(`\Tree`)
	assert.Nil(t, jobs)
	assert.ErrorIs(t, err, taskservice.ErrAccessDenied)
	assert.Equal(t, 0, store.OpenSessions())
}

func TestListAllFromFolderHandle(t *testing.T) {
	_, store := newTestClient(t)
	want := testutil.Tree(t, store)

	svc, err := store.Connect()
	require.NoError(t, err)
	defer svc.Release()

	root, err := svc.GetFolder(`\`)
	require.NoError(t, err)

	jobs, err := ListAll(root)
	require.NoError(t, err)
	assert.Equal(t, want, paths(jobs))
}

func TestListAllMissingFolder(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.ListAll(`\Nope`)
	assert.ErrorIs(t, err, taskservice.ErrNotFound)
}
