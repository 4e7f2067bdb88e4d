package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/internal/taskservice/memory"
	"github.com/0xPuncker/task-watcher/internal/testutil"
	"github.com/0xPuncker/task-watcher/pkg/types"
)

func newTestClient(t *testing.T, folders ...string) (*Client, *memory.Store) {
	t.Helper()
	store := testutil.NewStore(t, folders...)
	return NewClient(store, testutil.Logger()), store
}

func TestBuilderEndToEnd(t *testing.T) {
	client, store := newTestClient(t, `\Test`)

	b, err := client.NewBuilder(`\Test`)
	require.NoError(t, err)

	registered, err := b.
		SetAuthor("svc").
		AddIdleTrigger(types.IdleTrigger{
			ID:                 "idle",
			ExecutionTimeLimit: 30 * time.Second,
			RepetitionInterval: 10 * time.Second,
		}).
		AddExecAction(types.ExecAction{Path: `C:\app.exe`, Args: "--flag"}).
		Register("MyJob")
	require.NoError(t, err)
	assert.Equal(t, `\Test\MyJob`, registered.Path)
	assert.True(t, registered.Enabled)
	assert.Equal(t, StateReady, registered.State)

	found, err := client.Lookup(`\Test`, "MyJob")
	require.NoError(t, err)

	def := found.Definition
	assert.Equal(t, "svc", def.Author)
	require.Len(t, def.Triggers, 1)
	assert.Equal(t, types.IdleTrigger{
		ID:                 "idle",
		ExecutionTimeLimit: 30 * time.Second,
		RepetitionInterval: 10 * time.Second,
	}, def.Triggers[0])
	require.Len(t, def.Actions, 1)
	assert.Equal(t, `C:\app.exe`, def.Actions[0].Path)
	assert.Equal(t, "--flag", def.Actions[0].Args)

	assert.Equal(t, 0, store.OpenSessions())
}

func TestAddTriggerForcesEnabled(t *testing.T) {
	client, _ := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)
	defer b.Close()

	b.AddIdleTrigger(types.IdleTrigger{}).
		AddLogonTrigger(types.LogonTrigger{Delay: 15 * time.Second}).
		AddTrigger(types.IdleTrigger{ID: "third"})
	require.NoError(t, b.Err())

	count, err := taskservice.Count(b.triggers)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	for i := 1; i <= count; i++ {
		trigger, err := b.triggers.Item(i)
		require.NoError(t, err)
		enabled, err := taskservice.Bool(trigger, "Enabled")
		require.NoError(t, err)
		assert.True(t, enabled, "trigger %d", i)
	}
}

func TestRegisterReplacesExisting(t *testing.T) {
	client, _ := newTestClient(t, `\Test`)

	for _, path := range []string{`C:\x.exe`, `C:\y.exe`} {
		b, err := client.NewBuilder(`\Test`)
		require.NoError(t, err)
		_, err = b.AddExecAction(types.ExecAction{Path: path}).Register("Job")
		require.NoError(t, err)
	}

	found, err := client.Lookup(`\Test`, "Job")
	require.NoError(t, err)
	require.Len(t, found.Definition.Actions, 1)
	assert.Equal(t, `C:\y.exe`, found.Definition.Actions[0].Path)

	jobs, err := client.ListAll(`\Test`)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestBuilderStickyError(t *testing.T) {
	client, store := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)

	b.SetAuthor("first").
		AddIdleTrigger(types.IdleTrigger{ExecutionTimeLimit: -time.Second}).
		SetDescription("never applied").
		AddExecAction(types.ExecAction{Path: "a.exe"})

	assert.ErrorIs(t, b.Err(), taskservice.ErrInvalidConfiguration)
	assert.Equal(t, 0, store.OpenSessions())

	_, err = b.Register("Job")
	assert.ErrorIs(t, err, taskservice.ErrInvalidConfiguration)

	_, err = b.Register("Job")
	assert.ErrorIs(t, err, ErrBuilderConsumed)

	_, err = client.Lookup(`\`, "Job")
	assert.ErrorIs(t, err, taskservice.ErrNotFound)
}

func TestBuilderConsumedAfterRegister(t *testing.T) {
	client, store := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)

	_, err = b.AddExecAction(types.ExecAction{Path: "a.exe"}).Register("Job")
	require.NoError(t, err)
	assert.Equal(t, 0, store.OpenSessions())

	b.SetAuthor("late")
	_, err = b.Register("Other")
	assert.ErrorIs(t, err, ErrBuilderConsumed)
	assert.NoError(t, b.Close())
}

func TestRegisterWithoutActionFails(t *testing.T) {
	client, store := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)

	_, err = b.SetAuthor("svc").Register("Empty")
	assert.ErrorIs(t, err, taskservice.ErrRegistrationFailed)
	assert.Equal(t, 0, store.OpenSessions())
}

func TestNewBuilderFailures(t *testing.T) {
	t.Run("missing folder", func(t *testing.T) {
		client, store := newTestClient(t)

		_, err := client.NewBuilder(`\Missing`)
		assert.ErrorIs(t, err, taskservice.ErrServiceUnavailable)
		assert.ErrorIs(t, err, taskservice.ErrNotFound)
		assert.Equal(t, 0, store.OpenSessions())
	})

	t.Run("service down", func(t *testing.T) {
		client, store := newTestClient(t)
		store.SetAvailable(false)

		_, err := client.NewBuilder(`\`)
		assert.ErrorIs(t, err, taskservice.ErrServiceUnavailable)
	})
}

func TestApplySettings(t *testing.T) {
	client, _ := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)
	_, err = b.
		ApplySettings(types.Settings{
			RunOnlyIfIdle:      true,
			WakeToRun:          true,
			ExecutionTimeLimit: 2 * time.Hour,
			AllowHardTerminate: true,
			IdleSettings: &types.IdleSettings{
				RestartOnIdle: true,
				IdleDuration:  5 * time.Minute,
				WaitTimeout:   20 * time.Minute,
			},
		}).
		AddExecAction(types.ExecAction{Path: "a.exe"}).
		Register("Idle")
	require.NoError(t, err)

	found, err := client.Lookup(`\`, "Idle")
	require.NoError(t, err)
	s := found.Definition.Settings
	assert.True(t, s.RunOnlyIfIdle)
	assert.True(t, s.WakeToRun)
	assert.False(t, s.DisallowStartIfOnBatteries)
	assert.Equal(t, 2*time.Hour, s.ExecutionTimeLimit)
	require.NotNil(t, s.IdleSettings)
	assert.Equal(t, types.IdleSettings{
		RestartOnIdle: true,
		IdleDuration:  5 * time.Minute,
		WaitTimeout:   20 * time.Minute,
	}, *s.IdleSettings)
}

func TestApplySettingsKeepsIdleDefaults(t *testing.T) {
	client, _ := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)
	_, err = b.
		ApplySettings(types.Settings{ExecutionTimeLimit: time.Hour}).
		AddExecAction(types.ExecAction{Path: "a.exe"}).
		Register("Defaults")
	require.NoError(t, err)

	found, err := client.Lookup(`\`, "Defaults")
	require.NoError(t, err)
	require.NotNil(t, found.Definition.Settings.IdleSettings)
	assert.Equal(t, 10*time.Minute, found.Definition.Settings.IdleSettings.IdleDuration)
	assert.Equal(t, time.Hour, found.Definition.Settings.IdleSettings.WaitTimeout)
	assert.True(t, found.Definition.Settings.IdleSettings.StopOnIdleEnd)
}

func TestSetPrincipalAndHidden(t *testing.T) {
	client, _ := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)
	_, err = b.
		SetPrincipal(types.RunLevelHighest, "Author", "SYSTEM").
		SetHidden(true).
		SetDescription("runs elevated").
		AddLogonTrigger(types.LogonTrigger{ID: "logon", Delay: 30 * time.Second}).
		AddExecAction(types.ExecAction{Path: "a.exe", WorkingDir: `C:\work`}).
		Register("Elevated")
	require.NoError(t, err)

	found, err := client.Lookup(`\`, "Elevated")
	require.NoError(t, err)
	def := found.Definition
	assert.Equal(t, types.Principal{RunLevel: types.RunLevelHighest, ID: "Author", UserID: "SYSTEM"}, def.Principal)
	assert.True(t, def.Hidden)
	assert.Equal(t, "runs elevated", def.Description)
	require.Len(t, def.LogonTriggers(), 1)
	assert.Equal(t, 30*time.Second, def.LogonTriggers()[0].Delay)
	assert.Equal(t, `C:\work`, def.Actions[0].WorkingDir)
}

func TestSetPrincipalRejectsUnknownRunLevel(t *testing.T) {
	client, store := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)
	b.SetPrincipal(types.RunLevel(9), "", "")

	assert.ErrorIs(t, b.Err(), taskservice.ErrInvalidConfiguration)
	assert.Equal(t, 0, store.OpenSessions())
}

func TestFromXML(t *testing.T) {
	client, _ := newTestClient(t, `\Src`)

	b, err := client.NewBuilder(`\Src`)
	require.NoError(t, err)
	_, err = b.
		SetAuthor("origin").
		AddLogonTrigger(types.LogonTrigger{ID: "logon"}).
		AddExecAction(types.ExecAction{Path: "a.exe"}).
		Register("Original")
	require.NoError(t, err)

	text, err := client.ExportXML(`\Src`, "Original")
	require.NoError(t, err)

	copied, err := client.NewBuilder(`\Src`)
	require.NoError(t, err)
	_, err = copied.
		SetDescription("discarded with the blank definition").
		FromXML(text).
		SetDescription("copy").
		AddExecAction(types.ExecAction{Path: "b.exe"}).
		Register("Copy")
	require.NoError(t, err)

	found, err := client.Lookup(`\Src`, "Copy")
	require.NoError(t, err)
	def := found.Definition
	assert.Equal(t, "origin", def.Author)
	assert.Equal(t, "copy", def.Description)
	require.Len(t, def.LogonTriggers(), 1)
	require.Len(t, def.Actions, 2)
	assert.Equal(t, "a.exe", def.Actions[0].Path)
	assert.Equal(t, "b.exe", def.Actions[1].Path)
}

func TestFromXMLRejectsMalformedText(t *testing.T) {
	client, store := newTestClient(t)

	b, err := client.NewBuilder(`\`)
	require.NoError(t, err)

	b.FromXML("<Task>").SetAuthor("never")
	assert.ErrorIs(t, b.Err(), taskservice.ErrInvalidConfiguration)
	assert.Equal(t, 0, store.OpenSessions())
}
