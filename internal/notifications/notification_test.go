package notifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/manifest"
	"github.com/0xPuncker/task-watcher/pkg/types"
)

type webhook struct {
	mu       sync.Mutex
	messages []SlackMessage
	status   int
}

func newWebhook(t *testing.T) (*webhook, *httptest.Server) {
	t.Helper()

	w := &webhook{status: http.StatusOK}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var msg SlackMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.mu.Lock()
		w.messages = append(w.messages, msg)
		status := w.status
		w.mu.Unlock()
		rw.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return w, server
}

func newService(t *testing.T) (*NotificationService, *webhook) {
	t.Helper()

	hook, server := newWebhook(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	slack, err := NewSlackService(logger, server.URL)
	require.NoError(t, err)
	return NewNotificationService(slack), hook
}

func fieldValue(msg SlackMessage, title string) string {
	for _, f := range msg.Attachments[0].Fields {
		if f.Title == title {
			return f.Value
		}
	}
	return ""
}

func TestNewSlackServiceRequiresURL(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK_URL", "")

	_, err := NewSlackService(logrus.New(), "")
	assert.Error(t, err)

	t.Setenv("SLACK_WEBHOOK_URL", "http://example.invalid/hook")
	slack, err := NewSlackService(logrus.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "http://example.invalid/hook", slack.webhookURL)
}

func TestSendSlackMessageNon200(t *testing.T) {
	svc, hook := newService(t)
	hook.status = http.StatusInternalServerError

	err := svc.SendJobRemoved(`\Apps\Old`)
	assert.ErrorContains(t, err, "non-200")
}

func TestSendJobRegistered(t *testing.T) {
	svc, hook := newService(t)

	registered := &job.RegisteredJob{
		Name:  "Backup",
		Path:  `\Apps\Backup`,
		State: job.StateReady,
		Definition: types.Definition{
			Author:      "ops",
			Description: "nightly backup",
			Triggers:    []types.Trigger{types.IdleTrigger{}, types.LogonTrigger{}},
			Actions:     []types.ExecAction{{Path: `C:\backup.exe`}},
		},
	}

	require.NoError(t, svc.SendJobRegistered(registered))
	require.Len(t, hook.messages, 1)

	msg := hook.messages[0]
	assert.Contains(t, msg.Text, "Job Registered")
	assert.Equal(t, "task-watcher", msg.Username)
	assert.Equal(t, "good", msg.Attachments[0].Color)
	assert.Equal(t, "nightly backup", msg.Attachments[0].Text)
	assert.Equal(t, `\Apps\Backup`, fieldValue(msg, "Job"))
	assert.Equal(t, "Ready", fieldValue(msg, "State"))
	assert.Equal(t, "Idle, Logon", fieldValue(msg, "Triggers"))
	assert.Equal(t, "1", fieldValue(msg, "Actions"))
	assert.Equal(t, "ops", fieldValue(msg, "Author"))
}

func TestSendApplyReport(t *testing.T) {
	svc, hook := newService(t)

	report := &manifest.Report{
		Results: []manifest.Result{
			{Path: `\A`},
			{Path: `\B`, Err: errors.New("access denied")},
		},
		Duration: 1500 * time.Millisecond,
	}

	require.NoError(t, svc.SendApplyReport(report))
	require.Len(t, hook.messages, 1)

	msg := hook.messages[0]
	assert.Equal(t, "danger", msg.Attachments[0].Color)
	assert.Equal(t, "1", fieldValue(msg, "Applied"))
	assert.Equal(t, "1", fieldValue(msg, "Failed"))
	assert.Contains(t, fieldValue(msg, "Failures"), `\B: access denied`)
}

func TestSendDrift(t *testing.T) {
	svc, hook := newService(t)

	require.NoError(t, svc.SendDrift(`\Apps`, nil, nil))
	assert.Empty(t, hook.messages)

	var added []string
	for i := 0; i < 12; i++ {
		added = append(added, fmt.Sprintf(`\Apps\Job%d`, i))
	}
	require.NoError(t, svc.SendDrift(`\Apps`, added, []string{`\Apps\Gone`}))
	require.Len(t, hook.messages, 1)

	msg := hook.messages[0]
	assert.Contains(t, fieldValue(msg, "Appeared"), "... and 2 more")
	assert.Equal(t, `\Apps\Gone`, fieldValue(msg, "Disappeared"))
}

func TestSendMaintenanceNotification(t *testing.T) {
	svc, hook := newService(t)

	require.NoError(t, svc.SendMaintenanceNotification("refresh-inventory", "failed", 2*time.Second, "boom"))
	require.Len(t, hook.messages, 1)

	msg := hook.messages[0]
	assert.Equal(t, "danger", msg.Attachments[0].Color)
	assert.Equal(t, "Failed", fieldValue(msg, "Status"))
	assert.Equal(t, "boom", fieldValue(msg, "Details"))
}

func TestDisabledServiceDropsMessages(t *testing.T) {
	var nilService *NotificationService
	assert.False(t, nilService.Enabled())
	assert.NoError(t, nilService.SendJobRemoved(`\A`))

	svc := NewNotificationService(nil)
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.SendDrift(`\`, []string{`\A`}, nil))
}
