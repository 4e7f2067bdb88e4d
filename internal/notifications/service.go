package notifications

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/manifest"
	"github.com/0xPuncker/task-watcher/pkg/utils"
)

const maxListedPaths = 10

// NotificationService formats job events as Slack messages. A service built
// without a SlackService drops every message.
type NotificationService struct {
	slackService *SlackService
}

func NewNotificationService(slackService *SlackService) *NotificationService {
	return &NotificationService{
		slackService: slackService,
	}
}

func (s *NotificationService) Enabled() bool {
	return s != nil && s.slackService != nil
}

func (s *NotificationService) send(message *SlackMessage) error {
	if !s.Enabled() {
		return nil
	}
	return s.slackService.SendSlackMessage(message)
}

func statusStyle(status string) (color, icon string) {
	switch status {
	case "success", "registered":
		return "good", "✅"
	case "failed":
		return "danger", "❌"
	case "started", "removed":
		return "warning", "🚀"
	default:
		return "#808080", "ℹ️"
	}
}

func footer() string {
	return fmt.Sprintf("task-watcher | %s", time.Now().Format("Mon, 02 Jan 2006 15:04:05 MST"))
}

func (s *NotificationService) formatMaintenanceNotification(taskName, status string, duration time.Duration, details string) *SlackMessage {
	color, icon := statusStyle(status)

	fields := []Field{
		{
			Title: "Task",
			Value: taskName,
			Short: true,
		},
		{
			Title: "Status",
			Value: cases.Title(language.English).String(status),
			Short: true,
		},
	}

	if duration > 0 {
		fields = append(fields, Field{
			Title: "Duration",
			Value: utils.FormatDuration(duration),
			Short: true,
		})
	}

	if details != "" {
		fields = append(fields, Field{
			Title: "Details",
			Value: details,
			Short: false,
		})
	}

	return &SlackMessage{
		Text: fmt.Sprintf("%s Maintenance Task Update", icon),
		Attachments: []Attachment{
			{
				Color:  color,
				Fields: fields,
				Footer: footer(),
				Ts:     time.Now().Unix(),
			},
		},
	}
}

func (s *NotificationService) formatJobRegistered(j *job.RegisteredJob) *SlackMessage {
	color, icon := statusStyle("registered")

	var kinds []string
	for _, t := range j.Definition.Triggers {
		kinds = append(kinds, cases.Title(language.English).String(string(t.Kind())))
	}
	triggers := "none"
	if len(kinds) > 0 {
		triggers = strings.Join(kinds, ", ")
	}

	fields := []Field{
		{Title: "Job", Value: j.Path, Short: true},
		{Title: "State", Value: cases.Title(language.English).String(j.State.String()), Short: true},
		{Title: "Triggers", Value: triggers, Short: true},
		{Title: "Actions", Value: fmt.Sprintf("%d", len(j.Definition.Actions)), Short: true},
	}
	if j.Definition.Author != "" {
		fields = append(fields, Field{Title: "Author", Value: j.Definition.Author, Short: true})
	}

	return &SlackMessage{
		Text: fmt.Sprintf("%s Job Registered", icon),
		Attachments: []Attachment{
			{
				Color:  color,
				Text:   j.Definition.Description,
				Fields: fields,
				Footer: footer(),
				Ts:     time.Now().Unix(),
			},
		},
	}
}

func (s *NotificationService) formatApplyReport(report *manifest.Report) *SlackMessage {
	failed := report.Failed()
	status := "success"
	if len(failed) > 0 {
		status = "failed"
	}
	color, icon := statusStyle(status)

	fields := []Field{
		{Title: "Applied", Value: fmt.Sprintf("%d", report.Applied()), Short: true},
		{Title: "Failed", Value: fmt.Sprintf("%d", len(failed)), Short: true},
		{Title: "Duration", Value: utils.FormatDuration(report.Duration), Short: true},
	}

	if len(failed) > 0 {
		var lines []string
		for i, res := range failed {
			if i == maxListedPaths {
				lines = append(lines, fmt.Sprintf("... and %d more", len(failed)-maxListedPaths))
				break
			}
			lines = append(lines, fmt.Sprintf("• %s: %v", res.Path, res.Err))
		}
		fields = append(fields, Field{
			Title: "Failures",
			Value: strings.Join(lines, "\n"),
			Short: false,
		})
	}

	return &SlackMessage{
		Text: fmt.Sprintf("%s Manifest Applied", icon),
		Attachments: []Attachment{
			{
				Color:  color,
				Fields: fields,
				Footer: footer(),
				Ts:     time.Now().Unix(),
			},
		},
	}
}

func (s *NotificationService) formatDrift(folder string, added, removed []string) *SlackMessage {
	fields := []Field{
		{Title: "Folder", Value: folder, Short: false},
	}
	if len(added) > 0 {
		fields = append(fields, Field{Title: "Appeared", Value: listPaths(added), Short: false})
	}
	if len(removed) > 0 {
		fields = append(fields, Field{Title: "Disappeared", Value: listPaths(removed), Short: false})
	}

	return &SlackMessage{
		Text: "🔍 Job Drift Detected",
		Attachments: []Attachment{
			{
				Color:  "warning",
				Fields: fields,
				Footer: footer(),
				Ts:     time.Now().Unix(),
			},
		},
	}
}

func listPaths(paths []string) string {
	if len(paths) > maxListedPaths {
		return strings.Join(paths[:maxListedPaths], "\n") + fmt.Sprintf("\n... and %d more", len(paths)-maxListedPaths)
	}
	return strings.Join(paths, "\n")
}

func (s *NotificationService) SendMaintenanceNotification(taskName, status string, duration time.Duration, details string) error {
	return s.send(s.formatMaintenanceNotification(taskName, status, duration, details))
}

func (s *NotificationService) SendJobRegistered(j *job.RegisteredJob) error {
	return s.send(s.formatJobRegistered(j))
}

func (s *NotificationService) SendJobRemoved(path string) error {
	color, icon := statusStyle("removed")
	return s.send(&SlackMessage{
		Text: fmt.Sprintf("%s Job Removed", icon),
		Attachments: []Attachment{
			{
				Color:  color,
				Fields: []Field{{Title: "Job", Value: path, Short: false}},
				Footer: footer(),
				Ts:     time.Now().Unix(),
			},
		},
	})
}

func (s *NotificationService) SendApplyReport(report *manifest.Report) error {
	return s.send(s.formatApplyReport(report))
}

func (s *NotificationService) SendDrift(folder string, added, removed []string) error {
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	return s.send(s.formatDrift(folder, added, removed))
}
