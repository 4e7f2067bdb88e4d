package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/pkg/taskxml"
	"github.com/0xPuncker/task-watcher/pkg/types"
	"github.com/0xPuncker/task-watcher/pkg/utils"
)

// State is the run state the service reports for a job.
type State int

const (
	StateUnknown State = iota
	StateDisabled
	StateQueued
	StateReady
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateQueued:
		return "queued"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// RegisteredJob is a read-only copy of a persisted job. It holds no service
// handles and stays valid after the session that produced it is closed.
type RegisteredJob struct {
	Name       string
	Path       string
	Enabled    bool
	State      State
	XML        string
	Definition types.Definition
	// Warnings lists the definition fields that could not be decoded and
	// were read as zero.
	Warnings []string
}

// Folder returns the path of the folder holding the job.
func (j *RegisteredJob) Folder() string {
	segments := taskservice.SplitPath(j.Path)
	if len(segments) == 0 {
		return `\`
	}
	return taskservice.JoinPath(segments[:len(segments)-1]...)
}

func snapshot(task taskservice.Object) (*RegisteredJob, error) {
	name, err := taskservice.String(task, "Name")
	if err != nil {
		return nil, fmt.Errorf("failed to read job name: %w", err)
	}
	path, err := taskservice.String(task, "Path")
	if err != nil {
		return nil, fmt.Errorf("failed to read path of job %s: %w", name, err)
	}
	enabled, err := taskservice.Bool(task, "Enabled")
	if err != nil {
		return nil, fmt.Errorf("failed to read enabled flag of job %s: %w", path, err)
	}
	rawState, err := task.Value("State")
	if err != nil {
		return nil, fmt.Errorf("failed to read state of job %s: %w", path, err)
	}
	state, err := taskservice.Int(rawState)
	if err != nil {
		return nil, fmt.Errorf("failed to read state of job %s: %w", path, err)
	}
	text, err := taskservice.String(task, "Xml")
	if err != nil {
		return nil, fmt.Errorf("failed to read definition of job %s: %w", path, err)
	}

	def, warnings, err := decodeDefinition(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode definition of job %s: %w", path, err)
	}

	return &RegisteredJob{
		Name:       name,
		Path:       path,
		Enabled:    enabled,
		State:      State(state),
		XML:        text,
		Definition: *def,
		Warnings:   warnings,
	}, nil
}

// DefinitionFromXML decodes a job definition as the service renders it.
// Trigger kinds other than idle and logon are skipped. Elements that are
// absent read as the service defaults. A time span that cannot be decoded
// fails the whole definition.
func DefinitionFromXML(text string) (*types.Definition, error) {
	def, warnings, err := decodeDefinition(text)
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 {
		return nil, fmt.Errorf("%w: %s", taskservice.ErrInvalidConfiguration, strings.Join(warnings, "; "))
	}
	return def, nil
}

// decodeDefinition is DefinitionFromXML without the time span check: fields
// that cannot be decoded read as zero and are reported as warnings.
func decodeDefinition(text string) (*types.Definition, []string, error) {
	task, err := taskxml.Unmarshal(text)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", taskservice.ErrInvalidConfiguration, err)
	}

	d := decoder{}
	def := &types.Definition{
		Enabled: true,
		Settings: types.Settings{
			DisallowStartIfOnBatteries: true,
			AllowHardTerminate:         true,
			ExecutionTimeLimit:         72 * time.Hour,
		},
	}

	if ri := task.RegistrationInfo; ri != nil {
		def.Author = ri.Author
		def.Description = ri.Description
	}

	if task.Triggers != nil {
		for _, xt := range task.Triggers.Items {
			var interval time.Duration
			var stopAtEnd bool
			if r := xt.Repetition; r != nil {
				interval = d.duration(r.Interval)
				stopAtEnd = taskxml.BoolOr(r.StopAtDurationEnd, false)
			}

			switch xt.XMLName.Local {
			case taskxml.IdleTriggerElement:
				def.Triggers = append(def.Triggers, types.IdleTrigger{
					ID:                 xt.ID,
					ExecutionTimeLimit: d.duration(xt.ExecutionTimeLimit),
					RepetitionInterval: interval,
					StopAtDurationEnd:  stopAtEnd,
				})
			case taskxml.LogonTriggerElement:
				def.Triggers = append(def.Triggers, types.LogonTrigger{
					ID:                 xt.ID,
					ExecutionTimeLimit: d.duration(xt.ExecutionTimeLimit),
					RepetitionInterval: interval,
					StopAtDurationEnd:  stopAtEnd,
					Delay:              d.duration(xt.Delay),
				})
			}
		}
	}

	if task.Principals != nil && len(task.Principals.Items) > 0 {
		p := task.Principals.Items[0]
		def.Principal.ID = p.ID
		def.Principal.UserID = p.UserID
		if p.RunLevel == taskxml.RunLevelHighest {
			def.Principal.RunLevel = types.RunLevelHighest
		}
	}

	if s := task.Settings; s != nil {
		def.Enabled = taskxml.BoolOr(s.Enabled, true)
		def.Hidden = taskxml.BoolOr(s.Hidden, false)
		def.Settings.RunOnlyIfIdle = taskxml.BoolOr(s.RunOnlyIfIdle, false)
		def.Settings.WakeToRun = taskxml.BoolOr(s.WakeToRun, false)
		def.Settings.DisallowStartIfOnBatteries = taskxml.BoolOr(s.DisallowStartIfOnBatteries, true)
		def.Settings.AllowHardTerminate = taskxml.BoolOr(s.AllowHardTerminate, true)
		if s.ExecutionTimeLimit != "" {
			def.Settings.ExecutionTimeLimit = d.duration(s.ExecutionTimeLimit)
		}
		if idle := s.IdleSettings; idle != nil {
			def.Settings.IdleSettings = &types.IdleSettings{
				StopOnIdleEnd: taskxml.BoolOr(idle.StopOnIdleEnd, true),
				RestartOnIdle: taskxml.BoolOr(idle.RestartOnIdle, false),
				IdleDuration:  d.duration(idle.Duration),
				WaitTimeout:   d.duration(idle.WaitTimeout),
			}
		}
	}

	if task.Actions != nil {
		for _, a := range task.Actions.Items {
			def.Actions = append(def.Actions, types.ExecAction{
				ID:         a.ID,
				Path:       a.Command,
				WorkingDir: a.WorkingDirectory,
				Args:       a.Arguments,
			})
		}
	}

	return def, d.warnings, nil
}

// decoder collects duration errors so the mapping above reads straight.
type decoder struct {
	warnings []string
}

func (d *decoder) duration(s string) time.Duration {
	v, err := utils.DecodeDuration(s)
	if err != nil {
		d.warnings = append(d.warnings, err.Error())
		return 0
	}
	return v
}
