// Package manifest reads YAML job manifests and applies them to the task
// service.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/pkg/types"
	"github.com/0xPuncker/task-watcher/pkg/utils"
)

type Manifest struct {
	Jobs []Job `yaml:"jobs" json:"jobs"`

	// dir resolves relative xml_file entries.
	dir string
}

// Job is one job entry. The same shape is accepted as JSON by the API.
type Job struct {
	Folder      string     `yaml:"folder" json:"folder"`
	Name        string     `yaml:"name" json:"name"`
	Author      string     `yaml:"author,omitempty" json:"author,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Hidden      *bool      `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Principal   *Principal `yaml:"principal,omitempty" json:"principal,omitempty"`
	Settings    *Settings  `yaml:"settings,omitempty" json:"settings,omitempty"`
	Triggers    []Trigger  `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Actions     []Action   `yaml:"actions,omitempty" json:"actions,omitempty"`
	XMLFile     string     `yaml:"xml_file,omitempty" json:"xml_file,omitempty"`
	XML         string     `yaml:"xml,omitempty" json:"xml,omitempty"`
}

type Principal struct {
	RunLevel string `yaml:"run_level" json:"run_level"`
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	UserID   string `yaml:"user_id,omitempty" json:"user_id,omitempty"`
}

type Settings struct {
	RunOnlyIfIdle              bool          `yaml:"run_only_if_idle" json:"run_only_if_idle"`
	WakeToRun                  bool          `yaml:"wake_to_run" json:"wake_to_run"`
	ExecutionTimeLimit         string        `yaml:"execution_time_limit" json:"execution_time_limit"`
	DisallowStartIfOnBatteries bool          `yaml:"disallow_start_if_on_batteries" json:"disallow_start_if_on_batteries"`
	AllowHardTerminate         bool          `yaml:"allow_hard_terminate" json:"allow_hard_terminate"`
	Idle                       *IdleSettings `yaml:"idle,omitempty" json:"idle,omitempty"`
}

type IdleSettings struct {
	StopOnIdleEnd bool   `yaml:"stop_on_idle_end" json:"stop_on_idle_end"`
	RestartOnIdle bool   `yaml:"restart_on_idle" json:"restart_on_idle"`
	IdleDuration  string `yaml:"idle_duration" json:"idle_duration"`
	WaitTimeout   string `yaml:"wait_timeout" json:"wait_timeout"`
}

type Trigger struct {
	Kind               string `yaml:"kind" json:"kind"`
	ID                 string `yaml:"id,omitempty" json:"id,omitempty"`
	ExecutionTimeLimit string `yaml:"execution_time_limit,omitempty" json:"execution_time_limit,omitempty"`
	RepetitionInterval string `yaml:"repetition_interval,omitempty" json:"repetition_interval,omitempty"`
	StopAtDurationEnd  bool   `yaml:"stop_at_duration_end,omitempty" json:"stop_at_duration_end,omitempty"`
	Delay              string `yaml:"delay,omitempty" json:"delay,omitempty"`
}

type Action struct {
	ID         string `yaml:"id,omitempty" json:"id,omitempty"`
	Path       string `yaml:"path" json:"path"`
	Args       string `yaml:"args,omitempty" json:"args,omitempty"`
	WorkingDir string `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
}

// Compiled is a validated job with parsed durations and inlined XML.
type Compiled struct {
	Folder      string
	Name        string
	Author      string
	Description string
	Hidden      *bool
	XML         string
	Principal   *types.Principal
	Settings    *types.Settings
	Triggers    []types.Trigger
	Actions     []types.ExecAction
}

// Path returns the full path the job registers under.
func (c *Compiled) Path() string {
	return taskservice.JoinPath(append(taskservice.SplitPath(c.Folder), c.Name)...)
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.dir = filepath.Dir(path)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes a manifest without validating it. Relative xml_file entries
// resolve against the working directory.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w: %w", taskservice.ErrInvalidConfiguration, err)
	}
	return &m, nil
}

// Validate compiles every job and reports all failures together.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]int)

	for i, j := range m.Jobs {
		c, err := j.Compile(m.dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w", i, err))
			continue
		}
		key := strings.ToLower(c.Path())
		if first, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("jobs[%d]: %s already defined by jobs[%d]: %w", i, c.Path(), first, taskservice.ErrInvalidConfiguration))
			continue
		}
		seen[key] = i
	}

	return errors.Join(errs...)
}

// Compile validates j and converts it to domain types. baseDir resolves a
// relative xml_file.
func (j Job) Compile(baseDir string) (*Compiled, error) {
	if strings.TrimSpace(j.Name) == "" {
		return nil, invalid("name", "is required")
	}
	if strings.ContainsAny(j.Name, `\/`) {
		return nil, invalid("name", "must not contain a path separator")
	}
	if j.XMLFile != "" && j.XML != "" {
		return nil, invalid("xml_file", "cannot be combined with xml")
	}

	c := &Compiled{
		Folder:      taskservice.CleanPath(j.Folder),
		Name:        j.Name,
		Author:      j.Author,
		Description: j.Description,
		Hidden:      j.Hidden,
		XML:         j.XML,
	}

	if j.XMLFile != "" {
		path := j.XMLFile
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("xml_file: %w: %w", taskservice.ErrInvalidConfiguration, err)
		}
		c.XML = string(data)
	}

	if c.XML == "" && len(j.Actions) == 0 {
		return nil, invalid("actions", "at least one action is required")
	}

	if p := j.Principal; p != nil {
		level, err := types.ParseRunLevel(p.RunLevel)
		if err != nil {
			return nil, invalid("principal.run_level", err.Error())
		}
		c.Principal = &types.Principal{RunLevel: level, ID: p.ID, UserID: p.UserID}
	}

	if s := j.Settings; s != nil {
		limit, err := parseDuration("settings.execution_time_limit", s.ExecutionTimeLimit)
		if err != nil {
			return nil, err
		}
		c.Settings = &types.Settings{
			RunOnlyIfIdle:              s.RunOnlyIfIdle,
			WakeToRun:                  s.WakeToRun,
			ExecutionTimeLimit:         limit,
			DisallowStartIfOnBatteries: s.DisallowStartIfOnBatteries,
			AllowHardTerminate:         s.AllowHardTerminate,
		}
		if idle := s.Idle; idle != nil {
			idleDuration, err := parseDuration("settings.idle.idle_duration", idle.IdleDuration)
			if err != nil {
				return nil, err
			}
			waitTimeout, err := parseDuration("settings.idle.wait_timeout", idle.WaitTimeout)
			if err != nil {
				return nil, err
			}
			c.Settings.IdleSettings = &types.IdleSettings{
				StopOnIdleEnd: idle.StopOnIdleEnd,
				RestartOnIdle: idle.RestartOnIdle,
				IdleDuration:  idleDuration,
				WaitTimeout:   waitTimeout,
			}
		}
	}

	for i, t := range j.Triggers {
		trigger, err := t.compile(fmt.Sprintf("triggers[%d]", i))
		if err != nil {
			return nil, err
		}
		c.Triggers = append(c.Triggers, trigger)
	}

	for i, a := range j.Actions {
		if strings.TrimSpace(a.Path) == "" {
			return nil, invalid(fmt.Sprintf("actions[%d].path", i), "is required")
		}
		c.Actions = append(c.Actions, types.ExecAction{
			ID:         a.ID,
			Path:       a.Path,
			WorkingDir: a.WorkingDir,
			Args:       a.Args,
		})
	}

	return c, nil
}

func (t Trigger) compile(field string) (types.Trigger, error) {
	limit, err := parseDuration(field+".execution_time_limit", t.ExecutionTimeLimit)
	if err != nil {
		return nil, err
	}
	interval, err := parseDuration(field+".repetition_interval", t.RepetitionInterval)
	if err != nil {
		return nil, err
	}

	switch types.TriggerKind(strings.ToLower(t.Kind)) {
	case types.TriggerIdle:
		if t.Delay != "" {
			return nil, invalid(field+".delay", "is only valid on logon triggers")
		}
		return types.IdleTrigger{
			ID:                 t.ID,
			ExecutionTimeLimit: limit,
			RepetitionInterval: interval,
			StopAtDurationEnd:  t.StopAtDurationEnd,
		}, nil
	case types.TriggerLogon:
		delay, err := parseDuration(field+".delay", t.Delay)
		if err != nil {
			return nil, err
		}
		return types.LogonTrigger{
			ID:                 t.ID,
			ExecutionTimeLimit: limit,
			RepetitionInterval: interval,
			StopAtDurationEnd:  t.StopAtDurationEnd,
			Delay:              delay,
		}, nil
	default:
		return nil, invalid(field+".kind", fmt.Sprintf("unknown trigger kind %q", t.Kind))
	}
}

// parseDuration accepts Go durations ("90s") and ISO-8601 time spans
// ("PT90S"). Empty means zero.
func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	var (
		d   time.Duration
		err error
	)
	if strings.HasPrefix(raw, "P") {
		d, err = utils.DecodeDuration(raw)
	} else {
		d, err = time.ParseDuration(raw)
	}
	if err != nil {
		return 0, invalid(field, err.Error())
	}
	if d < 0 {
		return 0, invalid(field, "must not be negative")
	}
	return d, nil
}

func invalid(field, msg string) error {
	return fmt.Errorf("%s: %s: %w", field, msg, taskservice.ErrInvalidConfiguration)
}
