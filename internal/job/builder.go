package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/pkg/types"
	"github.com/0xPuncker/task-watcher/pkg/utils"
)

// ErrBuilderConsumed is returned by a builder that has already registered or
// been closed.
var ErrBuilderConsumed = errors.New("job builder already consumed")

// Builder accumulates a job definition and registers it in one call.
//
// Configuration methods return the builder so calls can be chained. The first
// failure is kept, every handle is released and later calls do nothing;
// Register then returns that failure. A builder belongs to one goroutine.
type Builder struct {
	logger *logrus.Logger
	path   string

	svc      taskservice.Service
	folder   taskservice.Object
	def      taskservice.Object
	regInfo  taskservice.Object
	triggers taskservice.Object
	actions  taskservice.Object
	settings taskservice.Object

	err error
}

// NewBuilder opens a connection, creates a blank definition and binds it to
// folderPath.
func (c *Client) NewBuilder(folderPath string) (*Builder, error) {
	svc, err := c.connect()
	if err != nil {
		return nil, err
	}

	b := &Builder{
		logger: c.logger,
		path:   taskservice.CleanPath(folderPath),
		svc:    svc,
	}

	folder, err := svc.GetFolder(folderPath)
	if err != nil {
		b.release()
		if taskservice.Classified(err) {
			return nil, fmt.Errorf("failed to open folder %s: %w: %w", b.path, taskservice.ErrServiceUnavailable, err)
		}
		return nil, taskservice.Wrap(taskservice.ErrServiceUnavailable, err, fmt.Sprintf("failed to open folder %s", b.path))
	}
	b.folder = folder

	def, err := svc.NewTask()
	if err != nil {
		b.release()
		return nil, taskservice.Wrap(taskservice.ErrServiceUnavailable, err, "failed to create job definition")
	}
	b.def = def

	if err := b.bind(); err != nil {
		b.release()
		return nil, taskservice.Wrap(taskservice.ErrServiceUnavailable, err, "failed to resolve job definition")
	}

	return b, nil
}

// bind fetches the sub-objects of the current definition.
func (b *Builder) bind() error {
	var err error
	if b.regInfo, err = b.def.Get("RegistrationInfo"); err != nil {
		return fmt.Errorf("failed to get registration info: %w", err)
	}
	if b.triggers, err = b.def.Get("Triggers"); err != nil {
		return fmt.Errorf("failed to get triggers: %w", err)
	}
	if b.actions, err = b.def.Get("Actions"); err != nil {
		return fmt.Errorf("failed to get actions: %w", err)
	}
	if b.settings, err = b.def.Get("Settings"); err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	return nil
}

func (b *Builder) releaseDefinition() {
	for _, obj := range []*taskservice.Object{&b.regInfo, &b.triggers, &b.actions, &b.settings, &b.def} {
		if *obj != nil {
			(*obj).Release()
			*obj = nil
		}
	}
}

func (b *Builder) release() {
	b.releaseDefinition()
	if b.folder != nil {
		b.folder.Release()
		b.folder = nil
	}
	if b.svc != nil {
		b.svc.Release()
		b.svc = nil
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
		b.logger.WithFields(logrus.Fields{
			"folder": b.path,
			"error":  err,
		}).Debug("Job builder failed")
	}
	b.release()
	return b
}

// Err returns the failure Register would report.
func (b *Builder) Err() error {
	return b.err
}

// Close releases a builder that will not be registered. It is safe to call
// more than once and after Register.
func (b *Builder) Close() error {
	b.release()
	if b.err == nil {
		b.err = ErrBuilderConsumed
	}
	return nil
}

func (b *Builder) consume() {
	b.release()
	b.err = ErrBuilderConsumed
}

// FromXML replaces the current definition with one loaded from text. Later
// configuration calls apply to the loaded definition.
func (b *Builder) FromXML(text string) *Builder {
	if b.err != nil {
		return b
	}

	b.releaseDefinition()

	def, err := b.svc.NewTask()
	if err != nil {
		return b.fail(taskservice.Wrap(taskservice.ErrServiceUnavailable, err, "failed to create job definition"))
	}
	b.def = def

	if err := def.Set("XmlText", text); err != nil {
		return b.fail(taskservice.Wrap(taskservice.ErrInvalidConfiguration, err, "failed to load job XML"))
	}
	if err := b.bind(); err != nil {
		return b.fail(taskservice.Wrap(taskservice.ErrServiceUnavailable, err, "failed to resolve job definition"))
	}
	return b
}

func (b *Builder) SetHidden(hidden bool) *Builder {
	if b.err != nil {
		return b
	}
	if err := set(b.settings, "Hidden", hidden); err != nil {
		return b.fail(err)
	}
	return b
}

func (b *Builder) SetAuthor(author string) *Builder {
	if b.err != nil {
		return b
	}
	if err := set(b.regInfo, "Author", author); err != nil {
		return b.fail(err)
	}
	return b
}

func (b *Builder) SetDescription(description string) *Builder {
	if b.err != nil {
		return b
	}
	if err := set(b.regInfo, "Description", description); err != nil {
		return b.fail(err)
	}
	return b
}

// AddIdleTrigger appends an enabled idle trigger.
func (b *Builder) AddIdleTrigger(t types.IdleTrigger) *Builder {
	if b.err != nil {
		return b
	}
	trigger, err := b.createTrigger(taskservice.TriggerIdle, t.ID, t.ExecutionTimeLimit, t.RepetitionInterval, t.StopAtDurationEnd)
	if err != nil {
		return b.fail(err)
	}
	trigger.Release()
	return b
}

// AddLogonTrigger appends an enabled logon trigger.
func (b *Builder) AddLogonTrigger(t types.LogonTrigger) *Builder {
	if b.err != nil {
		return b
	}
	trigger, err := b.createTrigger(taskservice.TriggerLogon, t.ID, t.ExecutionTimeLimit, t.RepetitionInterval, t.StopAtDurationEnd)
	if err != nil {
		return b.fail(err)
	}
	defer trigger.Release()

	if err := setDuration(trigger, "Delay", t.Delay); err != nil {
		return b.fail(err)
	}
	return b
}

// AddTrigger dispatches on the trigger variant.
func (b *Builder) AddTrigger(t types.Trigger) *Builder {
	switch v := t.(type) {
	case types.IdleTrigger:
		return b.AddIdleTrigger(v)
	case types.LogonTrigger:
		return b.AddLogonTrigger(v)
	default:
		if b.err != nil {
			return b
		}
		return b.fail(fmt.Errorf("unsupported trigger %T: %w", t, taskservice.ErrInvalidConfiguration))
	}
}

func (b *Builder) createTrigger(kind int, id string, limit, interval time.Duration, stopAtEnd bool) (taskservice.Object, error) {
	trigger, err := b.triggers.Call("Create", kind)
	if err != nil {
		return nil, taskservice.Wrap(taskservice.ErrInvalidConfiguration, err, "failed to create trigger")
	}

	if err := configureTrigger(trigger, id, limit, interval, stopAtEnd); err != nil {
		trigger.Release()
		return nil, err
	}
	return trigger, nil
}

func configureTrigger(trigger taskservice.Object, id string, limit, interval time.Duration, stopAtEnd bool) error {
	if err := set(trigger, "Id", id); err != nil {
		return err
	}
	if err := set(trigger, "Enabled", true); err != nil {
		return err
	}
	if err := setDuration(trigger, "ExecutionTimeLimit", limit); err != nil {
		return err
	}

	repetition, err := trigger.Get("Repetition")
	if err != nil {
		return taskservice.Wrap(taskservice.ErrInvalidConfiguration, err, "failed to get trigger repetition")
	}
	defer repetition.Release()

	if err := setDuration(repetition, "Interval", interval); err != nil {
		return err
	}
	return set(repetition, "StopAtDurationEnd", stopAtEnd)
}

// SetPrincipal sets the identity and privilege level the job runs with.
func (b *Builder) SetPrincipal(runLevel types.RunLevel, id, userID string) *Builder {
	if b.err != nil {
		return b
	}

	level, err := nativeRunLevel(runLevel)
	if err != nil {
		return b.fail(err)
	}

	principal, err := b.def.Get("Principal")
	if err != nil {
		return b.fail(taskservice.Wrap(taskservice.ErrInvalidConfiguration, err, "failed to get principal"))
	}
	defer principal.Release()

	if err := set(principal, "RunLevel", level); err != nil {
		return b.fail(err)
	}
	if err := set(principal, "Id", id); err != nil {
		return b.fail(err)
	}
	if err := set(principal, "UserId", userID); err != nil {
		return b.fail(err)
	}
	return b
}

// ApplySettings writes s onto the definition. A nil IdleSettings keeps the
// idle settings already on the definition.
func (b *Builder) ApplySettings(s types.Settings) *Builder {
	if b.err != nil {
		return b
	}

	for _, p := range []struct {
		name  string
		value bool
	}{
		{"RunOnlyIfIdle", s.RunOnlyIfIdle},
		{"WakeToRun", s.WakeToRun},
		{"DisallowStartIfOnBatteries", s.DisallowStartIfOnBatteries},
		{"AllowHardTerminate", s.AllowHardTerminate},
	} {
		if err := set(b.settings, p.name, p.value); err != nil {
			return b.fail(err)
		}
	}
	if err := setDuration(b.settings, "ExecutionTimeLimit", s.ExecutionTimeLimit); err != nil {
		return b.fail(err)
	}

	if s.IdleSettings == nil {
		return b
	}

	idle, err := b.settings.Get("IdleSettings")
	if err != nil {
		return b.fail(taskservice.Wrap(taskservice.ErrInvalidConfiguration, err, "failed to get idle settings"))
	}
	defer idle.Release()

	if err := set(idle, "StopOnIdleEnd", s.IdleSettings.StopOnIdleEnd); err != nil {
		return b.fail(err)
	}
	if err := set(idle, "RestartOnIdle", s.IdleSettings.RestartOnIdle); err != nil {
		return b.fail(err)
	}
	if err := setDuration(idle, "IdleDuration", s.IdleSettings.IdleDuration); err != nil {
		return b.fail(err)
	}
	if err := setDuration(idle, "WaitTimeout", s.IdleSettings.WaitTimeout); err != nil {
		return b.fail(err)
	}
	return b
}

// AddExecAction appends an action that runs an executable.
func (b *Builder) AddExecAction(a types.ExecAction) *Builder {
	if b.err != nil {
		return b
	}

	action, err := b.actions.Call("Create", taskservice.ActionExec)
	if err != nil {
		return b.fail(taskservice.Wrap(taskservice.ErrInvalidConfiguration, err, "failed to create action"))
	}
	defer action.Release()

	for _, p := range []struct {
		name  string
		value string
	}{
		{"Path", a.Path},
		{"Id", a.ID},
		{"WorkingDirectory", a.WorkingDir},
		{"Arguments", a.Args},
	} {
		if err := set(action, p.name, p.value); err != nil {
			return b.fail(err)
		}
	}
	return b
}

// Register submits the definition to the bound folder under name, replacing
// any job of the same name, and returns the persisted job. The builder is
// consumed whatever the outcome.
func (b *Builder) Register(name string) (*RegisteredJob, error) {
	if b.err != nil {
		err := b.err
		b.consume()
		return nil, err
	}
	defer b.consume()

	path := jobPath(b.path, name)

	if err := set(b.settings, "Enabled", true); err != nil {
		return nil, err
	}

	task, err := b.folder.Call("RegisterTaskDefinition",
		name,
		b.def,
		taskservice.CreateOrUpdate,
		"",
		"",
		taskservice.LogonInteractiveToken,
		"",
	)
	if err != nil {
		b.logger.WithFields(logrus.Fields{
			"job":   path,
			"error": err,
		}).Warn("Job registration rejected")
		return nil, taskservice.Wrap(taskservice.ErrRegistrationFailed, err, fmt.Sprintf("failed to register job %s", path))
	}
	defer task.Release()

	enabled, err := taskservice.Bool(task, "Enabled")
	if err != nil {
		return nil, fmt.Errorf("failed to read enabled flag of job %s: %w", path, err)
	}
	if !enabled {
		if err := task.Set("Enabled", true); err != nil {
			return nil, taskservice.Wrap(taskservice.ErrRegistrationFailed, err, fmt.Sprintf("failed to enable job %s", path))
		}
	}

	job, err := snapshot(task)
	if err != nil {
		return nil, err
	}

	b.logger.WithFields(logrus.Fields{
		"job":      job.Path,
		"triggers": len(job.Definition.Triggers),
		"actions":  len(job.Definition.Actions),
	}).Info("Registered job")
	return job, nil
}

func set(obj taskservice.Object, name string, value interface{}) error {
	if err := obj.Set(name, value); err != nil {
		return taskservice.Wrap(taskservice.ErrInvalidConfiguration, err, fmt.Sprintf("failed to set %s", name))
	}
	return nil
}

func setDuration(obj taskservice.Object, name string, d time.Duration) error {
	encoded, err := utils.EncodeDuration(d)
	if err != nil {
		return fmt.Errorf("invalid %s: %w: %w", name, taskservice.ErrInvalidConfiguration, err)
	}
	return set(obj, name, encoded)
}

func nativeRunLevel(r types.RunLevel) (int, error) {
	switch r {
	case types.RunLevelHighest:
		return taskservice.RunLevelHighest, nil
	case types.RunLevelLeastPrivilege:
		return taskservice.RunLevelLUA, nil
	default:
		return 0, fmt.Errorf("unknown run level %d: %w", int(r), taskservice.ErrInvalidConfiguration)
	}
}
