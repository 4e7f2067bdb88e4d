package types

import (
	"fmt"
	"strings"
	"time"
)

// RunLevel is the privilege level a job runs with.
type RunLevel int

const (
	RunLevelLeastPrivilege RunLevel = iota
	RunLevelHighest
)

func (r RunLevel) String() string {
	switch r {
	case RunLevelHighest:
		return "highest"
	case RunLevelLeastPrivilege:
		return "least_privilege"
	default:
		return fmt.Sprintf("RunLevel(%d)", int(r))
	}
}

// ParseRunLevel accepts the names used in manifests and API payloads.
func ParseRunLevel(s string) (RunLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "highest", "highestavailable":
		return RunLevelHighest, nil
	case "", "least_privilege", "leastprivilege", "lua", "limited":
		return RunLevelLeastPrivilege, nil
	default:
		return 0, fmt.Errorf("unknown run level %q", s)
	}
}

// TriggerKind identifies a trigger variant.
type TriggerKind string

const (
	TriggerIdle  TriggerKind = "idle"
	TriggerLogon TriggerKind = "logon"
)

// Trigger is either an IdleTrigger or a LogonTrigger.
type Trigger interface {
	Kind() TriggerKind
	isTrigger()
}

// IdleTrigger starts a job when the machine becomes idle.
type IdleTrigger struct {
	ID                 string
	ExecutionTimeLimit time.Duration
	RepetitionInterval time.Duration
	StopAtDurationEnd  bool
}

func (IdleTrigger) Kind() TriggerKind { return TriggerIdle }
func (IdleTrigger) isTrigger()        {}

// LogonTrigger starts a job when a user logs on, after Delay.
type LogonTrigger struct {
	ID                 string
	ExecutionTimeLimit time.Duration
	RepetitionInterval time.Duration
	StopAtDurationEnd  bool
	Delay              time.Duration
}

func (LogonTrigger) Kind() TriggerKind { return TriggerLogon }
func (LogonTrigger) isTrigger()        {}

// ExecAction runs an executable.
type ExecAction struct {
	ID         string
	Path       string
	WorkingDir string
	Args       string
}

// IdleSettings controls how a job reacts to the idle state.
type IdleSettings struct {
	StopOnIdleEnd bool
	RestartOnIdle bool
	IdleDuration  time.Duration
	WaitTimeout   time.Duration
}

// Settings is the job-wide execution policy.
type Settings struct {
	RunOnlyIfIdle              bool
	WakeToRun                  bool
	ExecutionTimeLimit         time.Duration
	DisallowStartIfOnBatteries bool
	AllowHardTerminate         bool
	// IdleSettings is optional; nil leaves the service defaults in place.
	IdleSettings *IdleSettings
}

// Principal is the identity a job runs under.
type Principal struct {
	RunLevel RunLevel
	ID       string
	UserID   string
}

// Definition is the read-back view of a persisted job definition.
type Definition struct {
	Author      string
	Description string
	Hidden      bool
	Enabled     bool
	Triggers    []Trigger
	Actions     []ExecAction
	Settings    Settings
	Principal   Principal
}

// IdleTriggers returns the idle triggers in definition order.
func (d *Definition) IdleTriggers() []IdleTrigger {
	var out []IdleTrigger
	for _, t := range d.Triggers {
		if it, ok := t.(IdleTrigger); ok {
			out = append(out, it)
		}
	}
	return out
}

// LogonTriggers returns the logon triggers in definition order.
func (d *Definition) LogonTriggers() []LogonTrigger {
	var out []LogonTrigger
	for _, t := range d.Triggers {
		if lt, ok := t.(LogonTrigger); ok {
			out = append(out, lt)
		}
	}
	return out
}
