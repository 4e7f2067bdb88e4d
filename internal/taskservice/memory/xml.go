package memory

import (
	"encoding/xml"
	"fmt"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/pkg/taskxml"
	"github.com/0xPuncker/task-watcher/pkg/utils"
)

var triggerElements = map[string]int{
	"EventTrigger":              0,
	"TimeTrigger":               1,
	"DailyTrigger":              2,
	"WeeklyTrigger":             3,
	"MonthlyTrigger":            4,
	"MonthlyDOWTrigger":         5,
	"IdleTrigger":               taskservice.TriggerIdle,
	"RegistrationTrigger":       7,
	"BootTrigger":               8,
	"LogonTrigger":              taskservice.TriggerLogon,
	"SessionStateChangeTrigger": 11,
}

func triggerElement(triggerType int) string {
	for name, t := range triggerElements {
		if t == triggerType {
			return name
		}
	}
	return "Trigger"
}

func renderDefinition(def *node) (interface{}, error) {
	reg := def.child("RegistrationInfo")
	settings := def.child("Settings")
	idle := settings.child("IdleSettings")
	principal := def.child("Principal")

	task := &taskxml.Task{
		RegistrationInfo: &taskxml.RegistrationInfo{
			Author:      reg.str("Author"),
			Description: reg.str("Description"),
		},
		Triggers: &taskxml.Triggers{},
		Principals: &taskxml.Principals{Items: []taskxml.Principal{{
			ID:        principal.str("Id"),
			UserID:    principal.str("UserId"),
			LogonType: "InteractiveToken",
			RunLevel:  taskxml.RunLevelLeastPrivilege,
		}}},
		Settings: &taskxml.Settings{
			DisallowStartIfOnBatteries: taskxml.Bool(settings.boolean("DisallowStartIfOnBatteries")),
			AllowHardTerminate:         taskxml.Bool(settings.boolean("AllowHardTerminate")),
			RunOnlyIfIdle:              taskxml.Bool(settings.boolean("RunOnlyIfIdle")),
			WakeToRun:                  taskxml.Bool(settings.boolean("WakeToRun")),
			ExecutionTimeLimit:         settings.str("ExecutionTimeLimit"),
			IdleSettings: &taskxml.IdleSettings{
				Duration:      idle.str("IdleDuration"),
				WaitTimeout:   idle.str("WaitTimeout"),
				StopOnIdleEnd: taskxml.Bool(idle.boolean("StopOnIdleEnd")),
				RestartOnIdle: taskxml.Bool(idle.boolean("RestartOnIdle")),
			},
			Enabled: taskxml.Bool(settings.boolean("Enabled")),
			Hidden:  taskxml.Bool(settings.boolean("Hidden")),
		},
		Actions: &taskxml.Actions{Context: principal.str("Id")},
	}
	if principal.integer("RunLevel") == taskservice.RunLevelHighest {
		task.Principals.Items[0].RunLevel = taskxml.RunLevelHighest
	}

	for _, t := range def.child("Triggers").items {
		rep := t.child("Repetition")
		xt := taskxml.Trigger{
			XMLName:            xml.Name{Local: triggerElement(t.integer("Type"))},
			ID:                 t.str("Id"),
			ExecutionTimeLimit: t.str("ExecutionTimeLimit"),
			Enabled:            taskxml.Bool(t.boolean("Enabled")),
			Delay:              t.str("Delay"),
		}
		if rep.str("Interval") != "" || rep.str("Duration") != "" || rep.boolean("StopAtDurationEnd") {
			xt.Repetition = &taskxml.Repetition{
				Interval:          rep.str("Interval"),
				Duration:          rep.str("Duration"),
				StopAtDurationEnd: taskxml.Bool(rep.boolean("StopAtDurationEnd")),
			}
		}
		task.Triggers.Items = append(task.Triggers.Items, xt)
	}

	for _, a := range def.child("Actions").items {
		task.Actions.Items = append(task.Actions.Items, taskxml.Exec{
			ID:               a.str("Id"),
			Command:          a.str("Path"),
			Arguments:        a.str("Arguments"),
			WorkingDirectory: a.str("WorkingDirectory"),
		})
	}

	return taskxml.Marshal(task)
}

// parseDefinition builds a definition from XML the way the service does:
// absent elements keep the service defaults and malformed values are rejected.
func parseDefinition(text string) (*node, error) {
	task, err := taskxml.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, taskservice.ErrInvalidConfiguration)
	}

	def := newDefinition()
	var durations []string

	if ri := task.RegistrationInfo; ri != nil {
		reg := def.child("RegistrationInfo")
		reg.props["Author"] = ri.Author
		reg.props["Description"] = ri.Description
	}

	if task.Triggers != nil {
		triggers := def.child("Triggers")
		for _, xt := range task.Triggers.Items {
			triggerType, ok := triggerElements[xt.XMLName.Local]
			if !ok {
				return nil, fmt.Errorf("unknown trigger element %q: %w", xt.XMLName.Local, taskservice.ErrInvalidConfiguration)
			}
			t := newTrigger(triggerType)
			t.props["Id"] = xt.ID
			t.props["Enabled"] = taskxml.BoolOr(xt.Enabled, true)
			t.props["ExecutionTimeLimit"] = xt.ExecutionTimeLimit
			if triggerType == taskservice.TriggerLogon {
				t.props["Delay"] = xt.Delay
			}
			if r := xt.Repetition; r != nil {
				rep := t.child("Repetition")
				rep.props["Interval"] = r.Interval
				rep.props["Duration"] = r.Duration
				rep.props["StopAtDurationEnd"] = taskxml.BoolOr(r.StopAtDurationEnd, false)
				durations = append(durations, r.Interval, r.Duration)
			}
			durations = append(durations, xt.ExecutionTimeLimit, xt.Delay)
			triggers.items = append(triggers.items, t)
		}
	}

	if task.Principals != nil && len(task.Principals.Items) > 0 {
		xp := task.Principals.Items[0]
		p := def.child("Principal")
		p.props["Id"] = xp.ID
		p.props["UserId"] = xp.UserID
		switch xp.RunLevel {
		case "", taskxml.RunLevelLeastPrivilege:
			p.props["RunLevel"] = taskservice.RunLevelLUA
		case taskxml.RunLevelHighest:
			p.props["RunLevel"] = taskservice.RunLevelHighest
		default:
			return nil, fmt.Errorf("unknown run level %q: %w", xp.RunLevel, taskservice.ErrInvalidConfiguration)
		}
	}

	if xs := task.Settings; xs != nil {
		s := def.child("Settings")
		s.props["DisallowStartIfOnBatteries"] = taskxml.BoolOr(xs.DisallowStartIfOnBatteries, true)
		s.props["AllowHardTerminate"] = taskxml.BoolOr(xs.AllowHardTerminate, true)
		s.props["RunOnlyIfIdle"] = taskxml.BoolOr(xs.RunOnlyIfIdle, false)
		s.props["WakeToRun"] = taskxml.BoolOr(xs.WakeToRun, false)
		s.props["Enabled"] = taskxml.BoolOr(xs.Enabled, true)
		s.props["Hidden"] = taskxml.BoolOr(xs.Hidden, false)
		if xs.ExecutionTimeLimit != "" {
			s.props["ExecutionTimeLimit"] = xs.ExecutionTimeLimit
			durations = append(durations, xs.ExecutionTimeLimit)
		}
		if xi := xs.IdleSettings; xi != nil {
			idle := s.child("IdleSettings")
			if xi.Duration != "" {
				idle.props["IdleDuration"] = xi.Duration
			}
			if xi.WaitTimeout != "" {
				idle.props["WaitTimeout"] = xi.WaitTimeout
			}
			idle.props["StopOnIdleEnd"] = taskxml.BoolOr(xi.StopOnIdleEnd, true)
			idle.props["RestartOnIdle"] = taskxml.BoolOr(xi.RestartOnIdle, false)
			durations = append(durations, xi.Duration, xi.WaitTimeout)
		}
	}

	if task.Actions != nil {
		actions := def.child("Actions")
		for _, xa := range task.Actions.Items {
			a := newAction()
			a.props["Id"] = xa.ID
			a.props["Path"] = xa.Command
			a.props["Arguments"] = xa.Arguments
			a.props["WorkingDirectory"] = xa.WorkingDirectory
			actions.items = append(actions.items, a)
		}
	}

	for _, d := range durations {
		if d != "" && !utils.ValidDuration(d) {
			return nil, fmt.Errorf("invalid time span %q: %w", d, taskservice.ErrInvalidConfiguration)
		}
	}

	return def, nil
}
