package manifest

import (
	"time"

	"github.com/0xPuncker/task-watcher/pkg/types"
)

// FromDefinition renders a read-back definition as a manifest entry, so a
// registered job can be copied into a manifest file.
func FromDefinition(folder, name string, def types.Definition) Job {
	hidden := def.Hidden
	j := Job{
		Folder:      folder,
		Name:        name,
		Author:      def.Author,
		Description: def.Description,
		Hidden:      &hidden,
		Principal: &Principal{
			RunLevel: def.Principal.RunLevel.String(),
			ID:       def.Principal.ID,
			UserID:   def.Principal.UserID,
		},
		Settings: &Settings{
			RunOnlyIfIdle:              def.Settings.RunOnlyIfIdle,
			WakeToRun:                  def.Settings.WakeToRun,
			ExecutionTimeLimit:         formatDuration(def.Settings.ExecutionTimeLimit),
			DisallowStartIfOnBatteries: def.Settings.DisallowStartIfOnBatteries,
			AllowHardTerminate:         def.Settings.AllowHardTerminate,
		},
	}

	if idle := def.Settings.IdleSettings; idle != nil {
		j.Settings.Idle = &IdleSettings{
			StopOnIdleEnd: idle.StopOnIdleEnd,
			RestartOnIdle: idle.RestartOnIdle,
			IdleDuration:  formatDuration(idle.IdleDuration),
			WaitTimeout:   formatDuration(idle.WaitTimeout),
		}
	}

	for _, t := range def.Triggers {
		switch t := t.(type) {
		case types.IdleTrigger:
			j.Triggers = append(j.Triggers, Trigger{
				Kind:               string(types.TriggerIdle),
				ID:                 t.ID,
				ExecutionTimeLimit: formatDuration(t.ExecutionTimeLimit),
				RepetitionInterval: formatDuration(t.RepetitionInterval),
				StopAtDurationEnd:  t.StopAtDurationEnd,
			})
		case types.LogonTrigger:
			j.Triggers = append(j.Triggers, Trigger{
				Kind:               string(types.TriggerLogon),
				ID:                 t.ID,
				ExecutionTimeLimit: formatDuration(t.ExecutionTimeLimit),
				RepetitionInterval: formatDuration(t.RepetitionInterval),
				StopAtDurationEnd:  t.StopAtDurationEnd,
				Delay:              formatDuration(t.Delay),
			})
		}
	}

	for _, a := range def.Actions {
		j.Actions = append(j.Actions, Action{
			ID:         a.ID,
			Path:       a.Path,
			Args:       a.Args,
			WorkingDir: a.WorkingDir,
		})
	}
	return j
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
