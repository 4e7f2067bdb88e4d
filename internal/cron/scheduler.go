package cron

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/pkg/types"
)

// Notifier is told about failed maintenance runs.
type Notifier interface {
	SendMaintenanceNotification(taskName, status string, duration time.Duration, details string) error
}

type entry struct {
	id          cron.EntryID
	schedule    string
	taskName    string
	enabled     bool
	description string
}

type Scheduler struct {
	cron           *cron.Cron
	logger         *logrus.Logger
	notifier       Notifier
	notifierMu     sync.RWMutex
	entries        map[string]entry
	mu             sync.RWMutex
	started        bool
	tasks          map[string]func() error
	maxConcurrent  int
	activeJobs     int
	activeJobsLock sync.Mutex
}

func NewScheduler(logger *logrus.Logger, config types.MaintenanceConfig) *Scheduler {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()),
		logger:        logger,
		maxConcurrent: maxConcurrent,
		entries:       make(map[string]entry),
		tasks:         make(map[string]func() error),
	}
}

func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifierMu.Lock()
	defer s.notifierMu.Unlock()
	s.notifier = n
}

func (s *Scheduler) RegisterTask(name string, task func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = task
}

// LoadPredefinedTasks replaces every scheduled entry with the enabled ones
// of tasks. Each entry must name a registered task.
func (s *Scheduler) LoadPredefinedTasks(tasks []types.MaintenanceTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.entries {
		s.cron.Remove(e.id)
		delete(s.entries, name)
	}

	for _, mt := range tasks {
		if !mt.Enabled {
			s.logger.Infof("Skipping disabled maintenance task: %s", mt.Name)
			continue
		}

		task, exists := s.tasks[mt.TaskName]
		if !exists {
			return fmt.Errorf("task %s not registered", mt.TaskName)
		}

		id, err := s.cron.AddFunc(mt.Schedule, s.wrap(mt, task))
		if err != nil {
			return fmt.Errorf("failed to schedule maintenance task %s: %w", mt.Name, err)
		}

		s.entries[mt.Name] = entry{
			id:          id,
			schedule:    mt.Schedule,
			taskName:    mt.TaskName,
			enabled:     mt.Enabled,
			description: mt.Description,
		}

		s.logger.WithFields(logrus.Fields{
			"name":        mt.Name,
			"schedule":    mt.Schedule,
			"task":        mt.TaskName,
			"description": mt.Description,
		}).Info("Maintenance task scheduled")
	}

	return nil
}

func (s *Scheduler) wrap(mt types.MaintenanceTask, task func() error) func() {
	return func() {
		s.activeJobsLock.Lock()
		if s.activeJobs >= s.maxConcurrent {
			s.activeJobsLock.Unlock()
			s.logger.Warnf("Max concurrent maintenance tasks reached, skipping: %s", mt.Name)
			return
		}
		s.activeJobs++
		active := s.activeJobs
		s.activeJobsLock.Unlock()

		defer func() {
			s.activeJobsLock.Lock()
			s.activeJobs--
			s.activeJobsLock.Unlock()
		}()

		s.logger.WithFields(logrus.Fields{
			"name":        mt.Name,
			"task":        mt.TaskName,
			"active_jobs": active,
		}).Debug("Starting maintenance task")

		start := time.Now()
		err := task()
		elapsed := time.Since(start)

		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"name":     mt.Name,
				"duration": formatDuration(elapsed),
			}).Info("Maintenance task completed")
			return
		}

		s.logger.WithFields(logrus.Fields{
			"name":     mt.Name,
			"error":    err.Error(),
			"duration": formatDuration(elapsed),
		}).Error("Maintenance task failed")

		// Stop holds mu while waiting for running tasks.
		s.notifierMu.RLock()
		notifier := s.notifier
		s.notifierMu.RUnlock()
		if notifier != nil {
			if nerr := notifier.SendMaintenanceNotification(mt.Name, "failed", elapsed, err.Error()); nerr != nil {
				s.logger.Warnf("Failed to send maintenance notification: %v", nerr)
			}
		}
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// RunNow runs a registered task synchronously, outside its schedule.
func (s *Scheduler) RunNow(taskName string) error {
	s.mu.RLock()
	task, exists := s.tasks[taskName]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("task %s not registered", taskName)
	}
	return task()
}

func (s *Scheduler) GetTaskStatus(name string) (bool, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[name]
	if !exists {
		return false, "", fmt.Errorf("maintenance task %s not found", name)
	}

	return e.enabled, e.description, nil
}

// ListTasks returns the scheduled entries sorted by name.
func (s *Scheduler) ListTasks() []types.MaintenanceTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]types.MaintenanceTask, 0, len(s.entries))
	for name, e := range s.entries {
		tasks = append(tasks, types.MaintenanceTask{
			Name:        name,
			Schedule:    e.schedule,
			TaskName:    e.taskName,
			Enabled:     e.enabled,
			Description: e.description,
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })

	return tasks
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("Scheduler started...")

	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.started = false
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
