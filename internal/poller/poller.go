// Package poller watches folders for jobs that appear or disappear outside
// this process.
package poller

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/inventory"
)

// DriftNotifier is told about folders whose job set changed.
type DriftNotifier interface {
	SendDrift(folder string, added, removed []string) error
}

// Drift is the change in one folder's job set between two cycles.
type Drift struct {
	Folder  string
	Added   []string
	Removed []string
}

type Poller struct {
	inventory *inventory.Inventory
	notifier  DriftNotifier
	logger    *logrus.Logger
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	mu    sync.Mutex
	known map[string]map[string]string
}

func New(inv *inventory.Inventory, notifier DriftNotifier, logger *logrus.Logger, interval time.Duration) *Poller {
	return &Poller{
		inventory: inv,
		notifier:  notifier,
		logger:    logger,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		known:     make(map[string]map[string]string),
	}
}

// Start runs update cycles until Stop is called. The first cycle runs
// immediately and only records a baseline.
func (p *Poller) Start() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.update()
	for {
		select {
		case <-ticker.C:
			p.update()
		case <-p.stop:
			return
		}
	}
}

// Stop ends the loop started by Start and waits for it to return.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	<-p.done
}

func (p *Poller) update() {
	p.logger.Debug("Starting poller update cycle")

	for _, d := range p.Check() {
		p.logger.WithFields(logrus.Fields{
			"folder":  d.Folder,
			"added":   len(d.Added),
			"removed": len(d.Removed),
		}).Warn("Job drift detected")

		if p.notifier == nil {
			continue
		}
		if err := p.notifier.SendDrift(d.Folder, d.Added, d.Removed); err != nil {
			p.logger.Errorf("Failed to send drift notification: %v", err)
		}
	}

	p.logger.Debug("Completed poller update cycle")
}

// Check lists every watched folder and returns the folders whose job set
// differs from the previous check. A folder seen for the first time, or one
// that fails to list, yields no drift.
func (p *Poller) Check() []Drift {
	p.mu.Lock()
	defer p.mu.Unlock()

	var drifts []Drift
	for _, folder := range p.inventory.Watched() {
		jobs, err := p.inventory.Jobs(folder, true)
		if err != nil {
			p.logger.Errorf("Failed to list folder %s: %v", folder, err)
			continue
		}

		current := make(map[string]string, len(jobs))
		for _, j := range jobs {
			current[strings.ToLower(j.Path)] = j.Path
		}

		key := strings.ToLower(folder)
		previous, seen := p.known[key]
		p.known[key] = current
		if !seen {
			continue
		}

		d := Drift{Folder: folder, Added: diff(current, previous), Removed: diff(previous, current)}
		if len(d.Added) > 0 || len(d.Removed) > 0 {
			drifts = append(drifts, d)
		}
	}
	return drifts
}

func diff(a, b map[string]string) []string {
	var out []string
	for key, path := range a {
		if _, ok := b[key]; !ok {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
