// Package inventory caches recursive job listings per folder.
package inventory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

const jobsCacheKey = "jobs:%s"

// Lister lists every job below a folder.
type Lister interface {
	ListAll(folderPath string) ([]*job.RegisteredJob, error)
}

type Inventory struct {
	cache   *cache.Cache
	lister  Lister
	logger  *logrus.Logger
	ttl     time.Duration
	mu      sync.RWMutex
	watched []string
}

func New(lister Lister, logger *logrus.Logger, ttl time.Duration) *Inventory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Inventory{
		cache:   cache.New(ttl, 10*time.Second),
		lister:  lister,
		logger:  logger,
		ttl:     ttl,
		watched: []string{`\`},
	}
}

func cacheKey(folder string) string {
	return fmt.Sprintf(jobsCacheKey, strings.ToLower(taskservice.CleanPath(folder)))
}

// Jobs returns the jobs below folder, from cache unless forceRefresh is set
// or the entry expired. Failures are not cached. The returned slice is the
// caller's own; reordering it leaves the cache untouched.
func (i *Inventory) Jobs(folder string, forceRefresh bool) ([]*job.RegisteredJob, error) {
	key := cacheKey(folder)

	if !forceRefresh {
		if cached, found := i.cache.Get(key); found {
			i.logger.Debugf("Found cached jobs for %s", taskservice.CleanPath(folder))
			return copyJobs(cached.([]*job.RegisteredJob)), nil
		}
	}

	jobs, err := i.lister.ListAll(folder)
	if err != nil {
		return nil, err
	}

	i.cache.Set(key, jobs, i.ttl)
	return copyJobs(jobs), nil
}

func copyJobs(jobs []*job.RegisteredJob) []*job.RegisteredJob {
	out := make([]*job.RegisteredJob, len(jobs))
	copy(out, jobs)
	return out
}

// Find returns the cached copy of a job, listing its folder if needed.
func (i *Inventory) Find(folder, name string) (*job.RegisteredJob, bool, error) {
	jobs, err := i.Jobs(folder, false)
	if err != nil {
		return nil, false, err
	}
	want := taskservice.JoinPath(append(taskservice.SplitPath(folder), name)...)
	for _, j := range jobs {
		if strings.EqualFold(j.Path, want) {
			return j, true, nil
		}
	}
	return nil, false, nil
}

// Invalidate drops the listings that include jobs of folder: the folder
// itself and every ancestor.
func (i *Inventory) Invalidate(folder string) {
	segments := taskservice.SplitPath(folder)
	for n := len(segments); n >= 0; n-- {
		i.cache.Delete(cacheKey(taskservice.JoinPath(segments[:n]...)))
	}
	i.logger.Debugf("Invalidated job listings for %s", taskservice.CleanPath(folder))
}

// IsCached reports whether folder has a live listing.
func (i *Inventory) IsCached(folder string) bool {
	_, found := i.cache.Get(cacheKey(folder))
	return found
}

func (i *Inventory) SetWatched(folders []string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.watched = i.watched[:0]
	for _, f := range folders {
		i.watched = append(i.watched, taskservice.CleanPath(f))
	}
}

func (i *Inventory) Watched() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]string, len(i.watched))
	copy(out, i.watched)
	return out
}

// Refresh re-lists every watched folder. All folders are attempted; the
// first failure is returned.
func (i *Inventory) Refresh() error {
	var firstErr error
	total := 0

	for _, folder := range i.Watched() {
		jobs, err := i.Jobs(folder, true)
		if err != nil {
			i.logger.WithFields(logrus.Fields{
				"folder": folder,
				"error":  err,
			}).Error("Failed to refresh job inventory")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += len(jobs)
	}

	i.logger.WithField("jobs", total).Info("Job inventory refreshed")
	return firstErr
}
