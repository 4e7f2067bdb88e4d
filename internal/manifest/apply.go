package manifest

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/job"
	"github.com/0xPuncker/task-watcher/pkg/utils"
)

const maxParallelRegistrations = 5

// Result is the outcome of applying one manifest job.
type Result struct {
	Path string
	Job  *job.RegisteredJob
	Err  error
}

// Report lists the outcome of every job, in manifest order.
type Report struct {
	Results  []Result
	Duration time.Duration
}

func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

func (r *Report) Applied() int {
	return len(r.Results) - len(r.Failed())
}

// Apply registers every job of m. A failing job does not stop the others.
func Apply(client *job.Client, m *Manifest, logger *logrus.Logger) *Report {
	start := time.Now()
	report := &Report{Results: make([]Result, len(m.Jobs))}

	logger.Infof("Applying manifest with %d jobs...", len(m.Jobs))

	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, maxParallelRegistrations)
	)

	for i, entry := range m.Jobs {
		wg.Add(1)
		go func(i int, entry Job) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			compiled, err := entry.Compile(m.dir)
			if err != nil {
				report.Results[i] = Result{
					Path: fmt.Sprintf("jobs[%d] %s", i, entry.Name),
					Err:  err,
				}
				return
			}

			registered, err := Register(client, compiled)
			report.Results[i] = Result{Path: compiled.Path(), Job: registered, Err: err}
		}(i, entry)
	}

	wg.Wait()
	report.Duration = time.Since(start)

	for _, res := range report.Failed() {
		logger.WithFields(logrus.Fields{
			"job":   res.Path,
			"error": res.Err,
		}).Error("Failed to apply job")
	}

	logger.WithFields(logrus.Fields{
		"applied":  report.Applied(),
		"failed":   len(report.Failed()),
		"duration": utils.FormatDuration(report.Duration),
	}).Info("Finished applying manifest")

	return report
}

// Register creates the job's folder if needed and registers the job,
// replacing any job of the same name.
func Register(client *job.Client, c *Compiled) (*job.RegisteredJob, error) {
	if err := client.CreateFolder(c.Folder); err != nil {
		return nil, err
	}

	b, err := client.NewBuilder(c.Folder)
	if err != nil {
		return nil, err
	}

	if c.XML != "" {
		b.FromXML(c.XML)
	}
	if c.Author != "" {
		b.SetAuthor(c.Author)
	}
	if c.Description != "" {
		b.SetDescription(c.Description)
	}
	if c.Hidden != nil {
		b.SetHidden(*c.Hidden)
	}
	if p := c.Principal; p != nil {
		b.SetPrincipal(p.RunLevel, p.ID, p.UserID)
	}
	if c.Settings != nil {
		b.ApplySettings(*c.Settings)
	}
	for _, t := range c.Triggers {
		b.AddTrigger(t)
	}
	for _, a := range c.Actions {
		b.AddExecAction(a)
	}

	return b.Register(c.Name)
}
