// Package job registers, enumerates, looks up and removes scheduled jobs on
// the task service. Every operation opens its own connection and releases
// every handle it obtained before returning.
package job

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

type Client struct {
	connector taskservice.Connector
	logger    *logrus.Logger
}

func NewClient(connector taskservice.Connector, logger *logrus.Logger) *Client {
	return &Client{
		connector: connector,
		logger:    logger,
	}
}

func (c *Client) connect() (taskservice.Service, error) {
	svc, err := c.connector.Connect()
	if err != nil {
		return nil, taskservice.Wrap(taskservice.ErrServiceUnavailable, err, "failed to connect to task service")
	}
	return svc, nil
}

// Lookup returns the job name in folderPath. A missing folder or job yields
// ErrNotFound; failures the service does not classify are reported as
// ErrServiceUnavailable.
func (c *Client) Lookup(folderPath, name string) (*RegisteredJob, error) {
	svc, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer svc.Release()

	folder, err := svc.GetFolder(folderPath)
	if err != nil {
		return nil, taskservice.Wrap(taskservice.ErrServiceUnavailable, err, fmt.Sprintf("failed to open folder %s", taskservice.CleanPath(folderPath)))
	}
	defer folder.Release()

	task, err := folder.Call("GetTask", name)
	if err != nil {
		return nil, taskservice.Wrap(taskservice.ErrNotFound, err, fmt.Sprintf("failed to look up job %s", jobPath(folderPath, name)))
	}
	defer task.Release()

	job, err := snapshot(task)
	if err != nil {
		return nil, err
	}
	c.warn(job)
	return job, nil
}

// ExportXML returns the definition of a job as the service renders it.
func (c *Client) ExportXML(folderPath, name string) (string, error) {
	job, err := c.Lookup(folderPath, name)
	if err != nil {
		return "", err
	}
	return job.XML, nil
}

// Remove deletes a job. Removing a job that does not exist is an error.
func (c *Client) Remove(folderPath, name string) error {
	svc, err := c.connect()
	if err != nil {
		return err
	}
	defer svc.Release()

	folder, err := svc.GetFolder(folderPath)
	if err != nil {
		return taskservice.Wrap(taskservice.ErrServiceUnavailable, err, fmt.Sprintf("failed to open folder %s", taskservice.CleanPath(folderPath)))
	}
	defer folder.Release()

	if _, err := folder.Call("DeleteTask", name, 0); err != nil {
		return taskservice.Wrap(taskservice.ErrServiceUnavailable, err, fmt.Sprintf("failed to remove job %s", jobPath(folderPath, name)))
	}

	c.logger.WithFields(logrus.Fields{
		"folder": taskservice.CleanPath(folderPath),
		"name":   name,
	}).Info("Removed job")
	return nil
}

// ListAll returns every job under folderPath, nested folders included.
func (c *Client) ListAll(folderPath string) ([]*RegisteredJob, error) {
	svc, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer svc.Release()

	folder, err := svc.GetFolder(folderPath)
	if err != nil {
		return nil, taskservice.Wrap(taskservice.ErrServiceUnavailable, err, fmt.Sprintf("failed to open folder %s", taskservice.CleanPath(folderPath)))
	}
	defer folder.Release()

	jobs, err := ListAll(folder)
	if err != nil {
		return nil, err
	}
	c.warn(jobs...)

	c.logger.WithFields(logrus.Fields{
		"folder": taskservice.CleanPath(folderPath),
		"jobs":   len(jobs),
	}).Debug("Listed jobs")
	return jobs, nil
}

// CreateFolder creates path and any missing parent. Existing folders are
// left as they are.
func (c *Client) CreateFolder(path string) error {
	svc, err := c.connect()
	if err != nil {
		return err
	}
	defer svc.Release()

	current, err := svc.GetFolder(`\`)
	if err != nil {
		return fmt.Errorf("failed to open root folder: %w", err)
	}

	for _, segment := range taskservice.SplitPath(path) {
		next, err := current.Call("GetFolder", segment)
		if errors.Is(err, taskservice.ErrNotFound) {
			next, err = current.Call("CreateFolder", segment, "")
			if err == nil {
				c.logger.WithField("folder", taskservice.CleanPath(path)).Infof("Created folder %s", segment)
			}
			if errors.Is(err, taskservice.ErrAlreadyExists) {
				next, err = current.Call("GetFolder", segment)
			}
		}
		current.Release()
		if err != nil {
			return fmt.Errorf("failed to create folder %s: %w", taskservice.CleanPath(path), err)
		}
		current = next
	}

	current.Release()
	return nil
}

// RemoveFolder deletes an empty folder.
func (c *Client) RemoveFolder(path string) error {
	segments := taskservice.SplitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("cannot remove the root folder: %w", taskservice.ErrInvalidConfiguration)
	}

	svc, err := c.connect()
	if err != nil {
		return err
	}
	defer svc.Release()

	parent, err := svc.GetFolder(taskservice.JoinPath(segments[:len(segments)-1]...))
	if err != nil {
		return taskservice.Wrap(taskservice.ErrNotFound, err, fmt.Sprintf("failed to open parent of %s", taskservice.CleanPath(path)))
	}
	defer parent.Release()

	if _, err := parent.Call("DeleteFolder", segments[len(segments)-1], 0); err != nil {
		return fmt.Errorf("failed to remove folder %s: %w", taskservice.CleanPath(path), err)
	}

	c.logger.WithField("folder", taskservice.CleanPath(path)).Info("Removed folder")
	return nil
}

func (c *Client) warn(jobs ...*RegisteredJob) {
	for _, j := range jobs {
		for _, w := range j.Warnings {
			c.logger.WithFields(logrus.Fields{
				"job":   j.Path,
				"error": w,
			}).Warn("Job definition field read as zero")
		}
	}
}

func jobPath(folderPath, name string) string {
	return taskservice.JoinPath(append(taskservice.SplitPath(folderPath), name)...)
}
