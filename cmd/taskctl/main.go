// Command taskctl manages scheduled jobs from the command line.
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/backend"
	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	root := newRootCommand(logger, func(kind string) (taskservice.Connector, error) {
		return backend.Open(kind, logger)
	})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
