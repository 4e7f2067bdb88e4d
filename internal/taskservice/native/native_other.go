//go:build !windows

package native

import (
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

// Connector is unavailable outside Windows.
type Connector struct {
	logger *logrus.Logger
}

func NewConnector(logger *logrus.Logger) *Connector {
	return &Connector{logger: logger}
}

func (c *Connector) Connect() (taskservice.Service, error) {
	c.logger.WithField("os", runtime.GOOS).Warn("Native task service requested on unsupported platform")
	return nil, taskservice.ErrUnsupported
}
