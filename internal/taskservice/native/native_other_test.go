//go:build !windows

package native

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
)

func TestConnectUnsupported(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc, err := NewConnector(logger).Connect()
	assert.Nil(t, svc)
	assert.ErrorIs(t, err, taskservice.ErrUnsupported)
}
