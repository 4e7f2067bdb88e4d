package backend

import (
	"io"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/internal/taskservice/memory"
)

func TestOpen(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	t.Run("memory", func(t *testing.T) {
		conn, err := Open(" Memory ", logger)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, conn)
	})

	t.Run("auto", func(t *testing.T) {
		conn, err := Open("", logger)
		require.NoError(t, err)
		if runtime.GOOS != "windows" {
			assert.IsType(t, &memory.Store{}, conn)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open("cron", logger)
		assert.ErrorIs(t, err, taskservice.ErrInvalidConfiguration)
	})

	t.Run("windows elsewhere", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("native backend is available")
		}
		_, err := Open(KindWindows, logger)
		assert.ErrorIs(t, err, taskservice.ErrUnsupported)
	})
}
