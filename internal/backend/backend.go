// Package backend picks the task service implementation named in config.
package backend

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/0xPuncker/task-watcher/internal/taskservice/memory"
	"github.com/0xPuncker/task-watcher/internal/taskservice/native"
)

const (
	KindMemory  = "memory"
	KindWindows = "windows"
	KindAuto    = "auto"
)

// Open returns a connector for kind. "auto" (or empty) selects the native
// service on Windows and the in-memory emulation elsewhere.
func Open(kind string, logger *logrus.Logger) (taskservice.Connector, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || kind == KindAuto {
		kind = KindMemory
		if runtime.GOOS == "windows" {
			kind = KindWindows
		}
	}

	switch kind {
	case KindMemory:
		logger.Warn("Using in-memory task service; registered jobs are lost on exit")
		return memory.NewStore(), nil
	case KindWindows:
		if runtime.GOOS != "windows" {
			return nil, fmt.Errorf("backend %q on %s: %w", kind, runtime.GOOS, taskservice.ErrUnsupported)
		}
		logger.Info("Using Windows Task Scheduler")
		return native.NewConnector(logger), nil
	default:
		return nil, fmt.Errorf("unknown task backend %q: %w", kind, taskservice.ErrInvalidConfiguration)
	}
}
