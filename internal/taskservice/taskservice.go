// Package taskservice describes the native scheduling service as a small
// automation object model: objects with properties, methods and 1-based
// collections, reached through a per-session connection.
package taskservice

import (
	"fmt"
	"strings"
)

// Values of the native service enumerations.
const (
	TriggerIdle  = 6
	TriggerLogon = 9

	ActionExec = 0

	CreateOrUpdate = 6

	EnumHidden = 1

	LogonInteractiveToken = 3

	RunLevelLUA     = 0
	RunLevelHighest = 1
)

// Object is one node of the service object graph. Handles obtained through
// Get, Call and Item are owned by the caller and must be released.
type Object interface {
	Get(name string) (Object, error)
	Value(name string) (interface{}, error)
	Set(name string, value interface{}) error
	Call(method string, args ...interface{}) (Object, error)
	Item(index int) (Object, error)
	Release()
}

// Service is a live connection to the scheduling service.
type Service interface {
	NewTask() (Object, error)
	GetFolder(path string) (Object, error)
	Release()
}

// Connector opens service connections. Every logical session opens its own.
type Connector interface {
	Connect() (Service, error)
}

// Count returns the Count property of a collection.
func Count(collection Object) (int, error) {
	v, err := collection.Value("Count")
	if err != nil {
		return 0, err
	}
	return Int(v)
}

// Int converts the integer representations backends hand out.
func Int(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer value, got %T", v)
	}
}

// String reads a string property; a missing value reads as "".
func String(obj Object, name string) (string, error) {
	v, err := obj.Value(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("property %s: expected string, got %T", name, v)
	}
	return s, nil
}

// Bool reads a boolean property.
func Bool(obj Object, name string) (bool, error) {
	v, err := obj.Value(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("property %s: expected bool, got %T", name, v)
	}
	return b, nil
}

// SplitPath breaks a folder path into its segments. Both separators are
// accepted; the root folder has no segments.
func SplitPath(path string) []string {
	path = strings.ReplaceAll(path, "/", `\`)
	var segments []string
	for _, s := range strings.Split(path, `\`) {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// JoinPath builds a rooted folder path from segments.
func JoinPath(segments ...string) string {
	return `\` + strings.Join(segments, `\`)
}

// CleanPath normalises a folder path to its rooted, backslash form.
func CleanPath(path string) string {
	return JoinPath(SplitPath(path)...)
}
