package taskservice

import (
	"errors"
	"fmt"
)

var (
	ErrServiceUnavailable   = errors.New("task service unavailable")
	ErrNotFound             = errors.New("not found")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrRegistrationFailed   = errors.New("registration failed")
	ErrAccessDenied         = errors.New("access denied")
	ErrAlreadyExists        = errors.New("already exists")
	ErrUnsupported          = errors.New("task service not supported on this platform")
)

var kinds = []error{
	ErrServiceUnavailable,
	ErrNotFound,
	ErrInvalidConfiguration,
	ErrRegistrationFailed,
	ErrAccessDenied,
	ErrAlreadyExists,
	ErrUnsupported,
}

// Classified reports whether err already carries one of the error kinds.
func Classified(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Wrap annotates err with msg and attaches kind unless err is already
// classified. Access and lookup failures keep their own kind so callers can
// tell them apart from generic rejections.
func Wrap(kind error, err error, msg string) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, err)
}
