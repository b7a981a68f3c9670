package reconcile

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("reconcile: loop already running")
	ErrNotRunning     = errors.New("reconcile: loop not running")
)

// SessionError reports that the anchor provider session could not start.
// Apart from ErrAlreadyRunning it is the only error Run returns.
type SessionError struct {
	Provider string
	Err      error
}

func (e *SessionError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("reconcile: session start failed: %v", e.Err)
	}
	return fmt.Sprintf("reconcile: session start failed (%s): %v", e.Provider, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
