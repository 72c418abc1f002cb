package common

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the fleet client, the credential
// manager and the runner matches exactly one of these with errors.Is.
var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrTransport            = errors.New("transport error")
	ErrAPI                  = errors.New("api error")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrTargetNotFound       = errors.New("target not found")
	ErrRunFailed            = errors.New("run failed")
	ErrCleanupFailed        = errors.New("cleanup failed")
)

// APIError is a non-2xx answer from the fleet API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	if b := strings.TrimSpace(e.Body); b != "" {
		if len(b) > 200 {
			b = b[:200] + "..."
		}
		msg += ": " + b
	}
	return msg
}

func (e *APIError) Unwrap() error { return ErrAPI }

// RunError is a non-zero exit of the automation engine. The captured
// streams are carried verbatim.
type RunError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("automation engine exited with code %d", e.ExitCode)
}

func (e *RunError) Unwrap() error { return ErrRunFailed }

// CleanupError is a failed removal of an ephemeral key file. It is only
// ever logged or attached to a result; it never replaces a run outcome.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("remove key file %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() []error { return []error{ErrCleanupFailed, e.Err} }

// ExitCode maps an error to a process exit status. Engine failures keep
// the engine's own code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var runErr *RunError
	if errors.As(err, &runErr) && runErr.ExitCode > 0 {
		return runErr.ExitCode
	}
	return 1
}
