package launcher

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLaunchFailed matches every *LaunchError.
	ErrLaunchFailed = errors.New("launch failed")
	// ErrReadinessTimeout is wrapped when strict readiness is configured and
	// the marker never appeared.
	ErrReadinessTimeout = errors.New("readiness marker not observed before timeout")
	// ErrExitedBeforeReady means stdout closed before the marker was seen.
	ErrExitedBeforeReady = errors.New("service exited before reporting readiness")
	// ErrMissingRuntime means the java executable could not be found.
	ErrMissingRuntime = errors.New("missing 'java' executable")
)

// LaunchError describes a failed format service start.
type LaunchError struct {
	Port   int
	PID    int // zero when the process never started
	Err    error
	Stderr string
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("launch format service on port %d: %v", e.Port, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }

func (e *LaunchError) Is(target error) bool { return target == ErrLaunchFailed }
