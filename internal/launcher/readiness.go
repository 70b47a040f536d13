package launcher

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// DefaultReadyMarker is printed by the format service once its listener is bound.
const DefaultReadyMarker = "Started FormatterWebApplication"

// ReadinessProbe waits for a started service to report that it is ready.
// Implementations must keep consuming out after returning so the child never
// blocks on a full pipe.
type ReadinessProbe interface {
	AwaitReady(ctx context.Context, out io.Reader) error
}

// MarkerProbe resolves when a stdout line contains Marker.
type MarkerProbe struct {
	Marker string
}

func (m MarkerProbe) marker() string {
	if m.Marker == "" {
		return DefaultReadyMarker
	}
	return m.Marker
}

func (m MarkerProbe) AwaitReady(ctx context.Context, out io.Reader) error {
	result := make(chan error, 1)
	marker := m.marker()
	go func() {
		scanner := bufio.NewScanner(out)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		seen := false
		for scanner.Scan() {
			if !seen && strings.Contains(scanner.Text(), marker) {
				seen = true
				result <- nil
			}
		}
		if scanner.Err() != nil {
			// oversized line; keep the pipe drained anyway
			_, _ = io.Copy(io.Discard, out)
		}
		if !seen {
			result <- ErrExitedBeforeReady
		}
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
