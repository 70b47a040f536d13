// Package probe finds an already-running format service in the OS process table.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMarker identifies the packaged format service on a command line.
const DefaultMarker = "spring-javaformat-format-service-0.0.16-SNAPSHOT.jar"

// ErrProcessDiscoveryFailed reports that the process table could not be read.
var ErrProcessDiscoveryFailed = errors.New("process discovery failed")

// DiscoveryError wraps the lister failure behind ErrProcessDiscoveryFailed.
type DiscoveryError struct {
	Source string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("process discovery via %s failed: %v", e.Source, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func (e *DiscoveryError) Is(target error) bool { return target == ErrProcessDiscoveryFailed }

// ProcessRecord is a snapshot of one process table entry.
type ProcessRecord struct {
	PID         int
	CommandLine string
}

// Port returns the -Dport argument of the record, if present.
func (r ProcessRecord) Port() (int, bool) {
	return PortFromCommandLine(r.CommandLine)
}

// Lister enumerates processes in OS order.
type Lister interface {
	Name() string
	List(ctx context.Context) ([]ProcessRecord, error)
}

// Prober answers whether a format service is running and on which port.
type Prober interface {
	FindRunning(ctx context.Context) (ProcessRecord, bool, error)
}

var portArgRe = regexp.MustCompile(`(?:^|\s)-Dport=([0-9]+)(?:\s|$)`)

// PortFromCommandLine extracts the listening port from a `-Dport=<n>` argument.
func PortFromCommandLine(cmdline string) (int, bool) {
	m := portArgRe.FindStringSubmatch(cmdline)
	if m == nil {
		return 0, false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

// Probe scans a Lister for command lines containing Marker. The calling
// process is never a match, even when its own flags name the jar.
type Probe struct {
	lister Lister
	marker string
	self   int
}

// New returns a Probe. An empty marker falls back to DefaultMarker.
func New(lister Lister, marker string) *Probe {
	if strings.TrimSpace(marker) == "" {
		marker = DefaultMarker
	}
	return &Probe{lister: lister, marker: marker, self: os.Getpid()}
}

// Marker returns the command-line substring this probe matches.
func (p *Probe) Marker() string { return p.marker }

// FindRunning returns the first matching process that carries a -Dport
// argument, or else the first match at all. Multiple matches are not an
// error; OS order decides.
func (p *Probe) FindRunning(ctx context.Context) (ProcessRecord, bool, error) {
	procs, err := p.lister.List(ctx)
	if err != nil {
		var de *DiscoveryError
		if errors.As(err, &de) {
			return ProcessRecord{}, false, err
		}
		return ProcessRecord{}, false, &DiscoveryError{Source: p.lister.Name(), Err: err}
	}
	var (
		fallback ProcessRecord
		found    bool
	)
	for _, rec := range procs {
		if rec.PID == p.self || !strings.Contains(rec.CommandLine, p.marker) {
			continue
		}
		if _, ok := rec.Port(); ok {
			return rec, true, nil
		}
		if !found {
			fallback, found = rec, true
		}
	}
	return fallback, found, nil
}
