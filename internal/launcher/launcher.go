// Package launcher starts the format service jar and waits for it to report
// readiness. Launched services are detached and outlive the caller.
package launcher

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultReadyTimeout bounds the wait for the readiness marker. Slow hosts
// routinely need tens of seconds to boot the JVM.
const DefaultReadyTimeout = 40 * time.Second

// Launcher starts a format service bound to port.
type Launcher interface {
	Launch(ctx context.Context, port int) error
}

// Config describes how the service jar is run.
type Config struct {
	JavaBin  string
	JavaArgs []string // placed before -Dport, e.g. heap flags
	JarPath  string
	Env      []string
	Dir      string

	ReadyTimeout time.Duration
	// StrictReadiness turns a readiness timeout into a launch failure. When
	// false, a timeout is treated as a slow start and callers retry later.
	StrictReadiness bool
	Readiness       ReadinessProbe
}

// JarLauncher runs `java -Dport=<port> -jar <jar>`.
type JarLauncher struct {
	cfg Config
}

func New(cfg Config) *JarLauncher {
	if cfg.JavaBin == "" {
		cfg.JavaBin = "java"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.Readiness == nil {
		cfg.Readiness = MarkerProbe{Marker: DefaultReadyMarker}
	}
	return &JarLauncher{cfg: cfg}
}

// Args returns the argument vector used for port.
func (l *JarLauncher) Args(port int) []string {
	args := append([]string{}, l.cfg.JavaArgs...)
	return append(args, "-Dport="+strconv.Itoa(port), "-jar", l.cfg.JarPath)
}

// Launch starts the service and blocks until it is ready, the ready timeout
// elapses, or the child exits.
func (l *JarLauncher) Launch(ctx context.Context, port int) error {
	cmd := exec.Command(l.cfg.JavaBin, l.Args(port)...)
	cmd.Dir = l.cfg.Dir
	if len(l.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), l.cfg.Env...)
	}
	// own process group: terminal signals aimed at us must not reach it
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return &LaunchError{Port: port, Err: err}
	}
	stderr := newTailBuffer(4096)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			err = errors.Join(ErrMissingRuntime, err)
		}
		return &LaunchError{Port: port, Err: err}
	}
	_ = stdoutW.Close()
	log.Printf("INFO: format service starting pid=%d port=%d", cmd.Process.Pid, port)

	exited := make(chan error, 1)
	go func() {
		// always reap; the service itself is left running
		exited <- cmd.Wait()
		_ = stdoutR.Close()
	}()

	readyCtx, cancel := context.WithTimeout(ctx, l.cfg.ReadyTimeout)
	defer cancel()
	err = l.cfg.Readiness.AwaitReady(readyCtx, stdoutR)
	switch {
	case err == nil:
		log.Printf("INFO: format service ready pid=%d port=%d", cmd.Process.Pid, port)
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		if l.cfg.StrictReadiness {
			// a half-started service would be rediscovered and adopted next cycle
			if kerr := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); kerr != nil && !errors.Is(kerr, unix.ESRCH) {
				log.Printf("WARN: kill unready format service pid=%d: %v", cmd.Process.Pid, kerr)
			}
			return &LaunchError{Port: port, PID: cmd.Process.Pid, Err: ErrReadinessTimeout, Stderr: stderr.String()}
		}
		log.Printf("WARN: format service pid=%d port=%d not ready after %s; assuming slow start", cmd.Process.Pid, port, l.cfg.ReadyTimeout)
		return nil
	case errors.Is(err, ErrExitedBeforeReady):
		select {
		case werr := <-exited:
			if werr != nil {
				err = errors.Join(err, werr)
			}
		case <-time.After(5 * time.Second):
		}
		return &LaunchError{Port: port, PID: cmd.Process.Pid, Err: err, Stderr: stderr.String()}
	default:
		return &LaunchError{Port: port, PID: cmd.Process.Pid, Err: err, Stderr: stderr.String()}
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
