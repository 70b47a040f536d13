package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestHelperProcess stands in for the java runtime when re-executed by the
// launcher tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("JAVAFMTD_HELPER") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	switch os.Getenv("JAVAFMTD_HELPER_MODE") {
	case "ready":
		fmt.Println("  .   ____          _")
		fmt.Printf("Started FormatterWebApplication in 1.9 seconds args=%s\n", strings.Join(args, " "))
		time.Sleep(300 * time.Millisecond)
		os.Exit(0)
	case "crash":
		fmt.Fprintln(os.Stderr, "Error: Unable to access jarfile")
		os.Exit(1)
	case "silent":
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}
	os.Exit(2)
}

func helperConfig(mode string) Config {
	return Config{
		JavaBin:      os.Args[0],
		JavaArgs:     []string{"-test.run=TestHelperProcess", "--"},
		JarPath:      "/opt/format-service.jar",
		Env:          []string{"JAVAFMTD_HELPER=1", "JAVAFMTD_HELPER_MODE=" + mode},
		ReadyTimeout: 5 * time.Second,
	}
}

func TestArgsCarryPortAndJar(t *testing.T) {
	l := New(Config{JarPath: "/opt/svc.jar", JavaArgs: []string{"-Xmx256m"}})
	assert.Equal(t, []string{"-Xmx256m", "-Dport=20123", "-jar", "/opt/svc.jar"}, l.Args(20123))
}

func TestLaunchResolvesOnReadyMarker(t *testing.T) {
	l := New(helperConfig("ready"))
	require.NoError(t, l.Launch(context.Background(), 20123))
}

func TestLaunchReportsEarlyExit(t *testing.T) {
	l := New(helperConfig("crash"))
	err := l.Launch(context.Background(), 20124)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.ErrorIs(t, err, ErrExitedBeforeReady)

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 20124, le.Port)
	assert.Contains(t, le.Stderr, "Unable to access jarfile")
}

func TestLaunchTimeoutIsBestEffortByDefault(t *testing.T) {
	cfg := helperConfig("silent")
	cfg.ReadyTimeout = 150 * time.Millisecond
	require.NoError(t, New(cfg).Launch(context.Background(), 20125))
}

func TestLaunchTimeoutFailsWhenStrict(t *testing.T) {
	cfg := helperConfig("silent")
	cfg.ReadyTimeout = 150 * time.Millisecond
	cfg.StrictReadiness = true
	err := New(cfg).Launch(context.Background(), 20126)
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.ErrorIs(t, err, ErrReadinessTimeout)

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	require.NotZero(t, le.PID)
	require.Eventually(t, func() bool {
		return errors.Is(unix.Kill(le.PID, 0), unix.ESRCH)
	}, time.Second, 10*time.Millisecond, "unready service should be killed")
}

func TestLaunchMissingRuntime(t *testing.T) {
	l := New(Config{JavaBin: filepath.Join(t.TempDir(), "no-java"), JarPath: "svc.jar"})
	err := l.Launch(context.Background(), 20127)
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.ErrorIs(t, err, ErrMissingRuntime)
}

type readyAfter struct{ delay time.Duration }

func (r readyAfter) AwaitReady(ctx context.Context, out io.Reader) error {
	go func() { _, _ = io.Copy(io.Discard, out) }()
	select {
	case <-time.After(r.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestLaunchUsesCustomReadinessProbe(t *testing.T) {
	cfg := helperConfig("silent")
	cfg.Readiness = readyAfter{delay: 10 * time.Millisecond}
	cfg.StrictReadiness = true
	require.NoError(t, New(cfg).Launch(context.Background(), 20128))
}

func TestMarkerProbeIgnoresOtherLines(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		fmt.Fprintln(pw, "Starting FormatterWebApplication using Java 17")
		fmt.Fprintln(pw, "Tomcat initialized with port(s): 20000 (http)")
		fmt.Fprintln(pw, "Started FormatterWebApplication in 2.1 seconds")
		fmt.Fprintln(pw, "late log line")
		pw.Close()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, MarkerProbe{}.AwaitReady(ctx, pr))
}

func TestMarkerProbeEOFBeforeMarker(t *testing.T) {
	err := MarkerProbe{Marker: "READY"}.AwaitReady(context.Background(), strings.NewReader("booting\nfailed\n"))
	assert.True(t, errors.Is(err, ErrExitedBeforeReady))
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "cdefg", b.String())
}
