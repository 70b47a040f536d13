package formatter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrMissingJava is returned when the java executable cannot be started.
var ErrMissingJava = errors.New("missing 'java' executable, please install java and add it to PATH")

// OneShot runs `java -jar <jar>` for every request, feeding the source on
// stdin and reading the formatted code from stdout.
type OneShot struct {
	JavaBin  string
	JavaArgs []string
	JarPath  string
	// WaitDelay bounds how long output pipes are drained after a kill.
	WaitDelay time.Duration
}

func NewOneShot(javaBin, jarPath string) *OneShot {
	if javaBin == "" {
		javaBin = "java"
	}
	return &OneShot{JavaBin: javaBin, JarPath: jarPath, WaitDelay: 2 * time.Second}
}

func (o *OneShot) args() []string {
	args := append([]string{}, o.JavaArgs...)
	return append(args, "-jar", o.JarPath)
}

// FormatCode blocks until the child exits. Cancelling ctx kills the child's
// whole process group; the child is always waited for.
func (o *OneShot) FormatCode(ctx context.Context, source string) (string, error) {
	cmd := exec.CommandContext(ctx, o.JavaBin, o.args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = o.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdin = strings.NewReader(source)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	switch {
	case err == nil:
		return stdout.String(), nil
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		return "", ErrMissingJava
	case ctx.Err() != nil:
		return "", ctx.Err()
	default:
		msg := strings.TrimSpace(stderr.String())
		log.Printf("WARN: one-shot formatter failed: %v: %s", err, msg)
		if msg != "" {
			return "", fmt.Errorf("formatter exited: %w: %s", err, msg)
		}
		return "", fmt.Errorf("formatter exited: %w", err)
	}
}

// FormatFile reads path and formats its contents. The file is not modified.
func (o *OneShot) FormatFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return o.FormatCode(ctx, string(data))
}

var _ Backend = (*OneShot)(nil)
