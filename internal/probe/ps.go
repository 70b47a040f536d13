package probe

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// PSLister shells out to ps(1) for platforms without procfs.
type PSLister struct {
	bin string
}

func NewPSLister() *PSLister { return &PSLister{bin: "ps"} }

func (l *PSLister) Name() string { return "ps" }

func (l *PSLister) List(ctx context.Context) ([]ProcessRecord, error) {
	cmd := exec.CommandContext(ctx, l.bin, "-axo", "pid=,args=")
	output, err := cmd.Output()
	if err != nil {
		return nil, &DiscoveryError{Source: l.Name(), Err: err}
	}
	return parsePSOutput(string(output)), nil
}

// parsePSOutput parses "<pid> <args...>" lines, skipping malformed ones.
func parsePSOutput(output string) []ProcessRecord {
	var out []ProcessRecord
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pidStr, args, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		out = append(out, ProcessRecord{PID: pid, CommandLine: strings.TrimSpace(args)})
	}
	return out
}
