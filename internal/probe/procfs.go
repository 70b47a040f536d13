package probe

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/procfs"
)

// ProcfsLister reads command lines from a mounted /proc.
type ProcfsLister struct {
	mountPoint string
}

// NewProcfsLister returns a lister over mountPoint (procfs.DefaultMountPoint when empty).
func NewProcfsLister(mountPoint string) *ProcfsLister {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	return &ProcfsLister{mountPoint: mountPoint}
}

func (l *ProcfsLister) Name() string { return "procfs" }

func (l *ProcfsLister) List(ctx context.Context) ([]ProcessRecord, error) {
	fs, err := procfs.NewFS(l.mountPoint)
	if err != nil {
		return nil, &DiscoveryError{Source: l.Name(), Err: err}
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, &DiscoveryError{Source: l.Name(), Err: err}
	}
	out := make([]ProcessRecord, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		args, err := p.CmdLine()
		if err != nil {
			// exited between listing and read, or not ours to read
			continue
		}
		if len(args) == 0 {
			continue
		}
		out = append(out, ProcessRecord{PID: p.PID, CommandLine: strings.Join(args, " ")})
	}
	return out, nil
}

// procfsAvailable reports whether mountPoint looks like a live procfs.
func procfsAvailable(mountPoint string) bool {
	_, err := os.Stat(filepath.Join(mountPoint, "self", "cmdline"))
	return err == nil
}

// NewSystemLister picks procfs when it is mounted and falls back to ps.
func NewSystemLister() Lister {
	if procfsAvailable(procfs.DefaultMountPoint) {
		return NewProcfsLister(procfs.DefaultMountPoint)
	}
	return NewPSLister()
}
