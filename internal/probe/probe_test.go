package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	procs []ProcessRecord
	err   error
}

func (f *fakeLister) Name() string { return "fake" }

func (f *fakeLister) List(ctx context.Context) ([]ProcessRecord, error) {
	return f.procs, f.err
}

func TestPortFromCommandLine(t *testing.T) {
	cases := []struct {
		cmdline string
		port    int
		ok      bool
	}{
		{"java -Dport=20001 -jar /opt/" + DefaultMarker, 20001, true},
		{"java -jar svc.jar -Dport=9987", 9987, true},
		{"java -Dport= -jar svc.jar", 0, false},
		{"java -Dport=70000 -jar svc.jar", 0, false},
		{"java -Dport=0 -jar svc.jar", 0, false},
		{"java -Dportal=1234 -jar svc.jar", 0, false},
		{"java -jar svc.jar", 0, false},
	}
	for _, tc := range cases {
		port, ok := PortFromCommandLine(tc.cmdline)
		assert.Equal(t, tc.ok, ok, tc.cmdline)
		assert.Equal(t, tc.port, port, tc.cmdline)
	}
}

func TestFindRunningReturnsFirstMatch(t *testing.T) {
	lister := &fakeLister{procs: []ProcessRecord{
		{PID: 10, CommandLine: "/usr/bin/zsh"},
		{PID: 11, CommandLine: "java -Dport=20010 -jar /a/" + DefaultMarker},
		{PID: 12, CommandLine: "java -Dport=20020 -jar /b/" + DefaultMarker},
	}}
	rec, ok, err := New(lister, "").FindRunning(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 11, rec.PID)
	port, ok := rec.Port()
	assert.True(t, ok)
	assert.Equal(t, 20010, port)
}

func TestFindRunningNoMatchIsNotAnError(t *testing.T) {
	lister := &fakeLister{procs: []ProcessRecord{{PID: 1, CommandLine: "/sbin/init"}}}
	_, ok, err := New(lister, "custom-marker.jar").FindRunning(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindRunningSkipsOwnProcess(t *testing.T) {
	self := os.Getpid()
	lister := &fakeLister{procs: []ProcessRecord{
		{PID: self, CommandLine: "javafmtd serve --jar /x/" + DefaultMarker},
		{PID: self + 1, CommandLine: "java -Dport=30000 -jar /x/" + DefaultMarker},
	}}
	rec, ok, err := New(lister, "").FindRunning(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, self+1, rec.PID)
	port, ok := rec.Port()
	require.True(t, ok)
	assert.Equal(t, 30000, port)
}

func TestFindRunningPrefersMatchWithPort(t *testing.T) {
	lister := &fakeLister{procs: []ProcessRecord{
		{PID: 100, CommandLine: "javafmtd format --jar /x/" + DefaultMarker + " A.java"},
		{PID: 200, CommandLine: "java -Dport=30000 -jar /x/" + DefaultMarker},
	}}
	rec, ok, err := New(lister, "").FindRunning(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, rec.PID)
}

func TestFindRunningFallsBackToMatchWithoutPort(t *testing.T) {
	lister := &fakeLister{procs: []ProcessRecord{
		{PID: 100, CommandLine: "java -jar /x/" + DefaultMarker},
	}}
	rec, ok, err := New(lister, "").FindRunning(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, rec.PID)
	_, resolvable := rec.Port()
	assert.False(t, resolvable)
}

func TestFindRunningWrapsListerFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("permission denied")}
	_, ok, err := New(lister, "").FindRunning(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrProcessDiscoveryFailed)

	var de *DiscoveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "fake", de.Source)
}

func TestProcfsListerReadsCmdlines(t *testing.T) {
	root := t.TempDir()
	writeProc := func(pid int, args ...string) {
		dir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		var raw []byte
		for _, a := range args {
			raw = append(raw, a...)
			raw = append(raw, 0)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), raw, 0o644))
	}
	writeProc(100, "/usr/bin/bash")
	writeProc(200, "java", "-Dport=23456", "-jar", "/opt/"+DefaultMarker)
	writeProc(300) // kernel thread, empty cmdline

	procs, err := NewProcfsLister(root).List(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 2)

	rec, ok, err := New(NewProcfsLister(root), "").FindRunning(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, rec.PID)
	port, ok := rec.Port()
	require.True(t, ok)
	assert.Equal(t, 23456, port)
}

func TestProcfsListerMissingMount(t *testing.T) {
	_, err := NewProcfsLister(filepath.Join(t.TempDir(), "absent")).List(context.Background())
	assert.ErrorIs(t, err, ErrProcessDiscoveryFailed)
}

func TestParsePSOutput(t *testing.T) {
	out := "    1 /sbin/init\n  422 java -Dport=20000 -jar svc.jar\nbogus line\n\n"
	procs := parsePSOutput(out)
	require.Len(t, procs, 2)
	assert.Equal(t, 422, procs[1].PID)
	assert.Equal(t, "java -Dport=20000 -jar svc.jar", procs[1].CommandLine)
}
