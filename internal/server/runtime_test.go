package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"javafmtd/internal/config"
	"javafmtd/internal/events"
	"javafmtd/internal/formatter"
	"javafmtd/internal/health"
)

func TestNewRuntimeSelectsOneShotBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Formatter.Backend = config.BackendOneShot
	cfg.Formatter.OneShotJar = "/opt/spring-java-format.jar"

	rt, err := NewRuntime(cfg, RuntimeDeps{SkipJournal: true, Prober: staticProber{}, Allocator: fixedAllocator{}, Launcher: refusingLauncher{}})
	require.NoError(t, err)
	oneshot, ok := rt.Backend.(*formatter.OneShot)
	require.True(t, ok)
	assert.Equal(t, "/opt/spring-java-format.jar", oneshot.JarPath)
	assert.Nil(t, rt.Journal)
}

func TestNewRuntimeRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Formatter.Backend = "socket"
	_, err := NewRuntime(cfg, RuntimeDeps{SkipJournal: true})
	assert.Error(t, err)
}

func TestEventObserverTracksFormatOutcomes(t *testing.T) {
	bus := events.NewBus()
	tracker := health.NewTracker()
	obs := newEventObserver(bus, tracker)
	require.NoError(t, obs.Start(context.Background()))

	formatLevel := func() health.Level {
		st, ok := tracker.Status(health.ComponentFormat)
		if !ok {
			return -1
		}
		return st.Level
	}

	bus.Publish(events.Event{Topic: events.TopicServiceLaunched, Payload: events.ServiceLaunched{Port: 20001, Took: time.Second}})
	bus.Publish(events.Event{Topic: events.TopicEndpointChanged, Payload: events.EndpointChanged{Previous: 9987, Port: 20001, Source: "launched"}})
	bus.Publish(events.Event{Topic: events.TopicFormatFailed, Payload: events.FormatFailed{URI: "file:///A.java", Reason: "not ready"}})
	require.Eventually(t, func() bool { return formatLevel() == health.LevelWarn }, time.Second, 5*time.Millisecond)
	assert.Equal(t, health.LevelWarn, tracker.Overall())

	bus.Publish(events.Event{Topic: events.TopicFormatServed, Payload: events.FormatServed{URI: "file:///A.java", Mode: "document"}})
	require.Eventually(t, func() bool { return formatLevel() == health.LevelOK }, time.Second, 5*time.Millisecond)
	assert.Equal(t, health.LevelOK, tracker.Overall())

	_, httpTouched := tracker.Status(health.ComponentHTTP)
	assert.False(t, httpTouched)
	require.NoError(t, obs.Stop(context.Background()))
}

func TestRuntimeJournalFallsBackWhenUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, writeFile(blocker))

	rt, err := NewRuntime(config.Default(), RuntimeDeps{
		JournalPath: filepath.Join(blocker, "journal.db"),
		Prober:      staticProber{},
		Allocator:   fixedAllocator{},
		Launcher:    refusingLauncher{},
	})
	require.NoError(t, err)
	assert.Nil(t, rt.Journal)
	st, ok := rt.Health.Status(health.ComponentJournal)
	require.True(t, ok)
	assert.Equal(t, health.LevelWarn, st.Level)
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o600)
}
