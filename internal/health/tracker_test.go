package health

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func fixedClock(tr *Tracker, start time.Time) *time.Time {
	now := start
	tr.now = func() time.Time { return now }
	return &now
}

func TestTrackerSetAndSnapshot(t *testing.T) {
	tracker := NewTracker()
	tracker.Setf(ComponentService, LevelOK, "adopted port %d", 20001)
	snap := tracker.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap))
	}
	if snap[ComponentService].Level != LevelOK {
		t.Fatalf("expected level ok")
	}
	if snap[ComponentService].Message != "adopted port 20001" {
		t.Fatalf("unexpected message %q", snap[ComponentService].Message)
	}
}

func TestTrackerSinceSurvivesSameLevelReports(t *testing.T) {
	tracker := NewTracker()
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := fixedClock(tracker, t0)

	tracker.Set(ComponentService, LevelWarn, "health check failed")
	*now = t0.Add(time.Minute)
	tracker.Set(ComponentService, LevelWarn, "health check failed again")

	st, _ := tracker.Status(ComponentService)
	if !st.Since.Equal(t0) {
		t.Fatalf("since moved on same-level report: %v", st.Since)
	}
	if !st.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("updated_at not refreshed: %v", st.UpdatedAt)
	}

	*now = t0.Add(2 * time.Minute)
	tracker.Set(ComponentService, LevelOK, "adopted port 9987")
	st, _ = tracker.Status(ComponentService)
	if !st.Since.Equal(t0.Add(2 * time.Minute)) {
		t.Fatalf("since not reset on level change: %v", st.Since)
	}
}

func TestTrackerReady(t *testing.T) {
	tracker := NewTracker()
	tracker.Setf(ComponentRegistry, LevelOK, "running")
	tracker.Setf(ComponentService, LevelWarn, "health check failed")

	if ready, _ := tracker.Ready(ComponentRegistry); !ready {
		t.Fatal("registry should be ready")
	}
	if ready, _ := tracker.Ready(ComponentRegistry, ComponentService); ready {
		t.Fatal("format service warning should make readiness fail")
	}
	if ready, _ := tracker.Ready(ComponentJournal); ready {
		t.Fatal("unreported component should not be ready")
	}
}

func TestTrackerOverallAndDegraded(t *testing.T) {
	tracker := NewTracker()
	if tracker.Overall() != LevelOK {
		t.Fatalf("empty tracker should be ok")
	}
	tracker.Setf(ComponentHTTP, LevelOK, "listening")
	tracker.Setf(ComponentService, LevelWarn, "warn")
	if tracker.Overall() != LevelWarn {
		t.Fatalf("expected overall warn")
	}
	tracker.Setf(ComponentJournal, LevelError, "read-only")
	if tracker.Overall() != LevelError {
		t.Fatalf("expected overall error")
	}
	got := strings.Join(tracker.Degraded(), ",")
	if got != "format-service,journal" {
		t.Fatalf("unexpected degraded list %q", got)
	}
}

func TestStatusMarshalsLevelByName(t *testing.T) {
	tracker := NewTracker()
	tracker.Set(ComponentService, LevelWarn, "slow start")
	st, _ := tracker.Status(ComponentService)
	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"level":"warn"`) {
		t.Fatalf("expected named level, got %s", b)
	}
}

func TestNilTrackerSetIsNoop(t *testing.T) {
	var tracker *Tracker
	tracker.Setf(ComponentHTTP, LevelOK, "ignored")
}
