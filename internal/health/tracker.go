package health

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

type Level int

const (
	LevelOK Level = iota
	LevelWarn
	LevelError
)

// Components reported by javafmtd.
const (
	ComponentService  = "format-service"
	ComponentRegistry = "registry"
	ComponentJournal  = "journal"
	ComponentHTTP     = "http"
	ComponentFormat   = "formatting"
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Status is the last report for one component. Since marks the moment the
// component entered its current level.
type Status struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Since     time.Time `json:"since"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker keeps the latest Status per component and logs level changes.
// A nil Tracker accepts reports and drops them.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]Status
	now      func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[string]Status),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Set records a report for component.
func (t *Tracker) Set(component string, level Level, message string) {
	if t == nil {
		return
	}
	at := t.now()

	t.mu.Lock()
	prev, seen := t.statuses[component]
	next := Status{Level: level, Message: message, Since: at, UpdatedAt: at}
	if seen && prev.Level == level {
		next.Since = prev.Since
	}
	t.statuses[component] = next
	t.mu.Unlock()

	switch {
	case !seen && level == LevelOK:
	case !seen || prev.Level != level:
		log.Printf("%s: health %s is %s: %s", logPrefix(level), component, level, message)
	}
}

func (t *Tracker) Setf(component string, level Level, format string, args ...any) {
	t.Set(component, level, fmt.Sprintf(format, args...))
}

func (t *Tracker) Status(component string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[component]
	return s, ok
}

// Snapshot copies the current statuses.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Status, len(t.statuses))
	for name, st := range t.statuses {
		out[name] = st
	}
	return out
}

// Overall is the worst level across components; LevelOK when nothing reported.
func (t *Tracker) Overall() Level {
	t.mu.RLock()
	defer t.mu.RUnlock()
	worst := LevelOK
	for _, st := range t.statuses {
		worst = max(worst, st.Level)
	}
	return worst
}

// Degraded lists components above LevelOK, sorted by name.
func (t *Tracker) Degraded() []string {
	t.mu.RLock()
	var names []string
	for name, st := range t.statuses {
		if st.Level > LevelOK {
			names = append(names, name)
		}
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Ready reports whether every required component has reported LevelOK.
func (t *Tracker) Ready(required ...string) (bool, map[string]Status) {
	snapshot := t.Snapshot()
	for _, name := range required {
		if st, ok := snapshot[name]; !ok || st.Level != LevelOK {
			return false, snapshot
		}
	}
	return true, snapshot
}

func logPrefix(l Level) string {
	switch l {
	case LevelOK:
		return "INFO"
	case LevelWarn:
		return "WARN"
	}
	return "ERROR"
}
