package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"javafmtd/internal/health"
	"javafmtd/internal/persistence"
	"javafmtd/internal/probe"
	"javafmtd/internal/runtime/commands"
)

func TestServiceCommands(t *testing.T) {
	journal, err := persistence.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close(context.Background())

	tracker := health.NewTracker()
	prober := &fakeProber{find: func(int) (probe.ProcessRecord, bool, error) { return running(32000) }}
	reg := New(prober, &fakeAllocator{}, &fakeLauncher{}, WithJournal(journal), WithTracker(tracker))

	d := commands.NewDispatcher()
	RegisterHandlers(d, reg, tracker, journal)

	resp, err := d.Dispatch(context.Background(), ServiceEnsureCommand{})
	require.NoError(t, err)
	assert.Equal(t, 32000, resp.(ServiceEnsureResponse).Port)

	resp, err = d.Dispatch(context.Background(), ServiceStatusCommand{JournalLimit: 5})
	require.NoError(t, err)
	st := resp.(ServiceStatusResponse)
	assert.Equal(t, 32000, st.Registry.Port)
	require.Len(t, st.Launches, 1)
	assert.Equal(t, persistence.OutcomeAdopted, st.Launches[0].Outcome)
	assert.Contains(t, st.Health, health.ComponentService)
	assert.Equal(t, health.LevelOK, st.Overall)
}
