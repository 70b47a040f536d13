package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T, opts ...JournalOption) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close(context.Background()) })
	return j
}

func TestJournalRecordAndRecent(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := openTestJournal(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	first, err := j.Record(ctx, LaunchRecord{Port: 20001, PID: 42, Outcome: OutcomeLaunched})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, fixed, first.CreatedAt)

	_, err = j.Record(ctx, LaunchRecord{Port: 9987, Outcome: OutcomeAdopted, Detail: "discovered"})
	require.NoError(t, err)

	recs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 9987, recs[0].Port)
	assert.Equal(t, OutcomeAdopted, recs[0].Outcome)
	assert.Equal(t, "discovered", recs[0].Detail)
	assert.Equal(t, 20001, recs[1].Port)
	assert.Equal(t, 42, recs[1].PID)
	assert.True(t, recs[1].CreatedAt.Equal(fixed))
}

func TestJournalRetention(t *testing.T) {
	j := openTestJournal(t, WithRetention(3))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := j.Record(ctx, LaunchRecord{Port: 20000 + i, Outcome: OutcomeFailed, Detail: fmt.Sprint(i)})
		require.NoError(t, err)
	}
	recs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 20004, recs[0].Port)
	assert.Equal(t, 20002, recs[2].Port)
}

func TestJournalReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	ctx := context.Background()

	j, err := OpenJournal(path)
	require.NoError(t, err)
	_, err = j.Record(ctx, LaunchRecord{Port: 21000, Outcome: OutcomeLaunched})
	require.NoError(t, err)
	require.NoError(t, j.Close(ctx))
	require.NoError(t, j.Close(ctx))

	_, err = j.Record(ctx, LaunchRecord{Port: 1})
	assert.ErrorIs(t, err, ErrJournalClosed)

	j2, err := OpenJournal(path)
	require.NoError(t, err)
	defer j2.Close(ctx)
	recs, err := j2.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 21000, recs[0].Port)
}

func TestJournalReadOnlyMountRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()
	j, err := OpenJournal(path)
	require.NoError(t, err)
	_, err = j.Record(ctx, LaunchRecord{Port: 20010, Outcome: OutcomeLaunched})
	require.NoError(t, err)
	require.NoError(t, j.Close(ctx))

	orig := detectReadOnlyMount
	detectReadOnlyMount = func(string) (bool, error) { return true, nil }
	t.Cleanup(func() { detectReadOnlyMount = orig })

	ro, err := OpenJournal(path)
	require.NoError(t, err)
	defer ro.Close(ctx)
	assert.True(t, ro.ReadOnly())

	_, err = ro.Record(ctx, LaunchRecord{Port: 1})
	assert.ErrorIs(t, err, ErrJournalReadOnly)

	recs, err := ro.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestJournalReadOnlyMissingFile(t *testing.T) {
	orig := detectReadOnlyMount
	detectReadOnlyMount = func(string) (bool, error) { return true, nil }
	t.Cleanup(func() { detectReadOnlyMount = orig })

	_, err := OpenJournal(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestBuildSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:///tmp/j.db?mode=ro", buildSQLiteDSN("/tmp/j.db", true))
	assert.Equal(t, "file:///tmp/j.db", buildSQLiteDSN("/tmp/j.db", false))
}
