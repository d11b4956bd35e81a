package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/cpmigrate/internal/clock"
)

func openTemp(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndEntries(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	defer clock.SetSource(mock)()

	ctx := context.Background()
	s := openTemp(t, filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NotEmpty(t, s.RunID())

	require.NoError(t, s.Record(ctx, Entry{
		Pass:    "static",
		Action:  ActionCreateAddress,
		Target:  "NAT_web01",
		Details: map[string]any{"ipv4": "1.2.3.4/32"},
	}))
	mock.Advance(time.Second)
	require.NoError(t, s.Record(ctx, Entry{
		Pass:   "static",
		Action: ActionRewriteRule,
		Target: "web-static",
		DryRun: true,
	}))

	entries, err := s.Entries(ctx, s.RunID(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, s.RunID(), entries[0].RunID)
	assert.Equal(t, ActionCreateAddress, entries[0].Action)
	assert.Equal(t, "NAT_web01", entries[0].Target)
	assert.Equal(t, "1.2.3.4/32", entries[0].Details["ipv4"])
	assert.True(t, entries[0].Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, entries[0].DryRun)

	assert.Equal(t, "web-static", entries[1].Target)
	assert.True(t, entries[1].DryRun)
	assert.Nil(t, entries[1].Details)

	limited, err := s.Entries(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_RunsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(ctx, Entry{Action: ActionSubmitBatch, Target: "/config/shared/address"}))
	firstID := first.RunID()
	require.NoError(t, first.Close())

	second := openTemp(t, path)
	assert.NotEqual(t, firstID, second.RunID())
	require.NoError(t, second.Record(ctx, Entry{Action: ActionSubmitBatch, Target: "/config/shared/address"}))
	require.NoError(t, second.Record(ctx, Entry{Action: ActionSubmitBatch, Target: "/config/shared/address-group"}))

	runs, err := second.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, firstID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Entries)
	assert.Equal(t, 2, runs[1].Entries)

	all, err := second.Entries(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := second.Entries(ctx, second.RunID(), 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, filepath.Join(t.TempDir(), "journal.db"))

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(ctx, Entry{Action: ActionSubmitBatch, Target: "a", Timestamp: old}))
	require.NoError(t, s.Record(ctx, Entry{Action: ActionSubmitBatch, Target: "b", Timestamp: old.AddDate(1, 0, 0)}))

	n, err := s.Prune(ctx, old.AddDate(0, 6, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := s.Entries(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].Target)
}
