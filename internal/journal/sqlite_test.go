package journal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndHistory(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "counter", 1, "hydrate", json.RawMessage(`{"count":0}`)))
	require.NoError(t, store.Record(ctx, "counter", 2, "sync", json.RawMessage(`{"count":5}`)))
	require.NoError(t, store.Record(ctx, "other", 1, "sync", nil))

	history, err := store.History(ctx, "counter", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, uint64(2), history[0].Generation)
	require.Equal(t, "sync", history[0].Reason)
	require.JSONEq(t, `{"count":5}`, string(history[0].Payload))
	require.Equal(t, uint64(1), history[1].Generation)

	limited, err := store.History(ctx, "counter", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	other, err := store.Latest(ctx, "other")
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(other.Payload))
}

func TestStore_LatestMissing(t *testing.T) {
	store := openMemory(t)
	_, err := store.Latest(context.Background(), "nothing")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestStore_Summaries(t *testing.T) {
	store := openMemory(t)
	fixed := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()

	for g := uint64(1); g <= 3; g++ {
		require.NoError(t, store.Record(ctx, "b", g, "sync", json.RawMessage(`{}`)))
	}
	require.NoError(t, store.Record(ctx, "a", 9, "reset", json.RawMessage(`{}`)))

	sums, err := store.Summaries(ctx)
	require.NoError(t, err)
	require.Equal(t, []Summary{
		{UID: "a", Entries: 1, LastGeneration: 9, LastReason: "reset", LastSeen: fixed},
		{UID: "b", Entries: 3, LastGeneration: 3, LastReason: "sync", LastSeen: fixed},
	}, sums)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, "counter", 4, "sync", json.RawMessage(`{"count":1}`)))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	latest, err := reopened.Latest(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, uint64(4), latest.Generation)
}

func TestStore_RecordAfterClose(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Record(context.Background(), "counter", 1, "sync", nil)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryJournal))
}
