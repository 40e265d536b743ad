package directory

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnslabs/mns-backend/interfaces"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertAndLookup(t *testing.T) {
	store := openTestStore(t)

	rec := interfaces.Record{Name: "alice.miden", Address: "0x0a", Version: "2"}
	require.NoError(t, store.Upsert(rec))

	got, err := store.Lookup("alice.miden")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestLookupMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Lookup("nobody.miden")
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestUpsertReplaces(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Upsert(interfaces.Record{Name: "bob.miden", Address: "0x01", Version: "2"}))
	require.NoError(t, store.Upsert(interfaces.Record{Name: "bob.miden", Address: "0x02", Version: "2"}))

	got, err := store.Lookup("bob.miden")
	require.NoError(t, err)
	assert.Equal(t, "0x02", got.Address)

	recs, err := store.List()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestListOrderedByName(t *testing.T) {
	store := openTestStore(t)

	for _, name := range []string{"charlie.miden", "alice.miden", "bob.miden"} {
		require.NoError(t, store.Upsert(interfaces.Record{Name: name, Address: "0x01", Version: "2"}))
	}

	recs, err := store.List()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "alice.miden", recs[0].Name)
	assert.Equal(t, "bob.miden", recs[1].Name)
	assert.Equal(t, "charlie.miden", recs[2].Name)
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "mns.db")

	store, err := Open(path, logger)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(interfaces.Record{Name: "keep.miden", Address: "0x0k", Version: "2"}))
	require.NoError(t, store.Close())

	reopened, err := Open(path, logger)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Lookup("keep.miden")
	require.NoError(t, err)
	assert.Equal(t, "0x0k", got.Address)
}
