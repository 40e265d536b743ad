package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWord(t *testing.T, s string) Word {
	t.Helper()
	w, err := PackString(s)
	require.NoError(t, err)
	return w
}

func TestAccountMapSetConflict(t *testing.T) {
	a := testAccount(t)
	key := mustWord(t, "carol.miden")
	v1 := mustWord(t, "v1")
	v2 := mustWord(t, "v2")

	require.NoError(t, a.MapSet(RegistrySlot, key, v1, false))

	// Rebinding to a different value without overwrite fails.
	err := a.MapSet(RegistrySlot, key, v2, false)
	require.ErrorIs(t, err, ErrKeyBound)

	// Same value is idempotent; explicit overwrite replaces.
	require.NoError(t, a.MapSet(RegistrySlot, key, v1, false))
	require.NoError(t, a.MapSet(RegistrySlot, key, v2, true))

	got, found, err := a.MapGet(RegistrySlot, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, v2, got)
}

func TestAccountZeroValueIsPresent(t *testing.T) {
	a := testAccount(t)
	key := mustWord(t, "zero.miden")

	require.NoError(t, a.MapSet(RegistrySlot, key, ZeroWord, false))

	got, found, err := a.MapGet(RegistrySlot, key)
	require.NoError(t, err)
	assert.True(t, found, "a stored zero word is a binding, not absence")
	assert.True(t, got.IsZero())
}

func TestAccountBadSlot(t *testing.T) {
	a := testAccount(t)
	_, _, err := a.MapGet(NumStorageSlots, ZeroWord)
	require.ErrorIs(t, err, ErrBadSlot)
	err = a.MapSet(NumStorageSlots, ZeroWord, ZeroWord, false)
	require.ErrorIs(t, err, ErrBadSlot)
}

func TestAccountCloneIsolation(t *testing.T) {
	a := testAccount(t)
	key := mustWord(t, "dave.miden")
	require.NoError(t, a.MapSet(RegistrySlot, key, mustWord(t, "orig"), false))

	c := a.Clone()
	c.IncrementNonce()
	require.NoError(t, c.MapSet(RegistrySlot, mustWord(t, "new.miden"), mustWord(t, "x"), false))

	assert.Equal(t, uint64(0), a.Nonce())
	_, found, err := a.MapGet(RegistrySlot, mustWord(t, "new.miden"))
	require.NoError(t, err)
	assert.False(t, found)

	a.Apply(c)
	assert.Equal(t, uint64(1), a.Nonce())
	_, found, err = a.MapGet(RegistrySlot, mustWord(t, "new.miden"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestAccountEntriesSorted(t *testing.T) {
	a := testAccount(t)
	for _, name := range []string{"zz.miden", "aa.miden", "mm.miden"} {
		require.NoError(t, a.MapSet(RegistrySlot, mustWord(t, name), mustWord(t, "v"), false))
	}

	entries, err := a.Entries(RegistrySlot)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1].Key, entries[i].Key
		less := false
		for j := range prev {
			if prev[j] != cur[j] {
				less = prev[j] < cur[j]
				break
			}
		}
		assert.True(t, less, "entries must be sorted by key")
	}
}

func TestAccountCommitmentTracksState(t *testing.T) {
	a := testAccount(t)
	empty := a.Commitment()

	a.IncrementNonce()
	afterNonce := a.Commitment()
	assert.NotEqual(t, empty, afterNonce)

	require.NoError(t, a.MapSet(RegistrySlot, mustWord(t, "e.miden"), mustWord(t, "v"), false))
	afterWrite := a.Commitment()
	assert.NotEqual(t, afterNonce, afterWrite)

	// Equal state hashes equally regardless of construction order.
	b := NewAccountAt(a.Address(), 1)
	require.NoError(t, b.MapSet(RegistrySlot, mustWord(t, "e.miden"), mustWord(t, "v"), false))
	assert.Equal(t, afterWrite, b.Commitment())
}
