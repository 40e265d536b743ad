package vm

import (
	"errors"
	"fmt"
	"slices"

	"lukechampine.com/blake3"

	"github.com/mnslabs/mns-backend/interfaces"
)

// NumStorageSlots is the number of storage slots a registry account carries.
// The registry uses a single map slot.
const NumStorageSlots = 1

// RegistrySlot is the fixed slot index holding the name->account map.
const RegistrySlot uint8 = 0

// Account state errors.
var (
	// ErrKeyBound is returned by MapSet when the key already holds a
	// different value and no explicit overwrite was requested.
	ErrKeyBound = errors.New("storage key already bound")

	// ErrBadSlot is returned when a program addresses a slot the account does
	// not have.
	ErrBadSlot = errors.New("no such storage slot")
)

// StorageMap is the typed key/value store held at one account storage slot.
// Word keys are comparable arrays, so equality and hashing are the field
// element representation itself.
type StorageMap map[Word]Word

// MapEntry is one binding of a storage map, used for enumeration and
// commitment hashing.
type MapEntry struct {
	Key   Word
	Value Word
}

// Account is the single shared mutable resource of the registry: one
// monotonically increasing nonce and one storage map slot. Accounts are not
// safe for concurrent mutation; the submission pipeline serializes all
// mutating executions and hands read-only executions a Clone.
type Account struct {
	address interfaces.ContractAddress
	nonce   uint64
	slots   [NumStorageSlots]StorageMap
}

// NewAccount creates an empty account with the given address.
func NewAccount(address interfaces.ContractAddress) *Account {
	a := &Account{address: address}
	for i := range a.slots {
		a.slots[i] = make(StorageMap)
	}
	return a
}

// NewAccountAt creates an account adopted from the network at a known nonce.
// Storage contents are synced separately by the owning process.
func NewAccountAt(address interfaces.ContractAddress, nonce uint64) *Account {
	a := NewAccount(address)
	a.nonce = nonce
	return a
}

// Address returns the account's network address.
func (a *Account) Address() interfaces.ContractAddress { return a.address }

// Nonce returns the current nonce.
func (a *Account) Nonce() uint64 { return a.nonce }

// IncrementNonce raises the nonce by exactly one. The once-per-execution rule
// is enforced by the execution context, not here.
func (a *Account) IncrementNonce() {
	a.nonce++
}

// MapGet returns the value bound to key in the given slot and whether the key
// is present. Absence is an explicit flag: a zero-valued word stored under a
// key is distinguishable from a missing key.
func (a *Account) MapGet(slot uint8, key Word) (Word, bool, error) {
	if int(slot) >= len(a.slots) {
		return Word{}, false, fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	v, ok := a.slots[slot][key]
	return v, ok, nil
}

// MapSet binds key to value in the given slot. A key already bound to a
// different value is an error unless overwrite was explicitly requested;
// callers are expected to check-then-set.
func (a *Account) MapSet(slot uint8, key, value Word, overwrite bool) error {
	if int(slot) >= len(a.slots) {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	if existing, ok := a.slots[slot][key]; ok && existing != value && !overwrite {
		return fmt.Errorf("%w: key %s", ErrKeyBound, key)
	}
	a.slots[slot][key] = value
	return nil
}

// Entries returns the bindings of a slot sorted by key. Sorting makes
// enumeration and commitment hashing deterministic.
func (a *Account) Entries(slot uint8) ([]MapEntry, error) {
	if int(slot) >= len(a.slots) {
		return nil, fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	entries := make([]MapEntry, 0, len(a.slots[slot]))
	for k, v := range a.slots[slot] {
		entries = append(entries, MapEntry{Key: k, Value: v})
	}
	slices.SortFunc(entries, func(x, y MapEntry) int {
		for i := range x.Key {
			if x.Key[i] != y.Key[i] {
				if x.Key[i] < y.Key[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	})
	return entries, nil
}

// Clone returns a deep copy. Executions run against clones; the pipeline
// applies a clone back onto the committed account only after the whole run
// succeeded.
func (a *Account) Clone() *Account {
	c := &Account{address: a.address, nonce: a.nonce}
	for i := range a.slots {
		c.slots[i] = make(StorageMap, len(a.slots[i]))
		for k, v := range a.slots[i] {
			c.slots[i][k] = v
		}
	}
	return c
}

// Apply adopts the state of a successfully executed clone. The caller must
// hold the account's exclusive execution access.
func (a *Account) Apply(executed *Account) {
	a.nonce = executed.nonce
	for i := range a.slots {
		a.slots[i] = executed.slots[i]
	}
}

// Commitment hashes the full account state: address, nonce and every slot's
// sorted entries. Two accounts with equal commitments hold identical state.
func (a *Account) Commitment() [32]byte {
	h := blake3.New(32, nil)
	h.Write(a.address[:])

	nb := Felt(a.nonce).Bytes()
	h.Write(nb[:])

	for slot := range a.slots {
		entries, _ := a.Entries(uint8(slot))
		for _, e := range entries {
			for _, f := range e.Key {
				fb := f.Bytes()
				h.Write(fb[:])
			}
			for _, f := range e.Value {
				fb := f.Bytes()
				h.Write(fb[:])
			}
		}
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
