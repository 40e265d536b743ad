// Package interfaces defines the shared types and component contracts of the
// MNS backend. It provides the contract between different components without
// implementation details.
package interfaces

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DomainSuffix is the root every registrable name must end with.
const DomainSuffix = ".miden"

// MaxNameBytes is the maximum UTF-8 length of a name. Names are packed into a
// single VM word (4x8 bytes) with the final byte reserved for the length.
const MaxNameBytes = 24

// Tier identifies the trust level of a resolution path.
type Tier string

const (
	// TierCentralized resolves names from the server's directory store.
	TierCentralized Tier = "2"

	// TierHybrid executes the registry contract off-chain on the server,
	// proves the execution and submits the transaction to the network.
	TierHybrid Tier = "2.5"

	// TierTrustless is the fully client-proved path. The server never handles
	// it; the constant exists so requests naming it are rejected explicitly.
	TierTrustless Tier = "3"
)

// Valid reports whether the tier is one the server can process.
func (t Tier) Valid() bool {
	return t == TierCentralized || t == TierHybrid
}

// Name is a validated, canonicalized registrable name.
type Name string

// NewName validates and canonicalizes a raw name: surrounding whitespace is
// trimmed, the name is lowercased, must end with DomainSuffix and must fit in
// MaxNameBytes bytes of UTF-8.
func NewName(raw string) (Name, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "", fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	if !strings.HasSuffix(name, DomainSuffix) {
		return "", fmt.Errorf("%w: name %q must end with %q", ErrValidation, raw, DomainSuffix)
	}
	if len(name) == len(DomainSuffix) {
		return "", fmt.Errorf("%w: name %q has no label before %q", ErrValidation, raw, DomainSuffix)
	}
	if len(name) > MaxNameBytes {
		return "", fmt.Errorf("%w: name %q exceeds %d bytes", ErrValidation, raw, MaxNameBytes)
	}
	return Name(name), nil
}

func (n Name) String() string { return string(n) }

// accountIDPattern matches 0x-prefixed account identifiers of up to 24 bytes.
var accountIDPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,48}$`)

// feltModulus mirrors the VM's field modulus (2^64 - 2^32 + 1). Account id
// payload bytes are packed into big-endian 8-byte field elements, so every
// 8-byte chunk of the id must stay below the modulus to be representable.
const feltModulus uint64 = 0xffffffff00000001

// AccountID is a validated, canonicalized target account identifier in
// 0x-prefixed lowercase hex.
type AccountID string

// NewAccountID validates a raw account identifier against accountIDPattern
// and canonicalizes it to lowercase hex with an even number of digits. Ids
// whose payload does not fit the VM's field elements are rejected here, so an
// id that passes validation always packs into a storage word.
func NewAccountID(raw string) (AccountID, error) {
	id := strings.TrimSpace(raw)
	if !accountIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: account id %q must match 0x followed by 1-48 hex characters", ErrValidation, raw)
	}
	digits := strings.ToLower(id[2:])
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}

	payload, err := hex.DecodeString(digits)
	if err != nil {
		return "", fmt.Errorf("%w: account id %q: %v", ErrValidation, raw, err)
	}
	var padded [24]byte
	copy(padded[:], payload)
	for i := 0; i < len(padded); i += 8 {
		if binary.BigEndian.Uint64(padded[i:i+8]) >= feltModulus {
			return "", fmt.Errorf("%w: account id %q bytes %d-%d exceed the field modulus", ErrValidation, raw, i, i+7)
		}
	}

	return AccountID("0x" + digits), nil
}

func (a AccountID) String() string { return string(a) }

// Bytes returns the decoded identifier bytes.
func (a AccountID) Bytes() []byte {
	b, err := hex.DecodeString(strings.TrimPrefix(string(a), "0x"))
	if err != nil {
		// NewAccountID is the only constructor; values built through it
		// always decode.
		panic(fmt.Sprintf("malformed account id %q: %v", a, err))
	}
	return b
}

// ContractAddress identifies the registry contract account on the network.
type ContractAddress [15]byte

// NewContractAddressFromHex parses a 0x-prefixed 30-character hex string.
func NewContractAddressFromHex(raw string) (ContractAddress, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if len(clean) != len(ContractAddress{})*2 {
		return ContractAddress{}, fmt.Errorf("invalid contract address %q: want %d hex characters", raw, len(ContractAddress{})*2)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return ContractAddress{}, fmt.Errorf("invalid contract address %q: %w", raw, err)
	}
	var addr ContractAddress
	copy(addr[:], b)
	return addr, nil
}

// String returns the 0x-prefixed hex representation of the address.
func (addr ContractAddress) String() string {
	return "0x" + hex.EncodeToString(addr[:])
}

// IsZero reports whether the address is unset.
func (addr ContractAddress) IsZero() bool {
	return addr == ContractAddress{}
}

// TransactionID identifies a submitted transaction.
type TransactionID string

// TxStatus is the lifecycle state of a submitted transaction.
type TxStatus int

const (
	// TxPending means the transaction was accepted by the node but is not yet
	// visible to the indexer.
	TxPending TxStatus = iota

	// TxIndexing means the indexer has seen the transaction but it is not yet
	// final.
	TxIndexing

	// TxConfirmed is terminal: the transaction is indexed and final.
	TxConfirmed

	// TxFailed is terminal: the network rejected the transaction.
	TxFailed
)

// Terminal reports whether no further status transitions are possible.
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxIndexing:
		return "indexing"
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// TransactionRecord tracks one submitted registry transaction. It is created
// when a script is submitted; only the proof & submission pipeline moves its
// status, and Confirmed/Failed are terminal.
type TransactionRecord struct {
	ID          TransactionID
	Name        Name
	Address     AccountID
	Tier        Tier
	Status      TxStatus
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Record is one name binding as surfaced to callers.
type Record struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Version string `json:"version"`
}

// RegistrationResult is the outcome of a successful Register operation.
type RegistrationResult struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Version       string `json:"version"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// LookupResult is the outcome of a successful Lookup operation.
type LookupResult struct {
	Address string `json:"address"`
	Version string `json:"version"`
}

// Directory is the centralized-tier name store.
type Directory interface {
	// Upsert stores or replaces a binding.
	Upsert(rec Record) error

	// Lookup returns the binding for name, or ErrNotFound.
	Lookup(name string) (Record, error)

	// List returns all bindings ordered by name.
	List() ([]Record, error)

	// Close releases the underlying store.
	Close() error
}

// AddressStore persists the deployed registry contract address across
// restarts. Implementations must make Save atomic: a partially written
// address must never be loadable.
type AddressStore interface {
	// Load returns the persisted address. ErrNoAddress when nothing was
	// persisted yet.
	Load() (ContractAddress, error)

	// Save persists addr, replacing any previous value.
	Save(addr ContractAddress) error
}

// ErrNoAddress is returned by AddressStore.Load when no contract address has
// been persisted.
var ErrNoAddress = errors.New("no contract address persisted")
