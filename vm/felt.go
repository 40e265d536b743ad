// Package vm implements the deterministic, word-oriented stack virtual
// machine the registry contract program runs on: 64-bit field elements,
// four-element words, an operand stack, per-execution advice input, and the
// account state model the contract mutates.
package vm

import (
	"fmt"
	"math/bits"
)

// Modulus is the order of the prime field the VM operates on
// (2^64 - 2^32 + 1).
const Modulus uint64 = 0xffffffff00000001

// Felt is a canonical element of the prime field. The zero value is the field
// zero.
type Felt uint64

// NewFelt reduces v into the field.
func NewFelt(v uint64) Felt {
	if v >= Modulus {
		v -= Modulus
	}
	return Felt(v)
}

// FeltFromBytes interprets an 8-byte big-endian chunk as a field element.
// Chunks at or above the modulus are rejected rather than silently reduced,
// so packed values always round-trip.
func FeltFromBytes(b [8]byte) (Felt, error) {
	v := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
	if v >= Modulus {
		return 0, fmt.Errorf("value %#x is not a canonical field element", v)
	}
	return Felt(v), nil
}

// Uint64 returns the canonical integer representation.
func (f Felt) Uint64() uint64 { return uint64(f) }

// Bytes returns the 8-byte big-endian encoding.
func (f Felt) Bytes() [8]byte {
	v := uint64(f)
	return [8]byte{
		byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	}
}

// Add returns f+g mod Modulus.
func (f Felt) Add(g Felt) Felt {
	sum, carry := bits.Add64(uint64(f), uint64(g), 0)
	if carry == 1 || sum >= Modulus {
		sum -= Modulus
	}
	return Felt(sum)
}

// IsZero reports whether f is the field zero.
func (f Felt) IsZero() bool { return f == 0 }

func (f Felt) String() string { return fmt.Sprintf("%d", uint64(f)) }
