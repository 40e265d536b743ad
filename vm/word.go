package vm

import (
	"encoding/hex"
	"fmt"
)

// WordBytes is the number of payload bytes a word can carry. The 32nd byte of
// the packed representation holds the payload length.
const WordBytes = 24

// Word is the VM's unit of hashing and identity: four field elements. Both
// names and account identifiers are packed into single words. Word is
// comparable and is used directly as a storage map key.
type Word [4]Felt

// ZeroWord is the all-zero word.
var ZeroWord Word

// PackBytes packs up to WordBytes bytes into a word. The bytes fill the first
// three and a half elements big-endian; the final byte of the last element
// records the payload length so unpacking is exact.
func PackBytes(b []byte) (Word, error) {
	if len(b) > WordBytes {
		return Word{}, fmt.Errorf("cannot pack %d bytes into a word: maximum is %d", len(b), WordBytes)
	}

	var padded [32]byte
	copy(padded[:], b)
	padded[31] = byte(len(b))

	var w Word
	for i := range w {
		var chunk [8]byte
		copy(chunk[:], padded[i*8:(i+1)*8])
		f, err := FeltFromBytes(chunk)
		if err != nil {
			return Word{}, fmt.Errorf("packing bytes %x: %w", b, err)
		}
		w[i] = f
	}
	return w, nil
}

// UnpackBytes reverses PackBytes.
func UnpackBytes(w Word) []byte {
	var buf [32]byte
	for i, f := range w {
		fb := f.Bytes()
		copy(buf[i*8:(i+1)*8], fb[:])
	}
	n := int(buf[31])
	if n > WordBytes {
		n = WordBytes
	}
	return buf[:n]
}

// PackString packs a UTF-8 string. Used for name words.
func PackString(s string) (Word, error) {
	return PackBytes([]byte(s))
}

// UnpackString reverses PackString.
func UnpackString(w Word) string {
	return string(UnpackBytes(w))
}

// IsZero reports whether the word is all zero.
func (w Word) IsZero() bool { return w == ZeroWord }

// String renders the word's canonical integers, matching how executions log
// stack contents.
func (w Word) String() string {
	return fmt.Sprintf("[%d %d %d %d]", uint64(w[0]), uint64(w[1]), uint64(w[2]), uint64(w[3]))
}

// Hex returns the packed payload as lowercase hex.
func (w Word) Hex() string {
	return hex.EncodeToString(UnpackBytes(w))
}
