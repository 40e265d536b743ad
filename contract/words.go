package contract

import (
	"errors"
	"fmt"

	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/vm"
)

// NameWord packs a validated name into its storage key word.
func NameWord(name interfaces.Name) (vm.Word, error) {
	w, err := vm.PackString(name.String())
	if err != nil {
		return vm.Word{}, fmt.Errorf("packing name %q: %w", name, err)
	}
	return w, nil
}

// AccountWord packs a validated account id into its storage value word.
func AccountWord(id interfaces.AccountID) (vm.Word, error) {
	w, err := vm.PackBytes(id.Bytes())
	if err != nil {
		return vm.Word{}, fmt.Errorf("packing account id %q: %w", id, err)
	}
	return w, nil
}

// NameFromWord unpacks a storage key word back to the registered name.
func NameFromWord(w vm.Word) string {
	return vm.UnpackString(w)
}

// AccountIDFromWord renders a storage value word back to its 0x-hex account
// id form.
func AccountIDFromWord(w vm.Word) interfaces.AccountID {
	return interfaces.AccountID("0x" + w.Hex())
}

// RegisterAdvice builds the ordered advice entries a register execution
// consumes: the account word first, then the name word. The entries are
// scoped to a single execution by the advice provider and never appear on the
// public stack ahead of time.
func RegisterAdvice(name, account vm.Word) []vm.Felt {
	return []vm.Felt{
		account[0], account[1], account[2], account[3],
		name[0], name[1], name[2], name[3],
	}
}

// LookupAdvice builds the ordered advice entries a lookup execution consumes.
func LookupAdvice(name vm.Word) []vm.Felt {
	return []vm.Felt{name[0], name[1], name[2], name[3]}
}

// ErrMalformedOutput is returned when an execution's stack output does not
// have the shape the lookup program guarantees.
var ErrMalformedOutput = errors.New("malformed lookup output")

// ParseLookupOutput decodes a lookup execution's stack output into the bound
// account word and an explicit presence flag. The program leaves the value
// word below the flag; absence never returns a zero-valued placeholder as if
// it were a binding.
func ParseLookupOutput(out []vm.Felt) (vm.Word, bool, error) {
	if len(out) < 5 {
		return vm.Word{}, false, fmt.Errorf("%w: %d stack elements, want at least 5", ErrMalformedOutput, len(out))
	}
	flag := out[len(out)-1]
	var value vm.Word
	copy(value[:], out[len(out)-5:len(out)-1])

	switch flag.Uint64() {
	case 0:
		return vm.Word{}, false, nil
	case 1:
		return value, true, nil
	default:
		return vm.Word{}, false, fmt.Errorf("%w: presence flag %s", ErrMalformedOutput, flag)
	}
}
