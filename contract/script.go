package contract

import (
	"fmt"

	"lukechampine.com/blake3"

	"github.com/mnslabs/mns-backend/vm"
)

// ScriptKind selects the call sequence a transaction script runs.
type ScriptKind uint8

const (
	// ScriptRegister binds a name to an account id.
	ScriptRegister ScriptKind = iota + 1

	// ScriptLookup resolves a name.
	ScriptLookup

	// ScriptDeploy is the one-off deployment script.
	ScriptDeploy
)

func (k ScriptKind) String() string {
	switch k {
	case ScriptRegister:
		return "register"
	case ScriptLookup:
		return "lookup"
	case ScriptDeploy:
		return "deploy"
	default:
		return fmt.Sprintf("script(%d)", uint8(k))
	}
}

// TransactionScript is an ordered, immutable sequence of procedure calls that
// a single execution runs atomically. Scripts are composed fresh per request.
type TransactionScript struct {
	kind  ScriptKind
	calls []Procedure
}

// Compose builds the call sequence for the given kind. Every script ends with
// exactly one increment_nonce call.
//
// An earlier revision of the deployed service composed the lookup script as
// [deploy, increment_nonce], which resolved every name to nothing. The lookup
// script must invoke the lookup procedure; a regression test pins this.
func Compose(kind ScriptKind) (TransactionScript, error) {
	switch kind {
	case ScriptRegister:
		return TransactionScript{kind: kind, calls: []Procedure{ProcRegister, ProcIncrementNonce}}, nil
	case ScriptLookup:
		return TransactionScript{kind: kind, calls: []Procedure{ProcLookup, ProcIncrementNonce}}, nil
	case ScriptDeploy:
		return TransactionScript{kind: kind, calls: []Procedure{ProcDeploy, ProcIncrementNonce}}, nil
	default:
		return TransactionScript{}, fmt.Errorf("unknown script kind %d", uint8(kind))
	}
}

// Kind returns the script's kind.
func (s TransactionScript) Kind() ScriptKind { return s.kind }

// Calls returns a copy of the ordered procedure calls.
func (s TransactionScript) Calls() []Procedure {
	calls := make([]Procedure, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// Mutating reports whether a committed run of the script changes account
// state visible to later executions. Lookup scripts execute against a
// discarded snapshot and are not mutating.
func (s TransactionScript) Mutating() bool {
	return s.kind != ScriptLookup
}

// Run executes the script's procedures in order on the given execution.
func (s TransactionScript) Run(exec *vm.Execution) error {
	for _, proc := range s.calls {
		prog, err := ProgramOf(proc)
		if err != nil {
			return err
		}
		if err := exec.Run(prog); err != nil {
			return fmt.Errorf("procedure %s: %w", proc, err)
		}
	}
	return nil
}

// Hash commits to the script's full instruction stream. It identifies the
// executed program inside proofs and transaction ids.
func (s TransactionScript) Hash() [32]byte {
	h := blake3.New(32, nil)
	for _, proc := range s.calls {
		h.Write([]byte{byte(proc)})
		prog, err := ProgramOf(proc)
		if err != nil {
			continue
		}
		for _, ins := range prog {
			ib := ins.Imm.Bytes()
			h.Write([]byte{byte(ins.Op)})
			h.Write(ib[:])
		}
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
