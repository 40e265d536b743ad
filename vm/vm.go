package vm

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNonceAlreadyIncremented is returned when a single execution tries to
// increment the account nonce twice.
var ErrNonceAlreadyIncremented = errors.New("nonce already incremented in this execution")

// OpCode enumerates the VM's instruction set.
type OpCode uint8

const (
	// OpPush pushes the immediate field element.
	OpPush OpCode = iota + 1

	// OpDrop discards the top element.
	OpDrop

	// OpDropW discards the top word.
	OpDropW

	// OpDup duplicates the top element.
	OpDup

	// OpSwapW exchanges the two top words.
	OpSwapW

	// OpAdvPushW moves the next word from the advice channel onto the stack.
	// This is the only way private inputs enter an execution.
	OpAdvPushW

	// OpMapGet pops a key word from the stack, reads the storage map at the
	// immediate slot index and pushes the bound value word followed by a
	// presence flag (1 found, 0 absent). Absence is explicit; a missing key
	// never masquerades as a zero value.
	OpMapGet

	// OpMapSet pops a key word then a value word and binds key to value in
	// the storage map at the immediate slot index. Fails if the key is
	// already bound to a different value.
	OpMapSet

	// OpIncrNonce increments the account nonce by exactly one. At most one
	// increment is allowed per execution.
	OpIncrNonce

	// OpAssert pops the top element and fails the execution if it is zero.
	OpAssert

	// OpEqW pops two words and pushes 1 if they are equal, 0 otherwise.
	OpEqW
)

func (op OpCode) String() string {
	switch op {
	case OpPush:
		return "push"
	case OpDrop:
		return "drop"
	case OpDropW:
		return "dropw"
	case OpDup:
		return "dup"
	case OpSwapW:
		return "swapw"
	case OpAdvPushW:
		return "adv_pushw"
	case OpMapGet:
		return "map_get"
	case OpMapSet:
		return "map_set"
	case OpIncrNonce:
		return "incr_nonce"
	case OpAssert:
		return "assert"
	case OpEqW:
		return "eqw"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Instruction is one VM operation with an optional immediate.
type Instruction struct {
	Op  OpCode
	Imm Felt
}

// Program is an ordered instruction sequence. Programs are values; nothing
// mutates them after assembly.
type Program []Instruction

// Execution is the context of a single program run: a working copy of the
// account, the operand stack, and the advice scoped to this run. The caller
// owns discarding the advice and applying the account copy back.
type Execution struct {
	// ID scopes advice input to this execution.
	ID uuid.UUID

	// Account is the working clone mutated by the run.
	Account *Account

	advice         *AdviceProvider
	stack          *Stack
	nonceIncreased bool
}

// NewExecution prepares an execution against a clone of account. The caller
// supplies advice to the provider under the returned execution's ID before
// running any program.
func NewExecution(account *Account, advice *AdviceProvider) *Execution {
	return &Execution{
		ID:      uuid.New(),
		Account: account.Clone(),
		advice:  advice,
		stack:   NewStack(),
	}
}

// NonceIncreased reports whether the execution has already spent its single
// nonce increment.
func (e *Execution) NonceIncreased() bool { return e.nonceIncreased }

// Output returns the operand stack contents, bottom first. For lookup
// programs the top five elements are the presence flag and the value word.
func (e *Execution) Output() []Felt { return e.stack.Contents() }

// Run interprets the program against the execution's account and stack.
// Failures leave the execution unusable; the caller discards it along with
// its advice.
func (e *Execution) Run(p Program) error {
	for pc, ins := range p {
		if err := e.step(ins); err != nil {
			return fmt.Errorf("%s at pc %d: %w", ins.Op, pc, err)
		}
	}
	return nil
}

func (e *Execution) step(ins Instruction) error {
	switch ins.Op {
	case OpPush:
		e.stack.Push(ins.Imm)
		return nil

	case OpDrop:
		_, err := e.stack.Pop()
		return err

	case OpDropW:
		_, err := e.stack.PopWord()
		return err

	case OpDup:
		f, err := e.stack.Pop()
		if err != nil {
			return err
		}
		e.stack.Push(f)
		e.stack.Push(f)
		return nil

	case OpSwapW:
		return e.stack.SwapWord()

	case OpAdvPushW:
		w, err := e.advice.ConsumeWord(e.ID)
		if err != nil {
			return err
		}
		e.stack.PushWord(w)
		return nil

	case OpMapGet:
		key, err := e.stack.PopWord()
		if err != nil {
			return err
		}
		value, found, err := e.Account.MapGet(uint8(ins.Imm.Uint64()), key)
		if err != nil {
			return err
		}
		e.stack.PushWord(value)
		if found {
			e.stack.Push(1)
		} else {
			e.stack.Push(0)
		}
		return nil

	case OpMapSet:
		key, err := e.stack.PopWord()
		if err != nil {
			return err
		}
		value, err := e.stack.PopWord()
		if err != nil {
			return err
		}
		return e.Account.MapSet(uint8(ins.Imm.Uint64()), key, value, false)

	case OpIncrNonce:
		if e.nonceIncreased {
			return ErrNonceAlreadyIncremented
		}
		e.Account.IncrementNonce()
		e.nonceIncreased = true
		return nil

	case OpAssert:
		f, err := e.stack.Pop()
		if err != nil {
			return err
		}
		if f.IsZero() {
			return errors.New("assertion failed: top of stack is zero")
		}
		return nil

	case OpEqW:
		a, err := e.stack.PopWord()
		if err != nil {
			return err
		}
		b, err := e.stack.PopWord()
		if err != nil {
			return err
		}
		if a == b {
			e.stack.Push(1)
		} else {
			e.stack.Push(0)
		}
		return nil

	default:
		return fmt.Errorf("unknown opcode %d", uint8(ins.Op))
	}
}
