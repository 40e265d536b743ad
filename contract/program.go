// Package contract defines the MNS registry contract program: four procedures
// executed by the stack VM against a registry account, and the transaction
// script composition that invokes them.
package contract

import (
	"fmt"

	"github.com/mnslabs/mns-backend/vm"
)

// Procedure identifies one entry point of the registry contract.
type Procedure uint8

const (
	// ProcDeploy makes the account addressable on first use. It currently
	// performs no real publishing work: it pushes a dummy value and discards
	// it. Known incomplete behavior carried over from the deployed contract;
	// do not extend it without migrating existing instances.
	ProcDeploy Procedure = iota + 1

	// ProcRegister reads a name word and an account word from the advice
	// channel and binds the name in the registry storage map. A name that is
	// already bound fails the execution.
	ProcRegister

	// ProcLookup reads a name word from the advice channel and leaves the
	// bound account word plus an explicit presence flag as output.
	ProcLookup

	// ProcIncrementNonce spends the execution's single nonce increment. It
	// must be the final call of every script so that replaying an identical
	// script surfaces as a nonce mismatch.
	ProcIncrementNonce
)

func (p Procedure) String() string {
	switch p {
	case ProcDeploy:
		return "deploy"
	case ProcRegister:
		return "register"
	case ProcLookup:
		return "lookup"
	case ProcIncrementNonce:
		return "increment_nonce"
	default:
		return fmt.Sprintf("procedure(%d)", uint8(p))
	}
}

// registrySlot mirrors vm.RegistrySlot as an immediate operand.
var registrySlot = vm.NewFelt(uint64(vm.RegistrySlot))

// programs maps each procedure to its VM program.
//
// register expects the advice channel to hold exactly [account word, name
// word] for the execution: the value is pushed first so the key sits on top
// for map_set. lookup expects [name word].
var programs = map[Procedure]vm.Program{
	ProcDeploy: {
		{Op: vm.OpPush, Imm: 1},
		{Op: vm.OpDrop},
	},
	ProcRegister: {
		{Op: vm.OpAdvPushW},                    // account id (value)
		{Op: vm.OpAdvPushW},                    // name (key)
		{Op: vm.OpMapSet, Imm: registrySlot},   // bind name -> account
	},
	ProcLookup: {
		{Op: vm.OpAdvPushW},                    // name (key)
		{Op: vm.OpMapGet, Imm: registrySlot},   // -> [VALUE, flag]
	},
	ProcIncrementNonce: {
		{Op: vm.OpIncrNonce},
	},
}

// ProgramOf returns the VM program of a procedure.
func ProgramOf(p Procedure) (vm.Program, error) {
	prog, ok := programs[p]
	if !ok {
		return nil, fmt.Errorf("unknown procedure %d", uint8(p))
	}
	return prog, nil
}
