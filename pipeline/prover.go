// Package pipeline turns a composed transaction script into a submitted,
// indexed transaction: it serializes execution access per account, executes
// the script on the VM, produces a correctness proof, submits the result to
// the network and polls until the transaction reaches a terminal status.
package pipeline

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/vm"
)

// ExecutionTrace is the public statement a proof commits to: which program
// ran, on which account, and how the state commitment moved. The private
// advice inputs are deliberately absent.
type ExecutionTrace struct {
	ProgramHash       [32]byte
	Account           interfaces.ContractAddress
	InitialNonce      uint64
	FinalNonce        uint64
	InitialCommitment [32]byte
	FinalCommitment   [32]byte
	PublicOutputs     []vm.Felt
}

// Proof seals an execution trace.
type Proof struct {
	Seal []byte
}

// Prover produces a correctness proof for an execution. Proving dominates
// request latency, so implementations must honor context cancellation.
type Prover interface {
	Prove(ctx context.Context, trace ExecutionTrace) (Proof, error)
}

// TranscriptProver seals traces with a keyed blake3 transcript. It stands in
// for a STARK prover behind the same interface: the seal binds the full
// public statement and is independently checkable with VerifySeal.
type TranscriptProver struct{}

func transcript(trace ExecutionTrace) []byte {
	h := blake3.New(32, nil)
	h.Write([]byte("mns-execution-v1"))
	h.Write(trace.ProgramHash[:])
	h.Write(trace.Account[:])

	n := vm.NewFelt(trace.InitialNonce).Bytes()
	h.Write(n[:])
	n = vm.NewFelt(trace.FinalNonce).Bytes()
	h.Write(n[:])

	h.Write(trace.InitialCommitment[:])
	h.Write(trace.FinalCommitment[:])
	for _, f := range trace.PublicOutputs {
		fb := f.Bytes()
		h.Write(fb[:])
	}
	return h.Sum(nil)
}

// Prove seals the trace.
func (TranscriptProver) Prove(ctx context.Context, trace ExecutionTrace) (Proof, error) {
	if err := ctx.Err(); err != nil {
		return Proof{}, fmt.Errorf("proving cancelled: %w", err)
	}
	return Proof{Seal: transcript(trace)}, nil
}

// VerifySeal checks a seal against the trace it claims to prove.
func VerifySeal(trace ExecutionTrace, seal []byte) bool {
	return bytes.Equal(transcript(trace), seal)
}

// transactionID derives the submitted transaction's identifier from its seal
// and statement.
func transactionID(trace ExecutionTrace, seal []byte) interfaces.TransactionID {
	h := blake3.New(32, nil)
	h.Write(seal)
	h.Write(trace.Account[:])
	n := vm.NewFelt(trace.InitialNonce).Bytes()
	h.Write(n[:])
	return interfaces.TransactionID("0x" + hex.EncodeToString(h.Sum(nil)))
}
