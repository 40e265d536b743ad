// Package network provides the client interface to the chain node and
// indexer the submission pipeline talks to, an HTTP implementation of it, and
// an in-memory node for tests and local development.
package network

import (
	"context"
	"errors"

	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/vm"
)

// ErrAccountNotFound is returned when the queried account does not exist on
// the network.
var ErrAccountNotFound = errors.New("account not found on network")

// ErrTxNotFound is returned when the indexer has never seen the transaction.
var ErrTxNotFound = errors.New("transaction not known to the indexer")

// AccountInfo is the node's view of one account.
type AccountInfo struct {
	Address    interfaces.ContractAddress `json:"address"`
	Nonce      uint64                     `json:"nonce"`
	Commitment [32]byte                   `json:"commitment"`

	// Registry marks the account as a registry contract instance. The node
	// indexes it so a restarted server can rediscover an already deployed
	// instance instead of deploying a second one.
	Registry bool `json:"registry"`
}

// Transaction is a proven state transition submitted to the network. The
// private advice inputs never appear here; only public outputs and
// commitments do.
type Transaction struct {
	ID      interfaces.TransactionID
	Account interfaces.ContractAddress

	// Creates marks a deployment: the transaction introduces the account.
	Creates bool

	// InitialNonce is the account nonce the execution started from. The node
	// rejects a transaction whose initial nonce does not match the account,
	// which is how replays of an identical script surface.
	InitialNonce uint64
	FinalNonce   uint64

	ProgramHash       [32]byte
	InitialCommitment [32]byte
	FinalCommitment   [32]byte

	// PublicOutputs is the execution's final stack, bottom first.
	PublicOutputs []vm.Felt

	// Proof seals the transition; the node verifies it before accepting.
	Proof []byte
}

// Client is the pipeline's window to the network. Implementations return
// *interfaces.SubmissionError from SubmitTransaction so callers can
// distinguish transient from terminal failures.
type Client interface {
	// SubmitTransaction hands a proven transaction to the node.
	SubmitTransaction(ctx context.Context, tx Transaction) error

	// TransactionStatus asks the indexer about a submitted transaction.
	// TxPending is returned while the indexer has not seen it yet.
	TransactionStatus(ctx context.Context, id interfaces.TransactionID) (interfaces.TxStatus, error)

	// AccountInfo returns the network state of an account, or
	// ErrAccountNotFound.
	AccountInfo(ctx context.Context, addr interfaces.ContractAddress) (AccountInfo, error)

	// RegistryAccount returns the address of the registry contract instance
	// known to the network, or ErrAccountNotFound when none was ever
	// deployed. Deployment reconciliation depends on this.
	RegistryAccount(ctx context.Context) (interfaces.ContractAddress, error)
}
