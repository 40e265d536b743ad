package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnslabs/mns-backend/interfaces"
)

// MockNode is an in-memory Client for tests and the `--node-addr mock`
// development mode. It keeps account state, enforces the nonce rule the real
// node enforces, and advances transaction status one step per poll:
// pending -> indexing -> confirmed.
type MockNode struct {
	mu sync.Mutex

	accounts map[interfaces.ContractAddress]AccountInfo
	registry interfaces.ContractAddress
	txs      map[interfaces.TransactionID]*mockTx

	// SubmitErrs is drained one error per SubmitTransaction call before any
	// transaction is accepted. Tests use it to inject transient failures.
	SubmitErrs []error

	// RejectReason, when set, makes the next submission fail terminally.
	RejectReason string

	submitted int
}

type mockTx struct {
	tx     Transaction
	status interfaces.TxStatus
	polls  int
}

// NewMockNode returns an empty mock chain.
func NewMockNode() *MockNode {
	return &MockNode{
		accounts: make(map[interfaces.ContractAddress]AccountInfo),
		txs:      make(map[interfaces.TransactionID]*mockTx),
	}
}

// Submitted returns how many transactions the node accepted.
func (n *MockNode) Submitted() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.submitted
}

// SubmitTransaction validates and accepts a transaction, mirroring the real
// node's checks: creation transactions must introduce a fresh account, and
// any other transaction must start from the account's current nonce.
func (n *MockNode) SubmitTransaction(ctx context.Context, tx Transaction) error {
	if err := ctx.Err(); err != nil {
		return &interfaces.SubmissionError{Transient: true, Err: err}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.SubmitErrs) > 0 {
		err := n.SubmitErrs[0]
		n.SubmitErrs = n.SubmitErrs[1:]
		return &interfaces.SubmissionError{Transient: true, Err: err}
	}
	if n.RejectReason != "" {
		reason := n.RejectReason
		n.RejectReason = ""
		return &interfaces.SubmissionError{Err: fmt.Errorf("node rejected transaction: %s", reason)}
	}

	if tx.Creates {
		if _, ok := n.accounts[tx.Account]; ok {
			return &interfaces.SubmissionError{Err: fmt.Errorf("account %s already exists", tx.Account)}
		}
		n.accounts[tx.Account] = AccountInfo{
			Address:    tx.Account,
			Nonce:      tx.FinalNonce,
			Commitment: tx.FinalCommitment,
			Registry:   true,
		}
		if n.registry.IsZero() {
			n.registry = tx.Account
		}
	} else {
		acct, ok := n.accounts[tx.Account]
		if !ok {
			return &interfaces.SubmissionError{Err: fmt.Errorf("account %s does not exist", tx.Account)}
		}
		if acct.Nonce != tx.InitialNonce {
			return &interfaces.SubmissionError{Err: fmt.Errorf("nonce mismatch for %s: account at %d, transaction built against %d", tx.Account, acct.Nonce, tx.InitialNonce)}
		}
		acct.Nonce = tx.FinalNonce
		acct.Commitment = tx.FinalCommitment
		n.accounts[tx.Account] = acct
	}

	n.txs[tx.ID] = &mockTx{tx: tx, status: interfaces.TxPending}
	n.submitted++
	return nil
}

// TransactionStatus advances the transaction one lifecycle step per call, the
// way a real indexer eventually would over repeated polls.
func (n *MockNode) TransactionStatus(ctx context.Context, id interfaces.TransactionID) (interfaces.TxStatus, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.TxPending, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	entry, ok := n.txs[id]
	if !ok {
		return interfaces.TxPending, ErrTxNotFound
	}
	if !entry.status.Terminal() {
		entry.polls++
		switch {
		case entry.polls == 1:
			entry.status = interfaces.TxIndexing
		case entry.polls >= 2:
			entry.status = interfaces.TxConfirmed
		}
	}
	return entry.status, nil
}

// AccountInfo returns the mock chain's state for an account.
func (n *MockNode) AccountInfo(ctx context.Context, addr interfaces.ContractAddress) (AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return AccountInfo{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	info, ok := n.accounts[addr]
	if !ok {
		return AccountInfo{}, ErrAccountNotFound
	}
	return info, nil
}

// RegistryAccount returns the first deployed registry instance.
func (n *MockNode) RegistryAccount(ctx context.Context) (interfaces.ContractAddress, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.ContractAddress{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.registry.IsZero() {
		return interfaces.ContractAddress{}, ErrAccountNotFound
	}
	return n.registry, nil
}

var _ Client = (*MockNode)(nil)
