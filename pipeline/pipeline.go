package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mnslabs/mns-backend/contract"
	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/network"
	"github.com/mnslabs/mns-backend/vm"
)

// ErrNotDeployed is returned when a script is submitted before a registry
// account was installed by the deployment controller.
var ErrNotDeployed = errors.New("no registry account installed")

// Config bounds the pipeline's long-running phases.
type Config struct {
	// SubmitRetries caps backoff retries of a transient submission failure
	// while the execution slot is still held.
	SubmitRetries uint64

	// PollInterval is the delay between indexer polls.
	PollInterval time.Duration

	// PollTimeout bounds the whole polling phase.
	PollTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitRetries == 0 {
		c.SubmitRetries = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Minute
	}
	return c
}

// Pipeline executes composed scripts against the registry account, proves
// the executions, submits them and tracks them to a terminal status.
//
// The committed account is the single shared mutable resource of the whole
// service. Mutating runs hold the account's exclusive slot from execution
// through commit; read-only runs clone the committed state and proceed
// concurrently.
type Pipeline struct {
	node   network.Client
	prover Prover
	advice *vm.AdviceProvider
	locks  *accountLocks
	log    *slog.Logger
	cfg    Config

	// stateMu guards the committed account: write-held only while applying a
	// confirmed execution, read-held to snapshot.
	stateMu sync.RWMutex
	account *vm.Account
}

// New creates a pipeline. The registry account is installed later by the
// deployment controller.
func New(node network.Client, prover Prover, log *slog.Logger, cfg Config) *Pipeline {
	return &Pipeline{
		node:   node,
		prover: prover,
		advice: vm.NewAdviceProvider(),
		locks:  newAccountLocks(),
		log:    log,
		cfg:    cfg.withDefaults(),
	}
}

// Install hands the pipeline the committed registry account. Called by the
// deployment controller exactly once per process lifetime.
func (p *Pipeline) Install(account *vm.Account) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.account = account
}

// Deployed reports whether a registry account is installed.
func (p *Pipeline) Deployed() bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.account != nil
}

// Address returns the installed registry account's address.
func (p *Pipeline) Address() (interfaces.ContractAddress, error) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if p.account == nil {
		return interfaces.ContractAddress{}, ErrNotDeployed
	}
	return p.account.Address(), nil
}

// Snapshot returns a clone of the committed account state.
func (p *Pipeline) Snapshot() (*vm.Account, error) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if p.account == nil {
		return nil, ErrNotDeployed
	}
	return p.account.Clone(), nil
}

// Entries enumerates the committed registry storage map, sorted by key.
func (p *Pipeline) Entries() ([]vm.MapEntry, error) {
	snap, err := p.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Entries(vm.RegistrySlot)
}

// Submit runs a mutating script through the full pipeline: exclusive access,
// advice supply, execution, proving, submission with bounded backoff on
// transient failures, then indexer polling until the transaction is terminal.
// The new account state is committed only after the network confirms the
// transaction. The exclusive slot and the advice scoped to the execution are
// released on every exit path.
func (p *Pipeline) Submit(ctx context.Context, script contract.TransactionScript, advice []vm.Felt) (*interfaces.TransactionRecord, error) {
	if !script.Mutating() {
		return nil, fmt.Errorf("script %s is read-only; use ExecuteReadOnly", script.Kind())
	}

	p.stateMu.RLock()
	account := p.account
	p.stateMu.RUnlock()
	if account == nil {
		return nil, ErrNotDeployed
	}

	release, err := p.locks.Acquire(ctx, account.Address())
	if err != nil {
		return nil, fmt.Errorf("acquiring execution access for %s: %w", account.Address(), err)
	}
	defer release()

	tx, executed, err := p.execute(ctx, script, advice, account, false)
	if err != nil {
		return nil, err
	}

	record := &interfaces.TransactionRecord{
		ID:          tx.ID,
		Status:      interfaces.TxPending,
		SubmittedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := p.submitWithBackoff(ctx, tx); err != nil {
		record.Status = interfaces.TxFailed
		return record, err
	}

	p.log.Info("transaction submitted",
		"tx", tx.ID, "script", script.Kind().String(), "nonce", tx.InitialNonce)

	if err := p.pollUntilTerminal(ctx, record); err != nil {
		return record, err
	}
	if record.Status == interfaces.TxFailed {
		return record, &interfaces.SubmissionError{Err: fmt.Errorf("transaction %s rejected during indexing", tx.ID)}
	}

	p.stateMu.Lock()
	p.account.Apply(executed)
	p.stateMu.Unlock()

	return record, nil
}

// SubmitDeployment runs the deploy script for a fresh account and, once the
// creation transaction is confirmed, installs the account as the committed
// registry instance.
func (p *Pipeline) SubmitDeployment(ctx context.Context, account *vm.Account) (*interfaces.TransactionRecord, error) {
	script, err := contract.Compose(contract.ScriptDeploy)
	if err != nil {
		return nil, err
	}

	release, err := p.locks.Acquire(ctx, account.Address())
	if err != nil {
		return nil, fmt.Errorf("acquiring execution access for %s: %w", account.Address(), err)
	}
	defer release()

	tx, executed, err := p.execute(ctx, script, nil, account, true)
	if err != nil {
		return nil, err
	}

	record := &interfaces.TransactionRecord{
		ID:          tx.ID,
		Status:      interfaces.TxPending,
		SubmittedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := p.submitWithBackoff(ctx, tx); err != nil {
		record.Status = interfaces.TxFailed
		return record, err
	}

	if err := p.pollUntilTerminal(ctx, record); err != nil {
		return record, err
	}
	if record.Status == interfaces.TxFailed {
		return record, &interfaces.SubmissionError{Err: fmt.Errorf("deployment transaction %s rejected during indexing", tx.ID)}
	}

	account.Apply(executed)
	p.Install(account)

	p.log.Info("registry account deployed", "address", account.Address(), "tx", tx.ID)
	return record, nil
}

// ExecuteReadOnly runs a lookup script against a snapshot of the committed
// account and returns the execution's stack output. Nothing is proven or
// submitted; the snapshot, including the script's nonce increment, is
// discarded. Read-only runs do not contend for the exclusive slot.
func (p *Pipeline) ExecuteReadOnly(ctx context.Context, script contract.TransactionScript, advice []vm.Felt) ([]vm.Felt, error) {
	if script.Mutating() {
		return nil, fmt.Errorf("script %s mutates state; use Submit", script.Kind())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := p.Snapshot()
	if err != nil {
		return nil, err
	}

	exec := vm.NewExecution(snap, p.advice)
	defer p.advice.Discard(exec.ID)

	if err := p.advice.Supply(exec.ID, advice); err != nil {
		return nil, &interfaces.ExecutionError{ScriptKind: script.Kind().String(), Nonce: snap.Nonce(), Err: err}
	}
	if err := script.Run(exec); err != nil {
		return nil, &interfaces.ExecutionError{ScriptKind: script.Kind().String(), Nonce: snap.Nonce(), Err: err}
	}
	return exec.Output(), nil
}

// execute runs the script on a clone of account, proves the transition and
// assembles the network transaction. The advice scoped to the execution is
// discarded on every path.
func (p *Pipeline) execute(ctx context.Context, script contract.TransactionScript, advice []vm.Felt, account *vm.Account, creates bool) (network.Transaction, *vm.Account, error) {
	initialNonce := account.Nonce()
	initialCommitment := account.Commitment()

	exec := vm.NewExecution(account, p.advice)
	defer p.advice.Discard(exec.ID)

	if len(advice) > 0 {
		if err := p.advice.Supply(exec.ID, advice); err != nil {
			return network.Transaction{}, nil, &interfaces.ExecutionError{ScriptKind: script.Kind().String(), Nonce: initialNonce, Err: err}
		}
	}

	if err := script.Run(exec); err != nil {
		return network.Transaction{}, nil, &interfaces.ExecutionError{ScriptKind: script.Kind().String(), Nonce: initialNonce, Err: err}
	}

	trace := ExecutionTrace{
		ProgramHash:       script.Hash(),
		Account:           account.Address(),
		InitialNonce:      initialNonce,
		FinalNonce:        exec.Account.Nonce(),
		InitialCommitment: initialCommitment,
		FinalCommitment:   exec.Account.Commitment(),
		PublicOutputs:     exec.Output(),
	}

	proof, err := p.prover.Prove(ctx, trace)
	if err != nil {
		return network.Transaction{}, nil, &interfaces.ExecutionError{ScriptKind: script.Kind().String(), Nonce: initialNonce, Err: fmt.Errorf("proving execution: %w", err)}
	}

	tx := network.Transaction{
		ID:                transactionID(trace, proof.Seal),
		Account:           account.Address(),
		Creates:           creates,
		InitialNonce:      trace.InitialNonce,
		FinalNonce:        trace.FinalNonce,
		ProgramHash:       trace.ProgramHash,
		InitialCommitment: trace.InitialCommitment,
		FinalCommitment:   trace.FinalCommitment,
		PublicOutputs:     trace.PublicOutputs,
		Proof:             proof.Seal,
	}
	return tx, exec.Account, nil
}

// submitWithBackoff submits the transaction, retrying transient failures
// with capped exponential backoff while the exclusive slot is held. Terminal
// rejections abort immediately.
func (p *Pipeline) submitWithBackoff(ctx context.Context, tx network.Transaction) error {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.cfg.SubmitRetries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := p.node.SubmitTransaction(ctx, tx)
		if err == nil {
			return nil
		}
		if interfaces.IsTransient(err) {
			p.log.Warn("transient submission failure, will retry",
				"tx", tx.ID, "attempt", attempt, "err", err)
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}

// pollUntilTerminal drives the record's status from the indexer until it is
// terminal or the bounded polling window closes.
func (p *Pipeline) pollUntilTerminal(ctx context.Context, record *interfaces.TransactionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := p.node.TransactionStatus(ctx, record.ID)
		if err != nil && !errors.Is(err, network.ErrTxNotFound) {
			if ctx.Err() != nil {
				return fmt.Errorf("transaction %s not terminal before deadline (last status %s): %w", record.ID, record.Status, ctx.Err())
			}
			p.log.Warn("indexer poll failed", "tx", record.ID, "err", err)
		} else if status != record.Status {
			p.log.Debug("transaction status moved", "tx", record.ID, "from", record.Status.String(), "to", status.String())
			record.Status = status
			record.UpdatedAt = time.Now()
		}

		if record.Status.Terminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not terminal before deadline (last status %s): %w", record.ID, record.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}
