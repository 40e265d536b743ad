package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnslabs/mns-backend/deployer"
	"github.com/mnslabs/mns-backend/directory"
	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/network"
	"github.com/mnslabs/mns-backend/pipeline"
)

func newTestService(t *testing.T) (*Service, *network.MockNode) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir, err := directory.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { dir.Close() })

	store, err := deployer.NewFileAddressStore(filepath.Join(t.TempDir(), "address.json"))
	require.NoError(t, err)

	node := network.NewMockNode()
	pl := pipeline.New(node, pipeline.TranscriptProver{}, logger, pipeline.Config{
		PollInterval: time.Millisecond,
		PollTimeout:  2 * time.Second,
	})
	dep := deployer.New(store, node, pl, logger)

	return New(dir, dep, pl, logger), node
}

func TestRegisterAndLookupCentralized(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "alice.miden", "0x0a", interfaces.TierCentralized)
	require.NoError(t, err)
	assert.Equal(t, "alice.miden", result.Name)
	assert.Equal(t, "0x0a", result.Address)
	assert.Equal(t, "2", result.Version)
	assert.Empty(t, result.TransactionID, "tier 2 never submits a transaction")
	assert.Equal(t, 0, node.Submitted())

	got, err := svc.Lookup(ctx, "alice.miden", interfaces.TierCentralized)
	require.NoError(t, err)
	assert.Equal(t, "0x0a", got.Address)
	assert.Equal(t, "2", got.Version)
}

func TestRegisterAndLookupHybrid(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "bob.miden", "0x0b", interfaces.TierHybrid)
	require.NoError(t, err)
	assert.Equal(t, "2.5", result.Version)
	assert.NotEmpty(t, result.TransactionID)
	assert.Equal(t, 2, node.Submitted(), "deployment plus registration")

	got, err := svc.Lookup(ctx, "bob.miden", interfaces.TierHybrid)
	require.NoError(t, err)
	assert.Equal(t, "0x0b", got.Address)
	assert.Equal(t, "2.5", got.Version)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		address string
		tier    interfaces.Tier
	}{
		{"alice", "0x0a", interfaces.TierCentralized},                           // missing suffix
		{".miden", "0x0a", interfaces.TierCentralized},                          // no label
		{"way-too-long-name-for-one-word.miden", "0x0a", interfaces.TierHybrid}, // over 24 bytes
		{"ok.miden", "no-prefix", interfaces.TierCentralized},                   // bad address
		{"ok.miden", "0x", interfaces.TierCentralized},                          // empty digits
		{"ok.miden", "0x0a", interfaces.TierTrustless},                          // unsupported tier
		{"ok.miden", "0x0a", interfaces.Tier("9")},                              // unknown tier
	}
	for _, tc := range cases {
		_, err := svc.Register(ctx, tc.name, tc.address, tc.tier)
		require.ErrorIs(t, err, interfaces.ErrValidation, "%s/%s/%s", tc.name, tc.address, tc.tier)
	}
}

func TestRegisterNameCanonicalized(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "  Carol.MIDEN ", "0x0C", interfaces.TierCentralized)
	require.NoError(t, err)
	assert.Equal(t, "carol.miden", result.Name)
	assert.Equal(t, "0x0c", result.Address)

	got, err := svc.Lookup(ctx, "CAROL.miden", interfaces.TierCentralized)
	require.NoError(t, err)
	assert.Equal(t, "0x0c", got.Address)
}

func TestRegisterConflictCentralized(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dup.miden", "0x01", interfaces.TierCentralized)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "dup.miden", "0x02", interfaces.TierCentralized)
	require.ErrorIs(t, err, interfaces.ErrConflict)

	got, err := svc.Lookup(ctx, "dup.miden", interfaces.TierCentralized)
	require.NoError(t, err)
	assert.Equal(t, "0x01", got.Address, "the original binding survives the rejected overwrite")
}

func TestRegisterConflictHybrid(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dup.miden", "0x01", interfaces.TierHybrid)
	require.NoError(t, err)
	submitted := node.Submitted()

	_, err = svc.Register(ctx, "dup.miden", "0x02", interfaces.TierHybrid)
	require.ErrorIs(t, err, interfaces.ErrConflict)
	assert.Equal(t, submitted, node.Submitted(), "a conflicting registration must not reach the network")

	got, err := svc.Lookup(ctx, "dup.miden", interfaces.TierHybrid)
	require.NoError(t, err)
	assert.Equal(t, "0x01", got.Address)
}

func TestLookupMissing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "ghost.miden", interfaces.TierCentralized)
	require.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = svc.Lookup(ctx, "ghost.miden", interfaces.TierHybrid)
	require.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = svc.Lookup(ctx, "ghost.miden", "")
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

// errDirectoryDown simulates a broken directory store, distinct from a miss.
var errDirectoryDown = errors.New("directory unavailable")

type failingDirectory struct{}

func (failingDirectory) Upsert(interfaces.Record) error { return errDirectoryDown }
func (failingDirectory) Lookup(string) (interfaces.Record, error) {
	return interfaces.Record{}, errDirectoryDown
}
func (failingDirectory) List() ([]interfaces.Record, error) { return nil, errDirectoryDown }
func (failingDirectory) Close() error                       { return nil }

func TestLookupDirectoryFailureSurfaces(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "safe.miden", "0x05", interfaces.TierHybrid)
	require.NoError(t, err)

	svc.directory = failingDirectory{}

	// An explicit tier 2 lookup against a failing store is a fault, never a
	// not-found answer.
	_, err = svc.Lookup(ctx, "safe.miden", interfaces.TierCentralized)
	require.ErrorIs(t, err, errDirectoryDown)
	assert.NotErrorIs(t, err, interfaces.ErrNotFound)

	// The any-tier path may still answer from the contract.
	got, err := svc.Lookup(ctx, "safe.miden", "")
	require.NoError(t, err)
	assert.Equal(t, "0x05", got.Address)
	assert.Equal(t, "2.5", got.Version)
}

func TestSubmittedRecordCarriesBinding(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Deploy the contract through a first registration.
	_, err := svc.Register(ctx, "warm.miden", "0x01", interfaces.TierHybrid)
	require.NoError(t, err)

	name, err := interfaces.NewName("dora.miden")
	require.NoError(t, err)
	accountID, err := interfaces.NewAccountID("0x0d")
	require.NoError(t, err)

	record, err := svc.submitRegister(ctx, name, accountID)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, name, record.Name)
	assert.Equal(t, accountID, record.Address)
	assert.Equal(t, interfaces.TierHybrid, record.Tier)
	assert.Equal(t, interfaces.TxConfirmed, record.Status)
	assert.False(t, record.SubmittedAt.IsZero())
}

func TestLookupAnyTierFallsThrough(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "central.miden", "0x01", interfaces.TierCentralized)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "hybrid.miden", "0x02", interfaces.TierHybrid)
	require.NoError(t, err)

	got, err := svc.Lookup(ctx, "central.miden", "")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Version)

	got, err = svc.Lookup(ctx, "hybrid.miden", "")
	require.NoError(t, err)
	assert.Equal(t, "2.5", got.Version)
}

func TestLookupTierIsolation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "only2.miden", "0x01", interfaces.TierCentralized)
	require.NoError(t, err)

	// A tier 2 binding is invisible to an explicit tier 2.5 lookup.
	_, err = svc.Lookup(ctx, "only2.miden", interfaces.TierHybrid)
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestListPerTier(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "b2.miden", "0x01", interfaces.TierCentralized)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "a2.miden", "0x02", interfaces.TierCentralized)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "h1.miden", "0x03", interfaces.TierHybrid)
	require.NoError(t, err)

	central, err := svc.List(ctx, interfaces.TierCentralized)
	require.NoError(t, err)
	require.Len(t, central, 2)
	assert.Equal(t, "a2.miden", central[0].Name)
	assert.Equal(t, "b2.miden", central[1].Name)

	hybrid, err := svc.List(ctx, interfaces.TierHybrid)
	require.NoError(t, err)
	require.Len(t, hybrid, 1)
	assert.Equal(t, "h1.miden", hybrid[0].Name)
	assert.Equal(t, "0x03", hybrid[0].Address)
	assert.Equal(t, "2.5", hybrid[0].Version)

	_, err = svc.List(ctx, interfaces.Tier("9"))
	require.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestRegisterHybridRebuildsAfterTransientFailure(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	// Deploy first so the injected errors hit the registration submit.
	_, err := svc.Register(ctx, "warm.miden", "0x01", interfaces.TierHybrid)
	require.NoError(t, err)

	// More transient failures than the in-slot backoff tolerates: the first
	// submission attempt fails through, and the service rebuilds the script
	// once against the current nonce.
	node.SubmitErrs = injectErrs(6)

	result, err := svc.Register(ctx, "retry.miden", "0x02", interfaces.TierHybrid)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TransactionID)

	got, err := svc.Lookup(ctx, "retry.miden", interfaces.TierHybrid)
	require.NoError(t, err)
	assert.Equal(t, "0x02", got.Address)
}

func injectErrs(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = assert.AnError
	}
	return errs
}
