package pipeline

import (
	"context"
	"sync"

	"github.com/mnslabs/mns-backend/interfaces"
)

// accountLocks provides the exclusive execution slot per contract account.
// All mutating executions against the same account contend here, regardless
// of which name they touch; the account's nonce is a single ordered resource.
type accountLocks struct {
	mu    sync.Mutex
	slots map[interfaces.ContractAddress]chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{slots: make(map[interfaces.ContractAddress]chan struct{})}
}

// Acquire blocks until the account's slot is free or ctx is done. The
// returned release function must be called exactly once, on every exit path.
func (l *accountLocks) Acquire(ctx context.Context, addr interfaces.ContractAddress) (release func(), err error) {
	l.mu.Lock()
	slot, ok := l.slots[addr]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[addr] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
