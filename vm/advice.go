package vm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Advice channel errors.
var (
	// ErrAdviceMissing is returned when a program reads advice before any was
	// supplied for the execution.
	ErrAdviceMissing = errors.New("no advice supplied for execution")

	// ErrAdviceExhausted is returned when a program reads past the end of the
	// supplied advice.
	ErrAdviceExhausted = errors.New("advice input exhausted")
)

// AdviceProvider is the out-of-band channel that feeds private inputs to a
// single execution without exposing them on the public stack ahead of time.
// Entries are scoped to one execution id: supplied once before the run,
// consumed in order during it, and discarded when the execution completes,
// successfully or not. Nothing survives into a later execution.
type AdviceProvider struct {
	mu    sync.Mutex
	tapes map[uuid.UUID]*adviceTape
}

type adviceTape struct {
	values []Felt
	next   int
}

// NewAdviceProvider returns an empty provider.
func NewAdviceProvider() *AdviceProvider {
	return &AdviceProvider{tapes: make(map[uuid.UUID]*adviceTape)}
}

// Supply registers the ordered advice values for one execution. It must be
// called exactly once per execution, before the program reads from the
// channel.
func (p *AdviceProvider) Supply(executionID uuid.UUID, values []Felt) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.tapes[executionID]; ok {
		return fmt.Errorf("advice already supplied for execution %s", executionID)
	}
	tape := &adviceTape{values: make([]Felt, len(values))}
	copy(tape.values, values)
	p.tapes[executionID] = tape
	return nil
}

// Consume returns the next advice value for the execution, in the order
// supplied.
func (p *AdviceProvider) Consume(executionID uuid.UUID) (Felt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tape, ok := p.tapes[executionID]
	if !ok {
		return 0, ErrAdviceMissing
	}
	if tape.next >= len(tape.values) {
		return 0, ErrAdviceExhausted
	}
	f := tape.values[tape.next]
	tape.next++
	return f, nil
}

// ConsumeWord consumes four consecutive advice values as one word.
func (p *AdviceProvider) ConsumeWord(executionID uuid.UUID) (Word, error) {
	var w Word
	for i := range w {
		f, err := p.Consume(executionID)
		if err != nil {
			return Word{}, err
		}
		w[i] = f
	}
	return w, nil
}

// Discard drops all advice scoped to the execution. Callers must invoke it on
// every exit path once the execution is over.
func (p *AdviceProvider) Discard(executionID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tapes, executionID)
}

// Pending returns the number of executions with live advice. Zero outside of
// in-flight executions.
func (p *AdviceProvider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tapes)
}
