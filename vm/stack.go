package vm

import "errors"

// ErrStackUnderflow is returned when an operation needs more elements than
// the operand stack holds.
var ErrStackUnderflow = errors.New("operand stack underflow")

// Stack is the VM's operand stack of field elements. The top of the stack is
// the end of the slice.
type Stack struct {
	elems []Felt
}

// NewStack returns an empty operand stack.
func NewStack() *Stack {
	return &Stack{elems: make([]Felt, 0, 16)}
}

// Depth returns the number of elements on the stack.
func (s *Stack) Depth() int { return len(s.elems) }

// Push places f on top of the stack.
func (s *Stack) Push(f Felt) {
	s.elems = append(s.elems, f)
}

// Pop removes and returns the top element.
func (s *Stack) Pop() (Felt, error) {
	if len(s.elems) == 0 {
		return 0, ErrStackUnderflow
	}
	f := s.elems[len(s.elems)-1]
	s.elems = s.elems[:len(s.elems)-1]
	return f, nil
}

// PushWord pushes the four elements of w, leaving w[3] on top.
func (s *Stack) PushWord(w Word) {
	s.elems = append(s.elems, w[0], w[1], w[2], w[3])
}

// PopWord removes the top four elements, reversing PushWord.
func (s *Stack) PopWord() (Word, error) {
	if len(s.elems) < 4 {
		return Word{}, ErrStackUnderflow
	}
	var w Word
	copy(w[:], s.elems[len(s.elems)-4:])
	s.elems = s.elems[:len(s.elems)-4]
	return w, nil
}

// PeekWord returns the top word without removing it.
func (s *Stack) PeekWord() (Word, error) {
	if len(s.elems) < 4 {
		return Word{}, ErrStackUnderflow
	}
	var w Word
	copy(w[:], s.elems[len(s.elems)-4:])
	return w, nil
}

// SwapWord exchanges the two top words.
func (s *Stack) SwapWord() error {
	if len(s.elems) < 8 {
		return ErrStackUnderflow
	}
	top := len(s.elems)
	for i := 0; i < 4; i++ {
		s.elems[top-8+i], s.elems[top-4+i] = s.elems[top-4+i], s.elems[top-8+i]
	}
	return nil
}

// Contents returns a copy of the stack, bottom first. Used to extract
// procedure outputs after an execution.
func (s *Stack) Contents() []Felt {
	out := make([]Felt, len(s.elems))
	copy(out, s.elems)
	return out
}
