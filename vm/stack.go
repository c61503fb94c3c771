package vm

import "github.com/colorfulnotion/nexusvm/vmerrors"

// Stack is the operand stack shared by every frame of one VM.
type Stack struct {
	items []VMObject
}

func NewStack() *Stack {
	return &Stack{items: make([]VMObject, 0, 16)}
}

func (s *Stack) Push(obj VMObject) {
	s.items = append(s.items, obj)
}

func (s *Stack) Pop() (VMObject, error) {
	if len(s.items) == 0 {
		return VMObject{}, vmerrors.ErrStackUnderflow
	}
	top := s.items[len(s.items)-1]
	s.items[len(s.items)-1] = VMObject{}
	s.items = s.items[:len(s.items)-1]
	return top, nil
}

func (s *Stack) Peek() (VMObject, error) {
	if len(s.items) == 0 {
		return VMObject{}, vmerrors.ErrStackUnderflow
	}
	return s.items[len(s.items)-1], nil
}

func (s *Stack) Count() int {
	return len(s.items)
}

// Items returns a copy of the stack contents, bottom first.
func (s *Stack) Items() []VMObject {
	out := make([]VMObject, len(s.items))
	copy(out, s.items)
	return out
}
