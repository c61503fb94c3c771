package vm

import (
	"fmt"

	"github.com/colorfulnotion/nexusvm/vmerrors"
)

const MaxRegisterCount = 32

// ExecutionFrame is one activation record. Offset is where the parent resumes once this frame is popped.
// Only the first RegisterCount registers are addressable.
type ExecutionFrame struct {
	Offset        uint32
	Registers     [MaxRegisterCount]VMObject
	RegisterCount int
	Context       ExecutionContext
	VM            *VirtualMachine
}

func NewExecutionFrame(vm *VirtualMachine, offset uint32, context ExecutionContext, registerCount int) *ExecutionFrame {
	return &ExecutionFrame{
		Offset:        offset,
		RegisterCount: registerCount,
		Context:       context,
		VM:            vm,
	}
}

func (f *ExecutionFrame) Register(index int) (*VMObject, error) {
	if index < 0 || index >= f.RegisterCount {
		return nil, fmt.Errorf("%w: r%d", vmerrors.ErrInvalidRegister, index)
	}
	return &f.Registers[index], nil
}
