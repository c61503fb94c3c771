package vm

import (
	"fmt"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/log"
	"github.com/colorfulnotion/nexusvm/vmerrors"
)

// EntryContextName is the reserved name of the context built from the entry script.
const EntryContextName = "entry"

// Host is implemented by whatever embeds the VM and resolves what the VM does not own.
type Host interface {
	// LoadContext resolves a context the VM has not seen yet. ok=false means it does not exist.
	LoadContext(name string) (ExecutionContext, bool)
	// ExecuteInterop dispatches a named external call.
	ExecuteInterop(method string) ExecutionState
}

// OpcodeValidator is an optional Host extension consulted before every opcode.
type OpcodeValidator interface {
	ValidateOpcode(opcode Opcode) ExecutionState
}

type VirtualMachine struct {
	Stack *Stack

	EntryAddress common.Address
	entryContext ExecutionContext

	currentContext ExecutionContext
	currentFrame   *ExecutionFrame
	frames         []*ExecutionFrame

	contexts map[string]ExecutionContext

	host      Host
	validator OpcodeValidator

	faultReason error

	// Dumper, when set, receives a state snapshot on every host-level invariant violation.
	Dumper func(*Dump)
}

// NewVirtualMachine builds a VM over the entry script. host may be nil, in which case no context
// can be loaded and every interop call faults.
func NewVirtualMachine(script []byte, host Host) *VirtualMachine {
	if script == nil {
		panic(&vmerrors.InvariantError{Err: vmerrors.ErrNilArgument, Detail: "script"})
	}

	vm := &VirtualMachine{
		Stack:        NewStack(),
		EntryAddress: common.AddressFromScript(script),
		contexts:     make(map[string]ExecutionContext),
		host:         host,
	}
	if v, ok := host.(OpcodeValidator); ok {
		vm.validator = v
	}
	vm.entryContext = NewScriptContext(EntryContextName, script)
	vm.RegisterContext(EntryContextName, vm.entryContext)
	return vm
}

func (vm *VirtualMachine) RegisterContext(name string, context ExecutionContext) {
	vm.contexts[name] = context
}

func (vm *VirtualMachine) EntryContext() ExecutionContext {
	return vm.entryContext
}

func (vm *VirtualMachine) CurrentContext() ExecutionContext {
	return vm.currentContext
}

func (vm *VirtualMachine) CurrentFrame() *ExecutionFrame {
	return vm.currentFrame
}

func (vm *VirtualMachine) FrameCount() int {
	return len(vm.frames)
}

// Execute runs the entry context from offset 0 and returns Halt or Fault.
func (vm *VirtualMachine) Execute() (state ExecutionState) {
	defer func() {
		if r := recover(); r != nil {
			assertion, ok := r.(*vmerrors.AssertionError)
			if !ok {
				panic(r)
			}
			vm.SetFault(assertion)
			state = Fault
		}
	}()

	state = vm.SwitchContext(vm.entryContext, 0)
	switch state {
	case Halt, Fault:
	case Break:
		state = Halt
	default:
		vm.SetFault(fmt.Errorf("entry context returned %s", state))
		state = Fault
	}
	if state == Fault {
		log.Warn(log.VMMonitoring, "VM fault", "entry", vm.EntryAddress, "reason", vm.faultReason)
	}
	return state
}

// SwitchContext pushes a frame bound to context and runs the context in it.
// instructionPointer is where the caller resumes once that frame is popped.
func (vm *VirtualMachine) SwitchContext(context ExecutionContext, instructionPointer uint32) ExecutionState {
	vm.currentContext = context
	vm.PushFrame(context, instructionPointer)
	log.Debug(log.VMMonitoring, "SwitchContext", "context", context.Name(), "depth", len(vm.frames))
	return context.Execute(vm.currentFrame, vm.Stack)
}

func (vm *VirtualMachine) PushFrame(context ExecutionContext, instructionPointer uint32) {
	vm.PushCallFrame(context, instructionPointer, MaxRegisterCount)
}

// PushCallFrame pushes a frame exposing registerCount registers, as sized by CALL.
func (vm *VirtualMachine) PushCallFrame(context ExecutionContext, instructionPointer uint32, registerCount int) {
	if registerCount < 1 || registerCount > MaxRegisterCount {
		vm.invariant(vmerrors.ErrTooManyRegisters, fmt.Sprintf("PushCallFrame with %d registers", registerCount))
	}
	frame := NewExecutionFrame(vm, instructionPointer, context, registerCount)
	vm.frames = append(vm.frames, frame)
	vm.currentFrame = frame
}

// PopFrame drops the current frame and returns the offset its parent resumes at.
func (vm *VirtualMachine) PopFrame() uint32 {
	if len(vm.frames) < 2 {
		vm.invariant(vmerrors.ErrNotEnoughFrames, "PopFrame")
	}

	popped := vm.frames[len(vm.frames)-1]
	vm.frames[len(vm.frames)-1] = nil
	vm.frames = vm.frames[:len(vm.frames)-1]

	vm.currentFrame = vm.frames[len(vm.frames)-1]
	vm.currentContext = vm.currentFrame.Context
	return popped.Offset
}

// PeekFrame returns the parent of the current frame.
func (vm *VirtualMachine) PeekFrame() *ExecutionFrame {
	if len(vm.frames) < 2 {
		vm.invariant(vmerrors.ErrNotEnoughFrames, "PeekFrame")
	}
	return vm.frames[len(vm.frames)-2]
}

// FindContext returns the cached context for name, asking the host at most once per name.
func (vm *VirtualMachine) FindContext(name string) (ExecutionContext, bool) {
	if context, ok := vm.contexts[name]; ok {
		return context, true
	}
	if vm.host == nil {
		return nil, false
	}

	context, ok := vm.host.LoadContext(name)
	if !ok || context == nil {
		return nil, false
	}
	vm.contexts[name] = context
	return context, true
}

func (vm *VirtualMachine) ValidateOpcode(opcode Opcode) ExecutionState {
	if vm.validator == nil {
		return Running
	}
	return vm.validator.ValidateOpcode(opcode)
}

func (vm *VirtualMachine) ExecuteInterop(method string) ExecutionState {
	if vm.host == nil {
		vm.SetFault(fmt.Errorf("%w: %s", vmerrors.ErrInteropNotFound, method))
		return Fault
	}
	log.Debug(log.VMMonitoring, "ExecuteInterop", "method", method)
	return vm.host.ExecuteInterop(method)
}

// SetFault records why the run faulted. Only the first reason is kept.
func (vm *VirtualMachine) SetFault(err error) {
	if vm.faultReason == nil {
		vm.faultReason = err
	}
}

func (vm *VirtualMachine) FaultReason() error {
	return vm.faultReason
}

// Expect is the contract assertion primitive: a false condition aborts the run with a Fault.
func (vm *VirtualMachine) Expect(condition bool, description string) {
	if !condition {
		panic(&vmerrors.AssertionError{Description: description})
	}
}

func (vm *VirtualMachine) invariant(err error, detail string) {
	violation := &vmerrors.InvariantError{Err: err, Detail: detail}
	log.Error(log.VMMonitoring, "VM invariant violation", "err", violation)
	if vm.Dumper != nil {
		vm.Dumper(vm.Snapshot(violation.Error()))
	}
	panic(violation)
}

// Invariant lets embedding hosts raise a host-level violation through the VM's diagnostic channel.
func (vm *VirtualMachine) Invariant(err error, detail string) {
	vm.invariant(err, detail)
}
