package vm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nativeTestContext struct {
	name string
	fn   func(frame *ExecutionFrame, stack *Stack) ExecutionState
}

func (c *nativeTestContext) Name() string { return c.name }

func (c *nativeTestContext) Execute(frame *ExecutionFrame, stack *Stack) ExecutionState {
	return c.fn(frame, stack)
}

type testHost struct {
	contexts  map[string]ExecutionContext
	interops  map[string]func(vm *VirtualMachine) ExecutionState
	loadCalls map[string]int
	vm        *VirtualMachine
}

func newTestHost() *testHost {
	return &testHost{
		contexts:  make(map[string]ExecutionContext),
		interops:  make(map[string]func(vm *VirtualMachine) ExecutionState),
		loadCalls: make(map[string]int),
	}
}

func (h *testHost) LoadContext(name string) (ExecutionContext, bool) {
	h.loadCalls[name]++
	ctx, ok := h.contexts[name]
	return ctx, ok
}

func (h *testHost) ExecuteInterop(method string) ExecutionState {
	fn, ok := h.interops[method]
	if !ok {
		h.vm.SetFault(vmerrors.ErrInteropNotFound)
		return Fault
	}
	return fn(h.vm)
}

func runScript(t *testing.T, sb *ScriptBuilder, host *testHost) (*VirtualMachine, ExecutionState) {
	t.Helper()
	script, err := sb.ToScript()
	require.NoError(t, err)
	var vm *VirtualMachine
	if host == nil {
		vm = NewVirtualMachine(script, nil)
	} else {
		vm = NewVirtualMachine(script, host)
		host.vm = vm
	}
	return vm, vm.Execute()
}

func popNumber(t *testing.T, vm *VirtualMachine) int64 {
	t.Helper()
	obj, err := vm.Stack.Pop()
	require.NoError(t, err)
	n, err := obj.AsNumber()
	require.NoError(t, err)
	return n.Int64()
}

func recoverInvariant(fn func()) (violation *vmerrors.InvariantError) {
	defer func() {
		if r := recover(); r != nil {
			violation, _ = r.(*vmerrors.InvariantError)
		}
	}()
	fn()
	return nil
}

func TestArithmeticHalts(t *testing.T) {
	sb := NewScriptBuilder().
		EmitLoadInt(1, 2).
		EmitLoadInt(2, 3).
		Emit(ADD, 1, 2, 3).
		EmitPush(3)
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Halt, state)
	assert.Equal(t, int64(5), popNumber(t, vm))
	assert.Nil(t, vm.FaultReason())
}

func TestEmptyScriptHalts(t *testing.T) {
	vm := NewVirtualMachine([]byte{}, nil)
	assert.Equal(t, Halt, vm.Execute())
	assert.Equal(t, 1, vm.FrameCount())
}

func TestThrowFaults(t *testing.T) {
	vm, state := runScript(t, NewScriptBuilder().EmitThrow("boom"), nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrScriptThrow)
	assert.Contains(t, vm.FaultReason().Error(), "boom")
}

func TestInvalidOpcodeFaults(t *testing.T) {
	vm := NewVirtualMachine([]byte{byte(NOP), 0xFF}, nil)
	require.Equal(t, Fault, vm.Execute())
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidOpcode)
}

func TestTruncatedOperandFaults(t *testing.T) {
	vm := NewVirtualMachine([]byte{byte(MOVE), 1}, nil)
	require.Equal(t, Fault, vm.Execute())
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidOperand)
}

func TestDivisionByZeroFaults(t *testing.T) {
	sb := NewScriptBuilder().
		EmitLoadInt(1, 10).
		EmitLoadInt(2, 0).
		Emit(DIV, 1, 2, 3)
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrDivisionByZero)
}

func TestPopEmptyStackFaults(t *testing.T) {
	vm, state := runScript(t, NewScriptBuilder().EmitPop(0), nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrStackUnderflow)
}

func TestLoop(t *testing.T) {
	sb := NewScriptBuilder().
		EmitLoadInt(0, 0).
		EmitLoadInt(1, 5).
		EmitLabel("loop").
		Emit(INC, 0).
		Emit(LT, 0, 1, 2).
		EmitJump(JMPIF, "loop", 2).
		EmitPush(0)
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Halt, state)
	assert.Equal(t, int64(5), popNumber(t, vm))
}

func TestCallAndReturn(t *testing.T) {
	sb := NewScriptBuilder().
		EmitLoadInt(0, 1).
		EmitCall("sub", 4).
		EmitPush(0).
		EmitReturn().
		EmitLabel("sub").
		EmitLoadInt(0, 7).
		EmitPush(0).
		EmitReturn()
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Halt, state)
	// the caller's r0 is untouched by the callee frame
	assert.Equal(t, int64(1), popNumber(t, vm))
	assert.Equal(t, int64(7), popNumber(t, vm))
	assert.Equal(t, 1, vm.FrameCount())
}

func TestStringsAndSlices(t *testing.T) {
	sb := NewScriptBuilder().
		EmitLoadString(0, "hello ").
		EmitLoadString(1, "world").
		Emit(CAT, 0, 1, 2).
		Emit(LEFT, 2, 3, 5).
		Emit(RIGHT, 2, 4, 5).
		Emit(SIZE, 2, 5).
		EmitPush(5).
		EmitPush(4).
		EmitPush(3)
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Halt, state)

	left, _ := vm.Stack.Pop()
	right, _ := vm.Stack.Pop()
	assert.Equal(t, NewString("hello"), left)
	assert.Equal(t, NewString("world"), right)
	assert.Equal(t, int64(11), popNumber(t, vm))
}

func TestStructFields(t *testing.T) {
	sb := NewScriptBuilder().
		EmitLoadInt(0, 99).
		EmitLoadString(1, "amount").
		Emit(PUT, 0, 2, 1).
		Emit(GET, 2, 3, 1).
		EmitPush(3)
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Halt, state)
	assert.Equal(t, int64(99), popNumber(t, vm))
}

func TestContextResolvedOnce(t *testing.T) {
	host := newTestHost()
	host.contexts["greeter"] = &nativeTestContext{name: "greeter", fn: func(frame *ExecutionFrame, stack *Stack) ExecutionState {
		stack.Push(NewString("hi"))
		return Halt
	}}

	sb := NewScriptBuilder().
		EmitLoadString(0, "greeter").
		Emit(CTX, 0, 1).
		Emit(CTX, 0, 2).
		Emit(SWITCH, 1).
		Emit(SWITCH, 2)
	vm, state := runScript(t, sb, host)
	require.Equal(t, Halt, state)
	assert.Equal(t, 1, host.loadCalls["greeter"])
	assert.Equal(t, 2, vm.Stack.Count())
	assert.Equal(t, 1, vm.FrameCount())
}

func TestUnknownContextFaults(t *testing.T) {
	host := newTestHost()
	sb := NewScriptBuilder().
		EmitLoadString(0, "missing").
		Emit(CTX, 0, 1)
	vm, state := runScript(t, sb, host)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrContextNotFound)
}

func TestCallContractScript(t *testing.T) {
	contract, err := NewScriptBuilder().
		EmitPop(0).
		EmitPop(1).
		EmitLoadInt(2, 10).
		Emit(ADD, 1, 2, 3).
		EmitPush(3).
		EmitReturn().
		ToScript()
	require.NoError(t, err)

	host := newTestHost()
	host.contexts["adder"] = NewScriptContext("adder", contract)

	sb := NewScriptBuilder().CallContract("adder", "add", 1)
	vm, state := runScript(t, sb, host)
	require.Equal(t, Halt, state)
	assert.Equal(t, int64(11), popNumber(t, vm))
	assert.Equal(t, 0, vm.Stack.Count())
}

func TestBreakResumesCaller(t *testing.T) {
	host := newTestHost()
	host.contexts["stop"] = &nativeTestContext{name: "stop", fn: func(*ExecutionFrame, *Stack) ExecutionState {
		return Break
	}}

	sb := NewScriptBuilder().
		EmitLoadString(0, "stop").
		Emit(CTX, 0, 1).
		Emit(SWITCH, 1).
		EmitLoadInt(2, 3).
		EmitPush(2)
	vm, state := runScript(t, sb, host)
	require.Equal(t, Halt, state)
	assert.Equal(t, int64(3), popNumber(t, vm))
}

func TestInterop(t *testing.T) {
	host := newTestHost()
	host.interops["Test.Double"] = func(vm *VirtualMachine) ExecutionState {
		obj, err := vm.Stack.Pop()
		if err != nil {
			return Fault
		}
		n, err := obj.AsNumber()
		if err != nil {
			return Fault
		}
		vm.Stack.Push(NewNumber(n.Mul(n, big.NewInt(2))))
		return Running
	}

	vm, state := runScript(t, NewScriptBuilder().CallInterop("Test.Double", 21), host)
	require.Equal(t, Halt, state)
	assert.Equal(t, int64(42), popNumber(t, vm))

	vm, state = runScript(t, NewScriptBuilder().CallInterop("Test.Missing"), host)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInteropNotFound)
}

func TestInteropWithoutHostFaults(t *testing.T) {
	vm, state := runScript(t, NewScriptBuilder().CallInterop("Runtime.Log", "x"), nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInteropNotFound)
}

func TestExpectFaults(t *testing.T) {
	host := newTestHost()
	host.contexts["strict"] = &nativeTestContext{name: "strict", fn: func(frame *ExecutionFrame, stack *Stack) ExecutionState {
		frame.VM.Expect(false, "always fails")
		return Halt
	}}

	sb := NewScriptBuilder().
		EmitLoadString(0, "strict").
		Emit(CTX, 0, 1).
		Emit(SWITCH, 1)
	vm, state := runScript(t, sb, host)
	require.Equal(t, Fault, state)

	var assertion *vmerrors.AssertionError
	require.True(t, errors.As(vm.FaultReason(), &assertion))
	assert.Equal(t, "always fails", assertion.Description)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrContractAssertion)
}

type limitHost struct {
	*testHost
	remaining int
}

func (h *limitHost) ValidateOpcode(Opcode) ExecutionState {
	if h.remaining == 0 {
		h.vm.SetFault(vmerrors.ErrGasLimitExceeded)
		return Fault
	}
	h.remaining--
	return Running
}

func TestOpcodeValidator(t *testing.T) {
	host := &limitHost{testHost: newTestHost(), remaining: 2}
	script, err := NewScriptBuilder().Emit(NOP).Emit(NOP).Emit(NOP).ToScript()
	require.NoError(t, err)

	vm := NewVirtualMachine(script, host)
	host.vm = vm
	require.Equal(t, Fault, vm.Execute())
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrGasLimitExceeded)
}

func TestFrameDiscipline(t *testing.T) {
	vm := NewVirtualMachine([]byte{}, nil)
	var dumps []*Dump
	vm.Dumper = func(d *Dump) { dumps = append(dumps, d) }

	violation := recoverInvariant(func() { vm.PopFrame() })
	require.NotNil(t, violation)
	assert.ErrorIs(t, violation, vmerrors.ErrNotEnoughFrames)

	vm.PushFrame(vm.EntryContext(), 0)
	violation = recoverInvariant(func() { vm.PeekFrame() })
	require.NotNil(t, violation)
	require.Len(t, dumps, 2)
	assert.Contains(t, dumps[1].String(), "FRAMES")

	vm.PushFrame(vm.EntryContext(), 17)
	assert.Equal(t, vm.EntryContext(), vm.PeekFrame().Context)
	assert.Equal(t, uint32(17), vm.PopFrame())
	assert.Equal(t, 1, vm.FrameCount())
}

func TestNilScriptPanics(t *testing.T) {
	violation := recoverInvariant(func() { NewVirtualMachine(nil, nil) })
	require.NotNil(t, violation)
	assert.ErrorIs(t, violation, vmerrors.ErrNilArgument)
}

func TestFaultReasonFirstWins(t *testing.T) {
	vm := NewVirtualMachine([]byte{}, nil)
	vm.SetFault(vmerrors.ErrStackUnderflow)
	vm.SetFault(vmerrors.ErrTypeMismatch)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrStackUnderflow)
}

func TestBuilderErrors(t *testing.T) {
	_, err := NewScriptBuilder().EmitJump(JMP, "nowhere", 0).ToScript()
	assert.Error(t, err)

	_, err = NewScriptBuilder().EmitLabel("a").EmitLabel("a").ToScript()
	assert.Error(t, err)

	_, err = NewScriptBuilder().CallInterop("X", struct{}{}).ToScript()
	assert.Error(t, err)
}

func TestCallSizesCalleeFrame(t *testing.T) {
	sb := NewScriptBuilder().
		EmitCall("sub", 2).
		EmitReturn().
		EmitLabel("sub").
		EmitLoadInt(1, 7).
		EmitLoadInt(2, 8)
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidRegister)

	vm, state = runScript(t, NewScriptBuilder().EmitCall("sub", 0).EmitLabel("sub"), nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrTooManyRegisters)

	vm, state = runScript(t, NewScriptBuilder().EmitCall("sub", MaxRegisterCount+1).EmitLabel("sub"), nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrTooManyRegisters)
}

func TestPushCallFrameRejectsRegisterCount(t *testing.T) {
	vm := NewVirtualMachine([]byte{}, nil)
	violation := recoverInvariant(func() { vm.PushCallFrame(vm.EntryContext(), 0, MaxRegisterCount+1) })
	require.NotNil(t, violation)
	assert.ErrorIs(t, violation, vmerrors.ErrTooManyRegisters)

	vm.PushCallFrame(vm.EntryContext(), 0, 3)
	_, err := vm.CurrentFrame().Register(2)
	assert.NoError(t, err)
	_, err = vm.CurrentFrame().Register(3)
	assert.ErrorIs(t, err, vmerrors.ErrInvalidRegister)
}

func TestConcatenationIsBounded(t *testing.T) {
	sb := NewScriptBuilder().EmitLoadBytes(0, []byte{0x01})
	for i := 0; i < 27; i++ {
		sb.Emit(CAT, 0, 0, 0)
	}
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidOperand)
	reg, err := vm.CurrentFrame().Register(0)
	require.NoError(t, err)
	b, err := reg.AsBytes()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(b), MaxBytesSize)

	half := string(make([]byte, MaxBytesSize/2+1))
	vm, state = runScript(t, NewScriptBuilder().EmitLoadString(0, half).Emit(CAT, 0, 0, 1), nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidOperand)

	vm, state = runScript(t, NewScriptBuilder().EmitLoadString(0, half[:MaxBytesSize/2]).Emit(CAT, 0, 0, 1), nil)
	require.Equal(t, Halt, state)
}

func TestLoadIsBounded(t *testing.T) {
	vm, state := runScript(t, NewScriptBuilder().EmitLoadBytes(0, make([]byte, MaxBytesSize+1)), nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidOperand)

	huge := new(big.Int).Lsh(big.NewInt(1), MaxNumberBits)
	vm, state = runScript(t, NewScriptBuilder().EmitLoadNumber(0, huge), nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidOperand)
}

func TestNumbersAreBounded(t *testing.T) {
	big1024 := new(big.Int).Lsh(big.NewInt(1), 1024)
	maxNumber := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), MaxNumberBits), big.NewInt(1))

	cases := []struct {
		name  string
		sb    *ScriptBuilder
		state ExecutionState
	}{
		{"square within bound", NewScriptBuilder().EmitLoadNumber(0, new(big.Int).Rsh(big1024, 1)).Emit(MUL, 0, 0, 0), Halt},
		{"square past bound", NewScriptBuilder().EmitLoadNumber(0, big1024).Emit(MUL, 0, 0, 0), Fault},
		{"add past bound", NewScriptBuilder().EmitLoadNumber(0, maxNumber).Emit(ADD, 0, 0, 1), Fault},
		{"sub past bound", NewScriptBuilder().EmitLoadNumber(0, maxNumber).Emit(NEGATE, 0, 1).Emit(SUB, 1, 0, 2), Fault},
		{"inc past bound", NewScriptBuilder().EmitLoadNumber(0, maxNumber).Emit(INC, 0), Fault},
		{"dec past bound", NewScriptBuilder().EmitLoadNumber(0, new(big.Int).Neg(maxNumber)).Emit(DEC, 0), Fault},
		{"shift past bound", NewScriptBuilder().EmitLoadNumber(0, big1024).EmitLoadInt(1, 1024).Emit(SHL, 0, 1, 2), Fault},
		{"max number", NewScriptBuilder().EmitLoadNumber(0, maxNumber).Emit(DEC, 0).Emit(INC, 0), Halt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vm, state := runScript(t, tc.sb, nil)
			require.Equal(t, tc.state, state)
			if tc.state == Fault {
				assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidOperand)
			}
		})
	}
}

func TestStructFieldsAreBounded(t *testing.T) {
	// r0 is put into itself under a fresh key each round, doubling its size
	sb := NewScriptBuilder().
		EmitLoadInt(3, 1).
		Emit(PUT, 3, 0, 3).
		EmitLoadInt(1, 0).
		EmitLoadInt(2, 64).
		EmitLabel("loop").
		Emit(PUT, 0, 0, 1).
		Emit(INC, 1).
		Emit(LT, 1, 2, 4).
		EmitJump(JMPIF, "loop", 4)
	vm, state := runScript(t, sb, nil)
	require.Equal(t, Fault, state)
	assert.ErrorIs(t, vm.FaultReason(), vmerrors.ErrInvalidOperand)
	reg, err := vm.CurrentFrame().Register(0)
	require.NoError(t, err)
	assert.LessOrEqual(t, reg.fieldCount(), MaxStructFields)
}
