package vm

// ExecutionContext is a unit of runnable logic: bytecode or a native contract.
type ExecutionContext interface {
	Name() string
	Execute(frame *ExecutionFrame, stack *Stack) ExecutionState
}
