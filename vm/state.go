package vm

// ExecutionState is the signal a context returns after running.
type ExecutionState uint8

const (
	Running ExecutionState = iota // in progress
	Halt                          // terminated successfully
	Fault                         // terminated on a violated invariant or failed assertion
	Break                         // early exit, consumed one level up
)

func (s ExecutionState) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Halt:
		return "HALT"
	case Fault:
		return "FAULT"
	case Break:
		return "BREAK"
	}
	return "UNKNOWN"
}

// IsTerminal reports whether s ends a run.
func (s ExecutionState) IsTerminal() bool {
	return s == Halt || s == Fault
}
