package vmerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Execution faults. These surface as vm.Fault and are recoverable by the host.
var (
	ErrStackUnderflow    = errors.New("VM1|StackUnderflow: Pop from an empty operand stack.")
	ErrInvalidOpcode     = errors.New("VM2|InvalidOpcode: Opcode is not part of the instruction set.")
	ErrInvalidRegister   = errors.New("VM3|InvalidRegister: Register index out of range.")
	ErrInvalidOperand    = errors.New("VM4|InvalidOperand: Instruction operand is truncated or out of bounds.")
	ErrInvalidJump       = errors.New("VM5|InvalidJump: Jump target outside of the script.")
	ErrTypeMismatch      = errors.New("VM6|TypeMismatch: Operand has the wrong type for this instruction.")
	ErrDivisionByZero    = errors.New("VM7|DivisionByZero: Division or modulo by zero.")
	ErrContextNotFound   = errors.New("VM8|ContextNotFound: No context could be resolved for the name.")
	ErrInteropNotFound   = errors.New("VM9|InteropNotFound: No interop method is registered under the name.")
	ErrScriptThrow       = errors.New("VM10|ScriptThrow: Script raised an explicit error.")
	ErrMethodNotFound    = errors.New("VM11|MethodNotFound: Native contract does not expose the method.")
	ErrTooManyRegisters  = errors.New("VM12|TooManyRegisters: Frame requests more registers than available.")
	ErrGasLimitExceeded  = errors.New("VM13|GasLimitExceeded: Used gas exceeds the authorised maximum.")
	ErrReadOnlyViolation = errors.New("VM14|ReadOnlyViolation: Storage modified during a read-only run.")
	ErrUnpaidGas         = errors.New("VM15|UnpaidGas: Run halted with less gas paid than used.")
	ErrContractAssertion = errors.New("VM16|ContractAssertion: Contract assertion failed.")
	ErrInteropFailed     = errors.New("VM17|InteropFailed: Interop method returned an error.")
	ErrInvalidArgument   = errors.New("VM18|InvalidArgument: Interop or contract argument has the wrong type.")
)

// Host-level invariant violations. These indicate a bug in the embedding host and abort dispatch.
var (
	ErrNotEnoughFrames   = errors.New("H1|NotEnoughFrames: Not enough frames available.")
	ErrInvalidGasAmount  = errors.New("H2|InvalidGasAmount: Gas cost must not be negative.")
	ErrInvalidGasPayload = errors.New("H3|InvalidGasPayload: Gas event content is not gas event data.")
	ErrNilArgument       = errors.New("H4|NilArgument: Required constructor argument is nil.")
)

// Storage and chain errors returned as plain Go errors.
var (
	ErrNotFound           = errors.New("S1|NotFound: Key not present in storage.")
	ErrInsufficientFunds  = errors.New("C1|InsufficientFunds: Balance too low for the operation.")
	ErrSupplyExceeded     = errors.New("C2|SupplyExceeded: Mint would exceed the token's maximum supply.")
	ErrUnknownToken       = errors.New("C3|UnknownToken: Token symbol is not registered.")
	ErrUnknownChain       = errors.New("C4|UnknownChain: Chain name is not registered.")
	ErrDuplicateContract  = errors.New("C5|DuplicateContract: A contract with this name is already deployed.")
	ErrTokenExists        = errors.New("C6|TokenExists: Token symbol already registered.")
	ErrChainExists        = errors.New("C7|ChainExists: Chain name already registered.")
	ErrInvalidTransaction = errors.New("C8|InvalidTransaction: Transaction does not target this chain or has expired.")
	ErrNotTokenOwner      = errors.New("C9|NotTokenOwner: Address does not own the token instance.")
)

// AssertionError is raised by contract assertions and turned into a Fault by the VM.
type AssertionError struct {
	Description string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("contract assertion failed: %s", e.Description)
}

func (e *AssertionError) Unwrap() error {
	return ErrContractAssertion
}

// InvariantError carries a host-level invariant violation. It is raised with panic.
type InvariantError struct {
	Err    error
	Detail string
}

func (e *InvariantError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	if len(parts) < 2 {
		return errStr
	}
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	code := parts[0]
	if i := strings.LastIndex(code, " "); i >= 0 {
		code = code[i+1:]
	}
	return strings.TrimSpace(code)
}
