package vmerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetErrorName(t *testing.T) {
	assert.Equal(t, "StackUnderflow", GetErrorName(ErrStackUnderflow))
	assert.Equal(t, "VM1", GetErrorCode(ErrStackUnderflow))
	assert.Equal(t, "No Error", GetErrorName(nil))

	wrapped := fmt.Errorf("opcode POP: %w", ErrStackUnderflow)
	assert.Equal(t, "StackUnderflow", GetErrorName(wrapped))
	assert.Equal(t, "VM1", GetErrorCode(wrapped))
}

func TestAssertionErrorUnwrap(t *testing.T) {
	err := &AssertionError{Description: "amount must be positive"}
	assert.True(t, errors.Is(err, ErrContractAssertion))
	assert.Contains(t, err.Error(), "amount must be positive")
}

func TestInvariantErrorUnwrap(t *testing.T) {
	err := &InvariantError{Err: ErrNotEnoughFrames, Detail: "PopFrame"}
	assert.True(t, errors.Is(err, ErrNotEnoughFrames))
	assert.Contains(t, err.Error(), "PopFrame")
}
