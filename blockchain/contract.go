package blockchain

import (
	"fmt"
	"math/big"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/log"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

type SmartContract interface {
	Name() string
	Address() common.Address
}

// NativeMethod is a contract entry point implemented in Go. Args values are popped from the operand
// stack in declaration order; a non-None result is pushed back.
type NativeMethod struct {
	Args    int
	Handler func(rt *Runtime, args []vm.VMObject) (vm.VMObject, error)
}

type NativeContract interface {
	SmartContract
	Methods() map[string]NativeMethod
}

func MethodNames(c NativeContract) []string {
	names := make([]string, 0, len(c.Methods()))
	for name := range c.Methods() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CustomContract is a deployed script, named by the hash of its code.
type CustomContract struct {
	Script  []byte
	name    string
	address common.Address
}

func NewCustomContract(script []byte) *CustomContract {
	if script == nil {
		panic(&vmerrors.InvariantError{Err: vmerrors.ErrNilArgument, Detail: "script"})
	}
	return &CustomContract{
		Script:  script,
		name:    common.Blake2Hash(script).Hex(),
		address: common.AddressFromScript(script),
	}
}

func (c *CustomContract) Name() string {
	return c.name
}

func (c *CustomContract) Address() common.Address {
	return c.address
}

// NativeContext runs one native contract on behalf of one Runtime. The method name is on top of the
// operand stack, followed by the arguments.
type NativeContext struct {
	contract NativeContract
	runtime  *Runtime
}

func NewNativeContext(contract NativeContract, rt *Runtime) *NativeContext {
	return &NativeContext{contract: contract, runtime: rt}
}

func (nc *NativeContext) Name() string {
	return nc.contract.Name()
}

func (nc *NativeContext) Contract() NativeContract {
	return nc.contract
}

func (nc *NativeContext) Execute(frame *vm.ExecutionFrame, stack *vm.Stack) vm.ExecutionState {
	nameObj, err := stack.Pop()
	if err != nil {
		nc.runtime.SetFault(fmt.Errorf("%s: method name: %w", nc.contract.Name(), err))
		return vm.Fault
	}
	method, err := nameObj.AsString()
	if err != nil {
		nc.runtime.SetFault(fmt.Errorf("%s: method name: %w", nc.contract.Name(), err))
		return vm.Fault
	}
	return invokeNative(nc.runtime, nc.contract, method, vm.Halt)
}

// invokeNative pops arguments, runs the method and pushes its result. done is returned on success.
func invokeNative(rt *Runtime, contract NativeContract, method string, done vm.ExecutionState) vm.ExecutionState {
	m, ok := contract.Methods()[method]
	if !ok {
		rt.SetFault(fmt.Errorf("%w: %s.%s", vmerrors.ErrMethodNotFound, contract.Name(), method))
		return vm.Fault
	}
	return callNative(rt, contract.Name()+"."+method, m, done)
}

func callNative(rt *Runtime, label string, m NativeMethod, done vm.ExecutionState) vm.ExecutionState {
	args := make([]vm.VMObject, m.Args)
	for i := range args {
		obj, err := rt.Stack.Pop()
		if err != nil {
			rt.SetFault(fmt.Errorf("%s arg %d: %w", label, i, err))
			return vm.Fault
		}
		args[i] = obj
	}

	log.Debug(log.RuntimeMonitoring, "native call", "method", label)
	result, err := m.Handler(rt, args)
	if err != nil {
		rt.SetFault(fmt.Errorf("%w: %s: %w", vmerrors.ErrInteropFailed, label, err))
		return vm.Fault
	}
	if !result.IsNone() {
		rt.Stack.Push(result)
	}
	return done
}

// Argument decoding shared by native contracts and interop bindings.

func argError(index int, err error) error {
	return fmt.Errorf("%w: arg %d: %v", vmerrors.ErrInvalidArgument, index, err)
}

func ArgAddress(args []vm.VMObject, i int) (common.Address, error) {
	b, err := args[i].AsBytes()
	if err != nil {
		return common.Address{}, argError(i, err)
	}
	addr, err := common.BytesToAddress(b)
	if err != nil {
		return common.Address{}, argError(i, err)
	}
	return addr, nil
}

func ArgString(args []vm.VMObject, i int) (string, error) {
	s, err := args[i].AsString()
	if err != nil {
		return "", argError(i, err)
	}
	return s, nil
}

func ArgBytes(args []vm.VMObject, i int) ([]byte, error) {
	b, err := args[i].AsBytes()
	if err != nil {
		return nil, argError(i, err)
	}
	return b, nil
}

func ArgHash(args []vm.VMObject, i int) (common.Hash, error) {
	b, err := args[i].AsBytes()
	if err != nil {
		return common.Hash{}, argError(i, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, argError(i, fmt.Errorf("hash must be %d bytes, have %d", common.HashLength, len(b)))
	}
	return common.BytesToHash(b), nil
}

// ArgAmount decodes a non-negative number that fits 256 bits.
func ArgAmount(args []vm.VMObject, i int) (*uint256.Int, error) {
	n, err := args[i].AsNumber()
	if err != nil {
		return nil, argError(i, err)
	}
	if n.Sign() < 0 {
		return nil, argError(i, fmt.Errorf("negative amount %s", n))
	}
	amount, overflow := uint256.FromBig(n)
	if overflow {
		return nil, argError(i, fmt.Errorf("amount %s overflows 256 bits", n))
	}
	return amount, nil
}

func ArgUint64(args []vm.VMObject, i int) (uint64, error) {
	n, err := args[i].AsNumber()
	if err != nil {
		return 0, argError(i, err)
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, argError(i, fmt.Errorf("%s is not a uint64", n))
	}
	return n.Uint64(), nil
}

func amountObject(v *uint256.Int) vm.VMObject {
	return vm.NewNumber(v.ToBig())
}

func uint64Object(v uint64) vm.VMObject {
	return vm.NewNumber(new(big.Int).SetUint64(v))
}
