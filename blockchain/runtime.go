package blockchain

import (
	"fmt"
	"math/big"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/log"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/colorfulnotion/nexusvm/vmerrors"
)

const (
	// DefaultMaxGas is enough to reach the gas contract and escrow a real allowance.
	DefaultMaxGas uint64 = 10000

	RandomA = 16807
	RandomM = 2147483647
)

// InteropHandler implements one named external call.
type InteropHandler func(rt *Runtime) vm.ExecutionState

// Runtime is a VirtualMachine bound to a chain, an optional block and transaction, and a ChangeSet.
type Runtime struct {
	*vm.VirtualMachine

	Transaction *Transaction
	Chain       *Chain
	ParentChain *Chain
	Block       *Block
	ChangeSet   *storage.ChangeSet

	UsedGas  uint64
	PaidGas  uint64
	MaxGas   uint64
	GasPrice uint64

	readOnly bool

	// DumpOnFault sends a snapshot to Dumper when a gas or post-halt check faults the run.
	DumpOnFault bool

	events   []Event
	handlers map[string]InteropHandler
	seed     *big.Int
}

// NewRuntime builds a runtime and lets the chain register its interop surface. block and tx may be
// nil for queries.
func NewRuntime(script []byte, chain *Chain, block *Block, tx *Transaction, changeSet *storage.ChangeSet, readOnly bool) *Runtime {
	if chain == nil {
		panic(&vmerrors.InvariantError{Err: vmerrors.ErrNilArgument, Detail: "chain"})
	}
	if changeSet == nil {
		panic(&vmerrors.InvariantError{Err: vmerrors.ErrNilArgument, Detail: "changeSet"})
	}

	rt := &Runtime{
		Transaction: tx,
		Chain:       chain,
		Block:       block,
		ChangeSet:   changeSet,
		MaxGas:      chain.MaxGas,
		readOnly:    readOnly,
		handlers:    make(map[string]InteropHandler),
	}
	rt.VirtualMachine = vm.NewVirtualMachine(script, rt)

	if !chain.IsRoot() {
		parentName := chain.Nexus.GetParentChainByName(chain.Name)
		rt.ParentChain = chain.Nexus.FindChainByName(parentName)
	}

	chain.RegisterInterop(rt)
	return rt
}

func (rt *Runtime) Nexus() *Nexus {
	return rt.Chain.Nexus
}

func (rt *Runtime) ReadOnly() bool {
	return rt.readOnly
}

// Time is the bound block's timestamp, or the wall clock when there is no block.
func (rt *Runtime) Time() uint32 {
	if rt.Block != nil {
		return rt.Block.Timestamp
	}
	return common.ComputeCurrentTimestamp()
}

// Execute runs the script and then applies the read-only and gas solvency checks to a Halt.
func (rt *Runtime) Execute() vm.ExecutionState {
	result := rt.VirtualMachine.Execute()
	if result != vm.Halt {
		return result
	}

	if rt.readOnly {
		if rt.ChangeSet.Any() {
			return rt.postHaltFault(fmt.Errorf("%w: %d pending writes", vmerrors.ErrReadOnlyViolation, rt.ChangeSet.Len()))
		}
	} else if rt.PaidGas < rt.UsedGas && rt.Nexus().HasGenesis() {
		return rt.postHaltFault(fmt.Errorf("%w: paid %d, used %d", vmerrors.ErrUnpaidGas, rt.PaidGas, rt.UsedGas))
	}
	return vm.Halt
}

func (rt *Runtime) postHaltFault(err error) vm.ExecutionState {
	rt.SetFault(err)
	log.Warn(log.RuntimeMonitoring, "run downgraded to fault", "chain", rt.Chain.Name, "err", err)
	rt.dumpFault(err)
	return vm.Fault
}

func (rt *Runtime) dumpFault(err error) {
	if rt.DumpOnFault && rt.Dumper != nil {
		rt.Dumper(rt.Snapshot(err.Error()))
	}
}

// meteringBypassed is true for queries, before the nexus is ready and before any fuel exists.
func (rt *Runtime) meteringBypassed() bool {
	if rt.readOnly || !rt.Nexus().Ready() {
		return true
	}
	supply, err := rt.Nexus().TokenSupply(rt.ChangeSet, rt.Nexus().FuelTokenSymbol)
	if err != nil {
		log.Error(log.RuntimeMonitoring, "fuel supply lookup failed", "err", err)
		return false
	}
	return supply.IsZero()
}

func (rt *Runtime) ValidateOpcode(opcode vm.Opcode) vm.ExecutionState {
	return rt.ConsumeGas(vm.GetGasCostForOpcode(opcode))
}

// ConsumeGas charges cost against MaxGas. A negative cost is a host bug and panics.
func (rt *Runtime) ConsumeGas(cost int64) vm.ExecutionState {
	if cost == 0 {
		return vm.Running
	}
	if cost < 0 {
		rt.Invariant(vmerrors.ErrInvalidGasAmount, fmt.Sprintf("cost %d", cost))
	}
	if rt.meteringBypassed() {
		return vm.Running
	}

	rt.UsedGas += uint64(cost)
	if rt.UsedGas > rt.MaxGas {
		err := fmt.Errorf("%w: used %d of %d", vmerrors.ErrGasLimitExceeded, rt.UsedGas, rt.MaxGas)
		rt.SetFault(err)
		log.Debug(log.RuntimeMonitoring, "gas limit exceeded", "used", rt.UsedGas, "max", rt.MaxGas)
		rt.dumpFault(err)
		return vm.Fault
	}
	return vm.Running
}

// LoadContext resolves a contract deployed on the bound chain.
func (rt *Runtime) LoadContext(name string) (vm.ExecutionContext, bool) {
	contract := rt.Chain.FindContract(name)
	if contract == nil {
		log.Debug(log.RuntimeMonitoring, "contract not found", "chain", rt.Chain.Name, "name", name)
		return nil, false
	}
	return rt.Chain.GetContractContext(contract, rt), true
}

func (rt *Runtime) RegisterMethod(name string, handler InteropHandler) {
	rt.handlers[name] = handler
}

func (rt *Runtime) HasMethod(name string) bool {
	_, ok := rt.handlers[name]
	return ok
}

func (rt *Runtime) ExecuteInterop(method string) vm.ExecutionState {
	handler, ok := rt.handlers[method]
	if !ok {
		rt.SetFault(fmt.Errorf("%w: %s", vmerrors.ErrInteropNotFound, method))
		return vm.Fault
	}
	return handler(rt)
}

// Notify records an event. GasEscrow sets MaxGas and GasPrice; GasPayment adds to PaidGas.
func (rt *Runtime) Notify(kind EventKind, address common.Address, content interface{}) {
	data, err := encodeEventContent(content)
	if err != nil {
		rt.Invariant(vmerrors.ErrInvalidArgument, fmt.Sprintf("event %s content %T: %v", kind, content, err))
	}

	switch kind {
	case EventGasEscrow:
		gas := rt.gasEventData(kind, content)
		rt.MaxGas = gas.Amount
		rt.GasPrice = gas.Price
	case EventGasPayment:
		gas := rt.gasEventData(kind, content)
		rt.PaidGas += gas.Amount
	}

	rt.events = append(rt.events, Event{Kind: kind, Address: address, Data: data})
	log.Trace(log.RuntimeMonitoring, "Notify", "kind", kind, "address", address)
}

func (rt *Runtime) gasEventData(kind EventKind, content interface{}) GasEventData {
	switch gas := content.(type) {
	case GasEventData:
		return gas
	case *GasEventData:
		if gas != nil {
			return *gas
		}
	}
	rt.Invariant(vmerrors.ErrInvalidGasPayload, fmt.Sprintf("%s with %T", kind, content))
	return GasEventData{}
}

// Events returns a copy of the event log in emission order.
func (rt *Runtime) Events() []Event {
	out := make([]Event, len(rt.events))
	copy(out, rt.events)
	return out
}

// Randomize seeds the generator from the block hash, or from the clock and init without a block.
func (rt *Runtime) Randomize(init []byte) {
	var temp []byte
	if rt.Block != nil {
		temp = rt.Block.Hash().Bytes()
	} else {
		temp = common.ConcatBytes(common.Uint32ToBytes(rt.Time()), init)
	}
	rt.setSeed(temp)
}

// setSeed reduces the seed into the generator's range. A zero residue would lock the sequence at
// zero, so it is replaced by one.
func (rt *Runtime) setSeed(b []byte) {
	seed := new(big.Int).SetBytes(b)
	seed.Mod(seed, big.NewInt(RandomM))
	if seed.Sign() == 0 {
		seed.SetInt64(1)
	}
	rt.seed = seed
}

// NextRandom advances seed = RandomA * seed mod RandomM.
func (rt *Runtime) NextRandom() uint64 {
	if rt.seed == nil {
		rt.Randomize(nil)
	}
	rt.seed.Mul(rt.seed, big.NewInt(RandomA))
	rt.seed.Mod(rt.seed, big.NewInt(RandomM))
	return rt.seed.Uint64()
}

// IsWitness reports whether the transaction carries a valid signature for address.
func (rt *Runtime) IsWitness(address common.Address) bool {
	if rt.Transaction == nil {
		return false
	}
	return rt.Transaction.IsSignedBy(address)
}
