package blockchain

import (
	"fmt"
	"sync"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/log"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/exp/slices"
)

type Chain struct {
	Name       string
	ParentName string
	Address    common.Address
	Owner      common.Address
	Nexus      *Nexus

	// MaxGas is the gas ceiling a run starts with before any escrow.
	MaxGas uint64

	mu        sync.RWMutex
	contracts map[string]SmartContract
	blocks    []*Block

	// txMu serializes transaction execution so each ChangeSet commits in order.
	txMu sync.Mutex
}

func newChain(nexus *Nexus, owner common.Address, name, parentName string) (*Chain, error) {
	chain := &Chain{
		Name:       name,
		ParentName: parentName,
		Address:    common.AddressFromName(name),
		Owner:      owner,
		Nexus:      nexus,
		MaxGas:     DefaultMaxGas,
		contracts:  make(map[string]SmartContract),
	}
	for _, c := range []NativeContract{NewGasContract(), NewTokenContract(), NewInteropContract()} {
		if err := chain.DeployContract(c); err != nil {
			return nil, err
		}
	}
	if err := chain.loadBlocks(); err != nil {
		return nil, err
	}
	return chain, nil
}

func (c *Chain) IsRoot() bool {
	return c.ParentName == ""
}

func (c *Chain) DeployContract(contract SmartContract) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contracts[contract.Name()]; ok {
		return fmt.Errorf("%w: %s on %s", vmerrors.ErrDuplicateContract, contract.Name(), c.Name)
	}
	c.contracts[contract.Name()] = contract
	log.Debug(log.ChainMonitoring, "DeployContract", "chain", c.Name, "contract", contract.Name())
	return nil
}

func (c *Chain) FindContract(name string) SmartContract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contracts[name]
}

func (c *Chain) Contracts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.contracts))
	for name := range c.contracts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetContractContext prepares the execution context of contract for one run.
func (c *Chain) GetContractContext(contract SmartContract, rt *Runtime) vm.ExecutionContext {
	switch ct := contract.(type) {
	case NativeContract:
		return NewNativeContext(ct, rt)
	case *CustomContract:
		return vm.NewScriptContext(ct.Name(), ct.Script)
	}
	panic(fmt.Sprintf("unsupported contract type %T", contract))
}

func (c *Chain) GetTokenBalances(cs *storage.ChangeSet, symbol string) *BalanceSheet {
	return NewBalanceSheet(cs, c.Address, symbol)
}

func (c *Chain) blockList(cs *storage.ChangeSet) *storage.StorageList {
	return storage.NewStorageList(cs, storage.ScopedKey(c.Address.Bytes(), "blocks"))
}

// loadBlocks restores block headers committed by a previous process on the same store.
func (c *Chain) loadBlocks() error {
	headers, err := c.blockList(storage.NewChangeSet(c.Nexus.store)).All()
	if err != nil {
		return err
	}
	for _, raw := range headers {
		var header BlockHeader
		if err := rlp.DecodeBytes(raw, &header); err != nil {
			return fmt.Errorf("chain %s block %d: %w", c.Name, len(c.blocks), err)
		}
		block := NewBlock(header.Height, header.Timestamp, header.PreviousHash, header.ChainAddress)
		block.Transactions = header.Transactions
		c.blocks = append(c.blocks, block)
	}
	return nil
}

func (c *Chain) BlockHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.blocks))
}

func (c *Chain) LastBlock() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

func (c *Chain) GetBlockByHeight(height uint64) *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height >= uint64(len(c.blocks)) {
		return nil
	}
	return c.blocks[height]
}

// CreateBlock starts the next block on top of the last one. It is not part of the chain until AddBlock.
func (c *Chain) CreateBlock(timestamp uint32) *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var previous common.Hash
	if n := len(c.blocks); n > 0 {
		previous = c.blocks[n-1].Hash()
	}
	return NewBlock(uint64(len(c.blocks)), timestamp, previous, c.Address)
}

// AddBlock appends a finished block and persists its header.
func (c *Chain) AddBlock(block *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if block.Height != uint64(len(c.blocks)) {
		return fmt.Errorf("chain %s: block height %d, expected %d", c.Name, block.Height, len(c.blocks))
	}
	if block.ChainAddress != c.Address {
		return fmt.Errorf("chain %s: block belongs to %s", c.Name, block.ChainAddress)
	}

	block.mu.RLock()
	encoded, err := rlp.EncodeToBytes(&block.BlockHeader)
	block.mu.RUnlock()
	if err != nil {
		return err
	}
	cs := storage.NewChangeSet(c.Nexus.store)
	if _, err := c.blockList(cs).Add(encoded); err != nil {
		return err
	}
	if err := cs.Execute(); err != nil {
		return err
	}

	c.blocks = append(c.blocks, block)
	log.Info(log.ChainMonitoring, "block added", "chain", c.Name, "height", block.Height, "txs", block.TransactionCount())
	return nil
}

// RegisterInterop installs the chain's interop surface on rt.
func (c *Chain) RegisterInterop(rt *Runtime) {
	registerRuntimeInterops(rt)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, contract := range c.contracts {
		native, ok := contract.(NativeContract)
		if !ok {
			continue
		}
		for name := range native.Methods() {
			method := name
			rt.RegisterMethod(native.Name()+"."+method, func(rt *Runtime) vm.ExecutionState {
				return invokeNative(rt, native, method, vm.Running)
			})
		}
	}
}

// ExecuteTransaction runs tx against block over a fresh ChangeSet. The ChangeSet is committed only on
// Halt; events are attached to the block either way.
func (c *Chain) ExecuteTransaction(block *Block, tx *Transaction) (*Runtime, vm.ExecutionState, error) {
	if tx.ChainName != c.Name || tx.NexusName != c.Nexus.Name {
		return nil, vm.Fault, fmt.Errorf("%w: targets %s/%s", vmerrors.ErrInvalidTransaction, tx.NexusName, tx.ChainName)
	}
	if tx.Expiration != 0 && tx.Expiration < block.Timestamp {
		return nil, vm.Fault, fmt.Errorf("%w: expired at %d", vmerrors.ErrInvalidTransaction, tx.Expiration)
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	txHash := tx.Hash()
	cs := storage.NewChangeSet(c.Nexus.store)
	rt := NewRuntime(tx.Script, c, block, tx, cs, false)
	state := rt.Execute()

	if state == vm.Halt {
		if err := cs.Execute(); err != nil {
			return rt, vm.Fault, fmt.Errorf("commit %s: %w", txHash, err)
		}
	} else {
		cs.Undo()
	}
	block.addResult(txHash, state, rt.Events())

	log.Info(log.ChainMonitoring, "transaction executed", "chain", c.Name, "tx", txHash.String_short(),
		"state", state, "usedGas", rt.UsedGas, "paidGas", rt.PaidGas, "reason", rt.FaultReason())
	return rt, state, nil
}

// InvokeContract runs a read-only query of contract.method and returns its result, or None.
func (c *Chain) InvokeContract(contract, method string, args ...interface{}) (vm.VMObject, error) {
	script, err := vm.NewScriptBuilder().CallContract(contract, method, args...).ToScript()
	if err != nil {
		return vm.VMObject{}, err
	}

	rt := NewRuntime(script, c, nil, nil, storage.NewChangeSet(c.Nexus.store), true)
	if state := rt.Execute(); state != vm.Halt {
		return vm.VMObject{}, fmt.Errorf("invoke %s.%s: %s: %w", contract, method, state, rt.FaultReason())
	}
	if rt.Stack.Count() == 0 {
		return vm.VMObject{}, nil
	}
	return rt.Stack.Pop()
}
