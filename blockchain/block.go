package blockchain

import (
	"sync"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockHeader is the hashed and persisted part of a block.
type BlockHeader struct {
	Height       uint64
	Timestamp    uint32
	PreviousHash common.Hash
	ChainAddress common.Address
	Transactions []common.Hash
}

type TransactionResult struct {
	State  vm.ExecutionState
	Events []Event
}

type Block struct {
	BlockHeader

	mu      sync.RWMutex
	results map[common.Hash]*TransactionResult
}

func NewBlock(height uint64, timestamp uint32, previous common.Hash, chain common.Address) *Block {
	return &Block{
		BlockHeader: BlockHeader{
			Height:       height,
			Timestamp:    timestamp,
			PreviousHash: previous,
			ChainAddress: chain,
		},
		results: make(map[common.Hash]*TransactionResult),
	}
}

func (b *Block) Hash() common.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	encoded, err := rlp.EncodeToBytes(&b.BlockHeader)
	if err != nil {
		panic(err)
	}
	return common.Blake2Hash(encoded)
}

func (b *Block) addResult(txHash common.Hash, state vm.ExecutionState, events []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Transactions = append(b.Transactions, txHash)
	b.results[txHash] = &TransactionResult{State: state, Events: events}
}

func (b *Block) Result(txHash common.Hash) (*TransactionResult, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.results[txHash]
	return r, ok
}

func (b *Block) GetEventsForTransaction(txHash common.Hash) []Event {
	r, ok := b.Result(txHash)
	if !ok {
		return nil
	}
	return r.Events
}

func (b *Block) TransactionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.Transactions)
}
