package blockchain

import (
	"fmt"
	"sync"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/log"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

const (
	FuelTokenSymbol   = "SOUL"
	StableTokenSymbol = "ALMA"
	RootChainName     = "main"
)

var genesisKey = []byte("nexus.genesis")

// Nexus is the registry of tokens and chains sharing one store.
type Nexus struct {
	Name string

	FuelTokenSymbol   string
	StableTokenSymbol string

	store storage.KeyValueStore

	mu        sync.RWMutex
	tokens    map[string]*TokenInfo
	chains    map[string]*Chain
	rootChain *Chain

	GenesisHash    common.Hash
	GenesisAddress common.Address
}

func NewNexus(name string, store storage.KeyValueStore) *Nexus {
	if store == nil {
		panic(&vmerrors.InvariantError{Err: vmerrors.ErrNilArgument, Detail: "store"})
	}
	return &Nexus{
		Name:              name,
		FuelTokenSymbol:   FuelTokenSymbol,
		StableTokenSymbol: StableTokenSymbol,
		store:             store,
		tokens:            make(map[string]*TokenInfo),
		chains:            make(map[string]*Chain),
	}
}

func (n *Nexus) Store() storage.KeyValueStore {
	return n.store
}

// Ready is true once the root chain and the fuel token exist.
func (n *Nexus) Ready() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, fuel := n.tokens[n.FuelTokenSymbol]
	return n.rootChain != nil && fuel
}

// HasGenesis reports whether the genesis block has been produced.
func (n *Nexus) HasGenesis() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return !common.IsNilHash(n.GenesisHash)
}

func (n *Nexus) CreateToken(owner common.Address, symbol, name string, maxSupply *uint256.Int, decimals int, flags TokenFlags) (*TokenInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.tokens[symbol]; ok {
		return nil, fmt.Errorf("%w: %s", vmerrors.ErrTokenExists, symbol)
	}
	if maxSupply == nil {
		maxSupply = new(uint256.Int)
	}
	token := &TokenInfo{
		Symbol:    symbol,
		Name:      name,
		Owner:     owner,
		Flags:     flags,
		MaxSupply: maxSupply.Clone(),
		Decimals:  decimals,
	}
	n.tokens[symbol] = token
	log.Debug(log.ChainMonitoring, "CreateToken", "symbol", symbol, "flags", flags, "maxSupply", maxSupply)
	return token, nil
}

func (n *Nexus) TokenExists(symbol string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.tokens[symbol]
	return ok
}

func (n *Nexus) GetTokenInfo(symbol string) (*TokenInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	token, ok := n.tokens[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vmerrors.ErrUnknownToken, symbol)
	}
	return token, nil
}

func (n *Nexus) Tokens() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	symbols := make([]string, 0, len(n.tokens))
	for s := range n.tokens {
		symbols = append(symbols, s)
	}
	slices.Sort(symbols)
	return symbols
}

// CreateChain registers a chain. An empty parentName creates the root chain.
func (n *Nexus) CreateChain(owner common.Address, name, parentName string) (*Chain, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.chains[name]; ok {
		return nil, fmt.Errorf("%w: %s", vmerrors.ErrChainExists, name)
	}
	if parentName == "" {
		if n.rootChain != nil {
			return nil, fmt.Errorf("%w: root chain already exists", vmerrors.ErrChainExists)
		}
	} else if _, ok := n.chains[parentName]; !ok {
		return nil, fmt.Errorf("%w: parent %s", vmerrors.ErrUnknownChain, parentName)
	}

	chain, err := newChain(n, owner, name, parentName)
	if err != nil {
		return nil, err
	}
	n.chains[name] = chain
	if parentName == "" {
		n.rootChain = chain
	}
	log.Debug(log.ChainMonitoring, "CreateChain", "name", name, "parent", parentName, "address", chain.Address)
	return chain, nil
}

func (n *Nexus) FindChainByName(name string) *Chain {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.chains[name]
}

// GetParentChainByName returns the parent chain's name, or "" for the root or an unknown chain.
func (n *Nexus) GetParentChainByName(name string) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	chain, ok := n.chains[name]
	if !ok {
		return ""
	}
	return chain.ParentName
}

func (n *Nexus) RootChain() *Chain {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.rootChain
}

func (n *Nexus) Chains() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.chains))
	for name := range n.chains {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetTokenSupply reads the committed supply of symbol.
func (n *Nexus) GetTokenSupply(symbol string) (*uint256.Int, error) {
	return n.TokenSupply(storage.NewChangeSet(n.store), symbol)
}

// TokenSupply reads the supply of symbol as seen through cs, including its pending writes.
func (n *Nexus) TokenSupply(cs *storage.ChangeSet, symbol string) (*uint256.Int, error) {
	token, err := n.GetTokenInfo(symbol)
	if err != nil {
		return nil, err
	}
	return NewSupplySheet(cs, token).Total()
}

// MintTokens credits amount of a fungible token to address on chain. A capped token that would
// exceed its maximum supply fails before any balance changes.
func (n *Nexus) MintTokens(cs *storage.ChangeSet, chain *Chain, symbol string, to common.Address, amount *uint256.Int) error {
	token, err := n.GetTokenInfo(symbol)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: zero mint", vmerrors.ErrInvalidArgument)
	}
	if err := NewSupplySheet(cs, token).Mint(amount); err != nil {
		return err
	}
	return NewBalanceSheet(cs, chain.Address, symbol).Add(to, amount)
}

func (n *Nexus) BurnTokens(cs *storage.ChangeSet, chain *Chain, symbol string, from common.Address, amount *uint256.Int) error {
	token, err := n.GetTokenInfo(symbol)
	if err != nil {
		return err
	}
	if err := NewBalanceSheet(cs, chain.Address, symbol).Subtract(from, amount); err != nil {
		return err
	}
	return NewSupplySheet(cs, token).Burn(amount)
}

func (n *Nexus) TransferTokens(cs *storage.ChangeSet, chain *Chain, symbol string, from, to common.Address, amount *uint256.Int) error {
	if !n.TokenExists(symbol) {
		return fmt.Errorf("%w: %s", vmerrors.ErrUnknownToken, symbol)
	}
	balances := NewBalanceSheet(cs, chain.Address, symbol)
	if err := balances.Subtract(from, amount); err != nil {
		return err
	}
	return balances.Add(to, amount)
}

func (n *Nexus) GetBalance(chain *Chain, symbol string, address common.Address) (*uint256.Int, error) {
	return NewBalanceSheet(storage.NewChangeSet(n.store), chain.Address, symbol).Get(address)
}
