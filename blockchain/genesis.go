package blockchain

import (
	"fmt"

	"github.com/colorfulnotion/nexusvm/chainspecs"
	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/ed25519"
	"github.com/colorfulnotion/nexusvm/log"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// GenesisAllocation credits Amount of Symbol to Address on the root chain at genesis.
type GenesisAllocation struct {
	Address common.Address
	Symbol  string
	Amount  *uint256.Int
}

type genesisRecord struct {
	Hash    common.Hash
	Address common.Address
}

// ResolveAccount turns a spec account into an address, plus its key when it was given as a phrase.
func ResolveAccount(account chainspecs.Account) (common.Address, ed25519.PrivateKey, error) {
	if account.Phrase != "" {
		key := ed25519.KeyFromPhrase(account.Phrase)
		return common.AddressFromPublicKey(key.Public().(ed25519.PublicKey)), key, nil
	}
	addr, err := common.HexToAddress(account.Address)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("account %q: %w", account.Address, err)
	}
	return addr, nil, nil
}

// NewNexusFromSpec builds the tokens and chains a spec declares over store, then produces genesis
// unless store already holds one.
func NewNexusFromSpec(spec *chainspecs.NexusSpec, store storage.KeyValueStore) (*Nexus, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	owner, _, err := ResolveAccount(spec.Genesis.Owner)
	if err != nil {
		return nil, err
	}

	nexus := NewNexus(spec.Name, store)
	nexus.FuelTokenSymbol = spec.FuelToken
	if spec.StableToken != "" {
		nexus.StableTokenSymbol = spec.StableToken
	}

	for _, t := range spec.Tokens {
		flags, err := ParseTokenFlags(t.Flags)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}
		maxSupply := new(uint256.Int)
		if t.MaxSupply != "" {
			if maxSupply, err = uint256.FromDecimal(t.MaxSupply); err != nil {
				return nil, fmt.Errorf("token %s max supply: %w", t.Symbol, err)
			}
		}
		if _, err := nexus.CreateToken(owner, t.Symbol, t.Name, maxSupply, t.Decimals, flags); err != nil {
			return nil, err
		}
	}
	for _, c := range spec.Chains {
		if _, err := nexus.CreateChain(owner, c.Name, c.Parent); err != nil {
			return nil, err
		}
	}

	allocations := make([]GenesisAllocation, 0, len(spec.Genesis.Allocations))
	for _, a := range spec.Genesis.Allocations {
		addr, _, err := ResolveAccount(a.Account)
		if err != nil {
			return nil, err
		}
		amount, err := uint256.FromDecimal(a.Amount)
		if err != nil {
			return nil, fmt.Errorf("allocation of %s: %w", a.Symbol, err)
		}
		allocations = append(allocations, GenesisAllocation{Address: addr, Symbol: a.Symbol, Amount: amount})
	}
	if err := nexus.CreateGenesisBlock(owner, spec.Genesis.Timestamp, allocations); err != nil {
		return nil, err
	}
	return nexus, nil
}

// CreateGenesisBlock mints the initial allocations on the root chain and seals them in block 0. When
// the store already records a genesis, it is loaded instead and nothing is minted.
func (n *Nexus) CreateGenesisBlock(owner common.Address, timestamp uint32, allocations []GenesisAllocation) error {
	root := n.RootChain()
	if root == nil {
		return fmt.Errorf("genesis: no root chain")
	}

	raw, ok, err := n.store.Get(genesisKey)
	if err != nil {
		return err
	}
	if ok {
		var rec genesisRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			return fmt.Errorf("genesis record: %w", err)
		}
		n.setGenesis(rec.Hash, rec.Address)
		log.Info(log.ChainMonitoring, "genesis loaded", "hash", rec.Hash, "owner", rec.Address)
		return nil
	}
	if root.BlockHeight() != 0 {
		return fmt.Errorf("genesis: root chain already has %d blocks", root.BlockHeight())
	}

	cs := storage.NewChangeSet(n.store)
	block := root.CreateBlock(timestamp)
	txHash := common.Blake2HashConcat([]byte("genesis"), []byte(n.Name))

	var events []Event
	for _, a := range allocations {
		if err := n.MintTokens(cs, root, a.Symbol, a.Address, a.Amount); err != nil {
			cs.Undo()
			return fmt.Errorf("genesis mint %s to %s: %w", a.Symbol, a.Address, err)
		}
		data, err := encodeEventContent(TokenEventData{Symbol: a.Symbol, Value: a.Amount.ToBig(), ChainAddress: root.Address})
		if err != nil {
			cs.Undo()
			return err
		}
		events = append(events, Event{Kind: EventTokenMint, Address: a.Address, Data: data})
	}
	block.addResult(txHash, vm.Halt, events)

	rec, err := rlp.EncodeToBytes(&genesisRecord{Hash: block.Hash(), Address: owner})
	if err != nil {
		cs.Undo()
		return err
	}
	if err := cs.Put(genesisKey, rec); err != nil {
		cs.Undo()
		return err
	}
	if err := cs.Execute(); err != nil {
		return err
	}
	if err := root.AddBlock(block); err != nil {
		return err
	}

	n.setGenesis(block.Hash(), owner)
	log.Info(log.ChainMonitoring, "genesis created", "nexus", n.Name, "hash", block.Hash(), "allocations", len(allocations))
	return nil
}

func (n *Nexus) setGenesis(hash common.Hash, owner common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.GenesisHash = hash
	n.GenesisAddress = owner
}
