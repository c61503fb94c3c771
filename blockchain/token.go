package blockchain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/holiman/uint256"
)

type TokenFlags uint32

const (
	TokenFlagNone         TokenFlags = 0
	TokenFlagTransferable TokenFlags = 1 << 0
	TokenFlagFungible     TokenFlags = 1 << 1
	TokenFlagFinite       TokenFlags = 1 << 2
	TokenFlagDivisible    TokenFlags = 1 << 3
	TokenFlagFuel         TokenFlags = 1 << 4
	TokenFlagStakable     TokenFlags = 1 << 5
	TokenFlagStable       TokenFlags = 1 << 6
	TokenFlagExternal     TokenFlags = 1 << 7
)

var tokenFlagNames = []struct {
	flag TokenFlags
	name string
}{
	{TokenFlagTransferable, "Transferable"},
	{TokenFlagFungible, "Fungible"},
	{TokenFlagFinite, "Finite"},
	{TokenFlagDivisible, "Divisible"},
	{TokenFlagFuel, "Fuel"},
	{TokenFlagStakable, "Stakable"},
	{TokenFlagStable, "Stable"},
	{TokenFlagExternal, "External"},
}

func (f TokenFlags) Has(flag TokenFlags) bool {
	return f&flag == flag
}

func (f TokenFlags) String() string {
	var names []string
	for _, fn := range tokenFlagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// ParseTokenFlags accepts a list of flag names as used in chain specs.
func ParseTokenFlags(names []string) (TokenFlags, error) {
	var flags TokenFlags
	for _, name := range names {
		found := false
		for _, fn := range tokenFlagNames {
			if strings.EqualFold(fn.name, name) {
				flags |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown token flag %q", name)
		}
	}
	return flags, nil
}

type TokenInfo struct {
	Symbol    string
	Name      string
	Owner     common.Address
	Flags     TokenFlags
	MaxSupply *uint256.Int
	Decimals  int
}

func (t *TokenInfo) IsFungible() bool {
	return t.Flags.Has(TokenFlagFungible)
}

// IsCapped is true when MaxSupply is positive.
func (t *TokenInfo) IsCapped() bool {
	return t.MaxSupply != nil && !t.MaxSupply.IsZero()
}

func (t *TokenInfo) String() string {
	return fmt.Sprintf("%s (%s)", t.Name, t.Symbol)
}

// UnitConversion returns whole * 10^decimals.
func UnitConversion(whole uint64, decimals int) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return new(uint256.Int).Mul(uint256.NewInt(whole), scale)
}

func decodeAmount(raw []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(raw)
}

func encodeAmount(v *uint256.Int) []byte {
	return v.Bytes()
}

// BalanceSheet tracks fungible balances of one token on one chain.
type BalanceSheet struct {
	balances *storage.StorageMap
}

func NewBalanceSheet(cs *storage.ChangeSet, chain common.Address, symbol string) *BalanceSheet {
	return &BalanceSheet{balances: storage.NewStorageMap(cs, storage.ScopedKey(chain.Bytes(), symbol+".balances"))}
}

func (b *BalanceSheet) Get(address common.Address) (*uint256.Int, error) {
	raw, ok, err := b.balances.Get(address.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return decodeAmount(raw), nil
}

func (b *BalanceSheet) set(address common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		_, err := b.balances.Remove(address.Bytes())
		return err
	}
	_, err := b.balances.Set(address.Bytes(), encodeAmount(amount))
	return err
}

func (b *BalanceSheet) Add(address common.Address, amount *uint256.Int) error {
	current, err := b.Get(address)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return fmt.Errorf("balance overflow for %s", address)
	}
	return b.set(address, sum)
}

// Subtract fails with ErrInsufficientFunds without touching storage when the balance is too low.
func (b *BalanceSheet) Subtract(address common.Address, amount *uint256.Int) error {
	current, err := b.Get(address)
	if err != nil {
		return err
	}
	if current.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", vmerrors.ErrInsufficientFunds, address, current, amount)
	}
	return b.set(address, new(uint256.Int).Sub(current, amount))
}

// Holders returns every address with a non-zero balance, sorted by address bytes.
func (b *BalanceSheet) Holders() ([]common.Address, []*uint256.Int, error) {
	entries, err := b.balances.Entries()
	if err != nil {
		return nil, nil, err
	}
	addrs := make([]common.Address, 0, len(entries))
	amounts := make([]*uint256.Int, 0, len(entries))
	for _, kv := range entries {
		addr, err := common.BytesToAddress(kv[0])
		if err != nil {
			return nil, nil, err
		}
		addrs = append(addrs, addr)
		amounts = append(amounts, decodeAmount(kv[1]))
	}
	return addrs, amounts, nil
}

// SupplySheet tracks the circulating supply of one token across the nexus.
type SupplySheet struct {
	cs        *storage.ChangeSet
	key       []byte
	maxSupply *uint256.Int
}

func NewSupplySheet(cs *storage.ChangeSet, token *TokenInfo) *SupplySheet {
	var max *uint256.Int
	if token.IsCapped() {
		max = token.MaxSupply
	}
	return &SupplySheet{
		cs:        cs,
		key:       supplyKey(token.Symbol),
		maxSupply: max,
	}
}

func supplyKey(symbol string) []byte {
	return []byte("nexus.supply." + symbol)
}

func (s *SupplySheet) Total() (*uint256.Int, error) {
	s.cs.Lock()
	defer s.cs.Unlock()
	return s.total()
}

func (s *SupplySheet) total() (*uint256.Int, error) {
	raw, ok, err := s.cs.Get(s.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return decodeAmount(raw), nil
}

// CanMint reports whether amount fits under the cap. Uncapped tokens always fit.
func (s *SupplySheet) CanMint(amount *uint256.Int) (bool, error) {
	s.cs.Lock()
	defer s.cs.Unlock()
	return s.canMint(amount)
}

func (s *SupplySheet) canMint(amount *uint256.Int) (bool, error) {
	current, err := s.total()
	if err != nil {
		return false, err
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return false, nil
	}
	return s.maxSupply == nil || !next.Gt(s.maxSupply), nil
}

func (s *SupplySheet) Mint(amount *uint256.Int) error {
	s.cs.Lock()
	defer s.cs.Unlock()

	ok, err := s.canMint(amount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: minting %s over cap %s", vmerrors.ErrSupplyExceeded, amount, s.maxSupply)
	}
	current, _ := s.total()
	return s.cs.Put(s.key, encodeAmount(current.Add(current, amount)))
}

func (s *SupplySheet) Burn(amount *uint256.Int) error {
	s.cs.Lock()
	defer s.cs.Unlock()

	current, err := s.total()
	if err != nil {
		return err
	}
	if current.Lt(amount) {
		return fmt.Errorf("%w: burning %s of supply %s", vmerrors.ErrInsufficientFunds, amount, current)
	}
	return s.cs.Put(s.key, encodeAmount(current.Sub(current, amount)))
}

// OwnershipSheet maps the instances of one non-fungible token on one chain to their owners.
type OwnershipSheet struct {
	owners *storage.StorageMap
}

func NewOwnershipSheet(cs *storage.ChangeSet, chain common.Address, symbol string) *OwnershipSheet {
	return &OwnershipSheet{owners: storage.NewStorageMap(cs, storage.ScopedKey(chain.Bytes(), symbol+".owners"))}
}

func itemKey(id *uint256.Int) []byte {
	key := id.Bytes32()
	return key[:]
}

// OwnerOf returns the owner of id, or ErrNotFound.
func (o *OwnershipSheet) OwnerOf(id *uint256.Int) (common.Address, error) {
	raw, ok, err := o.owners.Get(itemKey(id))
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("%w: item %s", vmerrors.ErrNotFound, id)
	}
	return common.BytesToAddress(raw)
}

func (o *OwnershipSheet) Give(to common.Address, id *uint256.Int) error {
	_, err := o.owners.Set(itemKey(id), to.Bytes())
	return err
}

// Take removes id from from's ownership. It fails with ErrNotTokenOwner when from does not hold it.
func (o *OwnershipSheet) Take(from common.Address, id *uint256.Int) error {
	owner, err := o.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: %s does not hold item %s", vmerrors.ErrNotTokenOwner, from, id)
	}
	_, err = o.owners.Remove(itemKey(id))
	return err
}

// Holdings counts the instances held by owner.
func (o *OwnershipSheet) Holdings(owner common.Address) (uint64, error) {
	entries, err := o.owners.Entries()
	if err != nil {
		return 0, err
	}
	var count uint64
	for _, kv := range entries {
		if bytes.Equal(kv[1], owner.Bytes()) {
			count++
		}
	}
	return count, nil
}

func (o *OwnershipSheet) Count() (uint64, error) {
	return o.owners.Count()
}
