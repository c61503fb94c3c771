package blockchain

import (
	"testing"

	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFlags(t *testing.T) {
	flags, err := ParseTokenFlags([]string{"fungible", "Transferable", "FUEL"})
	require.NoError(t, err)
	assert.True(t, flags.Has(TokenFlagFungible|TokenFlagTransferable))
	assert.False(t, flags.Has(TokenFlagStable))
	assert.Equal(t, "Transferable|Fungible|Fuel", flags.String())
	assert.Equal(t, "None", TokenFlagNone.String())

	_, err = ParseTokenFlags([]string{"Shiny"})
	assert.Error(t, err)
}

func TestUnitConversion(t *testing.T) {
	assert.Equal(t, "100000000", UnitConversion(1, 8).Dec())
	assert.Equal(t, "7", UnitConversion(7, 0).Dec())
}

func TestSupplySheetCap(t *testing.T) {
	cs := storage.NewChangeSet(storage.NewMemoryStore())
	token := &TokenInfo{Symbol: "CAP", MaxSupply: uint256.NewInt(100), Flags: TokenFlagFungible | TokenFlagFinite}
	supply := NewSupplySheet(cs, token)

	require.NoError(t, supply.Mint(uint256.NewInt(60)))
	ok, err := supply.CanMint(uint256.NewInt(40))
	require.NoError(t, err)
	assert.True(t, ok)

	writes := cs.Len()
	err = supply.Mint(uint256.NewInt(41))
	assert.ErrorIs(t, err, vmerrors.ErrSupplyExceeded)
	assert.Equal(t, writes, cs.Len(), "failed mint writes nothing")

	require.NoError(t, supply.Burn(uint256.NewInt(10)))
	total, err := supply.Total()
	require.NoError(t, err)
	assert.Equal(t, "50", total.Dec())
	assert.ErrorIs(t, supply.Burn(uint256.NewInt(51)), vmerrors.ErrInsufficientFunds)

	uncapped := NewSupplySheet(cs, &TokenInfo{Symbol: "FREE", MaxSupply: new(uint256.Int)})
	ok, err = uncapped.CanMint(uint256.MustFromDecimal("1000000000000000000000000"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBalanceSheet(t *testing.T) {
	cs := storage.NewChangeSet(storage.NewMemoryStore())
	alice, _ := account("alice")
	bob, _ := account("bob")
	sheet := NewBalanceSheet(cs, alice, "SOUL")

	require.NoError(t, sheet.Add(alice, uint256.NewInt(10)))
	require.NoError(t, sheet.Add(bob, uint256.NewInt(5)))

	writes := cs.Len()
	assert.ErrorIs(t, sheet.Subtract(bob, uint256.NewInt(6)), vmerrors.ErrInsufficientFunds)
	assert.Equal(t, writes, cs.Len())

	require.NoError(t, sheet.Subtract(bob, uint256.NewInt(5)))
	addrs, amounts, err := sheet.Holders()
	require.NoError(t, err)
	require.Len(t, addrs, 1, "zero balances are removed")
	assert.Equal(t, alice, addrs[0])
	assert.Equal(t, "10", amounts[0].Dec())
}

func TestOwnershipSheet(t *testing.T) {
	cs := storage.NewChangeSet(storage.NewMemoryStore())
	alice, _ := account("alice")
	bob, _ := account("bob")
	sheet := NewOwnershipSheet(cs, alice, "CROWN")
	id := uint256.NewInt(7)

	_, err := sheet.OwnerOf(id)
	assert.ErrorIs(t, err, vmerrors.ErrNotFound)

	require.NoError(t, sheet.Give(alice, id))
	owner, err := sheet.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	assert.ErrorIs(t, sheet.Take(bob, id), vmerrors.ErrNotTokenOwner)
	require.NoError(t, sheet.Take(alice, id))
	count, err := sheet.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}
