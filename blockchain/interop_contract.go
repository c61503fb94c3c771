package blockchain

import (
	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/holiman/uint256"
)

const InteropContractName = "interop"

// InteropContract settles transfers with external chains. Only the genesis address may call it.
type InteropContract struct {
	address common.Address
}

func NewInteropContract() *InteropContract {
	return &InteropContract{address: common.AddressFromName(InteropContractName)}
}

func (c *InteropContract) Name() string {
	return InteropContractName
}

func (c *InteropContract) Address() common.Address {
	return c.address
}

func (c *InteropContract) Methods() map[string]NativeMethod {
	return map[string]NativeMethod{
		"DepositTokens":  {Args: 4, Handler: c.depositTokens},
		"WithdrawTokens": {Args: 3, Handler: c.withdrawTokens},
	}
}

func settledHashes(rt *Runtime, symbol string) *storage.StorageSet {
	return storage.NewStorageSet(rt.ChangeSet, storage.ScopedKey(rt.Chain.Address.Bytes(), "interop.hashes."+symbol))
}

// externalToken runs the checks shared by deposits and withdrawals.
func externalToken(rt *Runtime, destination common.Address, symbol string, amount *uint256.Int) *TokenInfo {
	rt.Expect(!amount.IsZero(), "amount must be positive and greater than zero")
	rt.Expect(!destination.IsNull(), "invalid destination")
	rt.Expect(rt.IsWitness(rt.Nexus().GenesisAddress), "invalid witness")

	token, err := rt.Nexus().GetTokenInfo(symbol)
	rt.Expect(err == nil, "invalid token")
	rt.Expect(token.Flags.Has(TokenFlagFungible), "token must be fungible")
	rt.Expect(token.Flags.Has(TokenFlagTransferable), "token must be transferable")
	rt.Expect(token.Flags.Has(TokenFlagExternal), "token must be external")
	return token
}

// depositTokens(hash, destination, symbol, amount) credits tokens received on an external chain. A
// stable token deposit also converts a tenth of one unit into fuel for the destination. Both mints are
// checked against their caps before anything is written.
func (c *InteropContract) depositTokens(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	hash, err := ArgHash(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	destination, err := ArgAddress(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}
	symbol, err := ArgString(args, 2)
	if err != nil {
		return vm.VMObject{}, err
	}
	amount, err := ArgAmount(args, 3)
	if err != nil {
		return vm.VMObject{}, err
	}

	token := externalToken(rt, destination, symbol, amount)
	nexus := rt.Nexus()

	hashes := settledHashes(rt, symbol)
	seen, err := hashes.Contains(hash.Bytes())
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(!seen, "hash already seen")

	minimum := UnitConversion(1, token.Decimals)
	rt.Expect(!amount.Lt(minimum), "minimum amount not reached")

	ok, err := NewSupplySheet(rt.ChangeSet, token).CanMint(amount)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(ok, "mint would exceed maximum supply")

	var fee *uint256.Int
	if symbol == nexus.StableTokenSymbol {
		fee = new(uint256.Int).Div(minimum, uint256.NewInt(10))
		fuel, err := nexus.GetTokenInfo(nexus.FuelTokenSymbol)
		if err != nil {
			return vm.VMObject{}, err
		}
		ok, err := NewSupplySheet(rt.ChangeSet, fuel).CanMint(fee)
		if err != nil {
			return vm.VMObject{}, err
		}
		rt.Expect(ok, "fee mint would exceed maximum fuel supply")
	}

	if _, err := hashes.Add(hash.Bytes()); err != nil {
		return vm.VMObject{}, err
	}
	if err := nexus.MintTokens(rt.ChangeSet, rt.Chain, symbol, destination, amount); err != nil {
		return vm.VMObject{}, err
	}
	if fee != nil && !fee.IsZero() {
		if err := nexus.TransferTokens(rt.ChangeSet, rt.Chain, symbol, destination, rt.Chain.Address, fee); err != nil {
			return vm.VMObject{}, err
		}
		if err := nexus.MintTokens(rt.ChangeSet, rt.Chain, nexus.FuelTokenSymbol, destination, fee); err != nil {
			return vm.VMObject{}, err
		}
	}

	rt.Notify(EventTokenReceive, destination, tokenEvent(rt, symbol, amount))
	return vm.VMObject{}, nil
}

// withdrawTokens(destination, symbol, amount) burns tokens leaving for an external chain.
func (c *InteropContract) withdrawTokens(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	destination, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	symbol, err := ArgString(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}
	amount, err := ArgAmount(args, 2)
	if err != nil {
		return vm.VMObject{}, err
	}

	externalToken(rt, destination, symbol, amount)
	if err := rt.Nexus().BurnTokens(rt.ChangeSet, rt.Chain, symbol, destination, amount); err != nil {
		return vm.VMObject{}, err
	}
	rt.Notify(EventTokenSend, destination, tokenEvent(rt, symbol, amount))
	return vm.VMObject{}, nil
}
