package blockchain

import (
	"fmt"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/holiman/uint256"
)

const TokenContractName = "token"

type TokenContract struct {
	address common.Address
}

func NewTokenContract() *TokenContract {
	return &TokenContract{address: common.AddressFromName(TokenContractName)}
}

func (t *TokenContract) Name() string {
	return TokenContractName
}

func (t *TokenContract) Address() common.Address {
	return t.address
}

func (t *TokenContract) Methods() map[string]NativeMethod {
	return map[string]NativeMethod{
		"TransferTokens": {Args: 4, Handler: t.transferTokens},
		"GetBalance":     {Args: 2, Handler: t.getBalance},
		"MintTokens":     {Args: 3, Handler: t.mintTokens},
		"BurnTokens":     {Args: 3, Handler: t.burnTokens},
		"MintItem":       {Args: 2, Handler: t.mintItem},
		"TransferItem":   {Args: 4, Handler: t.transferItem},
		"OwnerOf":        {Args: 2, Handler: t.ownerOf},
	}
}

func tokenEvent(rt *Runtime, symbol string, value *uint256.Int) TokenEventData {
	return TokenEventData{Symbol: symbol, Value: value.ToBig(), ChainAddress: rt.Chain.Address}
}

func fungibleToken(rt *Runtime, symbol string) (*TokenInfo, error) {
	token, err := rt.Nexus().GetTokenInfo(symbol)
	if err != nil {
		return nil, err
	}
	rt.Expect(token.IsFungible(), "token must be fungible")
	return token, nil
}

func itemToken(rt *Runtime, symbol string) (*TokenInfo, error) {
	token, err := rt.Nexus().GetTokenInfo(symbol)
	if err != nil {
		return nil, err
	}
	rt.Expect(!token.IsFungible(), "token must be non-fungible")
	return token, nil
}

// transferTokens(from, to, symbol, amount)
func (t *TokenContract) transferTokens(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	from, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	to, err := ArgAddress(args, 1)
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

	token, err := fungibleToken(rt, symbol)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(token.Flags.Has(TokenFlagTransferable), "token must be transferable")
	rt.Expect(!amount.IsZero(), "amount must be positive")
	rt.Expect(from != to, "source and destination must differ")
	rt.Expect(rt.IsWitness(from), "invalid witness")

	if err := rt.Nexus().TransferTokens(rt.ChangeSet, rt.Chain, symbol, from, to, amount); err != nil {
		return vm.VMObject{}, err
	}
	rt.Notify(EventTokenSend, from, tokenEvent(rt, symbol, amount))
	rt.Notify(EventTokenReceive, to, tokenEvent(rt, symbol, amount))
	return vm.VMObject{}, nil
}

// getBalance(address, symbol)
func (t *TokenContract) getBalance(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	addr, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	symbol, err := ArgString(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}
	token, err := rt.Nexus().GetTokenInfo(symbol)
	if err != nil {
		return vm.VMObject{}, err
	}
	if !token.IsFungible() {
		count, err := NewOwnershipSheet(rt.ChangeSet, rt.Chain.Address, symbol).Holdings(addr)
		if err != nil {
			return vm.VMObject{}, err
		}
		return uint64Object(count), nil
	}
	balance, err := rt.Chain.GetTokenBalances(rt.ChangeSet, symbol).Get(addr)
	if err != nil {
		return vm.VMObject{}, err
	}
	return amountObject(balance), nil
}

// mintTokens(to, symbol, amount) requires the token owner's witness.
func (t *TokenContract) mintTokens(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	to, err := ArgAddress(args, 0)
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

	token, err := fungibleToken(rt, symbol)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(rt.IsWitness(token.Owner), "invalid witness")

	if err := rt.Nexus().MintTokens(rt.ChangeSet, rt.Chain, symbol, to, amount); err != nil {
		return vm.VMObject{}, err
	}
	rt.Notify(EventTokenMint, to, tokenEvent(rt, symbol, amount))
	return vm.VMObject{}, nil
}

// burnTokens(from, symbol, amount) requires the holder's witness.
func (t *TokenContract) burnTokens(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	from, err := ArgAddress(args, 0)
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

	if _, err := fungibleToken(rt, symbol); err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(rt.IsWitness(from), "invalid witness")

	if err := rt.Nexus().BurnTokens(rt.ChangeSet, rt.Chain, symbol, from, amount); err != nil {
		return vm.VMObject{}, err
	}
	rt.Notify(EventTokenBurn, from, tokenEvent(rt, symbol, amount))
	return vm.VMObject{}, nil
}

// mintItem(to, symbol) creates the next instance of a non-fungible token and returns its id.
func (t *TokenContract) mintItem(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	to, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	symbol, err := ArgString(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}

	token, err := itemToken(rt, symbol)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(rt.IsWitness(token.Owner), "invalid witness")

	one := uint256.NewInt(1)
	supply := NewSupplySheet(rt.ChangeSet, token)
	if err := supply.Mint(one); err != nil {
		return vm.VMObject{}, err
	}
	id, err := supply.Total()
	if err != nil {
		return vm.VMObject{}, err
	}
	if err := NewOwnershipSheet(rt.ChangeSet, rt.Chain.Address, symbol).Give(to, id); err != nil {
		return vm.VMObject{}, err
	}
	rt.Notify(EventTokenMint, to, tokenEvent(rt, symbol, id))
	return amountObject(id), nil
}

// transferItem(from, to, symbol, id)
func (t *TokenContract) transferItem(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	from, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	to, err := ArgAddress(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}
	symbol, err := ArgString(args, 2)
	if err != nil {
		return vm.VMObject{}, err
	}
	id, err := ArgAmount(args, 3)
	if err != nil {
		return vm.VMObject{}, err
	}

	token, err := itemToken(rt, symbol)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(token.Flags.Has(TokenFlagTransferable), "token must be transferable")
	rt.Expect(rt.IsWitness(from), "invalid witness")

	sheet := NewOwnershipSheet(rt.ChangeSet, rt.Chain.Address, symbol)
	if err := sheet.Take(from, id); err != nil {
		return vm.VMObject{}, err
	}
	if err := sheet.Give(to, id); err != nil {
		return vm.VMObject{}, err
	}
	rt.Notify(EventTokenSend, from, tokenEvent(rt, symbol, id))
	rt.Notify(EventTokenReceive, to, tokenEvent(rt, symbol, id))
	return vm.VMObject{}, nil
}

// ownerOf(symbol, id)
func (t *TokenContract) ownerOf(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	symbol, err := ArgString(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	id, err := ArgAmount(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}
	if _, err := itemToken(rt, symbol); err != nil {
		return vm.VMObject{}, err
	}
	owner, err := NewOwnershipSheet(rt.ChangeSet, rt.Chain.Address, symbol).OwnerOf(id)
	if err != nil {
		return vm.VMObject{}, fmt.Errorf("%s #%s: %w", symbol, id, vmerrors.ErrNotFound)
	}
	return vm.NewBytes(owner.Bytes()), nil
}
