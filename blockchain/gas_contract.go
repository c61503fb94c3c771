package blockchain

import (
	"fmt"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

const GasContractName = "gas"

type gasAllowance struct {
	Price uint64
	Limit uint64
}

// GasContract escrows fuel for a run and settles it once the run knows how much gas it used.
type GasContract struct {
	address common.Address
}

func NewGasContract() *GasContract {
	return &GasContract{address: common.AddressFromName(GasContractName)}
}

func (g *GasContract) Name() string {
	return GasContractName
}

func (g *GasContract) Address() common.Address {
	return g.address
}

func (g *GasContract) Methods() map[string]NativeMethod {
	return map[string]NativeMethod{
		"AllowGas":     {Args: 3, Handler: g.allowGas},
		"SpendGas":     {Args: 1, Handler: g.spendGas},
		"GetAllowance": {Args: 1, Handler: g.getAllowance},
	}
}

func allowances(rt *Runtime) *storage.StorageMap {
	return storage.NewStorageMap(rt.ChangeSet, storage.ScopedKey(rt.Chain.Address.Bytes(), "gas.allowances"))
}

func loadAllowance(rt *Runtime, from common.Address) (*gasAllowance, error) {
	raw, ok, err := allowances(rt).Get(from.Bytes())
	if err != nil || !ok {
		return nil, err
	}
	var a gasAllowance
	if err := rlp.DecodeBytes(raw, &a); err != nil {
		return nil, fmt.Errorf("allowance of %s: %w", from, err)
	}
	return &a, nil
}

func escrowAmount(price, gas uint64) (*uint256.Int, error) {
	total, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(price), uint256.NewInt(gas))
	if overflow {
		return nil, fmt.Errorf("escrow %d x %d overflows", price, gas)
	}
	return total, nil
}

// allowGas(from, price, limit) moves price*limit fuel from from into the chain's escrow and raises MaxGas to limit.
func (g *GasContract) allowGas(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	from, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	price, err := ArgUint64(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}
	limit, err := ArgUint64(args, 2)
	if err != nil {
		return vm.VMObject{}, err
	}

	rt.Expect(rt.IsWitness(from), "invalid witness")
	rt.Expect(price > 0, "price must be positive")
	rt.Expect(limit > 0, "limit must be positive")

	existing, err := loadAllowance(rt, from)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(existing == nil, "gas already allowed")

	escrow, err := escrowAmount(price, limit)
	if err != nil {
		return vm.VMObject{}, err
	}
	nexus := rt.Nexus()
	if err := nexus.TransferTokens(rt.ChangeSet, rt.Chain, nexus.FuelTokenSymbol, from, rt.Chain.Address, escrow); err != nil {
		return vm.VMObject{}, err
	}

	encoded, err := rlp.EncodeToBytes(&gasAllowance{Price: price, Limit: limit})
	if err != nil {
		return vm.VMObject{}, err
	}
	if _, err := allowances(rt).Set(from.Bytes(), encoded); err != nil {
		return vm.VMObject{}, err
	}

	rt.Notify(EventGasEscrow, from, GasEventData{Address: rt.Chain.Address, Price: price, Amount: limit})
	return vm.VMObject{}, nil
}

// spendGas(from) pays UsedGas*price to the chain owner and refunds the rest of the escrow to from.
func (g *GasContract) spendGas(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	from, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(rt.IsWitness(from), "invalid witness")

	allowance, err := loadAllowance(rt, from)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Expect(allowance != nil, "no gas allowed")

	used := rt.UsedGas
	if used > allowance.Limit {
		used = allowance.Limit
	}
	escrow, err := escrowAmount(allowance.Price, allowance.Limit)
	if err != nil {
		return vm.VMObject{}, err
	}
	fee, err := escrowAmount(allowance.Price, used)
	if err != nil {
		return vm.VMObject{}, err
	}
	refund := new(uint256.Int).Sub(escrow, fee)

	nexus := rt.Nexus()
	fuel := nexus.FuelTokenSymbol
	if !fee.IsZero() {
		if err := nexus.TransferTokens(rt.ChangeSet, rt.Chain, fuel, rt.Chain.Address, rt.Chain.Owner, fee); err != nil {
			return vm.VMObject{}, err
		}
	}
	if !refund.IsZero() {
		if err := nexus.TransferTokens(rt.ChangeSet, rt.Chain, fuel, rt.Chain.Address, from, refund); err != nil {
			return vm.VMObject{}, err
		}
	}
	if _, err := allowances(rt).Remove(from.Bytes()); err != nil {
		return vm.VMObject{}, err
	}

	rt.Notify(EventGasPayment, from, GasEventData{Address: rt.Chain.Owner, Price: allowance.Price, Amount: used})
	return vm.VMObject{}, nil
}

// getAllowance(from) returns the escrowed gas limit of from, or zero.
func (g *GasContract) getAllowance(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	from, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	allowance, err := loadAllowance(rt, from)
	if err != nil {
		return vm.VMObject{}, err
	}
	if allowance == nil {
		return uint64Object(0), nil
	}
	return uint64Object(allowance.Limit), nil
}
