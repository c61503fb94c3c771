package blockchain

import (
	"fmt"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vm"
)

// runtimeInterops are available to every script on every chain, next to the native contract methods.
var runtimeInterops = map[string]NativeMethod{
	"Runtime.Log":       {Args: 1, Handler: interopLog},
	"Runtime.Time":      {Args: 0, Handler: interopTime},
	"Runtime.Random":    {Args: 0, Handler: interopRandom},
	"Runtime.IsWitness": {Args: 1, Handler: interopIsWitness},
	"Runtime.GasLeft":   {Args: 0, Handler: interopGasLeft},
	"Data.Get":          {Args: 1, Handler: interopDataGet},
	"Data.Put":          {Args: 2, Handler: interopDataPut},
	"Data.Delete":       {Args: 1, Handler: interopDataDelete},
	"Nexus.TokenSupply": {Args: 1, Handler: interopTokenSupply},
	"Nexus.GetBalance":  {Args: 2, Handler: interopGetBalance},
}

func registerRuntimeInterops(rt *Runtime) {
	for name, m := range runtimeInterops {
		label, method := name, m
		rt.RegisterMethod(label, func(rt *Runtime) vm.ExecutionState {
			return callNative(rt, label, method, vm.Running)
		})
	}
}

func interopLog(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	msg, err := ArgString(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	rt.Notify(EventLog, rt.dataScope(), LogEventData{Message: msg})
	return vm.VMObject{}, nil
}

func interopTime(rt *Runtime, _ []vm.VMObject) (vm.VMObject, error) {
	return vm.NewTimestamp(rt.Time()), nil
}

func interopRandom(rt *Runtime, _ []vm.VMObject) (vm.VMObject, error) {
	return uint64Object(rt.NextRandom()), nil
}

func interopIsWitness(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	addr, err := ArgAddress(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	return vm.NewBool(rt.IsWitness(addr)), nil
}

func interopGasLeft(rt *Runtime, _ []vm.VMObject) (vm.VMObject, error) {
	if rt.UsedGas >= rt.MaxGas {
		return uint64Object(0), nil
	}
	return uint64Object(rt.MaxGas - rt.UsedGas), nil
}

// dataScope is the address that owns Data.* storage: the running deployed contract, or the entry script.
func (rt *Runtime) dataScope() common.Address {
	current := rt.CurrentContext()
	if current != nil && current != rt.EntryContext() {
		if contract := rt.Chain.FindContract(current.Name()); contract != nil {
			return contract.Address()
		}
	}
	return rt.EntryAddress
}

func (rt *Runtime) dataMap() *storage.StorageMap {
	return storage.NewStorageMap(rt.ChangeSet, storage.ScopedKey(common.ConcatBytes(rt.Chain.Address.Bytes(), rt.dataScope().Bytes()), "data"))
}

func interopDataGet(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	key, err := ArgBytes(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	value, _, err := rt.dataMap().Get(key)
	if err != nil {
		return vm.VMObject{}, err
	}
	if value == nil {
		value = []byte{}
	}
	return vm.NewBytes(value), nil
}

func interopDataPut(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	key, err := ArgBytes(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	value, err := ArgBytes(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}
	if len(key) == 0 {
		return vm.VMObject{}, fmt.Errorf("empty data key")
	}
	_, err = rt.dataMap().Set(key, value)
	return vm.VMObject{}, err
}

func interopDataDelete(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	key, err := ArgBytes(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	_, err = rt.dataMap().Remove(key)
	return vm.VMObject{}, err
}

func interopTokenSupply(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	symbol, err := ArgString(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	supply, err := rt.Nexus().TokenSupply(rt.ChangeSet, symbol)
	if err != nil {
		return vm.VMObject{}, err
	}
	return amountObject(supply), nil
}

func interopGetBalance(rt *Runtime, args []vm.VMObject) (vm.VMObject, error) {
	symbol, err := ArgString(args, 0)
	if err != nil {
		return vm.VMObject{}, err
	}
	addr, err := ArgAddress(args, 1)
	if err != nil {
		return vm.VMObject{}, err
	}
	if !rt.Nexus().TokenExists(symbol) {
		return vm.VMObject{}, fmt.Errorf("unknown token %s", symbol)
	}
	balance, err := rt.Chain.GetTokenBalances(rt.ChangeSet, symbol).Get(addr)
	if err != nil {
		return vm.VMObject{}, err
	}
	return amountObject(balance), nil
}
