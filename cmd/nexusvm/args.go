package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/colorfulnotion/nexusvm/blockchain"
	"github.com/colorfulnotion/nexusvm/chainspecs"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func decodeScript(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	script, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return script, nil
}

func encodeScript(script []byte) string {
	return hexutil.Encode(script)
}

// parseArg maps a command line word to a script argument:
//
//	@alice   address of the key derived from the passphrase
//	0x...    bytes (a 33 byte value is an address)
//	123      number
//	true     bool
//	other    string
func parseArg(word string) (interface{}, error) {
	switch {
	case strings.HasPrefix(word, "@"):
		addr, _, err := blockchain.ResolveAccount(chainspecs.Account{Phrase: word[1:]})
		return addr, err
	case strings.HasPrefix(word, "0x"):
		b, err := hexutil.Decode(word)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", word, err)
		}
		return b, nil
	case word == "true" || word == "false":
		return word == "true", nil
	}
	if n, ok := new(big.Int).SetString(word, 10); ok {
		return n, nil
	}
	return word, nil
}

func parseArgs(words []string) ([]interface{}, error) {
	args := make([]interface{}, 0, len(words))
	for _, w := range words {
		arg, err := parseArg(w)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

// buildCall assembles a call to a native or deployed contract method.
func buildCall(contract, method string, words []string) ([]byte, error) {
	args, err := parseArgs(words)
	if err != nil {
		return nil, err
	}
	return vm.NewScriptBuilder().CallContract(contract, method, args...).ToScript()
}

// buildInterop assembles a direct interop call such as Runtime.Log or token.GetBalance.
func buildInterop(method string, words []string) ([]byte, error) {
	args, err := parseArgs(words)
	if err != nil {
		return nil, err
	}
	return vm.NewScriptBuilder().CallInterop(method, args...).ToScript()
}
