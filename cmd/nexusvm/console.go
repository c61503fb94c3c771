package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/colorfulnotion/nexusvm/blockchain"
	"github.com/colorfulnotion/nexusvm/chainspecs"
	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/dop251/goja"
)

// newConsoleVM binds the session to a JavaScript runtime as the nexus object:
//
//	nexus.call("token", "GetBalance", "@alice", "SOUL")
//	nexus.interop("Runtime.Log", "hello")
//	nexus.run("0x...")
//	nexus.balance("@bob", "SOUL")
//	nexus.signer("alice")
func (s *session) newConsoleVM() (*goja.Runtime, error) {
	js := goja.New()

	bindings := map[string]interface{}{
		"run": func(hex string) (*runResult, error) {
			script, err := decodeScript(hex)
			if err != nil {
				return nil, err
			}
			return s.runScript(script)
		},
		"call": func(contract, method string, args ...string) (*runResult, error) {
			script, err := buildCall(contract, method, args)
			if err != nil {
				return nil, err
			}
			return s.runScript(script)
		},
		"interop": func(method string, args ...string) (*runResult, error) {
			script, err := buildInterop(method, args)
			if err != nil {
				return nil, err
			}
			return s.runScript(script)
		},
		"balance": func(account, symbol string) (string, error) {
			return s.balance(account, symbol)
		},
		"signer": func(phrases ...string) {
			s.opts.signers = phrases
		},
		"readonly": func(on bool) {
			s.opts.readOnly = on
		},
		"info": func() string {
			return s.info()
		},
	}
	for name, fn := range bindings {
		if err := js.Set("__"+name, fn); err != nil {
			return nil, err
		}
	}
	if err := js.Set("print", func(args ...goja.Value) {
		for _, arg := range args {
			fmt.Println(arg.Export())
		}
	}); err != nil {
		return nil, err
	}

	_, err := js.RunString(`
		var nexus = {
			run: __run, call: __call, interop: __interop, balance: __balance,
			signer: __signer, readonly: __readonly, info: __info
		};
	`)
	return js, err
}

func (s *session) balance(account, symbol string) (string, error) {
	if !s.nexus.TokenExists(symbol) {
		return "", fmt.Errorf("%w: %s", vmerrors.ErrUnknownToken, symbol)
	}
	acct := chainspecs.Account{Address: account}
	if strings.HasPrefix(account, "@") {
		acct = chainspecs.Account{Phrase: account[1:]}
	}
	addr, _, err := blockchain.ResolveAccount(acct)
	if err != nil {
		return "", err
	}
	amount, err := s.nexus.GetBalance(s.chain, symbol, addr)
	if err != nil {
		return "", err
	}
	return amount.Dec(), nil
}

func (s *session) console() error {
	js, err := s.newConsoleVM()
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "js> ",
		HistoryFile: filepath.Join(os.TempDir(), "nexusvm_console_history.txt"),
	})
	if err != nil {
		return fmt.Errorf("start readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("nexus console: nexus.call(contract, method, ...args), nexus.interop(method, ...args), nexus.balance(account, symbol)")
	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		value, err := js.RunString(line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		if res, ok := value.Export().(*runResult); ok {
			res.print()
			continue
		}
		fmt.Println(value)
	}
}
