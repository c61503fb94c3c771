package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	log "github.com/colorfulnotion/nexusvm/log"
)

const replHelp = `commands:
  run <hex>                          execute a script
  call <contract> <method> [args]    call a contract method
  interop <method> [args]            call an interop such as Runtime.Log
  balance <@phrase|0xaddr> <symbol>  committed balance on the current chain
  chain <name>                       switch chain
  signer <phrase>...                 set transaction signers (none clears)
  readonly on|off                    toggle query mode
  info                               tokens and chains
  exit`

func (s *session) repl() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), "nexusvm_history.txt"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("start readline: %w", err)
	}
	defer rl.Close()

	fmt.Println(replHelp)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := s.dispatch(fields[0], fields[1:]); err != nil {
			fmt.Printf("error: %v\n", err)
			log.Debug(log.CLIMonitoring, "repl command failed", "cmd", fields[0], "err", err)
		}
		rl.SetPrompt(s.prompt())
	}
}

func (s *session) prompt() string {
	mode := "tx"
	if s.opts.readOnly {
		mode = "ro"
	}
	return fmt.Sprintf("%s/%s[%s]> ", s.nexus.Name, s.chain.Name, mode)
}

func (s *session) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Println(replHelp)
	case "run":
		if len(args) != 1 {
			return fmt.Errorf("usage: run <hex>")
		}
		script, err := decodeScript(args[0])
		if err != nil {
			return err
		}
		return s.execute(script)
	case "call":
		if len(args) < 2 {
			return fmt.Errorf("usage: call <contract> <method> [args]")
		}
		script, err := buildCall(args[0], args[1], args[2:])
		if err != nil {
			return err
		}
		return s.execute(script)
	case "interop":
		if len(args) < 1 {
			return fmt.Errorf("usage: interop <method> [args]")
		}
		script, err := buildInterop(args[0], args[1:])
		if err != nil {
			return err
		}
		return s.execute(script)
	case "balance":
		if len(args) != 2 {
			return fmt.Errorf("usage: balance <@phrase|0xaddr> <symbol>")
		}
		amount, err := s.balance(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", amount, args[1])
	case "chain":
		if len(args) != 1 {
			return fmt.Errorf("usage: chain <name>")
		}
		chain := s.nexus.FindChainByName(args[0])
		if chain == nil {
			return fmt.Errorf("unknown chain %q", args[0])
		}
		if s.opts.maxGas > 0 {
			chain.MaxGas = s.opts.maxGas
		}
		s.chain = chain
	case "signer":
		s.opts.signers = args
	case "readonly":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("usage: readonly on|off")
		}
		s.opts.readOnly = args[0] == "on"
	case "info":
		fmt.Print(s.info())
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}
