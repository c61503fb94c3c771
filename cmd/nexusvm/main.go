package main

import (
	"fmt"
	"os"

	"github.com/colorfulnotion/nexusvm/blockchain"
	"github.com/colorfulnotion/nexusvm/chainspecs"
	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/ed25519"
	log "github.com/colorfulnotion/nexusvm/log"
	"github.com/colorfulnotion/nexusvm/storage"
	"github.com/colorfulnotion/nexusvm/vm"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type options struct {
	spec     string
	chain    string
	db       string
	readOnly bool
	logLevel string
	logJSON  bool
	debug    string
	maxGas   uint64
	signers  []string
	dump     bool
}

// session is a nexus opened from a spec, with the chain commands run against.
type session struct {
	opts  *options
	nexus *blockchain.Nexus
	chain *blockchain.Chain
	store *storage.PersistenceStore
}

func openSession(opts *options) (*session, error) {
	if err := log.InitLogger(opts.logLevel, opts.logJSON); err != nil {
		return nil, err
	}
	log.EnableModules(opts.debug)

	spec, err := chainspecs.ReadSpec(opts.spec)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", opts.spec, err)
	}
	store, err := storage.NewPersistenceStore(opts.db)
	if err != nil {
		return nil, err
	}
	nexus, err := blockchain.NewNexusFromSpec(spec, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	chain := nexus.FindChainByName(opts.chain)
	if chain == nil {
		store.Close()
		return nil, fmt.Errorf("unknown chain %q", opts.chain)
	}
	if opts.maxGas > 0 {
		chain.MaxGas = opts.maxGas
	}
	log.Debug(log.CLIMonitoring, "session opened", "nexus", nexus.Name, "chain", chain.Name, "db", opts.db)
	return &session{opts: opts, nexus: nexus, chain: chain, store: store}, nil
}

func (s *session) Close() {
	s.store.Close()
}

func (s *session) signerKeys() ([]ed25519.PrivateKey, error) {
	keys := make([]ed25519.PrivateKey, 0, len(s.opts.signers))
	for _, phrase := range s.opts.signers {
		_, key, err := blockchain.ResolveAccount(chainspecs.Account{Phrase: phrase})
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// runResult summarises one execution for printing and for the JS console.
type runResult struct {
	TxHash  string
	Block   uint64
	State   string
	UsedGas uint64
	PaidGas uint64
	MaxGas  uint64
	Fault   string
	Dump    string
	Events  []string
	Stack   []string
}

// runScript executes script either as a read-only query or as a signed transaction in a new block.
func (s *session) runScript(script []byte) (*runResult, error) {
	if s.opts.readOnly {
		rt := blockchain.NewRuntime(script, s.chain, nil, nil, storage.NewChangeSet(s.nexus.Store()), true)
		state := rt.Execute()
		return s.result(rt, state), nil
	}

	keys, err := s.signerKeys()
	if err != nil {
		return nil, err
	}
	tx := blockchain.NewTransaction(s.nexus.Name, s.chain.Name, script, 0)
	for _, key := range keys {
		tx.Sign(key)
	}

	block := s.chain.CreateBlock(common.ComputeCurrentTimestamp())
	rt, state, err := s.chain.ExecuteTransaction(block, tx)
	if err != nil {
		return nil, err
	}
	if err := s.chain.AddBlock(block); err != nil {
		return nil, err
	}
	res := s.result(rt, state)
	res.TxHash = tx.Hash().Hex()
	res.Block = block.Height
	return res, nil
}

func (s *session) result(rt *blockchain.Runtime, state vm.ExecutionState) *runResult {
	res := &runResult{
		State:   state.String(),
		UsedGas: rt.UsedGas,
		PaidGas: rt.PaidGas,
		MaxGas:  rt.MaxGas,
	}
	if state == vm.Fault {
		res.Fault = fmt.Sprint(rt.FaultReason())
		if s.opts.dump {
			res.Dump = rt.Snapshot("fault").String()
		}
	}
	for _, e := range rt.Events() {
		res.Events = append(res.Events, e.String())
	}
	for _, obj := range rt.Stack.Items() {
		res.Stack = append(res.Stack, obj.String())
	}
	return res
}

func (r *runResult) print() {
	if r.TxHash != "" {
		fmt.Printf("tx %s in block %d\n", r.TxHash, r.Block)
	}
	fmt.Printf("state: %s  gas used: %d  paid: %d  max: %d\n", common.Colorize(stateColor(r.State), r.State), r.UsedGas, r.PaidGas, r.MaxGas)
	if r.Fault != "" {
		fmt.Printf("fault: %s\n", common.Colorize(common.ColorRed, r.Fault))
	}
	if r.Dump != "" {
		fmt.Println(r.Dump)
	}
	for _, e := range r.Events {
		fmt.Printf("event: %s\n", e)
	}
	for i, obj := range r.Stack {
		fmt.Printf("stack[%d]: %s\n", i, obj)
	}
}

func commitHash() string {
	if Commit != "none" {
		return Commit
	}
	return common.GetCommitHash()
}

func stateColor(state string) string {
	switch state {
	case "HALT":
		return common.ColorGreen
	case "FAULT":
		return common.ColorRed
	case "BREAK":
		return common.ColorYellow
	}
	return ""
}

// execute runs script and prints the outcome.
func (s *session) execute(script []byte) error {
	res, err := s.runScript(script)
	if err != nil {
		return err
	}
	res.print()
	return nil
}

func (s *session) info() string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s (genesis %s)", s.nexus.Name, s.nexus.GenesisHash.String_short()))
	tokens := tree.AddBranch("tokens")
	for _, symbol := range s.nexus.Tokens() {
		token, err := s.nexus.GetTokenInfo(symbol)
		if err != nil {
			continue
		}
		supply, err := s.nexus.GetTokenSupply(symbol)
		if err != nil {
			continue
		}
		branch := tokens.AddBranch(token.String())
		branch.AddMetaNode("flags", token.Flags.String())
		branch.AddMetaNode("supply", supply.Dec())
		if token.IsCapped() {
			branch.AddMetaNode("max", token.MaxSupply.Dec())
		}
	}
	chains := tree.AddBranch("chains")
	for _, name := range s.nexus.Chains() {
		chain := s.nexus.FindChainByName(name)
		branch := chains.AddBranch(name)
		if !chain.IsRoot() {
			branch.AddMetaNode("parent", chain.ParentName)
		}
		branch.AddMetaNode("address", chain.Address.Hex())
		branch.AddMetaNode("height", chain.BlockHeight())
		for _, name := range chain.Contracts() {
			native, ok := chain.FindContract(name).(blockchain.NativeContract)
			if !ok {
				branch.AddNode(name)
				continue
			}
			contract := branch.AddBranch(name)
			for _, method := range blockchain.MethodNames(native) {
				contract.AddNode(method)
			}
		}
	}
	return tree.String()
}

func main() {
	opts := &options{}
	var rootCmd = &cobra.Command{
		Use:     "nexusvm",
		Short:   "Run scripts against a simulated nexus",
		Version: fmt.Sprintf("%s (%s, %s)", Version, commitHash(), BuildTime),
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&opts.spec, "spec", "dev", "Chain spec: a bundled network id or a JSON file")
	rootCmd.PersistentFlags().StringVar(&opts.chain, "chain", blockchain.RootChainName, "Chain to run on")
	rootCmd.PersistentFlags().StringVar(&opts.db, "db", "", "LevelDB directory (empty keeps state in memory)")
	rootCmd.PersistentFlags().BoolVar(&opts.readOnly, "readonly", false, "Run as a read-only query")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&opts.debug, "debug", "", "Log modules to enable (vm_mod,rt_mod,storage_mod,chain_mod,cli_mod or all)")
	rootCmd.PersistentFlags().Uint64Var(&opts.maxGas, "max-gas", 0, "Initial gas ceiling of a run (0 keeps the chain default)")
	rootCmd.PersistentFlags().StringSliceVar(&opts.signers, "signer", nil, "Passphrases of the keys signing the transaction")
	rootCmd.PersistentFlags().BoolVar(&opts.dump, "dump", false, "Print the VM state tree on faults")

	var runCmd = &cobra.Command{
		Use:   "run <hex-script>",
		Short: "Execute a hex encoded script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := decodeScript(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.execute(script)
		},
	}

	var callCmd = &cobra.Command{
		Use:   "call <contract> <method> [args...]",
		Short: "Build and execute a contract call; args are numbers, 0x bytes, @phrase accounts or strings",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := buildCall(args[0], args[1], args[2:])
			if err != nil {
				return err
			}
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Printf("script: %s\n", encodeScript(script))
			return s.execute(script)
		},
	}

	var infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Show tokens and chains of the chain spec",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Print(s.info())
			return nil
		},
	}

	var replCmd = &cobra.Command{
		Use:   "repl",
		Short: "Interactive session over one nexus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.repl()
		},
	}

	var consoleCmd = &cobra.Command{
		Use:   "console",
		Short: "JavaScript console bound to the nexus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.console()
		},
	}

	rootCmd.AddCommand(runCmd, callCmd, infoCmd, replCmd, consoleCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
