package chainspecs

import (
	"encoding/json"
	"fmt"
	"os"

	"embed"
)

//go:embed *.json
var configFS embed.FS

var networkFile = map[string]string{
	"dev": "dev-spec.json",
}

// ReadSpec loads an embedded spec by id, or a JSON file when id is not a known network.
func ReadSpec(id string) (spec *NexusSpec, err error) {
	var data []byte
	path, ok := networkFile[id]
	if ok {
		data, err = configFS.ReadFile(path)
	} else {
		data, err = os.ReadFile(id)
	}
	if err != nil {
		return nil, err
	}
	return ParseSpec(data)
}

func ParseSpec(data []byte) (*NexusSpec, error) {
	var spec NexusSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

type NexusSpec struct {
	Name        string      `json:"name"`
	FuelToken   string      `json:"fuel_token"`
	StableToken string      `json:"stable_token"`
	Tokens      []TokenSpec `json:"tokens"`
	Chains      []ChainSpec `json:"chains"`
	Genesis     GenesisSpec `json:"genesis"`
}

type TokenSpec struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	// MaxSupply is a decimal string in base units; "0" or empty means uncapped.
	MaxSupply string   `json:"max_supply"`
	Flags     []string `json:"flags"`
}

type ChainSpec struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// Account names a key either by hex address or by a dev passphrase.
type Account struct {
	Address string `json:"address,omitempty"`
	Phrase  string `json:"phrase,omitempty"`
}

type Allocation struct {
	Account
	Symbol string `json:"symbol"`
	// Amount is a decimal string in base units.
	Amount string `json:"amount"`
}

type GenesisSpec struct {
	Owner       Account      `json:"owner"`
	Timestamp   uint32       `json:"timestamp"`
	Allocations []Allocation `json:"allocations"`
}

func (s *NexusSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("spec: missing name")
	}
	tokens := make(map[string]bool)
	for _, t := range s.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("spec: token without symbol")
		}
		if tokens[t.Symbol] {
			return fmt.Errorf("spec: duplicate token %s", t.Symbol)
		}
		tokens[t.Symbol] = true
	}
	if !tokens[s.FuelToken] {
		return fmt.Errorf("spec: fuel token %q not declared", s.FuelToken)
	}
	if s.StableToken != "" && !tokens[s.StableToken] {
		return fmt.Errorf("spec: stable token %q not declared", s.StableToken)
	}

	chains := make(map[string]bool)
	roots := 0
	for _, c := range s.Chains {
		if chains[c.Name] {
			return fmt.Errorf("spec: duplicate chain %s", c.Name)
		}
		if c.Parent == "" {
			roots++
		} else if !chains[c.Parent] {
			return fmt.Errorf("spec: chain %s declared before its parent %s", c.Name, c.Parent)
		}
		chains[c.Name] = true
	}
	if roots != 1 {
		return fmt.Errorf("spec: need exactly one root chain, have %d", roots)
	}

	if s.Genesis.Owner.Address == "" && s.Genesis.Owner.Phrase == "" {
		return fmt.Errorf("spec: genesis owner missing")
	}
	for _, a := range s.Genesis.Allocations {
		if !tokens[a.Symbol] {
			return fmt.Errorf("spec: allocation of undeclared token %s", a.Symbol)
		}
	}
	return nil
}

// DevConfig lists the dev accounts GenSpec funds.
type DevConfig struct {
	Name     string   `json:"name"`
	Owner    string   `json:"owner_phrase"`
	Accounts []string `json:"account_phrases"`
	// Fuel is the per-account fuel grant in base units.
	Fuel string `json:"fuel"`
}

// GenSpec builds a single-chain spec with the default fuel and stable tokens, funding every account.
func GenSpec(dev DevConfig) *NexusSpec {
	spec := &NexusSpec{
		Name:        dev.Name,
		FuelToken:   "SOUL",
		StableToken: "ALMA",
		Tokens: []TokenSpec{
			{Symbol: "SOUL", Name: "Phantasma Stake", Decimals: 8, MaxSupply: "9100000000000000", Flags: []string{"Fungible", "Transferable", "Finite", "Divisible", "Fuel", "Stakable"}},
			{Symbol: "ALMA", Name: "Stable Coin", Decimals: 8, MaxSupply: "0", Flags: []string{"Fungible", "Transferable", "Divisible", "Stable", "External"}},
		},
		Chains:  []ChainSpec{{Name: "main"}},
		Genesis: GenesisSpec{Owner: Account{Phrase: dev.Owner}},
	}
	for _, phrase := range dev.Accounts {
		spec.Genesis.Allocations = append(spec.Genesis.Allocations, Allocation{
			Account: Account{Phrase: phrase},
			Symbol:  "SOUL",
			Amount:  dev.Fuel,
		})
	}
	return spec
}
