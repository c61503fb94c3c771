package chainspecs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDevSpec(t *testing.T) {
	spec, err := ReadSpec("dev")
	require.NoError(t, err)
	assert.Equal(t, "simnet", spec.Name)
	assert.Equal(t, "SOUL", spec.FuelToken)
	assert.Len(t, spec.Chains, 3)
	assert.Equal(t, "genesis", spec.Genesis.Owner.Phrase)
}

func TestReadSpecFromFile(t *testing.T) {
	spec := GenSpec(DevConfig{Name: "local", Owner: "owner", Accounts: []string{"a", "b"}, Fuel: "1000"})
	data, err := json.MarshalIndent(spec, "", "  ")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "local.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := ReadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, spec, loaded)
	assert.Len(t, loaded.Genesis.Allocations, 2)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(s *NexusSpec){
		"missing fuel token": func(s *NexusSpec) { s.FuelToken = "NOPE" },
		"two roots":          func(s *NexusSpec) { s.Chains = append(s.Chains, ChainSpec{Name: "other"}) },
		"orphan chain":       func(s *NexusSpec) { s.Chains = append(s.Chains, ChainSpec{Name: "x", Parent: "y"}) },
		"no owner":           func(s *NexusSpec) { s.Genesis.Owner = Account{} },
		"unknown allocation": func(s *NexusSpec) {
			s.Genesis.Allocations = append(s.Genesis.Allocations, Allocation{Symbol: "ZZZ"})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := GenSpec(DevConfig{Name: "x", Owner: "o"})
			require.NoError(t, spec.Validate())
			mutate(spec)
			assert.Error(t, spec.Validate())
		})
	}

	_, err := ReadSpec("/definitely/not/here.json")
	assert.Error(t, err)
}
