package dqn

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, []int{128, 128}, c.HiddenLayers)
	require.Equal(t, 0.99, c.Gamma)
	require.Equal(t, 128, c.BatchSize)
	require.Equal(t, 10000, c.MemoryCapacity)
	require.Equal(t, 0.005, c.Tau)
	require.Equal(t, 1e-4, c.Optimizer.LR)
	require.True(t, c.Optimizer.AMSGrad)
	require.Equal(t, 0.99995, c.Epsilon.Decay)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"gamma":         func(c *Config) { c.Gamma = 1.5 },
		"batch":         func(c *Config) { c.BatchSize = 0 },
		"capacity":      func(c *Config) { c.MemoryCapacity = 10 },
		"min replay":    func(c *Config) { c.MinReplaySize = 20000 },
		"tau":           func(c *Config) { c.Tau = 0 },
		"interval":      func(c *Config) { c.TargetUpdateInterval = 0 },
		"hidden":        func(c *Config) { c.HiddenLayers = []int{0} },
		"lr":            func(c *Config) { c.Optimizer.LR = 0 },
		"beta":          func(c *Config) { c.Optimizer.Beta2 = 1 },
		"exploration":   func(c *Config) { c.Exploration = "ucb" },
		"epsilon decay": func(c *Config) { c.Epsilon.Decay = 1.5 },
		"epsilon min":   func(c *Config) { c.Epsilon.Min = 2 },
		"temperature": func(c *Config) {
			c.Exploration = ExplorationBoltzmann
			c.Temperature.Min = 0
		},
	}
	for name, mutate := range cases {
		c := DefaultConfig()
		mutate(c)
		require.ErrorIs(t, c.Validate(), ErrInvalidConfig, name)
	}
}

func TestReadConfigOverridesDefaults(t *testing.T) {
	c, err := ReadConfig(strings.NewReader("batch_size: 32\nmin_replay_size: 500\nexploration: boltzmann\noptimizer:\n  lr: 0.001\n"))
	require.NoError(t, err)
	require.Equal(t, 32, c.BatchSize)
	require.Equal(t, 500, c.MinReplaySize)
	require.Equal(t, ExplorationBoltzmann, c.Exploration)
	require.Equal(t, 0.001, c.Optimizer.LR)
	// untouched fields keep their defaults
	require.Equal(t, 0.999, c.Optimizer.Beta2)
	require.Equal(t, 10000, c.MemoryCapacity)
	require.Equal(t, "temperature", c.NewExplorer().Name())

	c, err = ReadConfig(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), c)
}

func TestReadConfigErrors(t *testing.T) {
	_, err := ReadConfig(strings.NewReader("unknown_field: 1\n"))
	require.Error(t, err)

	_, err = ReadConfig(strings.NewReader("gamma: 2\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWriteAndLoadConfig(t *testing.T) {
	c := DefaultConfig()
	c.HiddenLayers = []int{64}
	c.Seed = 7

	var buf bytes.Buffer
	require.NoError(t, c.WriteConfig(&buf))

	file := filepath.Join(t.TempDir(), "dqn.yaml")
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0644))
	loaded, err := LoadConfig(file)
	require.NoError(t, err)
	require.Equal(t, c, loaded)
}
