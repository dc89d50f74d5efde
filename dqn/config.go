package dqn

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/zeu5/cartpole-dqn/policies"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid dqn config")

const (
	ExplorationEpsilon   = "epsilon"
	ExplorationBoltzmann = "boltzmann"
)

// OptimizerConfig holds the AdamW hyper-parameters
type OptimizerConfig struct {
	LR          float64 `yaml:"lr"`
	Beta1       float64 `yaml:"beta1"`
	Beta2       float64 `yaml:"beta2"`
	Eps         float64 `yaml:"eps"`
	WeightDecay float64 `yaml:"weight_decay"`
	AMSGrad     bool    `yaml:"amsgrad"`
}

// Config of the DQN agent
type Config struct {
	HiddenLayers []int   `yaml:"hidden_layers"`
	Gamma        float64 `yaml:"gamma"`
	BatchSize    int     `yaml:"batch_size"`

	MemoryCapacity int `yaml:"memory_capacity"`
	// optimization starts once the memory holds this many transitions
	MinReplaySize int `yaml:"min_replay_size"`

	// target network update, 1 is a hard copy
	Tau                  float64 `yaml:"tau"`
	TargetUpdateInterval int     `yaml:"target_update_interval"`

	GradClip  float64         `yaml:"grad_clip"`
	Optimizer OptimizerConfig `yaml:"optimizer"`

	Exploration string                        `yaml:"exploration"`
	Epsilon     policies.ExplorationSchedule `yaml:"epsilon"`
	Temperature policies.ExplorationSchedule `yaml:"temperature"`

	// episodes between progress log lines, 0 disables them
	LogInterval int    `yaml:"log_interval"`
	Seed        uint64 `yaml:"seed"`
}

// DefaultConfig returns the hyper-parameters used to train on cart-pole
func DefaultConfig() *Config {
	return &Config{
		HiddenLayers:         []int{128, 128},
		Gamma:                0.99,
		BatchSize:            128,
		MemoryCapacity:       10000,
		MinReplaySize:        10000,
		Tau:                  0.005,
		TargetUpdateInterval: 1,
		GradClip:             100,
		Optimizer: OptimizerConfig{
			LR:          1e-4,
			Beta1:       0.9,
			Beta2:       0.999,
			Eps:         1e-8,
			WeightDecay: 0.01,
			AMSGrad:     true,
		},
		Exploration: ExplorationEpsilon,
		Epsilon: policies.ExplorationSchedule{
			Start: 1.0,
			Decay: 0.99995,
			Min:   0.01,
		},
		Temperature: policies.ExplorationSchedule{
			Start: 1.0,
			Decay: 0.99999,
			Min:   0.01,
		},
		LogInterval: 50,
		Seed:        42,
	}
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

func validSchedule(name string, s policies.ExplorationSchedule) error {
	if s.Start < 0 || s.Min < 0 {
		return invalid("%s must not be negative", name)
	}
	if s.Min > s.Start {
		return invalid("%s min %v is above start %v", name, s.Min, s.Start)
	}
	if s.Decay <= 0 || s.Decay > 1 {
		return invalid("%s decay must be in (0, 1], got %v", name, s.Decay)
	}
	return nil
}

// Validate ensures that the Config is valid
func (c *Config) Validate() error {
	for _, h := range c.HiddenLayers {
		if h <= 0 {
			return invalid("hidden layer sizes must be positive, got %v", c.HiddenLayers)
		}
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return invalid("gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.BatchSize <= 0 {
		return invalid("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MemoryCapacity < c.BatchSize {
		return invalid("memory capacity %d is smaller than the batch size %d", c.MemoryCapacity, c.BatchSize)
	}
	if c.MinReplaySize < c.BatchSize || c.MinReplaySize > c.MemoryCapacity {
		return invalid("min replay size must be in [%d, %d], got %d", c.BatchSize, c.MemoryCapacity, c.MinReplaySize)
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return invalid("tau must be in (0, 1], got %v", c.Tau)
	}
	if c.TargetUpdateInterval < 1 {
		return invalid("target update interval must be at least 1, got %d", c.TargetUpdateInterval)
	}
	if c.GradClip <= 0 {
		return invalid("grad clip must be positive, got %v", c.GradClip)
	}
	o := c.Optimizer
	if o.LR <= 0 {
		return invalid("learning rate must be positive, got %v", o.LR)
	}
	if o.Beta1 < 0 || o.Beta1 >= 1 || o.Beta2 < 0 || o.Beta2 >= 1 {
		return invalid("betas must be in [0, 1), got %v, %v", o.Beta1, o.Beta2)
	}
	if o.Eps <= 0 {
		return invalid("eps must be positive, got %v", o.Eps)
	}
	if o.WeightDecay < 0 {
		return invalid("weight decay must not be negative, got %v", o.WeightDecay)
	}
	switch c.Exploration {
	case ExplorationEpsilon:
		if c.Epsilon.Start > 1 {
			return invalid("epsilon must be at most 1, got %v", c.Epsilon.Start)
		}
		if err := validSchedule("epsilon", c.Epsilon); err != nil {
			return err
		}
	case ExplorationBoltzmann:
		if c.Temperature.Min <= 0 {
			return invalid("temperature min must be positive, got %v", c.Temperature.Min)
		}
		if err := validSchedule("temperature", c.Temperature); err != nil {
			return err
		}
	default:
		return invalid("unknown exploration %q", c.Exploration)
	}
	if c.LogInterval < 0 {
		return invalid("log interval must not be negative, got %d", c.LogInterval)
	}
	return nil
}

// NewExplorer creates the explorer selected by the configuration
func (c *Config) NewExplorer() policies.Explorer {
	return c.newExplorer(c.Seed)
}

func (c *Config) newExplorer(seed uint64) policies.Explorer {
	if c.Exploration == ExplorationBoltzmann {
		return policies.NewBoltzmann(c.Temperature, seed)
	}
	return policies.NewEpsilonGreedy(c.Epsilon, seed)
}

// ReadConfig decodes a YAML configuration on top of the defaults, unknown fields are rejected
func ReadConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads the configuration file at path
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()
	c, err := ReadConfig(f)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// WriteConfig encodes the configuration as YAML
func (c *Config) WriteConfig(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "encode config")
	}
	return enc.Close()
}
