// Package config loads run configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RunConfig struct {
	Name        string        `yaml:"name"`
	Mode        string        `yaml:"mode"` // train or eval
	Trainer     TrainerConfig `yaml:"trainer"`
	Agents      []AgentConfig `yaml:"agents"`
	Environment EnvConfig     `yaml:"environment"`
	Storage     StorageConfig `yaml:"storage"`
	Logging     LogConfig     `yaml:"logging"`
}

type TrainerConfig struct {
	Timesteps        int           `yaml:"timesteps"`
	Headless         bool          `yaml:"headless"`
	InitialTimestep  int           `yaml:"initial_timestep"`
	ProgressInterval int           `yaml:"progress_interval"`
	ShutdownGrace    time.Duration `yaml:"shutdown_grace"`
}

type LogConfig struct {
	Path          string `yaml:"path"`
	WriteInterval int    `yaml:"write_interval"` // timesteps between tracking writes
}

// AgentConfig describes Count agents of one kind. Envs is the number of
// environment instances each of them drives; 0 means an even share.
type AgentConfig struct {
	Kind     string         `yaml:"kind"` // random, linear or llm
	Count    int            `yaml:"count"`
	Envs     int            `yaml:"envs"`
	Model    string         `yaml:"model"`
	Provider string         `yaml:"provider"` // openai or gemini
	Seed     uint64         `yaml:"seed"`
	Config   map[string]any `yaml:"config"`
}

type EnvConfig struct {
	Type     string `yaml:"type"`
	NumEnvs  int    `yaml:"num_envs"`
	MaxSteps int    `yaml:"max_steps"`
	Seed     uint64 `yaml:"seed"`
	Device   string `yaml:"device"` // host or accelerator
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // memory or sqlite
	Path    string `yaml:"path"`
}

// Default mirrors the trainer defaults: 100000 timesteps with rendering on.
func Default() *RunConfig {
	return &RunConfig{
		Name: "pointmass",
		Mode: "train",
		Trainer: TrainerConfig{
			Timesteps:        100000,
			Headless:         false,
			ProgressInterval: 1000,
			ShutdownGrace:    10 * time.Second,
		},
		Agents: []AgentConfig{
			{Kind: "linear", Count: 1},
		},
		Environment: EnvConfig{
			Type:     "pointmass",
			NumEnvs:  16,
			MaxSteps: 200,
			Seed:     1,
			Device:   "host",
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Logging: LogConfig{
			WriteInterval: 1000,
		},
	}
}

// LoadConfig reads path over the defaults: keys missing from the file keep
// their default value.
func LoadConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *RunConfig) Validate() error {
	var errs []error
	if c.Mode != "train" && c.Mode != "eval" {
		errs = append(errs, fmt.Errorf("mode must be train or eval, got %q", c.Mode))
	}
	if c.Trainer.Timesteps < 0 {
		errs = append(errs, fmt.Errorf("trainer.timesteps must not be negative"))
	}
	if c.Environment.NumEnvs < 1 {
		errs = append(errs, fmt.Errorf("environment.num_envs must be positive"))
	}
	if c.Environment.Type != "pointmass" {
		errs = append(errs, fmt.Errorf("unknown environment type %q", c.Environment.Type))
	}
	if c.Environment.Device != "host" && c.Environment.Device != "accelerator" {
		errs = append(errs, fmt.Errorf("environment.device must be host or accelerator, got %q", c.Environment.Device))
	}
	if len(c.Agents) == 0 {
		errs = append(errs, errors.New("at least one agent is required"))
	}
	for i, a := range c.Agents {
		if a.Count < 1 {
			errs = append(errs, fmt.Errorf("agents[%d].count must be positive", i))
		}
		if a.Envs < 0 {
			errs = append(errs, fmt.Errorf("agents[%d].envs must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// AgentCount is the total number of agents over all entries.
func (c *RunConfig) AgentCount() int {
	n := 0
	for _, a := range c.Agents {
		n += a.Count
	}
	return n
}

// EnvCounts returns the environment count of every agent in order, or nil
// when no entry sets one and the batch is split evenly.
func (c *RunConfig) EnvCounts() []int {
	explicit := false
	for _, a := range c.Agents {
		explicit = explicit || a.Envs > 0
	}
	if !explicit {
		return nil
	}
	counts := make([]int, 0, c.AgentCount())
	for _, a := range c.Agents {
		for i := 0; i < a.Count; i++ {
			counts = append(counts, a.Envs)
		}
	}
	return counts
}
