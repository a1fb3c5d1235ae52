package trainer

import (
	"fmt"
	"time"
)

const (
	DefaultTimesteps     = 100000
	DefaultShutdownGrace = 10 * time.Second
)

// Config controls one training or evaluation run.
type Config struct {
	Timesteps int  `yaml:"timesteps"`
	Headless  bool `yaml:"headless"`

	InitialTimestep  int           `yaml:"initial_timestep"`
	ProgressInterval int           `yaml:"progress_interval"` // 0 disables progress logs
	ShutdownGrace    time.Duration `yaml:"shutdown_grace"`    // bound on joining workers
}

func DefaultConfig() Config {
	return Config{
		Timesteps:     DefaultTimesteps,
		Headless:      false,
		ShutdownGrace: DefaultShutdownGrace,
	}
}

// Validate fills unset fields with defaults and rejects impossible values. A
// zero Timesteps means the default, not an empty run.
func (c *Config) Validate() error {
	if c.Timesteps == 0 {
		c.Timesteps = DefaultTimesteps
	}
	if c.Timesteps < 0 {
		return fmt.Errorf("timesteps must not be negative, got %d", c.Timesteps)
	}
	if c.InitialTimestep < 0 || c.InitialTimestep > c.Timesteps {
		return fmt.Errorf("initial timestep %d outside [0, %d]", c.InitialTimestep, c.Timesteps)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval must not be negative, got %d", c.ProgressInterval)
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return nil
}
