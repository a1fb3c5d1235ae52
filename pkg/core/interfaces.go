package core

import (
	"context"

	"github.com/boristopalov/lockstep/pkg/tensor"
)

// Agent is a policy driving one contiguous slice of a batched environment.
// After initialization an Agent is owned by exactly one worker; nothing else
// calls it concurrently.
type Agent interface {
	// Init prepares the agent before the first timestep
	Init(ctx context.Context) error
	// Act returns one action row per state row
	Act(ctx context.Context, states *tensor.Tensor, timestep, timesteps int) (*tensor.Tensor, error)
	// PreInteraction runs before actions are computed (train mode only)
	PreInteraction(ctx context.Context, timestep, timesteps int) error
	// RecordTransition stores a transition, possibly feeding a learning update
	RecordTransition(ctx context.Context, transition Transition, timestep, timesteps int) error
	// PostInteraction runs after the transition was recorded, possibly learning
	PostInteraction(ctx context.Context, timestep, timesteps int) error

	// RecordTransitionWithoutLearning records a transition for bookkeeping
	// only. Used in evaluation mode.
	RecordTransitionWithoutLearning(ctx context.Context, transition Transition, timestep, timesteps int) error
	// PostInteractionWithoutLearning runs the bookkeeping part of the
	// post-interaction step only. Used in evaluation mode.
	PostInteractionWithoutLearning(ctx context.Context, timestep, timesteps int) error
}

// Environment is a batched simulation. All instances advance together.
type Environment interface {
	// NumEnvs returns the batch size
	NumEnvs() int
	// Reset resets every instance and returns the initial states
	Reset(ctx context.Context) (*tensor.Tensor, error)
	// Step advances every instance by one timestep, given one action row per instance
	Step(ctx context.Context, actions *tensor.Tensor) (StepResult, error)
	// Render draws the current scene
	Render() error
	// Close releases the environment
	Close() error
}

// Experiment coordinates the running of experiments
type Experiment interface {
	// Run executes the experiment according to configuration
	Run(ctx context.Context) error
	// Stop gracefully stops the experiment
	Stop() error
	// GetStatus returns current experiment status
	GetStatus() ExperimentStatus
}
