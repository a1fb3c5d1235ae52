// Package trainer drives a batched environment with one or more agents in
// lock-step. With several agents every agent runs on its own worker goroutine
// and owns a contiguous scope of the batch; each phase of a timestep ends at a
// barrier shared by the coordinator and all workers. A single agent is driven
// sequentially on the calling goroutine.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/messaging"
	"github.com/boristopalov/lockstep/pkg/scope"
	"github.com/boristopalov/lockstep/pkg/tensor"
	"github.com/boristopalov/lockstep/pkg/worker"
)

var (
	ErrAlreadyRan      = errors.New("trainer already ran")
	ErrShutdownTimeout = errors.New("workers did not exit in time")
)

type Trainer struct {
	env    core.Environment
	agents []core.Agent
	scopes scope.Table
	cfg    Config

	logger  *log.Logger
	observe worker.Observer
	arena   *tensor.Arena

	ran atomic.Bool
}

type Option func(*Trainer)

func WithLogger(logger *log.Logger) Option {
	return func(t *Trainer) {
		t.logger = logger
	}
}

// WithObserver installs a hook that sees every phase command of every worker.
// The sequential path reports its phases through the same hook as worker 0.
func WithObserver(observe worker.Observer) Option {
	return func(t *Trainer) {
		t.observe = observe
	}
}

func WithArena(arena *tensor.Arena) Option {
	return func(t *Trainer) {
		t.arena = arena
	}
}

// New validates the agent/scope setup against the environment. Every
// configuration problem is reported here, before any worker exists. scopes may
// be nil for a single agent.
func New(env core.Environment, agents []core.Agent, scopes scope.Table, cfg Config, opts ...Option) (*Trainer, error) {
	if env == nil {
		return nil, core.NewConfigurationError("environment is required")
	}
	if len(agents) == 0 {
		return nil, core.NewConfigurationError("at least one agent is required")
	}
	for i, a := range agents {
		if a == nil {
			return nil, core.NewConfigurationError("agent %d is nil", i)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, core.NewConfigurationError("%v", err)
	}

	batch := env.NumEnvs()
	if batch < 1 {
		return nil, core.NewConfigurationError("environment reports %d instances", batch)
	}
	if len(agents) > 1 || scopes != nil {
		if len(scopes) != len(agents) {
			return nil, core.NewConfigurationError("%d agents but %d scopes", len(agents), len(scopes))
		}
		if err := scopes.Validate(batch); err != nil {
			return nil, err
		}
	}
	if scopes == nil {
		scopes = scope.Table{{Start: 0, End: batch}}
	}

	t := &Trainer{
		env:    env,
		agents: agents,
		scopes: scopes,
		cfg:    cfg,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	switch {
	case len(agents) == 1:
		t.arena = nil
	case t.arena == nil:
		t.arena = tensor.NewArena()
	}
	return t, nil
}

// Train runs the training loop, then closes the environment.
func Train(ctx context.Context, env core.Environment, agents []core.Agent, scopes scope.Table, cfg Config, opts ...Option) error {
	t, err := New(env, agents, scopes, cfg, opts...)
	if err != nil {
		return err
	}
	return t.Train(ctx)
}

// Eval runs the evaluation loop, then closes the environment.
func Eval(ctx context.Context, env core.Environment, agents []core.Agent, scopes scope.Table, cfg Config, opts ...Option) error {
	t, err := New(env, agents, scopes, cfg, opts...)
	if err != nil {
		return err
	}
	return t.Eval(ctx)
}

func (t *Trainer) Train(ctx context.Context) error { return t.run(ctx, core.ModeTrain) }

func (t *Trainer) Eval(ctx context.Context) error { return t.run(ctx, core.ModeEval) }

func (t *Trainer) Config() Config { return t.cfg }

func (t *Trainer) Scopes() scope.Table { return t.scopes }

// ArenaStats reports shared storage usage; zero for the sequential path.
func (t *Trainer) ArenaStats() tensor.ArenaStats {
	if t.arena == nil {
		return tensor.ArenaStats{}
	}
	return t.arena.Stats()
}

// driver executes the agent side of each phase, either in-process or through
// the workers.
type driver interface {
	initAgents(ctx context.Context, timesteps int) error
	preInteraction(ctx context.Context, timestep, timesteps int) error
	act(ctx context.Context, states *tensor.Tensor, timestep, timesteps int) (*tensor.Tensor, error)
	record(ctx context.Context, mode core.Mode, transition core.Transition, timestep, timesteps int) error
}

// run owns the environment for the whole call and closes it exactly once,
// whatever happened before.
func (t *Trainer) run(ctx context.Context, mode core.Mode) (err error) {
	if !t.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}
	defer func() {
		if closeErr := t.env.Close(); closeErr != nil {
			closeErr = &core.EnvironmentFailure{Op: "close", Err: closeErr}
			if err == nil {
				err = closeErr
			} else {
				t.logger.Printf("ignoring %v after %v", closeErr, err)
			}
		}
	}()

	t.logger.Printf("%s: %d agent(s), %d environments, timesteps %d..%d",
		mode, len(t.agents), t.env.NumEnvs(), t.cfg.InitialTimestep, t.cfg.Timesteps)

	if len(t.agents) == 1 {
		err = t.loop(ctx, mode, &sequential{agent: t.agents[0], observe: t.observe})
		t.logger.Printf("%s finished: %v", mode, errOrDone(err))
		return err
	}

	s, err := t.bootstrap(ctx)
	if err != nil {
		return err
	}
	err = s.shutdown(t.loop(s.ctx, mode, s))
	t.arena.Reset()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	t.logger.Printf("%s finished: %v", mode, errOrDone(err))
	return err
}

// loop runs the per-timestep phase sequence:
//
//	train: PRE_INTERACTION, ACT, step, render, RECORD_TRANSITION, POST_INTERACTION, reset/copy
//	eval:  ACT, step, render, EVAL_RECORD_AND_POST, reset/copy
func (t *Trainer) loop(ctx context.Context, mode core.Mode, d driver) error {
	if err := d.initAgents(ctx, t.cfg.Timesteps); err != nil {
		return err
	}

	initial, err := t.env.Reset(ctx)
	if err != nil {
		return &core.EnvironmentFailure{Op: "reset", Err: err}
	}
	states, statesOwned := t.promote(initial)
	defer func() {
		if statesOwned {
			t.arena.Release(states)
		}
	}()

	batch := t.env.NumEnvs()
	total := t.cfg.Timesteps
	for step := t.cfg.InitialTimestep; step < total; step++ {
		if err := ctx.Err(); err != nil {
			t.logger.Printf("stopping at timestep %d: %v", step, err)
			return err
		}

		if mode == core.ModeTrain {
			if err := d.preInteraction(ctx, step, total); err != nil {
				return err
			}
		}

		actions, err := d.act(ctx, states, step, total)
		if err != nil {
			return err
		}
		if actions.Rows() != batch {
			return fmt.Errorf("timestep %d: %w: %d action rows for %d environments", step, tensor.ErrShape, actions.Rows(), batch)
		}

		result, err := t.env.Step(ctx, actions)
		if err != nil {
			return &core.EnvironmentFailure{Op: "step", Err: err}
		}
		if err := checkStep(result, batch); err != nil {
			return &core.EnvironmentFailure{Op: "step", Err: err}
		}
		if !t.cfg.Headless {
			if err := t.env.Render(); err != nil {
				return &core.EnvironmentFailure{Op: "render", Err: err}
			}
		}

		var owned []*tensor.Tensor
		share := func(x *tensor.Tensor) *tensor.Tensor {
			shared, promoted := t.promote(x)
			if promoted {
				owned = append(owned, shared)
			}
			return shared
		}
		transition := core.Transition{
			States:     states,
			Actions:    actions,
			Rewards:    share(result.Rewards),
			NextStates: share(result.NextStates),
			Dones:      share(result.Dones),
			Infos:      result.Infos,
		}
		if err := d.record(ctx, mode, transition, step, total); err != nil {
			return err
		}

		if transition.Dones.Any() {
			next, err := t.env.Reset(ctx)
			if err != nil {
				return &core.EnvironmentFailure{Op: "reset", Err: err}
			}
			if statesOwned {
				t.arena.Release(states)
			}
			states, statesOwned = t.promote(next)
		} else if err := states.CopyFrom(transition.NextStates); err != nil {
			return &core.EnvironmentFailure{Op: "step", Err: err}
		}
		for _, x := range owned {
			t.arena.Release(x)
		}

		if n := t.cfg.ProgressInterval; n > 0 && (step+1)%n == 0 {
			t.logger.Printf("timestep %s/%s", humanize.Comma(int64(step+1)), humanize.Comma(int64(total)))
		}
	}
	return nil
}

// promote moves x into shared storage. Without an arena it is a no-op.
func (t *Trainer) promote(x *tensor.Tensor) (*tensor.Tensor, bool) {
	if t.arena == nil {
		return x, false
	}
	return t.arena.Promote(x)
}

func checkStep(r core.StepResult, batch int) error {
	for name, x := range map[string]*tensor.Tensor{
		"next states": r.NextStates,
		"rewards":     r.Rewards,
		"dones":       r.Dones,
	} {
		if x == nil {
			return fmt.Errorf("step returned no %s", name)
		}
		if x.Rows() != batch {
			return fmt.Errorf("%w: %s have %d rows for %d environments", tensor.ErrShape, name, x.Rows(), batch)
		}
	}
	return nil
}

func errOrDone(err error) any {
	if err == nil {
		return "done"
	}
	return err
}

// command builds the message for one phase, broadcast to every worker.
func command(kind messaging.CommandKind, timestep, timesteps int, payload *messaging.Payload) messaging.Message {
	return messaging.Message{
		Command: messaging.Command{Kind: kind, Timestep: timestep, Timesteps: timesteps},
		Payload: payload,
	}
}
