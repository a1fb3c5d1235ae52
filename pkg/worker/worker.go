// Package worker runs one agent on one scope of the batch, executing whatever
// phase the coordinator commands, in the order commands arrive.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync/atomic"

	"github.com/boristopalov/lockstep/pkg/barrier"
	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/messaging"
	"github.com/boristopalov/lockstep/pkg/scope"
	"github.com/boristopalov/lockstep/pkg/tensor"
)

var ErrProtocol = errors.New("protocol violation")

// Observer sees every command a worker receives, before it is handled.
type Observer func(worker int, cmd messaging.Command)

type Worker struct {
	index   int
	scope   scope.Scope
	end     messaging.WorkerEnd
	barrier *barrier.Barrier
	arena   *tensor.Arena
	logger  *log.Logger
	observe Observer

	agent core.Agent
	state atomic.Int32

	// cached between ACT and RECORD_TRANSITION
	states          *tensor.Tensor
	actions         *tensor.Tensor
	actionsPromoted bool
}

type Option func(*Worker)

func WithLogger(logger *log.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithObserver(observe Observer) Option {
	return func(w *Worker) {
		w.observe = observe
	}
}

// WithArena sets the arena action slices are promoted into. Without one,
// actions are handed back as returned by the agent.
func WithArena(arena *tensor.Arena) Option {
	return func(w *Worker) {
		w.arena = arena
	}
}

func New(index int, sc scope.Scope, end messaging.WorkerEnd, b *barrier.Barrier, opts ...Option) (*Worker, error) {
	if b == nil {
		return nil, fmt.Errorf("barrier is required")
	}
	if sc.Len() <= 0 {
		return nil, fmt.Errorf("worker %d: empty scope %s", index, sc)
	}
	w := &Worker{
		index:   index,
		scope:   sc,
		end:     end,
		barrier: b,
		logger:  log.New(log.Writer(), fmt.Sprintf("[worker %d] ", index), log.Flags()),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Worker) Index() int { return w.index }

func (w *Worker) Scope() scope.Scope { return w.scope }

func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// Run announces the worker on the barrier and then dispatches commands until
// TERMINATE arrives or the command channel is closed. Any fault while handling
// a command breaks the barrier, so the coordinator and sibling workers are
// released instead of waiting forever, and is returned as a
// *core.WorkerFailure.
func (w *Worker) Run(ctx context.Context) (err error) {
	phase := "startup"
	defer func() {
		if r := recover(); r != nil {
			err = &core.WorkerFailure{
				Worker: w.index,
				Phase:  phase,
				Err:    fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
			}
		}
		if err != nil {
			w.barrier.Break(err)
			w.logger.Printf("exiting after failure: %v", err)
		}
		w.release()
		w.setState(StateTerminated)
	}()

	w.logger.Printf("started with scope %s", w.scope)
	if err := w.barrier.Wait(); err != nil {
		return w.fail(phase, err)
	}

	for {
		cmd, ok := w.end.Recv()
		if !ok {
			w.logger.Println("command channel closed, exiting")
			return nil
		}
		phase = cmd.Kind.String()
		if w.observe != nil {
			w.observe(w.index, cmd)
		}

		if cmd.Kind == messaging.CommandTerminate {
			w.logger.Println("terminated")
			return nil
		}
		if err := w.handle(ctx, cmd); err != nil {
			return w.fail(phase, err)
		}
		if err := w.barrier.Wait(); err != nil {
			return w.fail(phase, err)
		}
		w.setState(StateReady)
	}
}

func (w *Worker) fail(phase string, err error) error {
	var failure *core.WorkerFailure
	if errors.As(err, &failure) {
		return err
	}
	return &core.WorkerFailure{Worker: w.index, Phase: phase, Err: err}
}

func (w *Worker) handle(ctx context.Context, cmd messaging.Command) error {
	current := w.State()
	if current == StateIdle && cmd.Kind != messaging.CommandInit {
		return fmt.Errorf("%w: %s received before init", ErrProtocol, cmd.Kind)
	}
	if current != StateIdle && cmd.Kind == messaging.CommandInit {
		return fmt.Errorf("%w: init received in state %s", ErrProtocol, current)
	}

	switch cmd.Kind {
	case messaging.CommandInit:
		return w.init(ctx)

	case messaging.CommandPreInteraction:
		w.setState(StatePreInteracting)
		return w.agent.PreInteraction(ctx, cmd.Timestep, cmd.Timesteps)

	case messaging.CommandAct:
		w.setState(StateActing)
		return w.act(ctx, cmd)

	case messaging.CommandRecordTransition:
		w.setState(StateRecording)
		transition, err := w.transition()
		if err != nil {
			return err
		}
		return w.agent.RecordTransition(ctx, transition, cmd.Timestep, cmd.Timesteps)

	case messaging.CommandPostInteraction:
		w.setState(StatePostInteracting)
		return w.agent.PostInteraction(ctx, cmd.Timestep, cmd.Timesteps)

	case messaging.CommandEvalRecordAndPost:
		w.setState(StateRecording)
		transition, err := w.transition()
		if err != nil {
			return err
		}
		if err := w.agent.RecordTransitionWithoutLearning(ctx, transition, cmd.Timestep, cmd.Timesteps); err != nil {
			return err
		}
		w.setState(StatePostInteracting)
		return w.agent.PostInteractionWithoutLearning(ctx, cmd.Timestep, cmd.Timesteps)

	default:
		return fmt.Errorf("%w: unknown command %s", ErrProtocol, cmd.Kind)
	}
}

func (w *Worker) init(ctx context.Context) error {
	w.setState(StateInitializing)
	payload := w.end.Get()
	if payload.Agent == nil {
		return fmt.Errorf("%w: init without an agent", ErrProtocol)
	}
	w.agent = payload.Agent
	if err := w.agent.Init(ctx); err != nil {
		return fmt.Errorf("init agent: %w", err)
	}
	w.logger.Printf("init agent %T with scope %s", w.agent, w.scope)
	return nil
}

func (w *Worker) act(ctx context.Context, cmd messaging.Command) error {
	payload := w.end.Get()
	if payload.States == nil {
		return fmt.Errorf("%w: act without states", ErrProtocol)
	}
	states := payload.States.SliceRows(w.scope.Start, w.scope.End)

	actions, err := w.agent.Act(ctx, states, cmd.Timestep, cmd.Timesteps)
	if err != nil {
		return fmt.Errorf("act: %w", err)
	}
	if actions == nil {
		return fmt.Errorf("act: agent returned no actions")
	}
	if actions.Rows() != w.scope.Len() {
		return fmt.Errorf("act: %w: agent returned %d action rows for %d states", tensor.ErrShape, actions.Rows(), w.scope.Len())
	}

	w.release()
	promoted := false
	if w.arena != nil {
		actions, promoted = w.arena.Promote(actions)
	}
	w.states = states
	w.actions = actions
	w.actionsPromoted = promoted

	w.end.Reply(messaging.Payload{Actions: actions})
	return nil
}

// transition receives the full-batch step results and slices them to this
// worker's scope. Infos are passed whole.
func (w *Worker) transition() (core.Transition, error) {
	payload := w.end.Get()
	if w.states == nil || w.actions == nil {
		return core.Transition{}, fmt.Errorf("%w: transition recorded before act", ErrProtocol)
	}
	if payload.Rewards == nil || payload.NextStates == nil || payload.Dones == nil {
		return core.Transition{}, fmt.Errorf("%w: incomplete transition payload", ErrProtocol)
	}
	start, end := w.scope.Start, w.scope.End
	return core.Transition{
		States:     w.states,
		Actions:    w.actions,
		Rewards:    payload.Rewards.SliceRows(start, end),
		NextStates: payload.NextStates.SliceRows(start, end),
		Dones:      payload.Dones.SliceRows(start, end),
		Infos:      payload.Infos,
	}, nil
}

// release gives the previously promoted action slice back to the arena.
func (w *Worker) release() {
	if w.actionsPromoted && w.arena != nil {
		w.arena.Release(w.actions)
	}
	w.actions = nil
	w.actionsPromoted = false
}
