package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/boristopalov/lockstep/pkg/barrier"
	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/messaging"
	"github.com/boristopalov/lockstep/pkg/tensor"
	"github.com/boristopalov/lockstep/pkg/worker"
)

// session is the coordinator side of a multi-worker run.
type session struct {
	t       *Trainer
	ctx     context.Context
	broker  *messaging.Broker
	barrier *barrier.Barrier

	joined   chan struct{}
	groupErr error
}

// bootstrap opens one channel pair per worker, starts the workers and waits
// until every one of them has reached the barrier.
func (t *Trainer) bootstrap(ctx context.Context) (*session, error) {
	b, err := barrier.New(len(t.agents) + 1)
	if err != nil {
		return nil, err
	}
	group, gctx := errgroup.WithContext(ctx)
	s := &session{
		t:       t,
		ctx:     gctx,
		broker:  messaging.NewBroker(),
		barrier: b,
		joined:  make(chan struct{}),
	}

	for i, sc := range t.scopes {
		pair := messaging.NewPair(messaging.DefaultBuffer)
		if err := s.broker.Subscribe(i, pair); err != nil {
			return s.abort(group, err)
		}
		w, err := worker.New(i, sc, pair.Worker(), b,
			worker.WithLogger(log.New(t.logger.Writer(), fmt.Sprintf("%s[worker %d] ", t.logger.Prefix(), i), t.logger.Flags())),
			worker.WithObserver(t.observe),
			worker.WithArena(t.arena),
		)
		if err != nil {
			return s.abort(group, err)
		}
		group.Go(func() error { return w.Run(gctx) })
	}
	go func() {
		s.groupErr = group.Wait()
		close(s.joined)
	}()

	if err := s.sync(); err != nil {
		return nil, s.shutdown(err)
	}
	t.logger.Printf("%d workers ready", len(t.scopes))
	return s, nil
}

// abort stops the workers started so far.
func (s *session) abort(group *errgroup.Group, err error) (*session, error) {
	s.barrier.Break(err)
	s.broker.Reset()
	_ = group.Wait()
	return nil, err
}

// sync ends a phase. A broken barrier is reported with the worker failure that
// broke it.
func (s *session) sync() error {
	if err := s.barrier.Wait(); err != nil {
		if cause := s.barrier.Cause(); cause != nil {
			return cause
		}
		return err
	}
	return nil
}

func (s *session) initAgents(_ context.Context, timesteps int) error {
	for i, a := range s.t.agents {
		msg := command(messaging.CommandInit, 0, timesteps, &messaging.Payload{Agent: a})
		msg.To = []int{i}
		if err := s.broker.Publish(msg); err != nil {
			return err
		}
	}
	return s.sync()
}

func (s *session) preInteraction(_ context.Context, timestep, timesteps int) error {
	if err := s.broker.Publish(command(messaging.CommandPreInteraction, timestep, timesteps, nil)); err != nil {
		return err
	}
	return s.sync()
}

// act broadcasts the full states and stacks the action slices in worker order.
func (s *session) act(_ context.Context, states *tensor.Tensor, timestep, timesteps int) (*tensor.Tensor, error) {
	msg := command(messaging.CommandAct, timestep, timesteps, &messaging.Payload{States: states})
	if err := s.broker.Publish(msg); err != nil {
		return nil, err
	}
	if err := s.sync(); err != nil {
		return nil, err
	}
	replies := s.broker.Gather()
	parts := make([]*tensor.Tensor, len(replies))
	for i, r := range replies {
		parts[i] = r.Actions
	}
	actions, err := tensor.VStack(parts...)
	if err != nil {
		return nil, fmt.Errorf("timestep %d: gather actions: %w", timestep, err)
	}
	return actions, nil
}

// record hands the step results to the workers. States and actions are not
// resent; each worker kept its own slices from ACT.
func (s *session) record(_ context.Context, mode core.Mode, tr core.Transition, timestep, timesteps int) error {
	payload := &messaging.Payload{
		Rewards:    tr.Rewards,
		NextStates: tr.NextStates,
		Dones:      tr.Dones,
		Infos:      tr.Infos,
	}
	if mode == core.ModeEval {
		if err := s.broker.Publish(command(messaging.CommandEvalRecordAndPost, timestep, timesteps, payload)); err != nil {
			return err
		}
		return s.sync()
	}

	if err := s.broker.Publish(command(messaging.CommandRecordTransition, timestep, timesteps, payload)); err != nil {
		return err
	}
	if err := s.sync(); err != nil {
		return err
	}
	if err := s.broker.Publish(command(messaging.CommandPostInteraction, timestep, timesteps, nil)); err != nil {
		return err
	}
	return s.sync()
}

// shutdown terminates the workers and joins them, waiting at most the
// configured grace. TERMINATE goes out whenever the barrier is intact, which
// includes cancellation and environment failures: the coordinator only stops
// between phases, so every worker is back on its command channel. After a
// failure the barrier is broken as well so no worker stays parked on it. The
// worker failure that broke the barrier wins over every other error.
func (s *session) shutdown(runErr error) error {
	if !s.barrier.Broken() {
		if err := s.broker.Publish(command(messaging.CommandTerminate, 0, 0, nil)); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		s.barrier.Break(runErr)
	}
	s.broker.Reset()

	grace := s.t.cfg.ShutdownGrace
	select {
	case <-s.joined:
	case <-time.After(grace):
		s.t.logger.Printf("workers still running after %s", grace)
		if runErr == nil {
			return fmt.Errorf("%w: grace %s", ErrShutdownTimeout, grace)
		}
		return errors.Join(runErr, fmt.Errorf("%w: grace %s", ErrShutdownTimeout, grace))
	}

	var failure *core.WorkerFailure
	if cause := s.barrier.Cause(); errors.As(cause, &failure) {
		return failure
	}
	if runErr != nil {
		return runErr
	}
	return s.groupErr
}
