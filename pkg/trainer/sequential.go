package trainer

import (
	"context"
	"fmt"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/messaging"
	"github.com/boristopalov/lockstep/pkg/tensor"
	"github.com/boristopalov/lockstep/pkg/worker"
)

// sequential calls a single agent directly, in the same phase order the
// workers follow.
type sequential struct {
	agent   core.Agent
	observe worker.Observer
}

func (s *sequential) phase(kind messaging.CommandKind, timestep, timesteps int) {
	if s.observe != nil {
		s.observe(0, messaging.Command{Kind: kind, Timestep: timestep, Timesteps: timesteps})
	}
}

func (s *sequential) fail(kind messaging.CommandKind, err error) error {
	if err == nil {
		return nil
	}
	return &core.WorkerFailure{Worker: 0, Phase: kind.String(), Err: err}
}

func (s *sequential) initAgents(ctx context.Context, timesteps int) error {
	s.phase(messaging.CommandInit, 0, timesteps)
	return s.fail(messaging.CommandInit, s.agent.Init(ctx))
}

func (s *sequential) preInteraction(ctx context.Context, timestep, timesteps int) error {
	s.phase(messaging.CommandPreInteraction, timestep, timesteps)
	return s.fail(messaging.CommandPreInteraction, s.agent.PreInteraction(ctx, timestep, timesteps))
}

func (s *sequential) act(ctx context.Context, states *tensor.Tensor, timestep, timesteps int) (*tensor.Tensor, error) {
	s.phase(messaging.CommandAct, timestep, timesteps)
	actions, err := s.agent.Act(ctx, states, timestep, timesteps)
	if err != nil {
		return nil, s.fail(messaging.CommandAct, err)
	}
	if actions == nil {
		return nil, s.fail(messaging.CommandAct, fmt.Errorf("agent returned no actions"))
	}
	return actions, nil
}

func (s *sequential) record(ctx context.Context, mode core.Mode, tr core.Transition, timestep, timesteps int) error {
	if mode == core.ModeEval {
		s.phase(messaging.CommandEvalRecordAndPost, timestep, timesteps)
		if err := s.agent.RecordTransitionWithoutLearning(ctx, tr, timestep, timesteps); err != nil {
			return s.fail(messaging.CommandEvalRecordAndPost, err)
		}
		return s.fail(messaging.CommandEvalRecordAndPost, s.agent.PostInteractionWithoutLearning(ctx, timestep, timesteps))
	}

	s.phase(messaging.CommandRecordTransition, timestep, timesteps)
	if err := s.agent.RecordTransition(ctx, tr, timestep, timesteps); err != nil {
		return s.fail(messaging.CommandRecordTransition, err)
	}
	s.phase(messaging.CommandPostInteraction, timestep, timesteps)
	return s.fail(messaging.CommandPostInteraction, s.agent.PostInteraction(ctx, timestep, timesteps))
}
