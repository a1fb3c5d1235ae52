package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/memory"
	"github.com/boristopalov/lockstep/pkg/tensor"
)

const (
	candidateActions = 21
	ridge            = 1e-3
)

type experience struct {
	state  []float64
	action float64
	reward float64
}

// Linear learns a ridge-regression model of the immediate reward over
// quadratic state/action features and acts greedily on it, exploring with
// probability epsilon. Transitions are kept in a replay memory and the model
// is refit from a sampled batch in PostInteraction.
type Linear struct {
	Base
	rng       *rand.Rand
	replay    *memory.Memory[experience]
	low, high float64
	epsilon   float64

	batchSize      int
	learningStarts int
	updateInterval int

	weights *mat.VecDense // nil until the first update
	updates int
}

func NewLinear(opts ...AgentOption) (*Linear, error) {
	params, err := buildParams(opts)
	if err != nil {
		return nil, err
	}
	if params.BatchSize < 1 || params.UpdateInterval < 1 {
		return nil, fmt.Errorf("batch size and update interval must be positive")
	}
	return &Linear{
		Base:           newBase(params),
		rng:            rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15)),
		replay:         memory.NewMemory[experience](params.MemorySize),
		low:            params.ActionLow,
		high:           params.ActionHigh,
		epsilon:        params.Epsilon,
		batchSize:      params.BatchSize,
		learningStarts: params.LearningStarts,
		updateInterval: params.UpdateInterval,
	}, nil
}

func (a *Linear) Init(context.Context) error {
	a.replay.Clear()
	a.weights = nil
	return nil
}

func (a *Linear) Act(_ context.Context, states *tensor.Tensor, _, _ int) (*tensor.Tensor, error) {
	actions := tensor.Full(states.Rows(), 1, 0)
	for i := 0; i < states.Rows(); i++ {
		if a.weights == nil || a.rng.Float64() < a.epsilon {
			actions.Set(i, 0, a.low+a.rng.Float64()*(a.high-a.low))
			continue
		}
		actions.Set(i, 0, a.greedy(states.Row(i)))
	}
	return actions, nil
}

// RecordTransition stores a copy of every row in the replay memory, then does
// the usual bookkeeping.
func (a *Linear) RecordTransition(ctx context.Context, tr core.Transition, timestep, timesteps int) error {
	for i := 0; i < tr.States.Rows(); i++ {
		a.replay.Store(experience{
			state:  tr.States.Row(i),
			action: tr.Actions.At(i, 0),
			reward: rowSum(tr.Rewards.Row(i)),
		})
	}
	return a.Base.RecordTransition(ctx, tr, timestep, timesteps)
}

func (a *Linear) PostInteraction(ctx context.Context, timestep, timesteps int) error {
	if timestep >= a.learningStarts && (timestep+1)%a.updateInterval == 0 {
		if err := a.update(); err != nil {
			return err
		}
	}
	return a.Base.PostInteraction(ctx, timestep, timesteps)
}

// Weights returns a copy of the fitted model, nil before the first update.
func (a *Linear) Weights() []float64 {
	if a.weights == nil {
		return nil
	}
	return mat.Col(nil, 0, a.weights)
}

func (a *Linear) greedy(state []float64) float64 {
	best, bestValue := a.low, 0.0
	for k := 0; k < candidateActions; k++ {
		action := a.low + (a.high-a.low)*float64(k)/float64(candidateActions-1)
		x := features(state, action)
		value := mat.Dot(mat.NewVecDense(len(x), x), a.weights)
		if k == 0 || value > bestValue {
			best, bestValue = action, value
		}
	}
	return best
}

// update solves (XᵀX + λI)w = Xᵀy over a batch sampled from the replay memory.
func (a *Linear) update() error {
	batch := a.replay.Sample(a.rng, a.batchSize)
	if len(batch) == 0 {
		return nil
	}
	width := len(features(batch[0].state, 0))
	x := mat.NewDense(len(batch), width, nil)
	y := mat.NewVecDense(len(batch), nil)
	for i, e := range batch {
		x.SetRow(i, features(e.state, e.action))
		y.SetVec(i, e.reward)
	}

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for i := 0; i < width; i++ {
		gram.Set(i, i, gram.At(i, i)+ridge)
	}
	var rhs mat.VecDense
	rhs.MulVec(x.T(), y)

	var w mat.VecDense
	if err := w.SolveVec(&gram, &rhs); err != nil {
		// an ill-conditioned system still yields a usable solution
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("linear update: %w", err)
		}
	}
	a.weights = &w
	a.updates++
	if a.updates%100 == 1 {
		a.logger.Printf("%s: update %d on %d samples", a.id, a.updates, len(batch))
	}
	return nil
}

// features are [1, s, a, a², s·a].
func features(state []float64, action float64) []float64 {
	out := make([]float64, 0, 3+2*len(state))
	out = append(out, 1)
	out = append(out, state...)
	out = append(out, action, action*action)
	for _, s := range state {
		out = append(out, s*action)
	}
	return out
}
