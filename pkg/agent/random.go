package agent

import (
	"context"
	"math/rand/v2"

	"github.com/boristopalov/lockstep/pkg/tensor"
)

// Random acts uniformly at random within the action range. It never learns.
type Random struct {
	Base
	rng       *rand.Rand
	low, high float64
}

func NewRandom(opts ...AgentOption) (*Random, error) {
	params, err := buildParams(opts)
	if err != nil {
		return nil, err
	}
	return &Random{
		Base: newBase(params),
		rng:  rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15)),
		low:  params.ActionLow,
		high: params.ActionHigh,
	}, nil
}

func (a *Random) Act(_ context.Context, states *tensor.Tensor, _, _ int) (*tensor.Tensor, error) {
	actions := tensor.Full(states.Rows(), 1, 0)
	for i := 0; i < states.Rows(); i++ {
		actions.Set(i, 0, a.low+a.rng.Float64()*(a.high-a.low))
	}
	return actions, nil
}
