// Package environment provides batched environments for the trainer.
package environment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/tensor"
)

var ErrClosed = errors.New("environment closed")

type State struct {
	Status    string
	Step      uint32
	Episode   int
	Timestamp time.Time
}

// PointMass is a batch of independent masses on a line. Each row of the
// action tensor is the force applied to one mass; the state of a mass is its
// position and velocity. A mass is rewarded for staying near 0 and finishes
// its episode when it leaves [-Bound, Bound] or runs out of time.
type PointMass struct {
	n        int
	dt       float64
	maxSteps int
	device   tensor.Device
	rng      *rand.Rand
	out      io.Writer

	mu      sync.RWMutex
	pos     []float64
	vel     []float64
	elapsed []int
	state   State
}

const Bound = 2.0

type Option func(*PointMass)

// WithDevice tags every tensor the environment returns as resident on d.
func WithDevice(d tensor.Device) Option {
	return func(e *PointMass) {
		e.device = d
	}
}

func WithSeed(seed uint64) Option {
	return func(e *PointMass) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d))
	}
}

// WithMaxSteps sets the episode time limit.
func WithMaxSteps(n int) Option {
	return func(e *PointMass) {
		e.maxSteps = n
	}
}

// WithRenderer sets where Render writes. Defaults to stdout.
func WithRenderer(w io.Writer) Option {
	return func(e *PointMass) {
		e.out = w
	}
}

func NewPointMass(n int, opts ...Option) (*PointMass, error) {
	if n < 1 {
		return nil, fmt.Errorf("point mass needs at least one instance, got %d", n)
	}
	e := &PointMass{
		n:        n,
		dt:       0.1,
		maxSteps: 200,
		out:      os.Stdout,
		state: State{
			Status:    "idle",
			Timestamp: time.Now(),
		},
	}
	WithSeed(1)(e)
	for _, opt := range opts {
		opt(e)
	}
	if e.maxSteps < 1 {
		return nil, fmt.Errorf("max steps must be positive, got %d", e.maxSteps)
	}
	return e, nil
}

func (e *PointMass) NumEnvs() int { return e.n }

func (e *PointMass) GetState() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *PointMass) Reset(_ context.Context) (*tensor.Tensor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == "closed" {
		return nil, ErrClosed
	}
	e.pos = make([]float64, e.n)
	e.vel = make([]float64, e.n)
	e.elapsed = make([]int, e.n)
	for i := range e.pos {
		e.pos[i] = 2*e.rng.Float64() - 1
	}
	e.state.Status = "running"
	e.state.Episode++
	e.state.Timestamp = time.Now()
	return e.states(), nil
}

func (e *PointMass) Step(_ context.Context, actions *tensor.Tensor) (core.StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Status {
	case "closed":
		return core.StepResult{}, ErrClosed
	case "idle":
		return core.StepResult{}, errors.New("step before reset")
	}
	if actions.Rows() != e.n {
		return core.StepResult{}, fmt.Errorf("%w: %d actions for %d instances", tensor.ErrShape, actions.Rows(), e.n)
	}

	rewards := tensor.Full(e.n, 1, 0)
	dones := tensor.Full(e.n, 1, 0)
	for i := 0; i < e.n; i++ {
		force := math.Max(-1, math.Min(1, actions.At(i, 0)))
		e.vel[i] += force * e.dt
		e.pos[i] += e.vel[i] * e.dt
		e.elapsed[i]++

		rewards.Set(i, 0, -e.pos[i]*e.pos[i]-0.01*force*force)
		if math.Abs(e.pos[i]) > Bound || e.elapsed[i] >= e.maxSteps {
			dones.Set(i, 0, 1)
		}
	}
	e.state.Step++
	e.state.Timestamp = time.Now()

	return core.StepResult{
		NextStates: e.states(),
		Rewards:    rewards.OnDevice(e.device),
		Dones:      dones.OnDevice(e.device),
		Infos:      core.Infos{"episode": e.state.Episode, "step": int(e.state.Step)},
	}, nil
}

// Render writes a one-line summary of the batch.
func (e *PointMass) Render() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.state.Status != "running" {
		return nil
	}
	sum := 0.0
	for _, p := range e.pos {
		sum += math.Abs(p)
	}
	_, err := fmt.Fprintf(e.out, "episode %d step %d: mean |x| %.3f\n", e.state.Episode, e.state.Step, sum/float64(e.n))
	return err
}

func (e *PointMass) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == "closed" {
		return ErrClosed
	}
	e.state.Status = "closed"
	e.state.Timestamp = time.Now()
	return nil
}

func (e *PointMass) states() *tensor.Tensor {
	data := make([]float64, 0, 2*e.n)
	for i := 0; i < e.n; i++ {
		data = append(data, e.pos[i], e.vel[i])
	}
	return tensor.New(e.n, 2, data).OnDevice(e.device)
}
