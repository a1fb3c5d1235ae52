// Package agent provides ready-made policies for the trainer and the Base
// every one of them embeds for episode bookkeeping.
package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/providers"
)

type ModelInfo struct {
	Id     string         // e.g. "gpt-4o-mini"
	Config map[string]any // model-specific configuration
}

// Tracker receives the scalars an agent aggregated since its last write.
type Tracker interface {
	Write(ctx context.Context, timestep int, values map[string]float64) error
}

type AgentParams struct {
	AgentID       string
	Logger        *log.Logger
	Tracker       Tracker
	WriteInterval int // timesteps between tracker writes, 0 disables

	Seed       uint64
	ActionLow  float64
	ActionHigh float64

	// learning agents
	MemorySize     int
	BatchSize      int
	LearningStarts int
	UpdateInterval int
	Epsilon        float64

	// LLM agents
	Model  ModelInfo
	Client providers.Client
}

type AgentOption func(*AgentParams)

func WithAgentId(id string) AgentOption {
	return func(p *AgentParams) {
		p.AgentID = id
	}
}

func WithLogger(logger *log.Logger) AgentOption {
	return func(p *AgentParams) {
		p.Logger = logger
	}
}

// WithTracker sends episode statistics to tracker every interval timesteps.
func WithTracker(tracker Tracker, interval int) AgentOption {
	return func(p *AgentParams) {
		p.Tracker = tracker
		p.WriteInterval = interval
	}
}

func WithSeed(seed uint64) AgentOption {
	return func(p *AgentParams) {
		p.Seed = seed
	}
}

func WithActionRange(low, high float64) AgentOption {
	return func(p *AgentParams) {
		p.ActionLow = low
		p.ActionHigh = high
	}
}

func WithMemorySize(size int) AgentOption {
	return func(p *AgentParams) {
		p.MemorySize = size
	}
}

// WithLearning sets when and how often a learning agent updates.
func WithLearning(batchSize, learningStarts, updateInterval int) AgentOption {
	return func(p *AgentParams) {
		p.BatchSize = batchSize
		p.LearningStarts = learningStarts
		p.UpdateInterval = updateInterval
	}
}

func WithEpsilon(epsilon float64) AgentOption {
	return func(p *AgentParams) {
		p.Epsilon = epsilon
	}
}

func WithModel(model ModelInfo) AgentOption {
	return func(p *AgentParams) {
		p.Model = model
	}
}

func WithClient(client providers.Client) AgentOption {
	return func(p *AgentParams) {
		p.Client = client
	}
}

func defaultAgentParams() *AgentParams {
	return &AgentParams{
		AgentID:        "agent-" + uuid.New().String(),
		Logger:         log.Default(),
		Seed:           1,
		ActionLow:      -1,
		ActionHigh:     1,
		MemorySize:     10000,
		BatchSize:      256,
		LearningStarts: 100,
		UpdateInterval: 10,
		Epsilon:        0.1,
		Model: ModelInfo{
			Id:     "gpt-4o-mini",
			Config: make(map[string]any),
		},
	}
}

func buildParams(opts []AgentOption) (*AgentParams, error) {
	params := defaultAgentParams()
	for _, opt := range opts {
		opt(params)
	}
	if params.ActionLow > params.ActionHigh {
		return nil, fmt.Errorf("action range [%g, %g] is empty", params.ActionLow, params.ActionHigh)
	}
	if params.WriteInterval < 0 {
		return nil, fmt.Errorf("write interval must not be negative, got %d", params.WriteInterval)
	}
	return params, nil
}

// New builds an agent by kind: "random", "linear" or "llm".
func New(kind string, opts ...AgentOption) (core.Agent, error) {
	switch kind {
	case "random":
		return NewRandom(opts...)
	case "", "linear":
		return NewLinear(opts...)
	case "llm":
		return NewLLM(opts...)
	default:
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
}
