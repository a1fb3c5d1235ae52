package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/memory"
	"github.com/boristopalov/lockstep/pkg/providers"
	"github.com/boristopalov/lockstep/pkg/tensor"
)

const (
	SYSTEM_PROMPT = `You control a point mass on a line. Each timestep you choose a force between %.2f and %.2f. The mass is rewarded for staying close to position 0 and penalized for large forces.`

	ACTION_PROMPT_TEMPLATE = `This is timestep %d of %d. The state of the mass is: %s.

%s

Which force do you apply? Very briefly think step by step and then provide your answer. Your answer should follow the string "ANSWER" like so: ANSWER:`

	historyLength = 5
)

var answerPattern = regexp.MustCompile(`ANSWER:\s*(-?\d*\.?\d+)`)

// LLM asks a language model for every action. It keeps a short history of
// recent transitions in its prompt while training; in evaluation the history
// stays frozen.
type LLM struct {
	Base
	client    providers.Client
	model     ModelInfo
	memory    *memory.Memory[string]
	low, high float64
}

func NewLLM(opts ...AgentOption) (*LLM, error) {
	params, err := buildParams(opts)
	if err != nil {
		return nil, err
	}
	if params.Client == nil {
		return nil, errors.New("llm agent: client is required")
	}
	return &LLM{
		Base:   newBase(params),
		client: params.Client,
		model:  params.Model,
		memory: memory.NewMemory[string](100),
		low:    params.ActionLow,
		high:   params.ActionHigh,
	}, nil
}

func (a *LLM) GetModel() ModelInfo {
	return a.model
}

func (a *LLM) GetMemory() *memory.Memory[string] {
	return a.memory
}

func (a *LLM) Act(ctx context.Context, states *tensor.Tensor, timestep, timesteps int) (*tensor.Tensor, error) {
	history := "No earlier interactions."
	if recent := a.memory.Last(historyLength); len(recent) > 0 {
		history = "Your most recent interactions:\n" + strings.Join(recent, "\n")
	}
	system := fmt.Sprintf(SYSTEM_PROMPT, a.low, a.high)

	actions := tensor.Full(states.Rows(), 1, 0)
	for i := 0; i < states.Rows(); i++ {
		prompt := fmt.Sprintf(ACTION_PROMPT_TEMPLATE, timestep+1, timesteps, formatRow(states.Row(i)), history)
		req, err := providers.RequestFor(a.model.Id, a.model.Config, system, prompt)
		if err != nil {
			return nil, err
		}
		response, err := a.client.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to generate response: %w", err)
		}
		force, err := parseActionResponse(response)
		if err != nil {
			a.logger.Printf("%s: %v, applying no force", a.id, err)
			continue
		}
		actions.Set(i, 0, clamp(force, a.low, a.high))
	}
	return actions, nil
}

// RecordTransition adds the first instance's transition to the prompt history.
func (a *LLM) RecordTransition(ctx context.Context, tr core.Transition, timestep, timesteps int) error {
	if tr.States.Rows() > 0 {
		a.memory.Store(fmt.Sprintf("At timestep %d the state was %s, you applied %.3f and received a reward of %.3f.",
			timestep+1, formatRow(tr.States.Row(0)), tr.Actions.At(0, 0), rowSum(tr.Rewards.Row(0))))
	}
	return a.Base.RecordTransition(ctx, tr, timestep, timesteps)
}

// Helper function to parse the force from the model response
func parseActionResponse(response string) (float64, error) {
	matches := answerPattern.FindStringSubmatch(response)
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not find answer in response: %s", response)
	}

	force, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse force: %v", err)
	}
	return force, nil
}

func formatRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = strconv.FormatFloat(v, 'f', 3, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
