package core

import (
	"fmt"
	"time"

	"github.com/boristopalov/lockstep/pkg/tensor"
)

// Infos carries environment side information. It is never sliced by scope.
type Infos map[string]any

// StepResult is what an Environment returns for one step of the whole batch.
type StepResult struct {
	NextStates *tensor.Tensor
	Rewards    *tensor.Tensor
	Dones      *tensor.Tensor // 1 where the instance finished its episode
	Infos      Infos
}

// Transition is the experience handed to an agent for its own scope.
type Transition struct {
	States     *tensor.Tensor
	Actions    *tensor.Tensor
	Rewards    *tensor.Tensor
	NextStates *tensor.Tensor
	Dones      *tensor.Tensor
	Infos      Infos
}

// Mode selects which recording behaviour a run uses.
type Mode int

const (
	ModeTrain Mode = iota
	ModeEval
)

func (m Mode) String() string {
	switch m {
	case ModeTrain:
		return "train"
	case ModeEval:
		return "eval"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "train" or "eval".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "train":
		return ModeTrain, nil
	case "eval":
		return ModeEval, nil
	default:
		return ModeTrain, fmt.Errorf("unknown mode %q", s)
	}
}

type ExperimentStatus struct {
	RunID     string
	Mode      Mode
	Running   bool
	StartTime time.Time
	EndTime   time.Time
	Errors    []error
}
