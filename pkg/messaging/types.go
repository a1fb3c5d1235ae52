package messaging

import (
	"fmt"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/tensor"
)

// CommandKind names one phase of the per-timestep protocol
type CommandKind uint8

const (
	CommandInit CommandKind = iota
	CommandPreInteraction
	CommandAct
	CommandRecordTransition
	CommandPostInteraction
	CommandEvalRecordAndPost
	CommandTerminate
)

var commandNames = map[CommandKind]string{
	CommandInit:              "init",
	CommandPreInteraction:    "pre_interaction",
	CommandAct:               "act",
	CommandRecordTransition:  "record_transition",
	CommandPostInteraction:   "post_interaction",
	CommandEvalRecordAndPost: "eval_record_transition_post_interaction",
	CommandTerminate:         "terminate",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(k))
}

// Command is a control message, always sent coordinator -> worker
type Command struct {
	Kind      CommandKind
	Timestep  int
	Timesteps int
}

// Payload is the bulk data travelling on a data channel. Only the fields the
// current command needs are set.
type Payload struct {
	Agent      core.Agent
	States     *tensor.Tensor
	Actions    *tensor.Tensor
	Rewards    *tensor.Tensor
	NextStates *tensor.Tensor
	Dones      *tensor.Tensor
	Infos      core.Infos
}

// Message addresses a command (and optional payload) to workers by index
type Message struct {
	To      []int // Worker indices (empty means broadcast)
	Command Command
	Payload *Payload
}
