package worker

import "fmt"

// State of a worker's dispatch loop.
//
//	Idle -> Initializing -> Ready -> {PreInteracting, Acting, Recording, PostInteracting} -> Ready -> ... -> Terminated
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StatePreInteracting
	StateActing
	StateRecording
	StatePostInteracting
	StateTerminated
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateInitializing:    "initializing",
	StateReady:           "ready",
	StatePreInteracting:  "pre_interaction",
	StateActing:          "acting",
	StateRecording:       "recording",
	StatePostInteracting: "post_interacting",
	StateTerminated:      "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}
