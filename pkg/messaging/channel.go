package messaging

import "sync"

// DefaultBuffer lets the coordinator scatter a command and its payload to every
// worker without waiting on any of them.
const DefaultBuffer = 4

// Pair is the link between the coordinator and one worker: a command channel
// and a data channel running both ways. Commands and data travel separately so
// bulk transfers never queue behind control messages.
type Pair struct {
	commands chan Command
	down     chan Payload // coordinator -> worker
	up       chan Payload // worker -> coordinator

	closeOnce sync.Once
}

func NewPair(buffer int) *Pair {
	if buffer < 1 {
		buffer = 1
	}
	return &Pair{
		commands: make(chan Command, buffer),
		down:     make(chan Payload, buffer),
		up:       make(chan Payload, buffer),
	}
}

// Coordinator returns the coordinator's side of the pair.
func (p *Pair) Coordinator() CoordinatorEnd {
	return CoordinatorEnd{pair: p, commands: p.commands, down: p.down, up: p.up}
}

// Worker returns the worker's side of the pair.
func (p *Pair) Worker() WorkerEnd {
	return WorkerEnd{commands: p.commands, down: p.down, up: p.up}
}

// CoordinatorEnd sends commands and payloads and collects replies.
type CoordinatorEnd struct {
	pair     *Pair
	commands chan<- Command
	down     chan<- Payload
	up       <-chan Payload
}

func (c CoordinatorEnd) Send(cmd Command) { c.commands <- cmd }

func (c CoordinatorEnd) Put(p Payload) { c.down <- p }

// Collect blocks until the worker replies.
func (c CoordinatorEnd) Collect() Payload { return <-c.up }

// Close closes the command channel. A worker blocked on Recv sees ok=false.
// Safe to call more than once.
func (c CoordinatorEnd) Close() {
	c.pair.closeOnce.Do(func() { close(c.pair.commands) })
}

// WorkerEnd receives commands and payloads and sends replies.
type WorkerEnd struct {
	commands <-chan Command
	down     <-chan Payload
	up       chan<- Payload
}

// Recv blocks until the next command. ok is false once the coordinator closed
// the channel.
func (w WorkerEnd) Recv() (cmd Command, ok bool) {
	cmd, ok = <-w.commands
	return cmd, ok
}

// Get blocks until the coordinator puts a payload.
func (w WorkerEnd) Get() Payload { return <-w.down }

func (w WorkerEnd) Reply(p Payload) { w.up <- p }
