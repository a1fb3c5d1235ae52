package messaging

import (
	"testing"
	"time"

	"github.com/boristopalov/lockstep/pkg/tensor"
)

func recvWithin(t *testing.T, end WorkerEnd, d time.Duration) (Command, bool) {
	t.Helper()
	got := make(chan Command, 1)
	go func() {
		if cmd, ok := end.Recv(); ok {
			got <- cmd
		}
	}()
	select {
	case cmd := <-got:
		return cmd, true
	case <-time.After(d):
		return Command{}, false
	}
}

func TestBroker(t *testing.T) {
	t.Run("test direct message", func(t *testing.T) {
		broker := NewBroker()
		t.Cleanup(func() {
			broker.Reset()
		})
		p0 := NewPair(DefaultBuffer)
		p1 := NewPair(DefaultBuffer)

		if err := broker.Subscribe(0, p0); err != nil {
			t.Fatalf("Failed to subscribe worker 0: %v", err)
		}
		if err := broker.Subscribe(1, p1); err != nil {
			t.Fatalf("Failed to subscribe worker 1: %v", err)
		}

		states := tensor.Full(4, 2, 1)
		msg := Message{
			To:      []int{1},
			Command: Command{Kind: CommandAct, Timestep: 3, Timesteps: 10},
			Payload: &Payload{States: states},
		}
		if err := broker.Publish(msg); err != nil {
			t.Fatalf("Failed to publish message: %v", err)
		}

		// worker 1 should receive the command and then the payload
		cmd, ok := recvWithin(t, p1.Worker(), time.Second)
		if !ok {
			t.Fatal("Timeout waiting for command")
		}
		if cmd.Kind != CommandAct || cmd.Timestep != 3 || cmd.Timesteps != 10 {
			t.Errorf("Unexpected command received: %+v", cmd)
		}
		if got := p1.Worker().Get(); got.States != states {
			t.Errorf("Expected the published states tensor, got %v", got.States)
		}

		// worker 0 should not receive anything
		if cmd, ok := recvWithin(t, p0.Worker(), 100*time.Millisecond); ok {
			t.Errorf("worker 0 should not receive a command but got: %+v", cmd)
		}
	})

	t.Run("test broadcast in worker order", func(t *testing.T) {
		broker := NewBroker()
		t.Cleanup(func() {
			broker.Reset()
		})
		pairs := map[int]*Pair{}
		for _, index := range []int{2, 0, 1} {
			pairs[index] = NewPair(DefaultBuffer)
			if err := broker.Subscribe(index, pairs[index]); err != nil {
				t.Fatalf("Failed to subscribe %d: %v", index, err)
			}
		}
		if got := broker.Workers(); len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
			t.Fatalf("Expected workers in ascending order, got %v", got)
		}

		if err := broker.Publish(Message{Command: Command{Kind: CommandPreInteraction, Timestep: 1}}); err != nil {
			t.Fatalf("Failed to publish broadcast: %v", err)
		}
		for index, pair := range pairs {
			cmd, ok := recvWithin(t, pair.Worker(), time.Second)
			if !ok {
				t.Errorf("Timeout waiting for broadcast on worker %d", index)
				continue
			}
			if cmd.Kind != CommandPreInteraction {
				t.Errorf("worker %d got %v", index, cmd.Kind)
			}
		}

		// replies are gathered in worker order regardless of reply order
		for _, index := range []int{2, 1, 0} {
			pairs[index].Worker().Reply(Payload{Actions: tensor.Full(1, 1, float64(index))})
		}
		replies := broker.Gather()
		for i, reply := range replies {
			if reply.Actions.At(0, 0) != float64(i) {
				t.Errorf("reply %d came from worker %v", i, reply.Actions.At(0, 0))
			}
		}
	})

	t.Run("test subscription management", func(t *testing.T) {
		broker := NewBroker()
		t.Cleanup(func() {
			broker.Reset()
		})
		pair := NewPair(DefaultBuffer)

		if err := broker.Subscribe(0, pair); err != nil {
			t.Fatalf("Failed to subscribe: %v", err)
		}
		if err := broker.Subscribe(0, pair); err == nil {
			t.Error("Expected error for duplicate subscription, got nil")
		}
		if err := broker.Publish(Message{To: []int{7}, Command: Command{Kind: CommandAct}}); err == nil {
			t.Error("Expected error for unknown recipient, got nil")
		}
		if err := broker.Unsubscribe(0); err != nil {
			t.Fatalf("Failed to unsubscribe: %v", err)
		}
		if err := broker.Unsubscribe(0); err == nil {
			t.Error("Expected error for unsubscribing non-existent worker, got nil")
		}

		// the command channel is closed once unsubscribed
		if _, ok := pair.Worker().Recv(); ok {
			t.Error("Expected closed command channel after unsubscribe")
		}
	})
}

func TestPairCloseIsIdempotent(t *testing.T) {
	pair := NewPair(0)
	pair.Coordinator().Close()
	pair.Coordinator().Close()
	if _, ok := pair.Worker().Recv(); ok {
		t.Fatal("Expected closed command channel")
	}
}

func TestCommandKindString(t *testing.T) {
	if got := CommandEvalRecordAndPost.String(); got != "eval_record_transition_post_interaction" {
		t.Errorf("unexpected name %q", got)
	}
	if got := CommandKind(42).String(); got != "command(42)" {
		t.Errorf("unexpected name %q", got)
	}
}
