package messaging

import (
	"fmt"
	"sort"
	"sync"
)

// Broker routes commands and payloads from the coordinator to its workers.
// subscribers maps worker indices to the coordinator side of their pairs.
type Broker struct {
	subscribers map[int]CoordinatorEnd
	order       []int
	mu          sync.RWMutex
}

// NewBroker creates a new message broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int]CoordinatorEnd),
	}
}

// Publish sends the command, then the payload if any, to every recipient in
// ascending worker order. Sends block while a recipient's buffer is full.
func (b *Broker) Publish(msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// If no recipients specified, broadcast to all subscribers
	recipients := msg.To
	if len(recipients) == 0 {
		recipients = b.order
	}

	ends := make([]CoordinatorEnd, 0, len(recipients))
	for _, index := range recipients {
		end, ok := b.subscribers[index]
		if !ok {
			return fmt.Errorf("worker %d is not subscribed", index)
		}
		ends = append(ends, end)
	}

	for _, end := range ends {
		end.Send(msg.Command)
		if msg.Payload != nil {
			end.Put(*msg.Payload)
		}
	}
	return nil
}

// Gather collects one reply from every subscriber, in worker order.
func (b *Broker) Gather() []Payload {
	b.mu.RLock()
	defer b.mu.RUnlock()

	replies := make([]Payload, 0, len(b.order))
	for _, index := range b.order {
		replies = append(replies, b.subscribers[index].Collect())
	}
	return replies
}

// Subscribe registers the pair of worker index
func (b *Broker) Subscribe(index int, pair *Pair) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[index]; exists {
		return fmt.Errorf("worker %d is already subscribed", index)
	}

	b.subscribers[index] = pair.Coordinator()
	b.order = append(b.order, index)
	sort.Ints(b.order)
	return nil
}

// Unsubscribe removes a worker and closes its command channel
func (b *Broker) Unsubscribe(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	end, exists := b.subscribers[index]
	if !exists {
		return fmt.Errorf("worker %d is not subscribed", index)
	}

	end.Close()
	delete(b.subscribers, index)
	for i, v := range b.order {
		if v == index {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Workers returns the subscribed worker indices in ascending order.
func (b *Broker) Workers() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]int, len(b.order))
	copy(out, b.order)
	return out
}

// Reset closes every command channel and drops all subscribers
func (b *Broker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, end := range b.subscribers {
		end.Close()
	}
	b.subscribers = make(map[int]CoordinatorEnd)
	b.order = nil
}
