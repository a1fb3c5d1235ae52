// Package barrier provides a reusable rendezvous point for a fixed number of
// participants.
package barrier

import (
	"errors"
	"fmt"
	"sync"
)

var ErrBroken = errors.New("barrier broken")

// Barrier blocks every caller of Wait until parties callers have arrived, then
// releases them all and starts the next generation. There is no timeout: a
// participant that never arrives holds the others forever unless someone
// calls Break.
type Barrier struct {
	mu         sync.Mutex
	parties    int
	arrived    int
	generation uint64
	release    chan struct{}

	broken chan struct{}
	cause  error
}

func New(parties int) (*Barrier, error) {
	if parties < 1 {
		return nil, fmt.Errorf("barrier needs at least one party, got %d", parties)
	}
	return &Barrier{
		parties: parties,
		release: make(chan struct{}),
		broken:  make(chan struct{}),
	}, nil
}

// Wait blocks until every party has called Wait for the current generation.
// It returns an error wrapping ErrBroken once the barrier was broken.
func (b *Barrier) Wait() error {
	b.mu.Lock()
	if b.cause != nil {
		err := b.brokenErr()
		b.mu.Unlock()
		return err
	}
	release := b.release
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.generation++
		b.release = make(chan struct{})
		close(release)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-release:
		return nil
	case <-b.broken:
		// a generation completed before the break still counts as a rendezvous
		select {
		case <-release:
			return nil
		default:
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.brokenErr()
	}
}

// Break wakes every waiter, now and in the future, with an error wrapping
// ErrBroken and cause. Only the first cause is kept.
func (b *Barrier) Break(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cause != nil {
		return
	}
	if cause == nil {
		cause = errors.New("no cause given")
	}
	b.cause = cause
	close(b.broken)
}

// Broken reports whether Break was called.
func (b *Barrier) Broken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cause != nil
}

// Cause returns the error the barrier was broken with, if any.
func (b *Barrier) Cause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cause
}

func (b *Barrier) Parties() int { return b.parties }

// Generation returns how many times all parties have met.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Waiting returns how many parties are blocked in the current generation.
func (b *Barrier) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

func (b *Barrier) brokenErr() error {
	return fmt.Errorf("%w: %w", ErrBroken, b.cause)
}
