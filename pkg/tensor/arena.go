package tensor

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Arena is the cross-worker storage host tensors are promoted into before they
// are handed to workers. Buffers are recycled through per-length free lists so
// a run that promotes the same shapes every timestep stops allocating after
// the first few steps.
type Arena struct {
	mu    sync.Mutex
	free  map[int][][]float64
	stats ArenaStats
}

// ArenaStats tracks arena usage
type ArenaStats struct {
	Promotions  uint64 // host tensors copied into the arena
	Passthrough uint64 // tensors already shared, passed by reference
	Allocations uint64 // fresh buffers
	Reuses      uint64 // buffers taken from a free list
	Releases    uint64
	LiveValues  int64 // float64 values currently handed out
}

func NewArena() *Arena {
	return &Arena{free: make(map[int][][]float64)}
}

// Promote makes t visible to every worker. Accelerator tensors and tensors
// already in an arena are returned as-is with promoted=false. Host tensors are
// copied into an arena buffer; the returned tensor owns that buffer and should
// be given back with Release once no worker reads it anymore.
func (a *Arena) Promote(t *Tensor) (shared *Tensor, promoted bool) {
	if t.IsShared() {
		a.mu.Lock()
		a.stats.Passthrough++
		a.mu.Unlock()
		return t, false
	}

	rows, cols := t.Dims()
	buf := a.alloc(rows * cols)
	dst := mat.NewDense(rows, cols, buf)
	dst.Copy(t.data)

	a.mu.Lock()
	a.stats.Promotions++
	a.mu.Unlock()
	return &Tensor{data: dst, device: Host, shared: true, arena: a}, true
}

// Release returns the buffer owned by t to the arena. Views, tensors from
// other arenas and unshared tensors are ignored. t must not be used afterwards.
func (a *Arena) Release(t *Tensor) {
	if t == nil || t.arena != a {
		return
	}
	raw := t.data.RawMatrix()
	n := raw.Rows * raw.Cols
	buf := raw.Data[:n]
	t.arena = nil
	t.data = nil

	a.mu.Lock()
	defer a.mu.Unlock()
	a.free[n] = append(a.free[n], buf)
	a.stats.Releases++
	a.stats.LiveValues -= int64(n)
}

func (a *Arena) Stats() ArenaStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Reset drops every free buffer.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = make(map[int][][]float64)
}

func (a *Arena) alloc(n int) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.LiveValues += int64(n)
	if list := a.free[n]; len(list) > 0 {
		buf := list[len(list)-1]
		a.free[n] = list[:len(list)-1]
		a.stats.Reuses++
		return buf
	}
	a.stats.Allocations++
	return make([]float64, n)
}
