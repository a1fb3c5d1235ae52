// Package scope assigns each worker a contiguous range of the environment batch.
package scope

import (
	"fmt"

	"github.com/boristopalov/lockstep/pkg/core"
)

// Scope is the half-open row range [Start, End) of one worker.
type Scope struct {
	Start int
	End   int
}

func (s Scope) Len() int { return s.End - s.Start }

func (s Scope) String() string { return fmt.Sprintf("[%d, %d)", s.Start, s.End) }

// Table holds one Scope per worker, in worker-index order.
type Table []Scope

// FromCounts turns per-agent environment counts into consecutive ranges.
func FromCounts(counts []int) (Table, error) {
	table := make(Table, 0, len(counts))
	index := 0
	for i, n := range counts {
		if n <= 0 {
			return nil, core.NewConfigurationError("agent %d has a non-positive scope size %d", i, n)
		}
		table = append(table, Scope{Start: index, End: index + n})
		index += n
	}
	return table, nil
}

// Even splits batch environments across n agents. The last agent takes the
// remainder.
func Even(batch, n int) (Table, error) {
	if n <= 0 {
		return nil, core.NewConfigurationError("at least one agent is required")
	}
	if batch < n {
		return nil, core.NewConfigurationError("%d environments cannot be split across %d agents", batch, n)
	}
	counts := make([]int, n)
	for i := range counts {
		counts[i] = batch / n
	}
	counts[n-1] += batch - (batch/n)*n
	return FromCounts(counts)
}

// Validate checks that the table tiles [0, batch) exactly once, in order.
func (t Table) Validate(batch int) error {
	if len(t) == 0 {
		return core.NewConfigurationError("scope table is empty")
	}
	next := 0
	for i, s := range t {
		if s.Start < 0 || s.Start >= s.End {
			return core.NewConfigurationError("scope %d %s is empty or negative", i, s)
		}
		if s.Start < next {
			return core.NewConfigurationError("scope %d %s overlaps the previous scope", i, s)
		}
		if s.Start > next {
			return core.NewConfigurationError("scope %d %s leaves environments [%d, %d) unassigned", i, s, next, s.Start)
		}
		next = s.End
	}
	if next != batch {
		return core.NewConfigurationError("scopes cover [0, %d) but the batch has %d environments", next, batch)
	}
	return nil
}

// Counts returns the size of every scope.
func (t Table) Counts() []int {
	counts := make([]int, len(t))
	for i, s := range t {
		counts[i] = s.Len()
	}
	return counts
}
