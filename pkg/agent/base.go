package agent

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/memory"
)

// completed episodes kept for the rolling statistics
const trackWindow = 100

// Base does the bookkeeping every agent shares: per-instance cumulative reward
// and episode length, rolling statistics over finished episodes, and periodic
// writes to a Tracker. It learns nothing; its RecordTransition and
// PostInteraction are the non-learning variants.
type Base struct {
	id            string
	logger        *log.Logger
	tracker       Tracker
	writeInterval int

	cumulativeRewards   []float64
	cumulativeTimesteps []float64
	trackRewards        *memory.Memory[float64]
	trackTimesteps      *memory.Memory[float64]
	episodes            int

	pending map[string][]float64
}

func newBase(params *AgentParams) Base {
	return Base{
		id:             params.AgentID,
		logger:         params.Logger,
		tracker:        params.Tracker,
		writeInterval:  params.WriteInterval,
		trackRewards:   memory.NewMemory[float64](trackWindow),
		trackTimesteps: memory.NewMemory[float64](trackWindow),
		pending:        make(map[string][]float64),
	}
}

func (b *Base) GetID() string {
	return b.id
}

func (b *Base) Init(context.Context) error { return nil }

func (b *Base) PreInteraction(context.Context, int, int) error { return nil }

func (b *Base) RecordTransition(ctx context.Context, tr core.Transition, timestep, timesteps int) error {
	return b.RecordTransitionWithoutLearning(ctx, tr, timestep, timesteps)
}

func (b *Base) PostInteraction(ctx context.Context, timestep, timesteps int) error {
	return b.PostInteractionWithoutLearning(ctx, timestep, timesteps)
}

// RecordTransitionWithoutLearning updates the episode statistics of every
// instance in the transition.
func (b *Base) RecordTransitionWithoutLearning(_ context.Context, tr core.Transition, _, _ int) error {
	if tr.Rewards == nil || tr.Dones == nil {
		return fmt.Errorf("transition without rewards or dones")
	}
	n := tr.Rewards.Rows()
	if tr.Dones.Rows() != n {
		return fmt.Errorf("%d reward rows but %d done rows", n, tr.Dones.Rows())
	}
	if len(b.cumulativeRewards) != n {
		b.cumulativeRewards = make([]float64, n)
		b.cumulativeTimesteps = make([]float64, n)
	}

	instant := 0.0
	for i := 0; i < n; i++ {
		r := rowSum(tr.Rewards.Row(i))
		instant += r
		b.cumulativeRewards[i] += r
		b.cumulativeTimesteps[i]++

		if rowSum(tr.Dones.Row(i)) != 0 {
			b.trackRewards.Store(b.cumulativeRewards[i])
			b.trackTimesteps.Store(b.cumulativeTimesteps[i])
			b.cumulativeRewards[i] = 0
			b.cumulativeTimesteps[i] = 0
			b.episodes++
		}
	}
	b.track("Reward / Instantaneous reward (mean)", instant/float64(n))

	if rewards := b.trackRewards.GetAll(); len(rewards) > 0 {
		lo, hi, mean := summarize(rewards)
		b.track("Reward / Total reward (max)", hi)
		b.track("Reward / Total reward (min)", lo)
		b.track("Reward / Total reward (mean)", mean)

		lo, hi, mean = summarize(b.trackTimesteps.GetAll())
		b.track("Episode / Total timesteps (max)", hi)
		b.track("Episode / Total timesteps (min)", lo)
		b.track("Episode / Total timesteps (mean)", mean)
	}
	return nil
}

// PostInteractionWithoutLearning writes the tracked data every write interval.
func (b *Base) PostInteractionWithoutLearning(ctx context.Context, timestep, _ int) error {
	if b.writeInterval > 0 && (timestep+1)%b.writeInterval == 0 {
		return b.WriteTrackingData(ctx, timestep)
	}
	return nil
}

// TrackData adds a value to the next write; values under one name are averaged.
func (b *Base) TrackData(name string, value float64) {
	b.track(name, value)
}

func (b *Base) track(name string, value float64) {
	b.pending[name] = append(b.pending[name], value)
}

// WriteTrackingData sends the mean of every pending value to the tracker and
// clears them.
func (b *Base) WriteTrackingData(ctx context.Context, timestep int) error {
	if len(b.pending) == 0 {
		return nil
	}
	values := make(map[string]float64, len(b.pending))
	for name, vs := range b.pending {
		_, _, values[name] = summarize(vs)
	}
	b.pending = make(map[string][]float64)
	if b.tracker == nil {
		return nil
	}
	if err := b.tracker.Write(ctx, timestep, values); err != nil {
		return fmt.Errorf("write tracking data: %w", err)
	}
	return nil
}

// EpisodeStats summarizes finished episodes of the rolling window.
type EpisodeStats struct {
	Episodes   int
	MeanReward float64
	MeanLength float64
}

func (b *Base) EpisodeStats() EpisodeStats {
	stats := EpisodeStats{Episodes: b.episodes}
	if rewards := b.trackRewards.GetAll(); len(rewards) > 0 {
		_, _, stats.MeanReward = summarize(rewards)
		_, _, stats.MeanLength = summarize(b.trackTimesteps.GetAll())
	}
	return stats
}

func rowSum(row []float64) float64 {
	s := 0.0
	for _, v := range row {
		s += v
	}
	return s
}

func summarize(vs []float64) (lo, hi, mean float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		mean += v
	}
	return lo, hi, mean / float64(len(vs))
}
