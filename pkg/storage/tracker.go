package storage

import (
	"context"
	"sort"
)

// Tracker writes the scalars of one agent in one run to a Store.
type Tracker struct {
	store Store
	runID string
	agent string
}

func NewTracker(store Store, runID, agent string) *Tracker {
	return &Tracker{store: store, runID: runID, agent: agent}
}

// Write stores every value under its name at timestep, in name order.
func (t *Tracker) Write(ctx context.Context, timestep int, values map[string]float64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]TrackingPoint, 0, len(names))
	for _, name := range names {
		points = append(points, TrackingPoint{
			RunID:    t.runID,
			Agent:    t.agent,
			Timestep: timestep,
			Name:     name,
			Value:    values[name],
		})
	}
	return t.store.AppendTracking(ctx, points)
}
