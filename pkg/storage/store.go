// Package storage persists run records and the tracking data agents emit
// while they run.
package storage

import (
	"context"
	"time"
)

const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
	StatusStopped  = "stopped"
)

// RunRecord describes one training or evaluation run.
type RunRecord struct {
	ID        string
	Name      string
	Mode      string
	Agents    int
	Envs      int
	Timesteps int
	Status    string
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// TrackingPoint is one scalar an agent recorded at a timestep, e.g.
// "Reward / Total reward (mean)".
type TrackingPoint struct {
	RunID    string
	Agent    string
	Timestep int
	Name     string
	Value    float64
}

// Store defines persistence operations for runs and their tracking data.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	// ListRuns returns every run, most recently started first.
	ListRuns(ctx context.Context) ([]RunRecord, error)
	AppendTracking(ctx context.Context, points []TrackingPoint) error
	// GetTracking returns the points of a run in insertion order.
	GetTracking(ctx context.Context, runID string) ([]TrackingPoint, error)
}
