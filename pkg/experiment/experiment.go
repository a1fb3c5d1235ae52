// Package experiment wraps one trainer run with a run ID, a status and a
// persisted run record.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/scope"
	"github.com/boristopalov/lockstep/pkg/storage"
	"github.com/boristopalov/lockstep/pkg/trainer"
)

var ErrNotRunning = errors.New("experiment is not running")

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run-" + uuid.New().String()
}

// Params collects what an experiment runs.
type Params struct {
	RunID   string // generated when empty
	Name    string
	Mode    core.Mode
	Env     core.Environment
	Agents  []core.Agent
	Scopes  scope.Table
	Trainer trainer.Config
	Store   storage.Store
	Logger  *log.Logger
	Options []trainer.Option
}

type BaseExperiment struct {
	params Params

	mu     sync.RWMutex
	status core.ExperimentStatus
	cancel context.CancelFunc
}

var _ core.Experiment = (*BaseExperiment)(nil)

func NewExperiment(params Params) (*BaseExperiment, error) {
	if params.Store == nil {
		return nil, errors.New("store is required")
	}
	if params.RunID == "" {
		params.RunID = NewRunID()
	}
	if params.Logger == nil {
		params.Logger = log.Default()
	}
	return &BaseExperiment{
		params: params,
		status: core.ExperimentStatus{
			RunID:   params.RunID,
			Mode:    params.Mode,
			Running: false,
		},
	}, nil
}

func (e *BaseExperiment) RunID() string { return e.params.RunID }

// Run trains or evaluates until the trainer returns, Stop is called or ctx is
// cancelled. The run record is saved when the run starts and when it ends.
func (e *BaseExperiment) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.status.Running {
		e.mu.Unlock()
		return errors.New("experiment is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.status.Running = true
	e.status.StartTime = time.Now()
	e.mu.Unlock()
	defer cancel()

	record := e.record(storage.StatusRunning, nil)
	if err := e.params.Store.SaveRun(ctx, record); err != nil {
		// the trainer never took ownership of the environment
		if e.params.Env != nil {
			if closeErr := e.params.Env.Close(); closeErr != nil {
				e.params.Logger.Printf("closing environment of run %s: %v", record.ID, closeErr)
			}
		}
		e.finish(err)
		return fmt.Errorf("save run %s: %w", record.ID, err)
	}
	e.params.Logger.Printf("run %s (%s) started", record.ID, record.Mode)

	opts := append([]trainer.Option{trainer.WithLogger(e.params.Logger)}, e.params.Options...)
	var err error
	switch e.params.Mode {
	case core.ModeEval:
		err = trainer.Eval(ctx, e.params.Env, e.params.Agents, e.params.Scopes, e.params.Trainer, opts...)
	default:
		err = trainer.Train(ctx, e.params.Env, e.params.Agents, e.params.Scopes, e.params.Trainer, opts...)
	}
	e.finish(err)

	status := storage.StatusFinished
	switch {
	case errors.Is(err, context.Canceled):
		status = storage.StatusStopped
	case err != nil:
		status = storage.StatusFailed
	}
	// the run context may be cancelled already; the final record must still land
	if saveErr := e.params.Store.SaveRun(context.WithoutCancel(ctx), e.record(status, err)); saveErr != nil {
		e.params.Logger.Printf("saving run %s: %v", record.ID, saveErr)
		if err == nil {
			err = saveErr
		}
	}
	e.params.Logger.Printf("run %s %s", record.ID, status)
	return err
}

// Stop cancels a running experiment. Run returns once the workers are joined.
func (e *BaseExperiment) Stop() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.status.Running || e.cancel == nil {
		return ErrNotRunning
	}
	e.cancel()
	return nil
}

func (e *BaseExperiment) GetStatus() core.ExperimentStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	status := e.status
	status.Errors = append([]error(nil), e.status.Errors...)
	return status
}

func (e *BaseExperiment) finish(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Running = false
	e.status.EndTime = time.Now()
	if err != nil {
		e.status.Errors = append(e.status.Errors, err)
	}
}

func (e *BaseExperiment) record(status string, err error) storage.RunRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r := storage.RunRecord{
		ID:        e.params.RunID,
		Name:      e.params.Name,
		Mode:      e.params.Mode.String(),
		Agents:    len(e.params.Agents),
		Timesteps: e.params.Trainer.Timesteps,
		Status:    status,
		StartedAt: e.status.StartTime,
		EndedAt:   e.status.EndTime,
	}
	if e.params.Env != nil {
		r.Envs = e.params.Env.NumEnvs()
	}
	if status == storage.StatusRunning {
		r.EndedAt = time.Time{}
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
