package experiment

import (
	"context"
	"fmt"
	"log"

	"github.com/boristopalov/lockstep/pkg/agent"
	"github.com/boristopalov/lockstep/pkg/config"
	"github.com/boristopalov/lockstep/pkg/core"
	"github.com/boristopalov/lockstep/pkg/environment"
	"github.com/boristopalov/lockstep/pkg/providers"
	"github.com/boristopalov/lockstep/pkg/scope"
	"github.com/boristopalov/lockstep/pkg/storage"
	"github.com/boristopalov/lockstep/pkg/tensor"
	"github.com/boristopalov/lockstep/pkg/trainer"
)

// FromConfig builds the environment, the agents and their scopes described by
// cfg. Every agent writes its tracking data to store under the new run.
func FromConfig(ctx context.Context, cfg *config.RunConfig, store storage.Store, logger *log.Logger) (*BaseExperiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	mode, err := core.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	runID := NewRunID()

	envOpts := []environment.Option{
		environment.WithSeed(cfg.Environment.Seed),
		environment.WithMaxSteps(cfg.Environment.MaxSteps),
		environment.WithRenderer(logger.Writer()),
	}
	if cfg.Environment.Device == "accelerator" {
		envOpts = append(envOpts, environment.WithDevice(tensor.Accelerator))
	}
	env, err := environment.NewPointMass(cfg.Environment.NumEnvs, envOpts...)
	if err != nil {
		return nil, err
	}

	agents, err := buildAgents(ctx, cfg, store, runID, logger)
	if err != nil {
		return nil, err
	}

	var scopes scope.Table
	if counts := cfg.EnvCounts(); counts != nil {
		scopes, err = scope.FromCounts(counts)
	} else if len(agents) > 1 {
		scopes, err = scope.Even(cfg.Environment.NumEnvs, len(agents))
	}
	if err != nil {
		return nil, err
	}

	return NewExperiment(Params{
		RunID:  runID,
		Name:   cfg.Name,
		Mode:   mode,
		Env:    env,
		Agents: agents,
		Scopes: scopes,
		Trainer: trainer.Config{
			Timesteps:        cfg.Trainer.Timesteps,
			Headless:         cfg.Trainer.Headless,
			InitialTimestep:  cfg.Trainer.InitialTimestep,
			ProgressInterval: cfg.Trainer.ProgressInterval,
			ShutdownGrace:    cfg.Trainer.ShutdownGrace,
		},
		Store:  store,
		Logger: logger,
	})
}

func buildAgents(ctx context.Context, cfg *config.RunConfig, store storage.Store, runID string, logger *log.Logger) ([]core.Agent, error) {
	clients := map[string]providers.Client{}
	var agents []core.Agent
	for i, ac := range cfg.Agents {
		for j := 0; j < ac.Count; j++ {
			id := fmt.Sprintf("%s-%d", ac.Kind, len(agents))
			opts := []agent.AgentOption{
				agent.WithAgentId(id),
				agent.WithLogger(logger),
				agent.WithTracker(storage.NewTracker(store, runID, id), cfg.Logging.WriteInterval),
				agent.WithSeed(ac.Seed + uint64(len(agents)) + 1),
			}
			if ac.Kind == "llm" {
				client, ok := clients[ac.Provider]
				if !ok {
					var err error
					client, err = providers.New(ctx, ac.Provider, providers.WithLogger(logger))
					if err != nil {
						return nil, fmt.Errorf("agents[%d]: %w", i, err)
					}
					clients[ac.Provider] = client
				}
				opts = append(opts, agent.WithClient(client))
				if ac.Model != "" {
					opts = append(opts, agent.WithModel(agent.ModelInfo{Id: ac.Model, Config: ac.Config}))
				}
			}
			a, err := agent.New(ac.Kind, opts...)
			if err != nil {
				return nil, fmt.Errorf("agents[%d]: %w", i, err)
			}
			agents = append(agents, a)
		}
	}
	return agents, nil
}
