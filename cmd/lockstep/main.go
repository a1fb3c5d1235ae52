package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/boristopalov/lockstep/pkg/config"
	"github.com/boristopalov/lockstep/pkg/experiment"
	"github.com/boristopalov/lockstep/pkg/storage"
)

type runFlags struct {
	configPath string
	timesteps  int
	headless   bool
	numEnvs    int
	agentKind  string
	agents     int
	device     string
	logPath    string
}

type storeFlags struct {
	backend string
	path    string
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "lockstep",
		Short:        "lockstep trains agents on a shared batched environment in lock-step, one worker per agent.",
		SilenceUsage: true,
	}

	for _, envFile := range []string{
		".env",
		"../../.env",
		"../../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	sf := &storeFlags{}
	rootCmd.PersistentFlags().StringVar(&sf.backend, "store", "", "run store backend: memory or sqlite (overrides config)")
	rootCmd.PersistentFlags().StringVar(&sf.path, "store-path", "", "sqlite database path (overrides config)")

	rootCmd.AddCommand(
		newRunCommand("train", "Train agents on the configured environment", sf),
		newRunCommand("eval", "Evaluate agents without learning", sf),
		newRunsCommand(sf),
	)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCommand(mode, short string, sf *storeFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd, rf, sf)
			if err != nil {
				return err
			}
			cfg.Mode = mode
			return runExperiment(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&rf.configPath, "config", "c", "", "YAML run configuration")
	flags.IntVar(&rf.timesteps, "timesteps", 0, "number of timesteps")
	flags.BoolVar(&rf.headless, "headless", false, "do not render the environment")
	flags.IntVar(&rf.numEnvs, "num-envs", 0, "environment instances in the batch")
	flags.StringVar(&rf.agentKind, "agent", "", "agent kind: random, linear or llm")
	flags.IntVar(&rf.agents, "agents", 0, "number of agents, one worker each")
	flags.StringVar(&rf.device, "device", "", "tensor device: host or accelerator")
	flags.StringVar(&rf.logPath, "log-path", "", "write logs to this file")
	return cmd
}

// loadRunConfig reads the config file, if any, and applies the flags the user
// set on top of it.
func loadRunConfig(cmd *cobra.Command, rf *runFlags, sf *storeFlags) (*config.RunConfig, error) {
	cfg := config.Default()
	if rf.configPath != "" {
		loaded, err := config.LoadConfig(rf.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("timesteps") {
		cfg.Trainer.Timesteps = rf.timesteps
	}
	if flags.Changed("headless") {
		cfg.Trainer.Headless = rf.headless
	}
	if flags.Changed("num-envs") {
		cfg.Environment.NumEnvs = rf.numEnvs
	}
	if flags.Changed("device") {
		cfg.Environment.Device = rf.device
	}
	if flags.Changed("agent") || flags.Changed("agents") {
		kind, count := "linear", 1
		if len(cfg.Agents) > 0 {
			kind, count = cfg.Agents[0].Kind, cfg.AgentCount()
		}
		if flags.Changed("agent") {
			kind = rf.agentKind
		}
		if flags.Changed("agents") {
			count = rf.agents
		}
		cfg.Agents = []config.AgentConfig{{Kind: kind, Count: count}}
	}
	if flags.Changed("log-path") {
		cfg.Logging.Path = rf.logPath
	}
	if sf.backend != "" {
		cfg.Storage.Backend = sf.backend
	}
	if sf.path != "" {
		cfg.Storage.Path = sf.path
	}
	return cfg, cfg.Validate()
}

func runExperiment(ctx context.Context, cfg *config.RunConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Println("interrupt received, stopping after the current timestep")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger := log.Default()
	if cfg.Logging.Path != "" {
		f, err := os.OpenFile(cfg.Logging.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags)
	}

	store, err := storage.Open(ctx, cfg.Storage.Backend, cfg.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer storage.Close(store)

	exp, err := experiment.FromConfig(ctx, cfg, store, logger)
	if err != nil {
		return fmt.Errorf("failed to build experiment: %w", err)
	}

	start := time.Now()
	runErr := exp.Run(ctx)
	logger.Printf("run %s: %s timesteps in %s",
		exp.RunID(), humanize.Comma(int64(cfg.Trainer.Timesteps)), time.Since(start).Round(time.Millisecond))
	if runErr != nil {
		return fmt.Errorf("experiment failed: %w", runErr)
	}
	return nil
}

func newRunsCommand(sf *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default().Storage
			if sf.backend != "" {
				cfg.Backend = sf.backend
			}
			if sf.path != "" {
				cfg.Path = sf.path
			}
			store, err := storage.Open(cmd.Context(), cfg.Backend, cfg.Path, log.New(io.Discard, "", 0))
			if err != nil {
				return err
			}
			defer storage.Close(store)

			runs, err := store.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
}

func printRuns(out io.Writer, runs []storage.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "no runs recorded")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODE\tAGENTS\tENVS\tTIMESTEPS\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if !r.EndedAt.IsZero() {
			duration = r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Mode, r.Agents, r.Envs, humanize.Comma(int64(r.Timesteps)),
			r.Status, humanize.Time(r.StartedAt), duration)
	}
	return w.Flush()
}
