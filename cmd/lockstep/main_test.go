package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/boristopalov/lockstep/pkg/storage"
)

func TestLoadRunConfigAppliesChangedFlags(t *testing.T) {
	sf := &storeFlags{backend: "memory"}
	cmd := newRunCommand("train", "", sf)
	if err := cmd.ParseFlags([]string{"--timesteps", "50", "--agents", "3", "--agent", "random", "--headless"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	rf := flagsOf(t, cmd)

	cfg, err := loadRunConfig(cmd, rf, sf)
	if err != nil {
		t.Fatalf("loadRunConfig() error = %v", err)
	}
	if cfg.Trainer.Timesteps != 50 {
		t.Errorf("timesteps = %d, want 50", cfg.Trainer.Timesteps)
	}
	if !cfg.Trainer.Headless {
		t.Error("headless flag not applied")
	}
	if cfg.AgentCount() != 3 || cfg.Agents[0].Kind != "random" {
		t.Errorf("agents = %+v, want 3 random", cfg.Agents)
	}
	if cfg.Environment.NumEnvs != 16 {
		t.Errorf("num envs = %d, want the default 16", cfg.Environment.NumEnvs)
	}
}

func TestLoadRunConfigRejectsBadFlags(t *testing.T) {
	sf := &storeFlags{}
	cmd := newRunCommand("train", "", sf)
	if err := cmd.ParseFlags([]string{"--device", "tpu"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := loadRunConfig(cmd, flagsOf(t, cmd), sf); err == nil {
		t.Error("expected an error for an unknown device")
	}
}

func TestPrintRuns(t *testing.T) {
	var out bytes.Buffer
	if err := printRuns(&out, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "no runs recorded") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	start := time.Now().Add(-time.Hour)
	err := printRuns(&out, []storage.RunRecord{{
		ID: "run-1", Name: "pointmass", Mode: "train", Agents: 3, Envs: 30,
		Timesteps: 100000, Status: storage.StatusFinished, StartedAt: start, EndedAt: start.Add(90 * time.Second),
	}})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"run-1", "100,000", "finished", "1 hour ago", "1m30s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q does not contain %q", out.String(), want)
		}
	}
}

// flagsOf reads the parsed flag values back into a runFlags.
func flagsOf(t *testing.T, cmd *cobra.Command) *runFlags {
	t.Helper()
	f := cmd.Flags()
	rf := &runFlags{}
	rf.configPath, _ = f.GetString("config")
	rf.timesteps, _ = f.GetInt("timesteps")
	rf.headless, _ = f.GetBool("headless")
	rf.numEnvs, _ = f.GetInt("num-envs")
	rf.agentKind, _ = f.GetString("agent")
	rf.agents, _ = f.GetInt("agents")
	rf.device, _ = f.GetString("device")
	rf.logPath, _ = f.GetString("log-path")
	return rf
}
