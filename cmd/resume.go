package main

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/aron-barm/SMAC3/internal/chooser"
	"github.com/aron-barm/SMAC3/internal/forest"
	"github.com/aron-barm/SMAC3/internal/history"
	"github.com/aron-barm/SMAC3/internal/run"
)

var (
	resumeDataDir string
	resumeTrials  int
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume an optimization run from its checkpoint",
	Long: `Restores the observation history from the run's checkpoint and continues
the trial loop. Strategy-internal state (global model, trust region, switch
counters) is rebuilt from the restored history as trials proceed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for checkpoints and traces")
	resumeCmd.Flags().IntVar(&resumeTrials, "trials", 0, "New total trial count (0 = keep the stored count)")

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]

	store, err := history.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	checkpoint, err := store.LoadCheckpoint(runID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("no checkpoint found for run %s", runID)
		}
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	objective, sp, err := buildBenchmark(checkpoint.Config.Function)
	if err != nil {
		return err
	}

	totalTrials := checkpoint.Config.Trials
	if resumeTrials > 0 {
		totalTrials = resumeTrials
	}
	if checkpoint.Trial >= totalTrials {
		return fmt.Errorf("run %s already completed %d of %d trials", runID, checkpoint.Trial, totalTrials)
	}

	rng := rand.New(rand.NewSource(checkpoint.Config.Seed))
	hist := history.New()
	hist.Restore(checkpoint.Records)
	global := forest.New(forest.DefaultOptions(), sp.CatDims(), rng)

	opts := chooser.DefaultOptions()
	opts.Switching = checkpoint.Config.Switching
	ch, err := chooser.New(sp, global, hist, rng, opts)
	if err != nil {
		return fmt.Errorf("failed to build chooser: %w", err)
	}
	ch.Restore()

	cfg := run.DefaultConfig()
	cfg.Trials = totalTrials
	cfg.Meta = checkpoint.Config
	cfg.Meta.Trials = totalTrials

	loop := run.New(sp, ch, hist, objective, cfg)
	loop.RunID = checkpoint.RunID
	loop.StartTrial = checkpoint.Trial
	loop.Store = store

	trace, err := history.NewTraceWriter(resumeDataDir, checkpoint.RunID, true)
	if err != nil {
		return fmt.Errorf("failed to open trace writer: %w", err)
	}
	defer trace.Close()
	loop.Trace = trace

	result, err := loop.Run()
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: best cost %.6g after %d trials\n", result.RunID, result.BestCost, result.Trials)
	fmt.Printf("Best parameters: %v\n", formatParams(sp.Params(), result.BestParams))
	return nil
}
