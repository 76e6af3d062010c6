package run

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aron-barm/SMAC3/internal/chooser"
	"github.com/aron-barm/SMAC3/internal/history"
	"github.com/aron-barm/SMAC3/internal/space"
)

// Objective evaluates one configuration in native (denormalized) units and
// returns its cost. Lower is better.
type Objective func(x []float64) float64

// Config tunes the evaluation loop.
type Config struct {
	// Trials is the total evaluation budget.
	Trials int

	// Budget is the fidelity recorded with each observation.
	Budget float64

	// CheckpointEvery saves a checkpoint after this many trials; zero
	// checkpoints only at the end.
	CheckpointEvery int

	Convergence ConvergenceConfig

	// Meta is persisted in checkpoints so a resumed run can verify it
	// reproduces the same settings.
	Meta history.RunConfig
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		Trials:          100,
		Budget:          1.0,
		CheckpointEvery: 10,
		Convergence:     DefaultConvergenceConfig(),
	}
}

// Result holds the output of an optimization run.
type Result struct {
	RunID       string
	Trials      int
	BestParams  []float64 // native units
	BestEncoded []float64
	BestCost    float64
	Converged   bool
}

// Loop drives the trial cycle: ask the chooser for candidates, evaluate the
// first one, record the observation, and repeat. It is single-threaded; the
// chooser is only mutated between evaluations.
type Loop struct {
	Space     *space.Space
	Chooser   *chooser.Chooser
	History   *history.History
	Objective Objective
	Config    Config

	RunID string

	// Store and Trace are optional persistence hooks.
	Store history.Store
	Trace *history.TraceWriter

	// StartTrial is nonzero when resuming from a checkpoint.
	StartTrial int
}

// New assembles a loop with a fresh run ID.
func New(sp *space.Space, ch *chooser.Chooser, hist *history.History, objective Objective, cfg Config) *Loop {
	return &Loop{
		Space:     sp,
		Chooser:   ch,
		History:   hist,
		Objective: objective,
		Config:    cfg,
		RunID:     uuid.New().String(),
	}
}

// Run executes the remaining trials and returns the incumbent.
func (l *Loop) Run() (*Result, error) {
	tracker := NewConvergenceTracker(l.Config.Convergence)
	slog.Info("starting optimization",
		"runID", l.RunID,
		"trials", l.Config.Trials,
		"startTrial", l.StartTrial,
		"dimensions", l.Space.Dim(),
	)

	trial := l.StartTrial
	converged := false
	for ; trial < l.Config.Trials; trial++ {
		challengers, err := l.Chooser.GenerateChallengers()
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}
		x, ok := challengers.Next()
		if !ok {
			return nil, fmt.Errorf("trial %d: no candidate produced", trial)
		}

		cost := l.Objective(l.Space.Denormalize(x))
		l.Chooser.RecordObservation(x, cost, l.Config.Budget)

		_, best, _ := l.History.Best()
		slog.Debug("trial complete",
			"trial", trial,
			"cost", cost,
			"best", best,
			"strategy", l.Chooser.State().Active.String(),
		)

		if l.Trace != nil {
			entry := history.TraceEntry{
				Trial:     trial,
				Cost:      cost,
				Best:      best,
				Strategy:  l.Chooser.State().Active.String(),
				Budget:    l.Config.Budget,
				Timestamp: time.Now(),
				X:         x,
			}
			if err := l.Trace.Append(entry); err != nil {
				slog.Warn("failed to append trace entry", "error", err)
			}
		}

		if l.Config.CheckpointEvery > 0 && (trial+1)%l.Config.CheckpointEvery == 0 {
			if err := l.checkpoint(trial + 1); err != nil {
				slog.Warn("failed to save checkpoint", "error", err)
			}
		}

		if tracker.Update(cost) {
			converged = true
			trial++
			break
		}
	}

	if err := l.checkpoint(trial); err != nil {
		slog.Warn("failed to save final checkpoint", "error", err)
	}
	if l.Trace != nil {
		if err := l.Trace.Flush(); err != nil {
			slog.Warn("failed to flush trace", "error", err)
		}
	}

	bestX, bestCost, ok := l.History.Best()
	if !ok {
		return nil, fmt.Errorf("run produced no observations")
	}
	result := &Result{
		RunID:       l.RunID,
		Trials:      trial,
		BestParams:  l.Space.Denormalize(bestX),
		BestEncoded: bestX,
		BestCost:    bestCost,
		Converged:   converged,
	}
	slog.Info("optimization complete",
		"runID", l.RunID,
		"trials", result.Trials,
		"bestCost", result.BestCost,
		"converged", result.Converged,
	)
	return result, nil
}

func (l *Loop) checkpoint(trial int) error {
	if l.Store == nil {
		return nil
	}
	bestX, bestCost, ok := l.History.Best()
	if !ok {
		return nil
	}
	return l.Store.SaveCheckpoint(l.RunID, &history.Checkpoint{
		RunID:     l.RunID,
		Trial:     trial,
		BestX:     bestX,
		BestValue: bestCost,
		Records:   l.History.Records(),
		Config:    l.Config.Meta,
		Timestamp: time.Now(),
	})
}
