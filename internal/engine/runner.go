// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ManuGH/pvremux/internal/config"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/rs/zerolog"
)

// Invocation is one supervised external tool run.
type Invocation struct {
	Bin  string
	Args []string
	Dir  string
	// SourceSize and Artifacts feed progress and hang detection.
	SourceSize int64
	Artifacts  []string
	// Runaway enables the output-size guard.
	Runaway bool
}

// Runner executes invocations under the job's control block.
type Runner interface {
	Run(ctx context.Context, ctl *supervisor.JobControl, inv Invocation) (Stats, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, ctl *supervisor.JobControl, inv Invocation) (Stats, error)

func (f RunnerFunc) Run(ctx context.Context, ctl *supervisor.JobControl, inv Invocation) (Stats, error) {
	return f(ctx, ctl, inv)
}

// ProcessRunner starts the tool in its own process group and supervises it.
type ProcessRunner struct {
	cfg config.SupervisorConfig
	log zerolog.Logger
}

func NewProcessRunner(cfg config.SupervisorConfig, logger zerolog.Logger) *ProcessRunner {
	return &ProcessRunner{cfg: cfg, log: logger.With().Str(xglog.FieldComponent, "runner").Logger()}
}

func (r *ProcessRunner) Run(ctx context.Context, ctl *supervisor.JobControl, inv Invocation) (Stats, error) {
	var parser progressParser
	op, err := supervisor.StartCommand(supervisor.CommandSpec{
		Path:      inv.Bin,
		Args:      inv.Args,
		Dir:       inv.Dir,
		OnStdout:  parser.ParseLine,
		KillGrace: r.cfg.KillGrace,
	})
	if err != nil {
		return Stats{}, err
	}
	logger := xglog.WithContext(ctx, r.log)
	logger.Debug().Int(xglog.FieldPID, op.PID()).Str("bin", inv.Bin).Strs("args", inv.Args).Msg("tool started")

	scfg := supervisor.FromAppConfig(r.cfg)
	scfg.SourceSize = inv.SourceSize
	if !inv.Runaway {
		scfg.RunawayRatio = 0
	}
	artifacts := inv.Artifacts
	scfg.Artifacts = func() []string { return artifacts }

	rep, err := supervisor.New(scfg, logger).Supervise(ctx, op, ctl)
	stats := parser.Stats()
	if err != nil {
		return stats, withStderrTail(err, op.Diagnostics())
	}
	if rep.SoftStop {
		logger.Warn().
			Float64(xglog.FieldPercent, rep.Percent).
			Msg("tool went quiet without exiting, accepting output as complete")
	}
	return stats, nil
}

// SourceSize returns the size of path or 0.
func SourceSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// withStderrTail attaches the last stderr line to errors raised by the
// supervisor itself; exit errors already carry the tail.
func withStderrTail(err error, tail []string) error {
	if len(tail) == 0 || !(errors.Is(err, supervisor.ErrRunaway) || errors.Is(err, supervisor.ErrHang)) {
		return err
	}
	return fmt.Errorf("%w: %s", err, tail[len(tail)-1])
}
