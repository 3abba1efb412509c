// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor watches one long-running external operation
// (an extraction session or a transcoder process) from a single poll loop.
//
// State machine:
//
//	Running -> Paused -> Running -> {Completed, Aborted, HangTimeout}
//
// Each tick reads the JobControl flags once, measures the output artifacts,
// and then applies cancellation, runaway detection, pause/resume, priority
// changes and hang detection in that order.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/pvremux/internal/config"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrCancelled means the caller asked the job to stop.
	ErrCancelled = errors.New("operation cancelled")
	// ErrRunaway means an artifact outgrew the source by more than the runaway ratio.
	ErrRunaway = errors.New("runaway output size")
	// ErrHang means no artifact grew for the hang period and the policy treats that as failure.
	ErrHang = errors.New("operation hung")
)

// State of the supervised operation.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateCompleted
	StateAborted
	StateHangTimeout
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateHangTimeout:
		return "hang_timeout"
	default:
		return "unknown"
	}
}

// Operation is an external activity already in progress.
type Operation interface {
	// Done delivers the terminal event exactly once.
	Done() <-chan error
	Pause() error
	Resume() error
	SetPriority(Priority) error
	// Stop aborts the operation and waits for it to exit.
	Stop() error
}

// Config parameterises one Supervise call.
type Config struct {
	PollInterval time.Duration
	HangPeriod   time.Duration
	StartupGrace time.Duration
	// RunawayRatio <= 0 disables runaway detection.
	RunawayRatio float64
	HangPolicy   string
	SourceSize   int64
	// Artifacts lists the files whose growth is tracked; re-evaluated every tick
	// so that outputs appearing mid-run are picked up.
	Artifacts  func() []string
	OnProgress func(percent float64)
}

// FromAppConfig copies the supervisor section of the application config.
func FromAppConfig(c config.SupervisorConfig) Config {
	return Config{
		PollInterval: c.PollInterval,
		HangPeriod:   c.HangPeriod,
		StartupGrace: c.StartupGrace,
		RunawayRatio: c.RunawayRatio,
		HangPolicy:   c.HangPolicy,
	}
}

// Report describes how a supervised operation ended.
type Report struct {
	State    State
	Reason   string
	Percent  float64
	Largest  int64
	Elapsed  time.Duration
	OpErr    error
	SoftStop bool
}

// Supervisor runs the poll loop.
type Supervisor struct {
	cfg   Config
	log   zerolog.Logger
	clock clock
	stat  func(path string) int64
}

// New creates a supervisor. A zero PollInterval defaults to one second.
func New(cfg Config, logger zerolog.Logger) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HangPolicy == "" {
		cfg.HangPolicy = config.HangPolicySoftStop
	}
	return &Supervisor{
		cfg:   cfg,
		log:   logger.With().Str(xglog.FieldComponent, "supervisor").Logger(),
		clock: realClock{},
		stat:  fileSize,
	}
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// Percent derives completion from artifact bytes versus source bytes, capped at 100.
func Percent(total, source int64) float64 {
	if source <= 0 || total <= 0 {
		return 0
	}
	p := float64(total) * 100 / float64(source)
	if p > 100 {
		return 100
	}
	return p
}

// Supervise blocks until op reports a terminal event or the loop stops it.
// A nil error with SoftStop set means the operation went quiet and was
// stopped under the soft-stop hang policy.
func (s *Supervisor) Supervise(ctx context.Context, op Operation, ctl *JobControl) (Report, error) {
	logger := xglog.WithContext(ctx, s.log)
	start := s.clock.Now()
	lastGrowth := start
	last := make(map[string]int64)
	state := StateRunning
	applied := PriorityNormal
	var rep Report

	transition := func(next State) {
		logger.Debug().
			Str(xglog.FieldOldState, state.String()).
			Str(xglog.FieldNewState, next.String()).
			Msg("supervisor state change")
		state = next
	}

	finish := func(next State, reason string, err error) (Report, error) {
		transition(next)
		rep.State = state
		rep.Reason = reason
		rep.Elapsed = s.clock.Now().Sub(start)
		metrics.IncSupervisorStop(reason)
		return rep, err
	}

	abort := func(next State, reason string, err error) (Report, error) {
		if stopErr := op.Stop(); stopErr != nil {
			logger.Debug().Err(stopErr).Str(xglog.FieldReason, reason).Msg("stop returned error")
		}
		return finish(next, reason, err)
	}

	if p := ctl.Priority(); p != PriorityNormal {
		if err := op.SetPriority(p); err != nil {
			logger.Warn().Err(err).Str("priority", p.String()).Msg("failed to apply initial priority")
		}
		applied = p
	}

	t := s.clock.NewTicker(s.cfg.PollInterval)
	defer t.Stop()

	for {
		select {
		case err := <-op.Done():
			rep.OpErr = err
			if err != nil {
				return finish(StateCompleted, "failed", err)
			}
			return finish(StateCompleted, "completed", nil)

		case <-ctx.Done():
			return abort(StateAborted, "cancelled", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))

		case <-t.C():
			now := s.clock.Now()
			snap := ctl.Snapshot()

			if snap.Cancelled {
				return abort(StateAborted, "cancelled", ErrCancelled)
			}

			// Output written during the tick in which pause was requested still counts.
			var total int64
			grew := false
			var paths []string
			if s.cfg.Artifacts != nil {
				paths = s.cfg.Artifacts()
			}
			for _, p := range paths {
				size := s.stat(p)
				total += size
				if size > last[p] {
					grew = true
				}
				last[p] = size
				if size > rep.Largest {
					rep.Largest = size
				}
			}
			if grew {
				lastGrowth = now
			}
			rep.Percent = Percent(total, s.cfg.SourceSize)
			if s.cfg.OnProgress != nil {
				s.cfg.OnProgress(rep.Percent)
			}

			if s.cfg.RunawayRatio > 0 && s.cfg.SourceSize > 0 &&
				float64(rep.Largest) > s.cfg.RunawayRatio*float64(s.cfg.SourceSize) {
				logger.Error().
					Int64("artifact_size", rep.Largest).
					Int64("source_size", s.cfg.SourceSize).
					Float64("ratio", s.cfg.RunawayRatio).
					Msg("artifact outgrew source, aborting runaway operation")
				return abort(StateAborted, "runaway", fmt.Errorf("%w: artifact %d bytes exceeds %.2fx source %d bytes",
					ErrRunaway, rep.Largest, s.cfg.RunawayRatio, s.cfg.SourceSize))
			}

			switch {
			case snap.Paused && state == StateRunning:
				if err := op.Pause(); err != nil {
					logger.Warn().Err(err).Msg("pause failed")
				}
				transition(StatePaused)
			case !snap.Paused && state == StatePaused:
				if err := op.Resume(); err != nil {
					logger.Warn().Err(err).Msg("resume failed")
				}
				transition(StateRunning)
				// Paused time never counts toward the hang period.
				lastGrowth = now
			}

			if snap.Priority != applied {
				if err := op.SetPriority(snap.Priority); err != nil {
					logger.Warn().Err(err).Str("priority", snap.Priority.String()).Msg("failed to change priority")
				}
				applied = snap.Priority
			}

			if state != StateRunning || now.Sub(start) < s.cfg.StartupGrace {
				continue
			}
			if s.cfg.HangPeriod > 0 && now.Sub(lastGrowth) > s.cfg.HangPeriod {
				if s.cfg.HangPolicy == config.HangPolicyError {
					logger.Error().Dur("idle", now.Sub(lastGrowth)).Msg("operation hung")
					return abort(StateHangTimeout, "hang_error", fmt.Errorf("%w: no output growth for %s", ErrHang, now.Sub(lastGrowth)))
				}
				logger.Info().
					Dur("idle", now.Sub(lastGrowth)).
					Float64(xglog.FieldPercent, rep.Percent).
					Msg("no output growth for hang period, treating as end of stream")
				rep.SoftStop = true
				return abort(StateHangTimeout, "hang_soft_stop", nil)
			}
		}
	}
}
