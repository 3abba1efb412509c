// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package coordinator walks the remux strategy ladder for one recording.
//
// Ladders by format class:
//
//	encrypted_recorder: decrypt_remux
//	legacy_dvr:         native_extraction, backup_transcoder, generic_remux
//	broadcast_wrapper:  [native_extraction], legacy_byte_remux, generic_remux, native_extraction
//	generic_ts:         generic_remux, native_extraction
//
// The first validated output wins; strategies are never revisited.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/pvremux/internal/config"
	"github.com/ManuGH/pvremux/internal/domain/recording"
	"github.com/ManuGH/pvremux/internal/engine"
	"github.com/ManuGH/pvremux/internal/extract"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/reassemble"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

var (
	// ErrLadderExhausted wraps the last diagnostic when no strategy succeeded.
	ErrLadderExhausted = errors.New("all remux strategies failed")
	// ErrPreflight is returned before any strategy ran.
	ErrPreflight = errors.New("preflight check failed")
	// ErrCancelled aborts the whole job.
	ErrCancelled = engine.ErrCancelled
)

// Remuxer is the generic remux engine plus helper tool execution.
type Remuxer interface {
	Remux(ctx context.Context, req engine.Request) (engine.Result, error)
	RunTool(ctx context.Context, req engine.ToolRequest) (engine.Result, error)
}

// Reassembler muxes extracted streams into one container.
type Reassembler interface {
	Reassemble(ctx context.Context, ctl *supervisor.JobControl, job recording.Job, ext extract.Result, original *media.StreamInfo) (reassemble.Result, error)
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Prober media.Prober
	// NewRemuxer builds an engine bound to one parameter profile.
	NewRemuxer  func(profile config.ProfileSet) Remuxer
	Extractors  extract.Factory
	Reassembler Reassembler
	// FreeSpace reports free bytes in dir; defaults to gopsutil disk usage.
	FreeSpace func(dir string) (uint64, error)
}

// Coordinator is safe for concurrent jobs; it holds only read-only config.
type Coordinator struct {
	cfg  config.AppConfig
	deps Deps
	log  zerolog.Logger
}

func New(cfg config.AppConfig, deps Deps, logger zerolog.Logger) *Coordinator {
	if deps.FreeSpace == nil {
		deps.FreeSpace = diskFree
	}
	return &Coordinator{
		cfg:  cfg,
		deps: deps,
		log:  logger.With().Str(xglog.FieldComponent, "coordinator").Logger(),
	}
}

func diskFree(dir string) (uint64, error) {
	u, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

// rung is one ladder step; nil run means the strategy is unavailable.
type rung struct {
	strategy recording.Strategy
	run      func(ctx context.Context) (outcome, error)
}

type outcome struct {
	recording.Outcome
	path           string
	recoded        bool
	skippedSeconds float64
	frameWarning   bool
	attempts       []recording.Attempt
}

func fromEngine(r engine.Result) outcome {
	return outcome{
		Outcome:        r.Outcome,
		path:           r.Path,
		recoded:        r.Recoded,
		skippedSeconds: r.SkippedSeconds,
		frameWarning:   r.FrameWarning,
		attempts:       r.Attempts,
	}
}

// Remux converts one recording. ctl may be nil.
//
// Without a work directory the job gets a fresh one next to the source, so a
// .ts recording can take its final <base>.ts name without touching the
// source. That directory is removed again when the job fails.
func (c *Coordinator) Remux(ctx context.Context, job recording.Job, ctl *supervisor.JobControl) (recording.Result, error) {
	job = c.normalize(job)
	if job.WorkDir != "" {
		return c.remux(ctx, job, ctl)
	}
	if _, err := checkSource(job.SourcePath); err != nil {
		return recording.Result{}, err
	}
	dir, err := os.MkdirTemp(filepath.Dir(job.SourcePath), "pvremux-"+job.BaseName()+"-")
	if err != nil {
		return recording.Result{}, fmt.Errorf("%w: create work directory: %v", ErrPreflight, err)
	}
	job.WorkDir = dir
	res, err := c.remux(ctx, job, ctl)
	if err != nil {
		if rerr := os.RemoveAll(dir); rerr != nil {
			c.log.Warn().Err(rerr).Str(xglog.FieldWorkDir, dir).Msg("failed to remove work directory")
		}
	}
	return res, err
}

func (c *Coordinator) remux(ctx context.Context, job recording.Job, ctl *supervisor.JobControl) (recording.Result, error) {
	ctx = xglog.ContextWithJobID(ctx, job.ID)
	logger := xglog.WithContext(ctx, c.log).With().
		Str(xglog.FieldFormat, string(job.Format)).
		Str(xglog.FieldSourcePath, job.SourcePath).
		Logger()

	profile, err := c.cfg.Profile(job.Profile)
	if err != nil {
		return recording.Result{}, fmt.Errorf("profile %q: %w", job.Profile, err)
	}
	if err := c.preflight(job); err != nil {
		logger.Error().Err(err).Msg("preflight failed")
		return recording.Result{}, err
	}

	info, perr := c.deps.Prober.Probe(ctx, job.SourcePath)
	if perr != nil {
		logger.Warn().Err(perr).Msg("source probe failed, continuing without stream metadata")
		info = nil
	}

	remuxer := c.deps.NewRemuxer(profile)
	ladder := c.ladder(job, info, profile, remuxer, ctl)

	var result recording.Result
	last := "no strategy available"
	for _, r := range ladder {
		if ctl.Cancelled() || ctx.Err() != nil {
			return result, ErrCancelled
		}
		if r.run == nil {
			logger.Debug().Str(xglog.FieldStrategy, string(r.strategy)).Msg("strategy not configured, skipping")
			continue
		}
		logger.Info().Str(xglog.FieldStrategy, string(r.strategy)).Msg("trying strategy")
		out, err := r.run(ctx)
		result.Attempts = append(result.Attempts, out.attempts...)
		if err != nil {
			_ = os.Remove(job.RemuxedPath())
			if errors.Is(err, ErrCancelled) {
				logger.Warn().Str(xglog.FieldStrategy, string(r.strategy)).Msg("job cancelled")
				return result, err
			}
			last = err.Error()
			continue
		}
		if !out.OK {
			_ = os.Remove(job.RemuxedPath())
			last = out.Diagnostic
			logger.Warn().Str(xglog.FieldStrategy, string(r.strategy)).Str(xglog.FieldReason, out.Diagnostic).Msg("strategy failed")
			continue
		}

		result.Strategy = r.strategy
		result.Recoded = out.recoded
		result.SkippedSeconds = out.skippedSeconds
		result.FrameWarning = out.frameWarning
		result.Path = c.finalize(logger, job, out.path)
		logger.Info().
			Str(xglog.FieldStrategy, string(r.strategy)).
			Str(xglog.FieldFinalPath, result.Path).
			Bool("recoded", result.Recoded).
			Msg("recording remuxed")
		return result, nil
	}
	logger.Error().Str(xglog.FieldReason, last).Int("attempts", len(result.Attempts)).Msg("all strategies failed")
	return result, fmt.Errorf("%w: %s", ErrLadderExhausted, last)
}

func (c *Coordinator) normalize(job recording.Job) recording.Job {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Format == "" {
		job.Format = recording.ClassifyPath(job.SourcePath)
	}
	return job
}

func checkSource(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreflight, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrPreflight, path)
	}
	return fi, nil
}

func (c *Coordinator) preflight(job recording.Job) error {
	fi, err := checkSource(job.SourcePath)
	if err != nil {
		return err
	}
	wd, err := os.Stat(job.WorkDir)
	if err != nil || !wd.IsDir() {
		return fmt.Errorf("%w: work directory %s is not usable", ErrPreflight, job.WorkDir)
	}
	factor := c.cfg.Remux.MinFreeSpaceFactor
	if factor <= 0 {
		return nil
	}
	free, err := c.deps.FreeSpace(job.WorkDir)
	if err != nil {
		c.log.Warn().Err(err).Str(xglog.FieldWorkDir, job.WorkDir).Msg("free space unknown, skipping check")
		return nil
	}
	need := uint64(float64(fi.Size()) * factor)
	if free < need {
		return fmt.Errorf("%w: %d bytes free in %s, need %d", ErrPreflight, free, job.WorkDir, need)
	}
	return nil
}

// finalize renames <base>-REMUXED.ts to <base>.ts when the source was a .ts
// file, unless that would overwrite the source itself.
func (c *Coordinator) finalize(logger zerolog.Logger, job recording.Job, produced string) string {
	if !job.SourceIsTS() || produced != job.RemuxedPath() {
		return produced
	}
	target := filepath.Join(job.WorkDir, job.BaseName()+".ts")
	if samePath(target, job.SourcePath) {
		logger.Warn().Str(xglog.FieldPath, produced).Msg("work dir holds the source, keeping -REMUXED name")
		return produced
	}
	if err := os.Rename(produced, target); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldPath, target).Msg("rename failed, keeping -REMUXED name")
		return produced
	}
	return target
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
