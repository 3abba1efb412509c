// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine implements the generic copy/recode remux: numbered
// ffmpeg parameter profiles are tried in order, each one guarded by the
// zero-channel audio repair and judged by the output validator. It also
// runs the configured helper tools (decrypt, backup transcoder, legacy
// byte remuxer) the same supervised way.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/pvremux/internal/audio"
	"github.com/ManuGH/pvremux/internal/config"
	"github.com/ManuGH/pvremux/internal/domain/recording"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/metrics"
	"github.com/ManuGH/pvremux/internal/params"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/ManuGH/pvremux/internal/validate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrCancelled is returned when the caller cancelled the job. Any other
// failure is reported through Result.Outcome.
var ErrCancelled = errors.New("remux cancelled")

// Validator judges produced files.
type Validator interface {
	Validate(ctx context.Context, path, sourcePath string) validate.Result
}

// Config is the static part of an engine.
type Config struct {
	FFmpeg  string
	Remux   config.RemuxConfig
	Profile config.ProfileSet
}

// Engine is safe for concurrent use; per-job state lives in Request.
type Engine struct {
	cfg       Config
	prober    media.Prober
	validator Validator
	runner    Runner
	log       zerolog.Logger
}

func New(cfg Config, prober media.Prober, validator Validator, runner Runner, logger zerolog.Logger) *Engine {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	return &Engine{
		cfg:       cfg,
		prober:    prober,
		validator: validator,
		runner:    runner,
		log:       logger.With().Str(xglog.FieldComponent, "remux_engine").Logger(),
	}
}

// Request is one generic remux of a job.
type Request struct {
	Job     recording.Job
	Mode    recording.Mode
	Control *supervisor.JobControl
	// Source is the probe of the input; probed when nil.
	Source *media.StreamInfo
	// Output defaults to Job.RemuxedPath().
	Output string
}

// Result of a remux or tool run. Path is set only when OK.
type Result struct {
	recording.Outcome
	Path           string
	Recoded        bool
	SkippedSeconds float64
	FrameWarning   bool
	Attempts       []recording.Attempt
}

// CopyEligible reports whether the video codec may be stream-copied.
func CopyEligible(info *media.StreamInfo, rc config.RemuxConfig) bool {
	if rc.AllowAllCodecs {
		return true
	}
	if info == nil {
		return false
	}
	if !info.HasVideo() {
		return len(info.Audio) > 0
	}
	if media.IsLegacyMPEG(info.VideoCodec) {
		return true
	}
	return rc.AllowH264Copy && media.VideoFamily(info.VideoCodec) == media.FamilyH264
}

// Remux runs the copy profiles, then the recode profiles, until one
// output validates.
func (e *Engine) Remux(ctx context.Context, req Request) (Result, error) {
	logger := xglog.WithContext(ctx, e.log).With().
		Str(xglog.FieldMode, req.Mode.String()).
		Str(xglog.FieldProfile, e.cfg.Profile.Name).
		Logger()
	if req.Output == "" {
		req.Output = req.Job.RemuxedPath()
	}

	info := req.Source
	if info == nil {
		probed, err := e.prober.Probe(ctx, req.Job.SourcePath)
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldSourcePath, req.Job.SourcePath).Msg("source probe failed, continuing without stream metadata")
		} else {
			info = probed
		}
	}
	var fps float64
	if info != nil {
		fps = info.FPS
		logger.Info().
			Str(xglog.FieldCodec, info.VideoCodec).
			Float64(xglog.FieldFPS, fps).
			Int("audio_tracks", len(info.Audio)).
			Msg("source probed")
	}

	var res Result
	last := "no remux profiles configured"

	if req.Mode != recording.ModeRecodeOnly {
		if CopyEligible(info, e.cfg.Remux) {
			for _, p := range e.cfg.Profile.Numbered(config.KeyCopyRemux) {
				ok, err := e.tryProfile(ctx, logger, req, info, fps, p, false, &res)
				if err != nil {
					return res, err
				}
				if ok {
					return res, nil
				}
				last = res.Diagnostic
			}
		} else {
			logger.Info().Str(xglog.FieldCodec, codecOf(info)).Msg("video codec not copy-eligible, skipping copy profiles")
			last = fmt.Sprintf("codec %q not eligible for copy remux", codecOf(info))
		}
	}

	if req.Mode != recording.ModeCopyOnly {
		for _, p := range e.cfg.Profile.Numbered(config.KeySlowRemux) {
			ok, err := e.tryProfile(ctx, logger, req, info, fps, p, true, &res)
			if err != nil {
				return res, err
			}
			if ok {
				return res, nil
			}
			last = res.Diagnostic
		}
	}

	res.Outcome = recording.Failed("all remux profiles failed: %s", last)
	res.Path = ""
	return res, nil
}

func codecOf(info *media.StreamInfo) string {
	if info == nil {
		return "unknown"
	}
	return info.VideoCodec
}

// tryProfile runs one numbered profile, with at most one corrective
// re-run driven by the audio repair.
func (e *Engine) tryProfile(ctx context.Context, logger zerolog.Logger, req Request, info *media.StreamInfo, fps float64, p config.NumberedTemplate, recode bool, res *Result) (bool, error) {
	if req.Control.Cancelled() {
		return false, ErrCancelled
	}
	job := req.Job
	attempt := recording.Attempt{
		ID:       uuid.NewString(),
		Strategy: recording.StrategyGenericRemux,
		Profile:  p.Key,
	}
	ctx = xglog.ContextWithAttemptID(ctx, attempt.ID)
	logger = logger.With().Str(xglog.FieldAttemptID, attempt.ID).Str("template", p.Key).Logger()

	args, err := params.Expand(p.Template, params.Values{
		Source:  job.SourcePath,
		Output:  req.Output,
		WorkDir: job.WorkDir,
		Base:    job.BaseName(),
		FPS:     fps,
	})
	if err != nil {
		attempt.Diagnostic = fmt.Sprintf("%s: %v", p.Key, err)
		e.record(res, attempt)
		return false, nil
	}

	repairer := audio.NewRepairer(job.AudioLanguage, logger)
	if pre, ok := repairer.Preselect(args, info); ok {
		args = pre
	}

	fail := func(err error) (bool, error) {
		attempt.Args = args
		attempt.Diagnostic = err.Error()
		e.record(res, attempt)
		if errors.Is(err, ErrCancelled) {
			return false, err
		}
		return false, nil
	}

	stats, v, err := e.runAndValidate(ctx, req, args, !recode)
	if err != nil {
		return fail(err)
	}

	// Bounded repair: one pass against the source, one against the output.
	for !v.OK && v.AudioProblem() && info != nil && repairer.Phase() != audio.Exhausted {
		inspected := info
		if repairer.Phase() == audio.CheckingOutput {
			inspected = v.Info
		}
		dec, rerr := repairer.Repair(args, info, inspected)
		if rerr != nil || !dec.Adjusted {
			continue
		}
		logger.Info().Str(xglog.FieldReason, v.Reason).Msg("re-running profile with explicit audio selection")
		args = dec.Args
		if stats, v, err = e.runAndValidate(ctx, req, args, !recode); err != nil {
			return fail(err)
		}
	}

	attempt.Args = args
	attempt.DropRate = stats.DropRate()
	attempt.DupRate = stats.DupRate()
	if !v.OK {
		attempt.Diagnostic = fmt.Sprintf("%s: %s", p.Key, v.Reason)
		_ = os.Remove(req.Output)
		logger.Warn().Str(xglog.FieldReason, v.Reason).Msg("remux profile output rejected")
		e.record(res, attempt)
		return false, nil
	}

	attempt.OK = true
	e.record(res, attempt)
	res.Outcome = recording.Succeeded()
	res.Path = req.Output
	res.Recoded = recode
	res.SkippedSeconds = params.SkippedSeconds(args)
	res.FrameWarning = e.frameWarning(logger, stats)
	logger.Info().Bool("recoded", recode).Msg("remux profile succeeded")
	return true, nil
}

func (e *Engine) record(res *Result, a recording.Attempt) {
	res.Attempts = append(res.Attempts, a)
	res.Diagnostic = a.Diagnostic
	outcome := "failure"
	if a.OK {
		outcome = "success"
	}
	metrics.IncStrategyAttempt(string(a.Strategy), outcome)
}

// ffmpegPrefix makes every run non-interactive and machine-readable.
var ffmpegPrefix = []string{"-hide_banner", "-nostdin", "-y", "-progress", "pipe:1"}

// runAndValidate runs one ffmpeg invocation. Copy runs are held to the
// runaway ratio; a recode may legitimately outgrow its source.
func (e *Engine) runAndValidate(ctx context.Context, req Request, args []string, runaway bool) (Stats, validate.Result, error) {
	_ = os.Remove(req.Output)
	inv := Invocation{
		Bin:        e.cfg.FFmpeg,
		Args:       append(append([]string(nil), ffmpegPrefix...), args...),
		Dir:        req.Job.WorkDir,
		SourceSize: SourceSize(req.Job.SourcePath),
		Artifacts:  []string{req.Output},
		Runaway:    runaway,
	}
	stats, err := e.runner.Run(ctx, req.Control, inv)
	if err != nil {
		_ = os.Remove(req.Output)
		if errors.Is(err, supervisor.ErrCancelled) || ctx.Err() != nil {
			return stats, validate.Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return stats, validate.Result{}, fmt.Errorf("%s failed: %w", filepath.Base(e.cfg.FFmpeg), err)
	}
	return stats, e.validator.Validate(ctx, req.Output, req.Job.SourcePath), nil
}

// frameWarning flags a degraded success. Thresholds are percentages.
func (e *Engine) frameWarning(logger zerolog.Logger, s Stats) bool {
	dropMax := e.cfg.Profile.Float(config.KeyDropThreshold, config.DefaultFrameWarnThreshold)
	dupMax := e.cfg.Profile.Float(config.KeyDuplicateThreshold, config.DefaultFrameWarnThreshold)
	warn := false
	if r := s.DropRate(); r > dropMax {
		metrics.IncFrameWarning("dropped")
		logger.Warn().Float64("drop_rate", r).Float64("threshold", dropMax).
			Msg("excessive dropped frames, consider overriding the frame rate manually")
		warn = true
	}
	if r := s.DupRate(); r > dupMax {
		metrics.IncFrameWarning("duplicated")
		logger.Warn().Float64("dup_rate", r).Float64("threshold", dupMax).
			Msg("excessive duplicated frames, consider overriding the frame rate manually")
		warn = true
	}
	return warn
}
