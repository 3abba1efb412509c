// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reassemble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/pvremux/internal/domain/recording"
	"github.com/ManuGH/pvremux/internal/engine"
	"github.com/ManuGH/pvremux/internal/extract"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/rs/zerolog"
)

// Target is where a backend writes.
type Target struct {
	Output     string
	WorkDir    string
	Base       string
	SourceSize int64
}

// DescriptorPath is the transient muxer descriptor for this target.
func (t Target) DescriptorPath() string {
	return filepath.Join(t.WorkDir, t.Base+".meta")
}

// Backend muxes a resolved plan into Target.Output.
type Backend interface {
	Name() string
	Mux(ctx context.Context, ctl *supervisor.JobControl, plan Plan, t Target) error
}

// Reassembler tries each backend in order and validates its output.
type Reassembler struct {
	backends  []Backend
	prober    media.Prober
	validator engine.Validator
	log       zerolog.Logger
}

func New(prober media.Prober, validator engine.Validator, logger zerolog.Logger, backends ...Backend) *Reassembler {
	return &Reassembler{
		backends:  backends,
		prober:    prober,
		validator: validator,
		log:       logger.With().Str(xglog.FieldComponent, "reassembler").Logger(),
	}
}

// Result of a reassembly. Path is set only when OK.
type Result struct {
	recording.Outcome
	Path    string
	Backend string
}

// Reassemble muxes ext into job.RemuxedPath(). original is the probe of
// the source container and may be nil. The returned error is non-nil only
// for cancellation and ErrPrecondition.
func (r *Reassembler) Reassemble(ctx context.Context, ctl *supervisor.JobControl, job recording.Job, ext extract.Result, original *media.StreamInfo) (Result, error) {
	logger := xglog.WithContext(ctx, r.log)
	plan, err := BuildPlan(ctx, r.prober, ext, original)
	if err != nil {
		logger.Error().Err(err).Msg("cannot reassemble extracted streams")
		return Result{Outcome: recording.Failed("%v", err)}, err
	}

	t := Target{
		Output:     job.RemuxedPath(),
		WorkDir:    job.WorkDir,
		Base:       job.BaseName(),
		SourceSize: engine.SourceSize(job.SourcePath),
	}
	last := "no reassembly backend configured"
	for _, b := range r.backends {
		if ctl.Cancelled() {
			return Result{Outcome: recording.Failed("cancelled")}, engine.ErrCancelled
		}
		_ = os.Remove(t.Output)
		err := b.Mux(ctx, ctl, plan, t)
		if err != nil {
			_ = os.Remove(t.Output)
			if errors.Is(err, supervisor.ErrCancelled) || ctx.Err() != nil {
				return Result{Outcome: recording.Failed("%v", err)}, fmt.Errorf("%w: %v", engine.ErrCancelled, err)
			}
			last = fmt.Sprintf("%s backend: %v", b.Name(), err)
			logger.Warn().Err(err).Str("backend", b.Name()).Msg("reassembly backend failed")
			continue
		}
		v := r.validator.Validate(ctx, t.Output, job.SourcePath)
		if !v.OK {
			_ = os.Remove(t.Output)
			last = fmt.Sprintf("%s backend: %s", b.Name(), v.Reason)
			logger.Warn().Str("backend", b.Name()).Str(xglog.FieldReason, v.Reason).Msg("reassembled output rejected")
			continue
		}
		logger.Info().Str("backend", b.Name()).Str(xglog.FieldPath, t.Output).Msg("streams reassembled")
		return Result{Outcome: recording.Succeeded(), Path: t.Output, Backend: b.Name()}, nil
	}
	return Result{Outcome: recording.Failed("%s", last)}, nil
}
