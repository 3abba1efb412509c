package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/pvremux/internal/config"
	"github.com/ManuGH/pvremux/internal/domain/recording"
	"github.com/ManuGH/pvremux/internal/engine"
	"github.com/ManuGH/pvremux/internal/extract"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/metrics"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/google/uuid"
)

func (c *Coordinator) ladder(job recording.Job, info *media.StreamInfo, profile config.ProfileSet, rx Remuxer, ctl *supervisor.JobControl) []rung {
	tool := func(s recording.Strategy, template string, runaway bool) rung {
		if strings.TrimSpace(template) == "" {
			return rung{strategy: s}
		}
		return rung{strategy: s, run: func(ctx context.Context) (outcome, error) {
			var fps float64
			if info != nil {
				fps = info.FPS
			}
			res, err := rx.RunTool(ctx, engine.ToolRequest{
				Strategy: s,
				Template: template,
				Job:      job,
				Control:  ctl,
				FPS:      fps,
				Runaway:  runaway,
			})
			return fromEngine(res), err
		}}
	}
	generic := rung{strategy: recording.StrategyGenericRemux, run: func(ctx context.Context) (outcome, error) {
		res, err := rx.Remux(ctx, engine.Request{Job: job, Mode: recording.ModeBoth, Control: ctl, Source: info})
		return fromEngine(res), err
	}}
	native := c.nativeRung(job, info, ctl)

	switch job.Format {
	case recording.FormatEncryptedRecord:
		// Key material is single use: no fallback exists for this class.
		return []rung{tool(recording.StrategyDecryptRemux, c.cfg.Tools.DecryptRemux, false)}

	case recording.FormatLegacyDVR:
		return []rung{native, tool(recording.StrategyBackupTranscoder, c.cfg.Tools.BackupTranscoder, true), generic}

	case recording.FormatBroadcastWrap:
		var out []rung
		nativeFirst := profile.Bool(config.KeyForceNativeExtraction, false) || engine.CopyEligible(info, c.cfg.Remux)
		if nativeFirst {
			out = append(out, native)
		}
		// The byte-level remuxer hangs on anything but MPEG-2.
		if info != nil && media.VideoFamily(info.VideoCodec) == media.FamilyMPEG2 {
			out = append(out, tool(recording.StrategyLegacyByteRemux, c.cfg.Tools.LegacyRemux, true))
		}
		out = append(out, generic)
		if !nativeFirst {
			out = append(out, native)
		}
		return out

	default:
		return []rung{generic, native}
	}
}

// nativeRung extracts elementary streams and reassembles them. The
// extraction artifacts are removed on every path out of the rung.
func (c *Coordinator) nativeRung(job recording.Job, info *media.StreamInfo, ctl *supervisor.JobControl) rung {
	r := rung{strategy: recording.StrategyNativeExtraction}
	if c.deps.Extractors == nil || c.deps.Reassembler == nil {
		return r
	}
	r.run = func(ctx context.Context) (out outcome, err error) {
		attempt := recording.Attempt{ID: uuid.NewString(), Strategy: recording.StrategyNativeExtraction}
		ctx = xglog.ContextWithAttemptID(ctx, attempt.ID)
		defer func() {
			attempt.OK = out.OK
			attempt.Diagnostic = out.Diagnostic
			if err != nil && attempt.Diagnostic == "" {
				attempt.Diagnostic = err.Error()
			}
			out.attempts = append(out.attempts, attempt)
			result := "failure"
			switch {
			case errors.Is(err, ErrCancelled):
				result = "cancelled"
			case out.OK:
				result = "success"
			}
			metrics.IncStrategyAttempt(string(recording.StrategyNativeExtraction), result)
		}()

		session, err := c.deps.Extractors.NewSession()
		if err != nil {
			return outcome{Outcome: recording.Failed("extraction session: %v", err)}, nil
		}
		defer func() { _ = session.Dispose() }()

		req := extract.Request{SourcePath: job.SourcePath, WorkDir: job.WorkDir, Kinds: recording.KindAll}
		if err := session.Build(ctx, req); err != nil {
			return outcome{Outcome: recording.Failed("build extraction: %v", err)}, nil
		}
		stopCancel := context.AfterFunc(ctx, session.Cancel)
		runErr := session.Run(ctx, ctl)
		stopCancel()
		ext := session.Results()
		defer func() {
			if cerr := ext.Cleanup(); cerr != nil {
				c.log.Warn().Err(cerr).Msg("failed to remove extraction artifacts")
			}
		}()
		if runErr != nil {
			if errors.Is(runErr, supervisor.ErrCancelled) || ctx.Err() != nil {
				return outcome{Outcome: recording.Failed("extraction cancelled")}, fmt.Errorf("%w: %v", ErrCancelled, runErr)
			}
			return outcome{Outcome: recording.Failed("extraction: %v", runErr)}, nil
		}
		if !ext.OK {
			return outcome{Outcome: recording.Failed("extraction produced no usable streams")}, nil
		}

		res, err := c.deps.Reassembler.Reassemble(ctx, ctl, job, ext, info)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return outcome{Outcome: res.Outcome}, err
			}
			// Precondition failures end this strategy only.
			return outcome{Outcome: recording.Failed("reassembly: %v", err)}, nil
		}
		return outcome{Outcome: res.Outcome, path: res.Path}, nil
	}
	return r
}
