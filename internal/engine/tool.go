package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/pvremux/internal/domain/recording"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/params"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/google/uuid"
)

// ErrToolNotConfigured is reported when a helper strategy has no template.
var ErrToolNotConfigured = errors.New("tool not configured")

// ToolRequest runs a helper command template whose first token is the binary.
type ToolRequest struct {
	Strategy recording.Strategy
	Template string
	Job      recording.Job
	Control  *supervisor.JobControl
	// Output defaults to Job.RemuxedPath().
	Output  string
	FPS     float64
	Runaway bool
}

// RunTool runs a helper tool (decrypt-remux, backup transcoder, legacy
// byte remuxer) and validates what it produced.
func (e *Engine) RunTool(ctx context.Context, req ToolRequest) (Result, error) {
	if req.Output == "" {
		req.Output = req.Job.RemuxedPath()
	}
	attempt := recording.Attempt{ID: uuid.NewString(), Strategy: req.Strategy}
	logger := xglog.WithContext(xglog.ContextWithAttemptID(ctx, attempt.ID), e.log).With().
		Str(xglog.FieldStrategy, string(req.Strategy)).
		Logger()

	var res Result
	done := func(diag string) (Result, error) {
		attempt.Diagnostic = diag
		e.record(&res, attempt)
		res.Outcome = recording.Failed("%s", diag)
		return res, nil
	}

	argv, err := params.Expand(req.Template, params.Values{
		Source:  req.Job.SourcePath,
		Output:  req.Output,
		WorkDir: req.Job.WorkDir,
		Base:    req.Job.BaseName(),
		Key:     req.Job.DecryptionKey,
		FPS:     req.FPS,
	})
	if err != nil {
		return done(fmt.Sprintf("%s: %v", req.Strategy, err))
	}
	if len(argv) == 0 || argv[0] == req.Output {
		return done(fmt.Sprintf("%s: %v", req.Strategy, ErrToolNotConfigured))
	}
	// Key material never reaches the attempt log.
	attempt.Args = redact(argv[1:], req.Job.DecryptionKey)

	_ = os.Remove(req.Output)
	_, err = e.runner.Run(ctx, req.Control, Invocation{
		Bin:        argv[0],
		Args:       argv[1:],
		Dir:        req.Job.WorkDir,
		SourceSize: SourceSize(req.Job.SourcePath),
		Artifacts:  []string{req.Output},
		Runaway:    req.Runaway,
	})
	if err != nil {
		_ = os.Remove(req.Output)
		if errors.Is(err, supervisor.ErrCancelled) || ctx.Err() != nil {
			attempt.Diagnostic = err.Error()
			res.Attempts = append(res.Attempts, attempt)
			return res, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return done(fmt.Sprintf("%s failed: %v", filepath.Base(argv[0]), err))
	}

	v := e.validator.Validate(ctx, req.Output, req.Job.SourcePath)
	if !v.OK {
		_ = os.Remove(req.Output)
		logger.Warn().Str(xglog.FieldReason, v.Reason).Msg("tool output rejected")
		return done(fmt.Sprintf("%s: %s", req.Strategy, v.Reason))
	}

	attempt.OK = true
	e.record(&res, attempt)
	res.Outcome = recording.Succeeded()
	res.Path = req.Output
	logger.Info().Str(xglog.FieldPath, req.Output).Msg("tool output validated")
	return res, nil
}

func redact(args []string, secret string) []string {
	out := append([]string(nil), args...)
	if secret == "" {
		return out
	}
	for i, a := range out {
		if a == secret {
			out[i] = "<redacted>"
		}
	}
	return out
}
