package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ManuGH/pvremux/internal/config"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/params"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/rs/zerolog"
)

// CommandSession runs an external extractor tool from a command template.
// The tool must write <base>_VIDEO, <base>_AUDIO<n> and <base>_SUBTITLE<n>
// into <workdir>.
type CommandSession struct {
	template string
	sup      config.SupervisorConfig
	log      zerolog.Logger

	mu       sync.Mutex
	req      Request
	argv     []string
	built    bool
	disposed bool
	cancel   context.CancelFunc
	result   Result
}

// NewCommandFactory returns a factory for CommandSessions. An empty template
// yields sessions whose Build fails with ErrNotAvailable.
func NewCommandFactory(template string, sup config.SupervisorConfig, logger zerolog.Logger) Factory {
	return FactoryFunc(func() (Session, error) {
		return &CommandSession{
			template: template,
			sup:      sup,
			log:      logger.With().Str(xglog.FieldComponent, "extractor").Logger(),
		}, nil
	})
}

func (s *CommandSession) Build(_ context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if strings.TrimSpace(s.template) == "" {
		return ErrNotAvailable
	}
	if req.Kinds == 0 {
		return errors.New("no stream kinds requested")
	}
	argv, err := params.Expand(s.template, params.Values{
		Source:  req.SourcePath,
		WorkDir: req.WorkDir,
		Base:    req.Base(),
		Kinds:   KindsArg(req.Kinds),
	})
	if err != nil {
		return fmt.Errorf("extractor template: %w", err)
	}
	if len(argv) == 0 {
		return ErrNotAvailable
	}
	// Stale artifacts from an earlier attempt would be mistaken for output.
	for _, p := range ExpectedPaths(req) {
		_ = os.Remove(p)
	}
	s.req = req
	s.argv = argv
	s.built = true
	return nil
}

func (s *CommandSession) Run(ctx context.Context, ctl *supervisor.JobControl) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if !s.built {
		s.mu.Unlock()
		return ErrNotBuilt
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	req, argv := s.req, s.argv
	s.mu.Unlock()
	defer cancel()

	logger := xglog.WithContext(ctx, s.log)
	op, err := supervisor.StartCommand(supervisor.CommandSpec{
		Path:      argv[0],
		Args:      argv[1:],
		Dir:       req.WorkDir,
		KillGrace: s.sup.KillGrace,
	})
	if err != nil {
		return err
	}

	scfg := supervisor.FromAppConfig(s.sup)
	fi, statErr := os.Stat(req.SourcePath)
	if statErr == nil {
		scfg.SourceSize = fi.Size()
	}
	expected := ExpectedPaths(req)
	scfg.Artifacts = func() []string { return expected }
	scfg.OnProgress = func(p float64) {
		logger.Debug().Float64(xglog.FieldPercent, p).Msg("extraction progress")
	}

	rep, err := supervisor.New(scfg, logger).Supervise(ctx, op, ctl)
	res := Collect(req)
	s.mu.Lock()
	s.result = res
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if rep.SoftStop {
		logger.Info().Msg("extractor stopped emitting output, collecting what was written")
	}
	if !res.OK {
		return fmt.Errorf("extractor produced no usable streams (%s)", KindsArg(req.Kinds))
	}
	return nil
}

func (s *CommandSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *CommandSession) Results() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Dispose releases the session. Artifacts stay with whoever holds Results.
func (s *CommandSession) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.disposed = true
	return nil
}
