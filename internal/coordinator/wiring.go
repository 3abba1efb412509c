package coordinator

import (
	"github.com/ManuGH/pvremux/internal/config"
	"github.com/ManuGH/pvremux/internal/engine"
	"github.com/ManuGH/pvremux/internal/extract"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/reassemble"
	"github.com/ManuGH/pvremux/internal/validate"
	"github.com/rs/zerolog"
)

// NewFromConfig wires the process-backed implementation of every collaborator.
func NewFromConfig(cfg config.AppConfig, logger zerolog.Logger) *Coordinator {
	ffprobe := media.NewFFProbe(cfg.Tools.FFprobe)
	var prober media.Prober = ffprobe
	if cfg.Tools.MediaInfo != "" {
		// Both tools are consulted so a disagreement on the frame rate is seen.
		prober = media.DualProber{Primary: ffprobe, Fallback: media.NewMediaInfo(cfg.Tools.MediaInfo), Always: true}
	}
	validator := validate.New(ffprobe, validate.Options{VerifyTransportStream: cfg.Remux.VerifyTransportStream}, logger)
	runner := engine.NewProcessRunner(cfg.Supervisor, logger)

	var backends []reassemble.Backend
	if cfg.Tools.Muxer != "" {
		backends = append(backends, &reassemble.DescriptorBackend{Muxer: cfg.Tools.Muxer, Runner: runner})
	}
	backends = append(backends, &reassemble.MergeBackend{FFmpeg: cfg.Tools.FFmpeg, Runner: runner})

	deps := Deps{
		Prober: prober,
		NewRemuxer: func(profile config.ProfileSet) Remuxer {
			return engine.New(engine.Config{FFmpeg: cfg.Tools.FFmpeg, Remux: cfg.Remux, Profile: profile}, prober, validator, runner, logger)
		},
		Reassembler: reassemble.New(ffprobe, validator, logger, backends...),
	}
	if cfg.Tools.Extractor != "" {
		deps.Extractors = extract.NewCommandFactory(cfg.Tools.Extractor, cfg.Supervisor, logger)
	}
	return New(cfg, deps, logger)
}
