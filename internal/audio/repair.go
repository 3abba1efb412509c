// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package audio

import (
	"errors"

	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/metrics"
	"github.com/ManuGH/pvremux/internal/params"
	"github.com/rs/zerolog"
)

// ErrRepairExhausted is returned on a third Repair call for the same attempt.
var ErrRepairExhausted = errors.New("audio repair exhausted")

// Phase of the repair state machine.
type Phase int

const (
	CheckingSource Phase = iota
	CheckingOutput
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case CheckingSource:
		return "source"
	case CheckingOutput:
		return "output"
	default:
		return "exhausted"
	}
}

// Decision is the outcome of one Repair call.
type Decision struct {
	Args      []string
	Adjusted  bool
	Triggered bool
	Track     *media.AudioTrack
}

// Repairer is scoped to a single remux attempt. The first call inspects the
// source, the second the produced output; there is no third.
type Repairer struct {
	lang  string
	phase Phase
	// applied is set once explicit maps replaced the map-all directives.
	applied *media.AudioTrack
	log     zerolog.Logger
}

func NewRepairer(lang string, logger zerolog.Logger) *Repairer {
	return &Repairer{
		lang: lang,
		log:  logger.With().Str(xglog.FieldComponent, "audio_repair").Logger(),
	}
}

// Phase reports which check the next Repair call performs.
func (r *Repairer) Phase() Phase { return r.phase }

// Repair checks inspected (the source on the first call, the produced
// output on the second) and, when needed, rewrites args to map one video
// and one audio stream of the source explicitly.
func (r *Repairer) Repair(args []string, source, inspected *media.StreamInfo) (Decision, error) {
	phase := r.phase
	if phase == Exhausted {
		metrics.IncAudioRepair("exhausted", "unchanged")
		return Decision{Args: args}, ErrRepairExhausted
	}
	r.phase++

	if source == nil {
		return Decision{Args: args}, nil
	}
	if inspected == nil {
		inspected = source
	}

	triggered := Degenerate(source, inspected, r.applied != nil)
	proactive := phase == CheckingSource && ShouldScore(source.Audio, r.lang)
	if !triggered && !proactive {
		metrics.IncAudioRepair(phase.String(), "unchanged")
		return Decision{Args: args}, nil
	}

	track, ok := Select(source.Audio, r.lang)
	if !ok {
		r.log.Warn().
			Str(xglog.FieldPhase, phase.String()).
			Str(xglog.FieldLanguage, r.lang).
			Int("tracks", len(source.Audio)).
			Msg("no qualifying audio track, leaving stream selection to the remux tool")
		metrics.IncAudioRepair(phase.String(), "no_candidate")
		return Decision{Args: args, Triggered: triggered}, nil
	}

	base := params.StripMapAll(args)
	if r.applied != nil {
		base = params.RemoveMaps(base, source.VideoIndex, r.applied.StreamIndex)
	}
	out := params.InsertMaps(base, source.VideoIndex, track.StreamIndex)
	if r.applied != nil && r.applied.StreamIndex == track.StreamIndex && equalArgs(out, args) {
		metrics.IncAudioRepair(phase.String(), "unchanged")
		return Decision{Args: args, Triggered: triggered, Track: r.applied}, nil
	}
	r.applied = &track
	r.log.Info().
		Str(xglog.FieldPhase, phase.String()).
		Int(xglog.FieldAudioTrack, track.Index).
		Int(xglog.FieldChannels, track.Channels).
		Str(xglog.FieldLanguage, track.Language).
		Bool("triggered", triggered).
		Msg("selected explicit audio track")
	metrics.IncAudioRepair(phase.String(), "adjusted")
	return Decision{Args: out, Adjusted: true, Triggered: triggered, Track: &track}, nil
}

// Preselect applies a requested language before the first run. It does not
// consume a repair pass.
func (r *Repairer) Preselect(args []string, source *media.StreamInfo) ([]string, bool) {
	if source == nil || r.lang == "" || !ShouldScore(source.Audio, r.lang) {
		return args, false
	}
	track, ok := Select(source.Audio, r.lang)
	if !ok {
		r.log.Warn().Str(xglog.FieldLanguage, r.lang).Msg("no audio track in requested language")
		return args, false
	}
	r.applied = &track
	return params.InsertMaps(params.StripMapAll(args), source.VideoIndex, track.StreamIndex), true
}

// Degenerate reports whether inspected carries a zero-channel track or lost
// non-impaired tracks compared to the source. With an explicit selection in
// place a single surviving non-impaired track is enough.
func Degenerate(source, inspected *media.StreamInfo, selected bool) bool {
	if inspected.HasZeroChannelAudio() {
		return true
	}
	want := source.NonImpairedCount()
	if selected && want > 1 {
		want = 1
	}
	return inspected.NonImpairedCount() < want
}

func equalArgs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
