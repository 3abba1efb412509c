// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reassemble merges extracted elementary streams back into one
// transport stream. Two backends are tried in order: a descriptor-driven
// muxer and an ffmpeg merge.
package reassemble

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ManuGH/pvremux/internal/extract"
	"github.com/ManuGH/pvremux/internal/media"
)

// ErrPrecondition marks inputs no backend can mux: missing frame rate or an
// undetectable codec family. It is never retried with another backend.
var ErrPrecondition = errors.New("reassembly precondition failed")

// VideoStream is a raw video elementary stream.
type VideoStream struct {
	Path   string
	Family media.Family
	FPS    float64
}

// AudioStream is a raw audio elementary stream.
type AudioStream struct {
	Path   string
	Family media.Family
}

// Plan is the fully resolved input of a backend.
type Plan struct {
	Video *VideoStream
	Audio []AudioStream
	// Delay is audio start minus video start of the original container, in seconds.
	Delay float64
}

// BuildPlan probes every artifact and resolves codec families and the frame
// rate, falling back to the original container's probe.
func BuildPlan(ctx context.Context, prober media.Prober, ext extract.Result, original *media.StreamInfo) (Plan, error) {
	var plan Plan
	if original != nil {
		plan.Delay = original.AudioDelay()
	}

	if ext.Video != "" {
		v := &VideoStream{Path: ext.Video}
		if info, err := prober.Probe(ctx, ext.Video); err == nil && info.HasVideo() {
			v.Family = media.VideoFamily(info.VideoCodec)
			v.FPS = info.FPS
		}
		if original != nil {
			if v.Family == media.FamilyUnknown {
				v.Family = media.VideoFamily(original.VideoCodec)
			}
			// Raw streams often report a field rate; the container knows better.
			if original.FPS > 0 && (v.FPS == 0 || original.FPS < v.FPS) {
				v.FPS = original.FPS
			}
		}
		switch {
		case v.Family == media.FamilyUnknown:
			return Plan{}, fmt.Errorf("%w: undetectable video codec in %s", ErrPrecondition, filepath.Base(ext.Video))
		case v.FPS <= 0:
			return Plan{}, fmt.Errorf("%w: undetectable frame rate in %s", ErrPrecondition, filepath.Base(ext.Video))
		}
		plan.Video = v
	}

	for i, p := range ext.Audio {
		a := AudioStream{Path: p}
		if info, err := prober.Probe(ctx, p); err == nil && len(info.Audio) > 0 {
			a.Family = media.AudioFamily(info.Audio[0].Codec)
		}
		if a.Family == media.FamilyUnknown && original != nil && len(original.Audio) == len(ext.Audio) {
			a.Family = media.AudioFamily(original.Audio[i].Codec)
		}
		if a.Family == media.FamilyUnknown {
			return Plan{}, fmt.Errorf("%w: undetectable audio codec in %s", ErrPrecondition, filepath.Base(p))
		}
		plan.Audio = append(plan.Audio, a)
	}

	if plan.Video == nil && len(plan.Audio) == 0 {
		return Plan{}, fmt.Errorf("%w: no elementary streams", ErrPrecondition)
	}
	return plan, nil
}
