package media

import (
	"context"
	"errors"
	"fmt"

	xglog "github.com/ManuGH/pvremux/internal/log"
)

// Reconcile merges two probe outcomes. When both succeed the primary result
// is used with the lower nonzero frame rate; otherwise whichever succeeded.
func Reconcile(primary *StreamInfo, perr error, fallback *StreamInfo, ferr error) (*StreamInfo, error) {
	switch {
	case perr == nil && primary != nil && ferr == nil && fallback != nil:
		out := *primary
		out.Audio = append([]AudioTrack(nil), primary.Audio...)
		out.FPS = lowerNonZero(primary.FPS, fallback.FPS)
		if out.VideoCodec == "" {
			out.VideoCodec = fallback.VideoCodec
		}
		return &out, nil
	case perr == nil && primary != nil:
		return primary, nil
	case ferr == nil && fallback != nil:
		return fallback, nil
	default:
		return nil, fmt.Errorf("all probes failed: %w", errors.Join(perr, ferr))
	}
}

func lowerNonZero(a, b float64) float64 {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case b < a:
		return b
	default:
		return a
	}
}

// DualProber consults the fallback when the primary fails or reports no
// usable frame rate, then reconciles both answers.
type DualProber struct {
	Primary  Prober
	Fallback Prober
	// Always forces the fallback probe even when the primary looks fine.
	Always bool
}

func (d DualProber) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	p, perr := d.Primary.Probe(ctx, path)
	if d.Fallback == nil {
		return p, perr
	}
	if perr == nil && !d.Always && (!p.HasVideo() || p.FPS > 0) {
		return p, nil
	}
	f, ferr := d.Fallback.Probe(ctx, path)
	if perr == nil && ferr != nil {
		logger := xglog.WithComponent("probe")
		logger.Debug().Err(ferr).Str(xglog.FieldPath, path).Msg("fallback probe failed")
	}
	return Reconcile(p, perr, f, ferr)
}
