package engine

import (
	"strconv"
	"strings"
	"sync"
)

// Stats are the frame counters reported on ffmpeg's -progress pipe.
type Stats struct {
	Frames     int64
	Dropped    int64
	Duplicated int64
	TotalSize  int64
	Ended      bool
}

// DropRate is dropped frames as a percentage of output frames.
func (s Stats) DropRate() float64 { return ratio(s.Dropped, s.Frames) }

// DupRate is duplicated frames as a percentage of output frames.
func (s Stats) DupRate() float64 { return ratio(s.Duplicated, s.Frames) }

func ratio(n, frames int64) float64 {
	if frames <= 0 || n <= 0 {
		return 0
	}
	return float64(n) * 100 / float64(frames)
}

// progressParser accumulates key=value lines. Counters only move forward.
type progressParser struct {
	mu    sync.Mutex
	stats Stats
}

func (p *progressParser) ParseLine(line string) {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch key {
	case "frame":
		setMax(&p.stats.Frames, val)
	case "drop_frames":
		setMax(&p.stats.Dropped, val)
	case "dup_frames":
		setMax(&p.stats.Duplicated, val)
	case "total_size":
		setMax(&p.stats.TotalSize, val)
	case "progress":
		if val == "end" {
			p.stats.Ended = true
		}
	}
}

func setMax(dst *int64, val string) {
	n, err := strconv.ParseInt(val, 10, 64)
	if err == nil && n > *dst {
		*dst = n
	}
}

func (p *progressParser) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
