// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	xglog "github.com/ManuGH/pvremux/internal/log"
)

// FFProbe is the primary prober.
type FFProbe struct {
	Bin string
	run runFunc
}

// NewFFProbe returns a prober using the given ffprobe binary.
func NewFFProbe(bin string) *FFProbe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFProbe{Bin: bin, run: runCommand}
}

type ffprobeData struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

type ffprobeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	Channels     int    `json:"channels"`
	StartTime    string `json:"start_time"`
	Duration     string `json:"duration"`
	Disposition  struct {
		AttachedPic     int `json:"attached_pic"`
		VisualImpaired  int `json:"visual_impaired"`
		HearingImpaired int `json:"hearing_impaired"`
	} `json:"disposition"`
	Tags struct {
		Language string `json:"language"`
	} `json:"tags"`
}

// Probe runs ffprobe. A non-zero exit is tolerated when the JSON still
// describes at least one playable stream (partial recordings do this).
func (p *FFProbe) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	out, stderr, err := p.run(ctx, p.Bin, args...)

	info, parseErr := ParseFFProbeJSON(out)
	if parseErr == nil {
		if err != nil {
			logger := xglog.WithComponent("probe")
			logger.Warn().Err(err).
				Str(xglog.FieldPath, path).
				Str("stderr", truncate(stderr, 4096)).
				Msg("ffprobe non-zero exit but JSON accepted")
		}
		return info, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, truncate(stderr, 4096))
	}
	return nil, parseErr
}

// ParseFFProbeJSON converts ffprobe -show_streams -show_format output.
func ParseFFProbeJSON(data []byte) (*StreamInfo, error) {
	var d ffprobeData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}

	info := &StreamInfo{VideoIndex: NoStream, Container: normalizeContainer(d.Format.FormatName)}
	for _, s := range d.Streams {
		if s.CodecName == "" {
			continue
		}
		switch s.CodecType {
		case "video":
			// First real video stream wins; cover art is not video.
			if info.VideoIndex != NoStream || s.Disposition.AttachedPic == 1 {
				continue
			}
			info.VideoIndex = s.Index
			info.VideoCodec = s.CodecName
			info.VideoStart = parseFloat(s.StartTime)
			info.FPS = ParseRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = ParseRate(s.RFrameRate)
			}
			info.Duration = parseFloat(s.Duration)
		case "audio":
			info.Audio = append(info.Audio, AudioTrack{
				Index:       len(info.Audio),
				StreamIndex: s.Index,
				Codec:       s.CodecName,
				Channels:    s.Channels,
				Language:    normalizeLanguage(s.Tags.Language),
				Impaired:    s.Disposition.VisualImpaired == 1 || s.Disposition.HearingImpaired == 1,
				Start:       parseFloat(s.StartTime),
			})
		}
	}
	if info.VideoIndex == NoStream && len(info.Audio) == 0 {
		return nil, ErrNoStreams
	}
	if info.Duration == 0 {
		info.Duration = parseFloat(d.Format.Duration)
	}
	return info, nil
}

// ParseRate parses "30000/1001" or "25". Unparseable or degenerate rates are 0.
func ParseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "0/0" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d <= 0 {
			return 0
		}
		return n / d
	}
	return parseFloat(s)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// normalizeContainer prefers "ts" over ffprobe's comma list.
func normalizeContainer(name string) string {
	for _, part := range strings.Split(name, ",") {
		if part == "mpegts" {
			return "ts"
		}
	}
	if first, _, _ := strings.Cut(name, ","); first != "" {
		return first
	}
	return name
}

func normalizeLanguage(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if l == "und" {
		return ""
	}
	return l
}
