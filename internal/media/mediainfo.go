package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MediaInfo is the fallback prober backed by the mediainfo CLI.
type MediaInfo struct {
	Bin string
	run runFunc
}

func NewMediaInfo(bin string) *MediaInfo {
	if bin == "" {
		bin = "mediainfo"
	}
	return &MediaInfo{Bin: bin, run: runCommand}
}

type mediainfoDoc struct {
	Media struct {
		Track []mediainfoTrack `json:"track"`
	} `json:"media"`
}

type mediainfoTrack struct {
	Type          string `json:"@type"`
	StreamOrder   string `json:"StreamOrder"`
	Format        string `json:"Format"`
	FormatVersion string `json:"Format_Version"`
	FormatProfile string `json:"Format_Profile"`
	FrameRate     string `json:"FrameRate"`
	Channels      string `json:"Channels"`
	Language      string `json:"Language"`
	ServiceKind   string `json:"ServiceKind"`
	Delay         string `json:"Delay"`
	Duration      string `json:"Duration"`
}

func (m *MediaInfo) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	out, stderr, err := m.run(ctx, m.Bin, "--Output=JSON", path)
	if err != nil {
		return nil, fmt.Errorf("mediainfo failed: %w (stderr: %s)", err, truncate(stderr, 4096))
	}
	return ParseMediaInfoJSON(out)
}

// ParseMediaInfoJSON converts `mediainfo --Output=JSON` into StreamInfo.
// Codec names are translated into ffprobe vocabulary.
func ParseMediaInfoJSON(data []byte) (*StreamInfo, error) {
	var doc mediainfoDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	info := &StreamInfo{VideoIndex: NoStream}
	for i, t := range doc.Media.Track {
		order := i - 1
		if n, err := strconv.Atoi(strings.TrimSpace(t.StreamOrder)); err == nil {
			order = n
		}
		switch t.Type {
		case "General":
			info.Container = strings.ToLower(t.Format)
			info.Duration = parseFloat(t.Duration)
		case "Video":
			if info.VideoIndex != NoStream {
				continue
			}
			info.VideoIndex = order
			info.VideoCodec = mediainfoVideoCodec(t.Format, t.FormatVersion)
			info.FPS = parseFloat(t.FrameRate)
			info.VideoStart = parseFloat(t.Delay)
		case "Audio":
			ch, _ := strconv.Atoi(strings.TrimSpace(firstField(t.Channels)))
			kind := strings.ToUpper(strings.TrimSpace(t.ServiceKind))
			info.Audio = append(info.Audio, AudioTrack{
				Index:       len(info.Audio),
				StreamIndex: order,
				Codec:       mediainfoAudioCodec(t.Format, t.FormatProfile),
				Channels:    ch,
				Language:    normalizeLanguage(t.Language),
				Impaired:    kind == "VI" || kind == "HI",
				Start:       parseFloat(t.Delay),
			})
		}
	}
	if info.VideoIndex == NoStream && len(info.Audio) == 0 {
		return nil, ErrNoStreams
	}
	return info, nil
}

// Channels may read "2 / 6" for variable layouts.
func firstField(s string) string {
	f, _, _ := strings.Cut(s, "/")
	return f
}

func mediainfoVideoCodec(format, version string) string {
	switch strings.ToUpper(strings.TrimSpace(format)) {
	case "AVC":
		return "h264"
	case "HEVC":
		return "hevc"
	case "MPEG VIDEO":
		if strings.Contains(version, "1") {
			return "mpeg1video"
		}
		return "mpeg2video"
	default:
		return strings.ToLower(format)
	}
}

func mediainfoAudioCodec(format, profile string) string {
	switch strings.ToUpper(strings.TrimSpace(format)) {
	case "AC-3":
		return "ac3"
	case "E-AC-3":
		return "eac3"
	case "AAC":
		return "aac"
	case "DTS":
		return "dts"
	case "MPEG AUDIO":
		if strings.Contains(profile, "3") {
			return "mp3"
		}
		return "mp2"
	default:
		return strings.ToLower(format)
	}
}
