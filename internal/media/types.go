// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media probes recordings and elementary streams for the stream
// metadata the remux ladder decides on: video codec and frame rate, and the
// per-track audio layout.
package media

import (
	"context"
	"errors"
	"strings"
)

// NoStream marks an absent video stream.
const NoStream = -1

// ErrNoStreams is returned when a probe produced no usable video or audio stream.
var ErrNoStreams = errors.New("no playable streams")

// Prober returns stream metadata for a file.
type Prober interface {
	Probe(ctx context.Context, path string) (*StreamInfo, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, path string) (*StreamInfo, error)

func (f ProberFunc) Probe(ctx context.Context, path string) (*StreamInfo, error) { return f(ctx, path) }

// AudioTrack is one audio stream of a container.
type AudioTrack struct {
	// Index is the ordinal among audio tracks.
	Index int
	// StreamIndex is the container-native stream index used by -map.
	StreamIndex int
	Codec       string
	// Channels == 0 marks a decodable but broken track.
	Channels int
	Language string
	Impaired bool
	// Start in seconds.
	Start float64
}

// StreamInfo is the probe result for one file.
type StreamInfo struct {
	Container  string
	VideoCodec string
	FPS        float64
	VideoIndex int
	VideoStart float64
	Duration   float64
	Audio      []AudioTrack
}

// HasVideo reports whether a video stream was found.
func (s *StreamInfo) HasVideo() bool {
	return s != nil && s.VideoIndex != NoStream && s.VideoCodec != ""
}

// AudioDelay is the start of the first audio track minus the video start, in seconds.
func (s *StreamInfo) AudioDelay() float64 {
	if s == nil || len(s.Audio) == 0 || !s.HasVideo() {
		return 0
	}
	return s.Audio[0].Start - s.VideoStart
}

// ImpairedCount counts accessibility tracks.
func (s *StreamInfo) ImpairedCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, a := range s.Audio {
		if a.Impaired {
			n++
		}
	}
	return n
}

// NonImpairedCount counts regular audio tracks.
func (s *StreamInfo) NonImpairedCount() int {
	if s == nil {
		return 0
	}
	return len(s.Audio) - s.ImpairedCount()
}

// HasZeroChannelAudio reports a track that is present but carries no channels.
func (s *StreamInfo) HasZeroChannelAudio() bool {
	if s == nil {
		return false
	}
	for _, a := range s.Audio {
		if a.Channels <= 0 {
			return true
		}
	}
	return false
}

// Family groups codec identifiers the way the muxers care about them.
type Family string

const (
	FamilyUnknown Family = ""
	FamilyH264    Family = "h264"
	FamilyHEVC    Family = "hevc"
	FamilyMPEG2   Family = "mpeg2"
	FamilyMPEG1   Family = "mpeg1"
	FamilyAC3     Family = "ac3"
	FamilyAAC     Family = "aac"
	FamilyDTS     Family = "dts"
	FamilyMP3     Family = "mp3"
)

// VideoFamily maps an ffprobe/mediainfo video codec name to its family.
func VideoFamily(codec string) Family {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "h264", "avc", "avc1":
		return FamilyH264
	case "hevc", "h265":
		return FamilyHEVC
	case "mpeg2video", "mpeg2", "mpeg-2":
		return FamilyMPEG2
	case "mpeg1video", "mpeg1", "mpeg-1":
		return FamilyMPEG1
	default:
		return FamilyUnknown
	}
}

// AudioFamily maps an audio codec name to its family.
func AudioFamily(codec string) Family {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "ac3", "ac-3", "eac3", "e-ac-3":
		return FamilyAC3
	case "aac", "aac_latm":
		return FamilyAAC
	case "dts", "dca":
		return FamilyDTS
	case "mp3", "mp2", "mp1", "mpeg audio":
		return FamilyMP3
	default:
		return FamilyUnknown
	}
}

// IsLegacyMPEG reports MPEG-1/2 video, which every target container accepts.
func IsLegacyMPEG(codec string) bool {
	f := VideoFamily(codec)
	return f == FamilyMPEG1 || f == FamilyMPEG2
}
