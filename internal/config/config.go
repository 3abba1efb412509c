// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"
)

// Hang policies for supervised operations that stop producing output
// without reporting a terminal event.
const (
	HangPolicySoftStop = "soft_stop"
	HangPolicyError    = "error"
)

// DefaultProfile is used when a job does not name a profile.
const DefaultProfile = "default"

// FileConfig represents the YAML configuration structure
type FileConfig struct {
	LogLevel   string                       `yaml:"logLevel,omitempty"`
	Tools      ToolsConfig                  `yaml:"tools,omitempty"`
	Remux      RemuxFileConfig              `yaml:"remux,omitempty"`
	Supervisor SupervisorFileConfig         `yaml:"supervisor,omitempty"`
	Profiles   map[string]map[string]string `yaml:"profiles,omitempty"`
}

// ToolsConfig names the external binaries and helper command templates.
// Helper entries are full command templates (binary first) using the
// parameter tokens understood by internal/params.
type ToolsConfig struct {
	FFmpeg           string `yaml:"ffmpeg,omitempty"`
	FFprobe          string `yaml:"ffprobe,omitempty"`
	MediaInfo        string `yaml:"mediainfo,omitempty"`
	Muxer            string `yaml:"muxer,omitempty"`
	Extractor        string `yaml:"extractor,omitempty"`
	DecryptRemux     string `yaml:"decryptRemux,omitempty"`
	BackupTranscoder string `yaml:"backupTranscoder,omitempty"`
	LegacyRemux      string `yaml:"legacyRemux,omitempty"`
}

// RemuxFileConfig uses pointers to distinguish "not set" from explicit false/zero.
type RemuxFileConfig struct {
	AllowH264Copy         *bool    `yaml:"allowH264Copy,omitempty"`
	AllowAllCodecs        *bool    `yaml:"allowAllCodecs,omitempty"`
	VerifyTransportStream *bool    `yaml:"verifyTransportStream,omitempty"`
	MinFreeSpaceFactor    *float64 `yaml:"minFreeSpaceFactor,omitempty"`
}

// SupervisorFileConfig holds durations as strings (e.g. "500ms", "2m").
type SupervisorFileConfig struct {
	PollInterval string   `yaml:"pollInterval,omitempty"`
	HangPeriod   string   `yaml:"hangPeriod,omitempty"`
	StartupGrace string   `yaml:"startupGrace,omitempty"`
	KillGrace    string   `yaml:"killGrace,omitempty"`
	RunawayRatio *float64 `yaml:"runawayRatio,omitempty"`
	HangPolicy   string   `yaml:"hangPolicy,omitempty"`
}

// Tools is the resolved tool table.
type Tools struct {
	FFmpeg           string
	FFprobe          string
	MediaInfo        string
	Muxer            string
	Extractor        string
	DecryptRemux     string
	BackupTranscoder string
	LegacyRemux      string
}

// RemuxConfig gates copy eligibility and output checks.
type RemuxConfig struct {
	AllowH264Copy         bool
	AllowAllCodecs        bool
	VerifyTransportStream bool
	MinFreeSpaceFactor    float64
}

// SupervisorConfig drives the process supervisor poll loop.
type SupervisorConfig struct {
	PollInterval time.Duration
	HangPeriod   time.Duration
	StartupGrace time.Duration
	KillGrace    time.Duration
	RunawayRatio float64
	HangPolicy   string
}

// AppConfig holds all configuration for the application
type AppConfig struct {
	LogLevel   string
	Tools      Tools
	Remux      RemuxConfig
	Supervisor SupervisorConfig
	Profiles   map[string]ProfileSet
}

// Profile returns the named parameter profile. An empty name selects
// DefaultProfile.
func (c AppConfig) Profile(name string) (ProfileSet, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		return ProfileSet{}, ErrUnknownProfile
	}
	return p, nil
}
