// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys consumed by the loader.
const (
	EnvLogLevel     = "PVREMUX_LOG_LEVEL"
	EnvFFmpeg       = "PVREMUX_FFMPEG"
	EnvFFprobe      = "PVREMUX_FFPROBE"
	EnvMediaInfo    = "PVREMUX_MEDIAINFO"
	EnvMuxer        = "PVREMUX_MUXER"
	EnvHangPeriod   = "PVREMUX_HANG_PERIOD"
	EnvPollInterval = "PVREMUX_POLL_INTERVAL"
	EnvRunawayRatio = "PVREMUX_RUNAWAY_RATIO"
	EnvHangPolicy   = "PVREMUX_HANG_POLICY"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader. An empty path loads
// defaults and environment only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load loads configuration with precedence: ENV > File > Defaults
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return AppConfig{}, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
		if err := mergeFile(&cfg, fileCfg); err != nil {
			return AppConfig{}, err
		}
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Tools: Tools{
			FFmpeg:    "ffmpeg",
			FFprobe:   "ffprobe",
			MediaInfo: "mediainfo",
			Muxer:     "tsMuxeR",
		},
		Remux: RemuxConfig{
			AllowH264Copy:      true,
			MinFreeSpaceFactor: 1.5,
		},
		Supervisor: SupervisorConfig{
			PollInterval: 500 * time.Millisecond,
			HangPeriod:   2 * time.Minute,
			StartupGrace: 30 * time.Second,
			KillGrace:    5 * time.Second,
			RunawayRatio: 1.5,
			HangPolicy:   HangPolicySoftStop,
		},
		Profiles: map[string]ProfileSet{
			DefaultProfile: NewProfileSet(DefaultProfile, defaultProfileValues()),
		},
	}
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a single strict YAML document.
func ParseYAML(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFile(cfg *AppConfig, f *FileConfig) error {
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	setString(&cfg.Tools.FFmpeg, f.Tools.FFmpeg)
	setString(&cfg.Tools.FFprobe, f.Tools.FFprobe)
	setString(&cfg.Tools.MediaInfo, f.Tools.MediaInfo)
	setString(&cfg.Tools.Muxer, f.Tools.Muxer)
	setString(&cfg.Tools.Extractor, f.Tools.Extractor)
	setString(&cfg.Tools.DecryptRemux, f.Tools.DecryptRemux)
	setString(&cfg.Tools.BackupTranscoder, f.Tools.BackupTranscoder)
	setString(&cfg.Tools.LegacyRemux, f.Tools.LegacyRemux)

	if f.Remux.AllowH264Copy != nil {
		cfg.Remux.AllowH264Copy = *f.Remux.AllowH264Copy
	}
	if f.Remux.AllowAllCodecs != nil {
		cfg.Remux.AllowAllCodecs = *f.Remux.AllowAllCodecs
	}
	if f.Remux.VerifyTransportStream != nil {
		cfg.Remux.VerifyTransportStream = *f.Remux.VerifyTransportStream
	}
	if f.Remux.MinFreeSpaceFactor != nil {
		cfg.Remux.MinFreeSpaceFactor = *f.Remux.MinFreeSpaceFactor
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"supervisor.pollInterval", f.Supervisor.PollInterval, &cfg.Supervisor.PollInterval},
		{"supervisor.hangPeriod", f.Supervisor.HangPeriod, &cfg.Supervisor.HangPeriod},
		{"supervisor.startupGrace", f.Supervisor.StartupGrace, &cfg.Supervisor.StartupGrace},
		{"supervisor.killGrace", f.Supervisor.KillGrace, &cfg.Supervisor.KillGrace},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.name, err)
		}
		*d.dst = parsed
	}
	if f.Supervisor.RunawayRatio != nil {
		cfg.Supervisor.RunawayRatio = *f.Supervisor.RunawayRatio
	}
	setString(&cfg.Supervisor.HangPolicy, f.Supervisor.HangPolicy)

	// File profiles replace the built-in set; the default profile stays
	// available unless the file redefines it.
	for name, values := range f.Profiles {
		cfg.Profiles[name] = NewProfileSet(name, values)
	}
	return nil
}

func mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
	cfg.Tools.FFmpeg = ParseString(EnvFFmpeg, cfg.Tools.FFmpeg)
	cfg.Tools.FFprobe = ParseString(EnvFFprobe, cfg.Tools.FFprobe)
	cfg.Tools.MediaInfo = ParseString(EnvMediaInfo, cfg.Tools.MediaInfo)
	cfg.Tools.Muxer = ParseString(EnvMuxer, cfg.Tools.Muxer)
	cfg.Supervisor.HangPeriod = ParseDuration(EnvHangPeriod, cfg.Supervisor.HangPeriod)
	cfg.Supervisor.PollInterval = ParseDuration(EnvPollInterval, cfg.Supervisor.PollInterval)
	cfg.Supervisor.RunawayRatio = ParseFloat(EnvRunawayRatio, cfg.Supervisor.RunawayRatio)
	cfg.Supervisor.HangPolicy = ParseString(EnvHangPolicy, cfg.Supervisor.HangPolicy)
}

// Validate checks semantic constraints that YAML decoding cannot express.
func Validate(cfg AppConfig) error {
	if cfg.Supervisor.PollInterval <= 0 {
		return fmt.Errorf("%w: supervisor.pollInterval must be positive", ErrInvalidConfig)
	}
	if cfg.Supervisor.HangPeriod <= 0 {
		return fmt.Errorf("%w: supervisor.hangPeriod must be positive", ErrInvalidConfig)
	}
	if cfg.Supervisor.RunawayRatio < 0 {
		return fmt.Errorf("%w: supervisor.runawayRatio must not be negative", ErrInvalidConfig)
	}
	switch cfg.Supervisor.HangPolicy {
	case HangPolicySoftStop, HangPolicyError:
	default:
		return fmt.Errorf("%w: supervisor.hangPolicy %q (want %s or %s)",
			ErrInvalidConfig, cfg.Supervisor.HangPolicy, HangPolicySoftStop, HangPolicyError)
	}
	if cfg.Tools.FFmpeg == "" || cfg.Tools.FFprobe == "" {
		return fmt.Errorf("%w: tools.ffmpeg and tools.ffprobe are required", ErrInvalidConfig)
	}
	if _, ok := cfg.Profiles[DefaultProfile]; !ok {
		return fmt.Errorf("%w: profile %q missing", ErrInvalidConfig, DefaultProfile)
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
