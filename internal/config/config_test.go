// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, "ffmpeg", cfg.Tools.FFmpeg)
	assert.Equal(t, 1.5, cfg.Supervisor.RunawayRatio)
	assert.Equal(t, HangPolicySoftStop, cfg.Supervisor.HangPolicy)
	assert.True(t, cfg.Remux.AllowH264Copy)

	p, err := cfg.Profile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, p.Name)
	assert.Len(t, p.Numbered(KeyCopyRemux), 2)
	assert.Len(t, p.Numbered(KeySlowRemux), 2)
	assert.Equal(t, DefaultFrameWarnThreshold, p.Float(KeyDropThreshold, 0))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
tools:
  muxer: /opt/tsmuxer/tsMuxeR
  extractor: pvr-extract -i <source> -o <workdir> -b <base> -k <kinds>
remux:
  allowAllCodecs: true
  verifyTransportStream: true
supervisor:
  pollInterval: 250ms
  hangPeriod: 45s
  runawayRatio: 2.0
  hangPolicy: error
profiles:
  hdtv:
    CopyRemux0: "-i <source> -map 0 -c copy -f mpegts"
    CopyRemux2: "-i <source> -c copy -f mpegts"
    RemuxDropThreshold: "5.5"
`)
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/opt/tsmuxer/tsMuxeR", cfg.Tools.Muxer)
	assert.Equal(t, "ffmpeg", cfg.Tools.FFmpeg, "unset tools keep defaults")
	assert.True(t, cfg.Remux.AllowAllCodecs)
	assert.True(t, cfg.Remux.VerifyTransportStream)
	assert.Equal(t, 250*time.Millisecond, cfg.Supervisor.PollInterval)
	assert.Equal(t, 45*time.Second, cfg.Supervisor.HangPeriod)
	assert.Equal(t, 2.0, cfg.Supervisor.RunawayRatio)
	assert.Equal(t, HangPolicyError, cfg.Supervisor.HangPolicy)

	hdtv, err := cfg.Profile("hdtv")
	require.NoError(t, err)
	// CopyRemux1 is missing, so CopyRemux2 is never reached.
	copies := hdtv.Numbered(KeyCopyRemux)
	require.Len(t, copies, 1)
	assert.Equal(t, "CopyRemux0", copies[0].Key)
	assert.Empty(t, hdtv.Numbered(KeySlowRemux))
	assert.Equal(t, 5.5, hdtv.Float(KeyDropThreshold, DefaultFrameWarnThreshold))
	assert.Equal(t, DefaultFrameWarnThreshold, hdtv.Float(KeyDuplicateThreshold, DefaultFrameWarnThreshold))

	_, err = cfg.Profile("default")
	assert.NoError(t, err, "built-in profile stays available")
}

func TestLoad_StrictUnknownField(t *testing.T) {
	path := writeConfig(t, "logLevel: info\nbogus: 1\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "logLevel: info\n---\nlogLevel: debug\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))
	_, err := NewLoader(path).Load()
	require.Error(t, err)
}

func TestLoad_InvalidHangPolicy(t *testing.T) {
	path := writeConfig(t, "supervisor:\n  hangPolicy: ignore\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "supervisor:\n  hangPeriod: soon\n")
	_, err := NewLoader(path).Load()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "supervisor:\n  hangPeriod: 45s\n")
	t.Setenv(EnvHangPeriod, "90s")
	t.Setenv(EnvRunawayRatio, "3.25")
	t.Setenv(EnvFFmpeg, "/usr/local/bin/ffmpeg")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Supervisor.HangPeriod)
	assert.Equal(t, 3.25, cfg.Supervisor.RunawayRatio)
	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.Tools.FFmpeg)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv(EnvRunawayRatio, "lots")
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.Supervisor.RunawayRatio)
}

func TestProfile_Unknown(t *testing.T) {
	cfg := Defaults()
	_, err := cfg.Profile("missing")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestProfileSet_Bool(t *testing.T) {
	p := NewProfileSet("x", map[string]string{
		KeyForceNativeExtraction: "YES",
		"Weird":                  "maybe",
	})
	assert.True(t, p.Bool(KeyForceNativeExtraction, false))
	assert.True(t, p.Bool("Weird", true))
	assert.False(t, p.Bool("Missing", false))
}
