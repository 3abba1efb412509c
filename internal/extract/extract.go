// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package extract splits a recording into raw elementary streams through a
// pluggable native extraction session.
package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/pvremux/internal/domain/recording"
	"github.com/ManuGH/pvremux/internal/supervisor"
)

var (
	ErrNotBuilt     = errors.New("extraction session not built")
	ErrDisposed     = errors.New("extraction session disposed")
	ErrNotAvailable = errors.New("native extraction not available")
)

// maxStreams bounds the per-kind artifact scan.
const maxStreams = 32

// Request describes what to extract.
type Request struct {
	SourcePath string
	WorkDir    string
	Kinds      recording.StreamKind
}

// Base is the source name without directory and extension.
func (r Request) Base() string {
	return recording.Job{SourcePath: r.SourcePath}.BaseName()
}

// Session is the capability the coordinator drives. Implementations wrap a
// platform decode graph or an external extractor tool.
type Session interface {
	Build(ctx context.Context, req Request) error
	// Run blocks until extraction finished, supervised under ctl.
	Run(ctx context.Context, ctl *supervisor.JobControl) error
	Cancel()
	Results() Result
	Dispose() error
}

// Factory creates one session per extraction.
type Factory interface {
	NewSession() (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func() (Session, error)

func (f FactoryFunc) NewSession() (Session, error) { return f() }

// Result lists the produced elementary streams. The caller owns the files
// and must call Cleanup once they are consumed.
type Result struct {
	Video     string
	Audio     []string
	Subtitles []string
	OK        bool
}

// Paths returns every artifact.
func (r Result) Paths() []string {
	var out []string
	if r.Video != "" {
		out = append(out, r.Video)
	}
	out = append(out, r.Audio...)
	return append(out, r.Subtitles...)
}

// Cleanup removes every artifact, ignoring files that are already gone.
func (r Result) Cleanup() error {
	var errs []error
	for _, p := range r.Paths() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func VideoPath(workDir, base string) string {
	return filepath.Join(workDir, base+"_VIDEO")
}

func AudioPath(workDir, base string, n int) string {
	return filepath.Join(workDir, base+"_AUDIO"+strconv.Itoa(n))
}

func SubtitlePath(workDir, base string, n int) string {
	return filepath.Join(workDir, base+"_SUBTITLE"+strconv.Itoa(n))
}

// ExpectedPaths lists every artifact name a session may produce for req,
// present or not.
func ExpectedPaths(req Request) []string {
	base := req.Base()
	var out []string
	if req.Kinds.Has(recording.KindVideo) {
		out = append(out, VideoPath(req.WorkDir, base))
	}
	if req.Kinds.Has(recording.KindAudio) {
		for n := 0; n < maxStreams; n++ {
			out = append(out, AudioPath(req.WorkDir, base, n))
		}
	}
	if req.Kinds.Has(recording.KindSubtitle) {
		for n := 0; n < maxStreams; n++ {
			out = append(out, SubtitlePath(req.WorkDir, base, n))
		}
	}
	return out
}

// Collect scans the work directory for produced artifacts. Empty files are
// removed and skipped. OK requires the video stream when it was requested,
// otherwise at least one audio stream.
func Collect(req Request) Result {
	base := req.Base()
	var res Result
	if req.Kinds.Has(recording.KindVideo) {
		if p := VideoPath(req.WorkDir, base); nonEmpty(p) {
			res.Video = p
		}
	}
	if req.Kinds.Has(recording.KindAudio) {
		for n := 0; n < maxStreams; n++ {
			if p := AudioPath(req.WorkDir, base, n); nonEmpty(p) {
				res.Audio = append(res.Audio, p)
			}
		}
	}
	if req.Kinds.Has(recording.KindSubtitle) {
		for n := 0; n < maxStreams; n++ {
			if p := SubtitlePath(req.WorkDir, base, n); nonEmpty(p) {
				res.Subtitles = append(res.Subtitles, p)
			}
		}
	}
	if req.Kinds.Has(recording.KindVideo) {
		res.OK = res.Video != ""
	} else {
		res.OK = len(res.Audio) > 0
	}
	return res
}

func nonEmpty(p string) bool {
	fi, err := os.Stat(p)
	if err != nil {
		return false
	}
	if fi.Size() == 0 {
		_ = os.Remove(p)
		return false
	}
	return !fi.IsDir()
}

// KindsArg renders a kind mask for extractor templates.
func KindsArg(k recording.StreamKind) string {
	var parts []string
	if k.Has(recording.KindVideo) {
		parts = append(parts, "video")
	}
	if k.Has(recording.KindAudio) {
		parts = append(parts, "audio")
	}
	if k.Has(recording.KindSubtitle) {
		parts = append(parts, "subtitle")
	}
	return strings.Join(parts, ",")
}
