// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate decides whether a produced container is usable.
//
// Checks run in order and stop at the first failure:
//
//  1. the file exists
//  2. the file is not empty
//  3. (optional) the leading MPEG-TS packets are well formed
//  4. no audio track reports zero channels
//  5. at least one regular (non-impaired) audio track survives when the
//     source had more regular than impaired tracks
//
// The source itself is never required to carry audio.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Comcast/gots/v2/packet"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/rs/zerolog"
)

// Code classifies a validation outcome.
type Code string

const (
	CodeOK             Code = "ok"
	CodeMissing        Code = "missing"
	CodeEmpty          Code = "empty"
	CodeCorrupt        Code = "corrupt_ts"
	CodeProbeFailed    Code = "probe_failed"
	CodeZeroChannel    Code = "zero_channel_audio"
	CodeNoRegularAudio Code = "no_regular_audio"
)

// Result is the outcome of Validate.
type Result struct {
	OK     bool
	Code   Code
	Reason string
	// Info is the probe of the validated file, nil when the check stopped earlier.
	Info *media.StreamInfo
}

// AudioProblem reports failures the zero-channel repair can act on.
func (r Result) AudioProblem() bool {
	return r.Code == CodeZeroChannel || r.Code == CodeNoRegularAudio
}

func fail(code Code, format string, args ...any) Result {
	return Result{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Options tune a Validator.
type Options struct {
	// VerifyTransportStream enables the MPEG-TS packet check for .ts outputs.
	VerifyTransportStream bool
	// TSPackets bounds the packet check; 0 means 1000 packets.
	TSPackets int
}

// Validator checks produced files against their source.
type Validator struct {
	prober media.Prober
	opts   Options
	log    zerolog.Logger
}

func New(prober media.Prober, opts Options, logger zerolog.Logger) *Validator {
	if opts.TSPackets <= 0 {
		opts.TSPackets = 1000
	}
	return &Validator{
		prober: prober,
		opts:   opts,
		log:    logger.With().Str(xglog.FieldComponent, "validator").Logger(),
	}
}

// Validate inspects path. sourcePath may be empty or unprobeable; the
// regular-audio rule is then skipped.
func (v *Validator) Validate(ctx context.Context, path, sourcePath string) Result {
	fi, err := os.Stat(path)
	if err != nil {
		return fail(CodeMissing, "output %s does not exist", filepath.Base(path))
	}
	if fi.IsDir() {
		return fail(CodeMissing, "output %s is a directory", filepath.Base(path))
	}
	if fi.Size() == 0 {
		return fail(CodeEmpty, "output %s is empty", filepath.Base(path))
	}

	if v.opts.VerifyTransportStream && strings.EqualFold(filepath.Ext(path), ".ts") {
		if err := CheckTransportStream(path, v.opts.TSPackets); err != nil {
			return fail(CodeCorrupt, "output %s: %v", filepath.Base(path), err)
		}
	}

	out, err := v.prober.Probe(ctx, path)
	if err != nil {
		return fail(CodeProbeFailed, "probe %s: %v", filepath.Base(path), err)
	}

	for _, a := range out.Audio {
		if a.Channels <= 0 {
			r := fail(CodeZeroChannel, "audio track %d of %s has zero channels", a.Index, filepath.Base(path))
			r.Info = out
			return r
		}
	}

	if sourcePath != "" && sourcePath != path {
		src, err := v.prober.Probe(ctx, sourcePath)
		switch {
		case err != nil:
			v.log.Debug().Err(err).Str(xglog.FieldSourcePath, sourcePath).Msg("source probe failed, skipping audio comparison")
		case src.NonImpairedCount() > src.ImpairedCount() && out.NonImpairedCount() == 0:
			r := fail(CodeNoRegularAudio, "%s has no regular audio track (source has %d)", filepath.Base(path), src.NonImpairedCount())
			r.Info = out
			return r
		}
	}

	return Result{OK: true, Code: CodeOK, Info: out}
}

// ErrNotTransportStream is returned when the leading bytes are not TS packets.
var ErrNotTransportStream = errors.New("not an MPEG transport stream")

// CheckTransportStream reads up to maxPackets 188-byte packets and verifies
// sync bytes and the transport error indicator. A trailing partial packet
// is tolerated.
func CheckTransportStream(path string, maxPackets int) error {
	f, err := os.Open(path) // #nosec G304 -- path is a produced artifact in the work dir
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var pkt packet.Packet
	n := 0
	for ; n < maxPackets; n++ {
		if _, err := io.ReadFull(f, pkt[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return err
		}
		if err := pkt.CheckErrors(); err != nil {
			return fmt.Errorf("%w: packet %d: %v", ErrNotTransportStream, n, err)
		}
	}
	if n == 0 {
		return fmt.Errorf("%w: shorter than one packet", ErrNotTransportStream)
	}
	return nil
}
