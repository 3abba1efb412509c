// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recording holds the value types shared by every stage of a
// recording conversion: the job, the per-strategy attempt log and the
// final result.
package recording

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FormatClass is the closed set of input container families.
type FormatClass string

const (
	FormatGenericTS       FormatClass = "generic_ts"
	FormatLegacyDVR       FormatClass = "legacy_dvr"
	FormatBroadcastWrap   FormatClass = "broadcast_wrapper"
	FormatEncryptedRecord FormatClass = "encrypted_recorder"
)

// ParseFormatClass accepts the canonical names plus a few operator aliases.
func ParseFormatClass(s string) (FormatClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generic_ts", "generic", "ts":
		return FormatGenericTS, nil
	case "legacy_dvr", "dvr":
		return FormatLegacyDVR, nil
	case "broadcast_wrapper", "broadcast":
		return FormatBroadcastWrap, nil
	case "encrypted_recorder", "encrypted":
		return FormatEncryptedRecord, nil
	default:
		return "", fmt.Errorf("unknown format class %q", s)
	}
}

// ClassifyPath infers the format class from the file extension.
func ClassifyPath(path string) FormatClass {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tivo":
		return FormatEncryptedRecord
	case ".wtv":
		return FormatLegacyDVR
	case ".dvr-ms":
		return FormatBroadcastWrap
	default:
		return FormatGenericTS
	}
}

// StreamKind is a bitmask of elementary stream kinds requested from an
// extraction session.
type StreamKind uint8

const (
	KindVideo StreamKind = 1 << iota
	KindAudio
	KindSubtitle

	KindAll = KindVideo | KindAudio | KindSubtitle
)

// Has reports whether every bit of k2 is set in k.
func (k StreamKind) Has(k2 StreamKind) bool { return k&k2 == k2 }

// Job is one conversion request. It is immutable once handed to the
// coordinator.
type Job struct {
	ID            string
	SourcePath    string
	Format        FormatClass
	WorkDir       string
	AudioLanguage string // optional ISO code, "" when not requested
	DecryptionKey string // optional, single use
	Profile       string
}

// BaseName is the source file name without directory and extension.
func (j Job) BaseName() string {
	name := filepath.Base(j.SourcePath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// RemuxedPath is the engine's output name inside the work directory.
func (j Job) RemuxedPath() string {
	return filepath.Join(j.WorkDir, j.BaseName()+"-REMUXED.ts")
}

// SourceIsTS reports whether the source already carries the .ts extension.
func (j Job) SourceIsTS() bool {
	return strings.EqualFold(filepath.Ext(j.SourcePath), ".ts")
}

// Strategy identifies one rung of the ladder.
type Strategy string

const (
	StrategyDecryptRemux     Strategy = "decrypt_remux"
	StrategyNativeExtraction Strategy = "native_extraction"
	StrategyBackupTranscoder Strategy = "backup_transcoder"
	StrategyLegacyByteRemux  Strategy = "legacy_byte_remux"
	StrategyGenericRemux     Strategy = "generic_remux"
)

// Mode selects which halves of the generic remux engine run.
type Mode int

const (
	ModeBoth Mode = iota
	ModeCopyOnly
	ModeRecodeOnly
)

func (m Mode) String() string {
	switch m {
	case ModeCopyOnly:
		return "copy_only"
	case ModeRecodeOnly:
		return "recode_only"
	default:
		return "both"
	}
}

// Attempt records one strategy or profile invocation.
type Attempt struct {
	ID         string
	Strategy   Strategy
	Profile    string // e.g. "CopyRemux0"; empty for non-profile strategies
	Args       []string
	OK         bool
	Diagnostic string
	DropRate   float64 // percent of frames dropped
	DupRate    float64 // percent of frames duplicated
}

// Result is the terminal success value of a job.
type Result struct {
	Path           string
	Recoded        bool
	SkippedSeconds float64
	Strategy       Strategy
	FrameWarning   bool
	Attempts       []Attempt
}

// Outcome is the bool+diagnostic exit contract of every engine operation.
type Outcome struct {
	OK         bool
	Diagnostic string
}

// Failed builds a failing Outcome with a formatted diagnostic.
func Failed(format string, args ...any) Outcome {
	return Outcome{Diagnostic: fmt.Sprintf(format, args...)}
}

// Succeeded builds a passing Outcome.
func Succeeded() Outcome {
	return Outcome{OK: true}
}
