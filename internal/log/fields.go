// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldAttemptID = "attempt_id"

	// Ladder fields
	FieldStrategy = "strategy"
	FieldProfile  = "profile"
	FieldFormat   = "format_class"
	FieldMode     = "mode"
	FieldPhase    = "phase"
	FieldReason   = "reason"

	// Media / stream fields
	FieldCodec      = "codec"
	FieldFPS        = "fps"
	FieldAudioTrack = "audio_track"
	FieldLanguage   = "language"
	FieldChannels   = "channels"

	// Supervisor fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldPercent  = "percent"
	FieldPID      = "pid"

	// Path fields
	FieldPath       = "path"
	FieldSourcePath = "source_path"
	FieldFinalPath  = "final_path"
	FieldWorkDir    = "work_dir"
)
