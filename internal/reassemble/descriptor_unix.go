// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package reassemble

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeDescriptor replaces path atomically; the muxer never sees a partial file.
func writeDescriptor(path, text string) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending descriptor: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.WriteString(text); err != nil {
		return fmt.Errorf("write descriptor data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace descriptor: %w", err)
	}
	return nil
}
