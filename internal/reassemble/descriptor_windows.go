// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package reassemble

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeDescriptor uses temp file + rename; Windows has no fsync-then-rename guarantee.
func writeDescriptor(path, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pvremux-meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp descriptor: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.WriteString(text); err != nil {
		return fmt.Errorf("write descriptor data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp descriptor: %w", err)
	}
	tmp = nil
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename descriptor: %w", err)
	}
	return nil
}
