// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package main

import (
	"context"
	"sync"

	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/rs/zerolog"
)

// watchControlSignals cancels ctl when ctx ends. Windows has no user
// signals, so pause and priority stay at their initial values.
func watchControlSignals(ctx context.Context, ctl *supervisor.JobControl, logger zerolog.Logger) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-done:
		case <-ctx.Done():
			ctl.Cancel()
			logger.Warn().Msg("cancellation requested")
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
