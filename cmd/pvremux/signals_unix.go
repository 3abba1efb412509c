// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/rs/zerolog"
)

// watchControlSignals maps SIGUSR1/SIGUSR2 onto ctl and cancels ctl when ctx ends.
func watchControlSignals(ctx context.Context, ctl *supervisor.JobControl, logger zerolog.Logger) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				ctl.Cancel()
				logger.Warn().Msg("cancellation requested")
				return
			case s := <-sigs:
				handleControlSignal(s, ctl, logger)
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
		wg.Wait()
	}
}

func handleControlSignal(s os.Signal, ctl *supervisor.JobControl, logger zerolog.Logger) {
	switch s {
	case syscall.SIGUSR1:
		if ctl.TogglePause() {
			logger.Info().Msg("jobs paused")
		} else {
			logger.Info().Msg("jobs resumed")
		}
	case syscall.SIGUSR2:
		p := ctl.Priority().Next()
		ctl.SetPriority(p)
		logger.Info().Str("priority", p.String()).Msg("priority changed")
	}
}
