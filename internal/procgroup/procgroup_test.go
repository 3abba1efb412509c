// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T) (*exec.Cmd, chan error) {
	t.Helper()
	cmd := exec.Command("sh", "-c", "sleep 100 & sleep 100")
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	return cmd, waitCh
}

func TestTerminate_KillsWholeGroup(t *testing.T) {
	cmd, waitCh := startGroup(t)
	pid := cmd.Process.Pid

	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	require.Equal(t, pid, pgid, "PID should be PGID leader")

	_ = Terminate(cmd, waitCh, 500*time.Millisecond)

	// Give the orphaned child a moment to receive the group signal.
	require.Eventually(t, func() bool {
		return syscall.Kill(-pgid, syscall.Signal(0)) == syscall.ESRCH
	}, 2*time.Second, 20*time.Millisecond, "process group should be gone")
}

func TestSuspendResume(t *testing.T) {
	cmd, waitCh := startGroup(t)
	defer func() { _ = Terminate(cmd, waitCh, 200*time.Millisecond) }()

	require.NoError(t, Suspend(cmd))
	require.NoError(t, Resume(cmd))
	require.NoError(t, SetNice(cmd, 10))
}

func TestNotStarted(t *testing.T) {
	cmd := exec.Command("true")
	require.ErrorIs(t, Suspend(cmd), ErrNotStarted)
	require.ErrorIs(t, Resume(cmd), ErrNotStarted)
	require.ErrorIs(t, SetNice(cmd, 0), ErrNotStarted)
	require.NoError(t, Terminate(nil, nil, time.Second))
}
