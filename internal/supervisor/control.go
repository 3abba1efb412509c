// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Priority is the scheduling class applied to supervised operations.
type Priority int32

const (
	PriorityNormal Priority = iota
	PriorityBelowNormal
	PriorityLow
	PriorityIdle
)

// Nice maps the class onto a unix niceness value.
func (p Priority) Nice() int {
	switch p {
	case PriorityBelowNormal:
		return 10
	case PriorityLow:
		return 15
	case PriorityIdle:
		return 19
	default:
		return 0
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityBelowNormal:
		return "below_normal"
	case PriorityLow:
		return "low"
	case PriorityIdle:
		return "idle"
	default:
		return "normal"
	}
}

// Next cycles normal -> below_normal -> low -> idle -> normal.
func (p Priority) Next() Priority {
	if p >= PriorityIdle {
		return PriorityNormal
	}
	return p + 1
}

// ParsePriority accepts the String() names.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "below_normal":
		return PriorityBelowNormal, nil
	case "low":
		return PriorityLow, nil
	case "idle":
		return PriorityIdle, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// JobControl carries the cancellation flag, the pause flag and the priority
// class across the boundary between the caller and a running job. Every
// read is a most-recent-value read; the supervisor samples it once per tick.
// A nil *JobControl behaves as "never cancelled, never paused, normal".
type JobControl struct {
	cancelled atomic.Bool
	paused    atomic.Bool
	priority  atomic.Int32
}

// NewJobControl returns a control block in the running, normal-priority state.
func NewJobControl() *JobControl {
	return &JobControl{}
}

// Snapshot is one consistent-enough read of the control flags.
type Snapshot struct {
	Cancelled bool
	Paused    bool
	Priority  Priority
}

func (c *JobControl) Cancel() {
	if c != nil {
		c.cancelled.Store(true)
	}
}

func (c *JobControl) Cancelled() bool {
	return c != nil && c.cancelled.Load()
}

func (c *JobControl) Pause() {
	if c != nil {
		c.paused.Store(true)
	}
}

func (c *JobControl) Resume() {
	if c != nil {
		c.paused.Store(false)
	}
}

// TogglePause flips the pause flag and returns the new value.
func (c *JobControl) TogglePause() bool {
	if c == nil {
		return false
	}
	for {
		old := c.paused.Load()
		if c.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (c *JobControl) SetPriority(p Priority) {
	if c != nil {
		c.priority.Store(int32(p))
	}
}

func (c *JobControl) Priority() Priority {
	if c == nil {
		return PriorityNormal
	}
	return Priority(c.priority.Load())
}

// Snapshot reads all flags.
func (c *JobControl) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Cancelled: c.cancelled.Load(),
		Paused:    c.paused.Load(),
		Priority:  Priority(c.priority.Load()),
	}
}
