package health

import (
	"fmt"
	"time"
)

// Constants for health states
const (
	DefaultFailureThreshold    = 3
	DefaultMaxRecoveryAttempts = 5
	DefaultRecoveryWaitTime    = 60 * time.Second

	StateNormal             = "normal"
	StateDegraded           = "degraded"
	StateRecovering         = "recovering"
	StateRecoveryFailedWait = "recovery-failed-waiting-reboot"
)

// Health tracks consecutive failing publish cycles and the reconnect
// attempts made because of them.
type Health struct {
	FailedCycles     int
	RecoveryAttempts int
	LastRecoveryTime time.Time
	State            string

	FailureThreshold    int
	MaxRecoveryAttempts int
	RecoveryWaitTime    time.Duration
}

// New creates a new Health instance
func New() *Health {
	return &Health{
		State:               StateNormal,
		FailureThreshold:    DefaultFailureThreshold,
		MaxRecoveryAttempts: DefaultMaxRecoveryAttempts,
		RecoveryWaitTime:    DefaultRecoveryWaitTime,
	}
}

// RecordCycle updates the failure count from a completed cycle.
func (h *Health) RecordCycle(ok bool) {
	if ok {
		h.MarkNormal()
		return
	}
	h.FailedCycles++
	if h.State == StateNormal && h.FailedCycles >= h.FailureThreshold {
		h.State = StateDegraded
	}
}

// NeedsRecovery returns true if a reconnect should be attempted at now.
func (h *Health) NeedsRecovery(now time.Time) bool {
	if h.State != StateDegraded || !h.CanRecover() {
		return false
	}
	return h.LastRecoveryTime.IsZero() || now.Sub(h.LastRecoveryTime) >= h.RecoveryWaitTime
}

// StartRecovery marks the health as recovering
func (h *Health) StartRecovery() {
	h.State = StateRecovering
	h.RecoveryAttempts++
	h.LastRecoveryTime = time.Now()
}

// MarkRecovered records a successful reconnect. The failure count is kept
// until a cycle succeeds.
func (h *Health) MarkRecovered() {
	h.State = StateDegraded
}

// MarkRecoveryFailed records a failed reconnect
func (h *Health) MarkRecoveryFailed() {
	if h.CanRecover() {
		h.State = StateDegraded
	} else {
		h.State = StateRecoveryFailedWait
	}
}

// MarkNormal marks the health as normal
func (h *Health) MarkNormal() {
	h.State = StateNormal
	h.FailedCycles = 0
	h.RecoveryAttempts = 0
}

// IsTerminal returns true if the health is in a terminal state
func (h *Health) IsTerminal() bool {
	return h.State == StateRecoveryFailedWait
}

// CanRecover returns true if recovery can be attempted
func (h *Health) CanRecover() bool {
	return h.RecoveryAttempts < h.MaxRecoveryAttempts
}

// String returns a string representation of the health
func (h *Health) String() string {
	return fmt.Sprintf("Health{State: %s, FailedCycles: %d, RecoveryAttempts: %d}",
		h.State, h.FailedCycles, h.RecoveryAttempts)
}
