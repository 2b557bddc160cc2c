package health

import (
	"testing"
	"time"
)

func TestRecordCycle(t *testing.T) {
	h := New()

	h.RecordCycle(false)
	h.RecordCycle(false)
	if h.State != StateNormal {
		t.Errorf("State = %s after 2 failures, want %s", h.State, StateNormal)
	}

	h.RecordCycle(false)
	if h.State != StateDegraded {
		t.Errorf("State = %s after 3 failures, want %s", h.State, StateDegraded)
	}

	h.RecordCycle(true)
	if h.State != StateNormal || h.FailedCycles != 0 {
		t.Errorf("after success: %s", h)
	}
}

func TestRecoveryIsBounded(t *testing.T) {
	h := New()
	h.MaxRecoveryAttempts = 2
	h.RecoveryWaitTime = time.Minute
	for i := 0; i < h.FailureThreshold; i++ {
		h.RecordCycle(false)
	}

	now := time.Now()
	if !h.NeedsRecovery(now) {
		t.Fatal("degraded health should need recovery")
	}
	h.StartRecovery()
	if h.NeedsRecovery(now) {
		t.Error("recovery in progress should not be restarted")
	}
	h.MarkRecoveryFailed()
	if h.NeedsRecovery(time.Now()) {
		t.Error("recovery must wait for RecoveryWaitTime")
	}
	if !h.NeedsRecovery(time.Now().Add(2 * time.Minute)) {
		t.Error("recovery should be allowed after the wait")
	}

	h.StartRecovery()
	h.MarkRecoveryFailed()
	if !h.IsTerminal() {
		t.Errorf("State = %s, want %s", h.State, StateRecoveryFailedWait)
	}
	if h.NeedsRecovery(time.Now().Add(time.Hour)) {
		t.Error("terminal health should not recover")
	}

	h.RecordCycle(true)
	if h.IsTerminal() || h.RecoveryAttempts != 0 {
		t.Errorf("successful cycle should reset health: %s", h)
	}
}

func TestMarkRecovered(t *testing.T) {
	h := New()
	for i := 0; i < h.FailureThreshold; i++ {
		h.RecordCycle(false)
	}
	h.StartRecovery()
	h.MarkRecovered()

	if h.State != StateDegraded || h.FailedCycles != h.FailureThreshold {
		t.Errorf("after reconnect: %s", h)
	}
}
