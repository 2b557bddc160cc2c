package schedule

import (
	"time"

	"tracker-service/internal/command"
)

// Timestamp is a point on a wrapping millisecond clock.
type Timestamp uint32

// half is the largest forward distance that still counts as "at or after".
const half = 1 << 31

// Default intervals in milliseconds
const (
	DefaultMinPublishInterval Timestamp = 1000
	DefaultPublishInterval    Timestamp = 300000
)

// Decision names the rule OnCommand applied.
type Decision string

const (
	DecisionPulledIn    Decision = "pulled-in"
	DecisionImminent    Decision = "imminent"
	DecisionAlreadySoon Decision = "already-soon"
	DecisionNearTerm    Decision = "near-term"
	DecisionImmediate   Decision = "immediate"
	DecisionIgnored     Decision = "ignored"
)

// Changed reports whether the decision moved NextPublish.
func (d Decision) Changed() bool {
	switch d {
	case DecisionPulledIn, DecisionNearTerm, DecisionImmediate:
		return true
	}
	return false
}

// AtOrAfter reports whether a is at or after b on the wrapping clock.
func AtOrAfter(a, b Timestamp) bool {
	return a-b < half
}

// Millis converts a duration to a Timestamp span, truncating to the clock width.
func Millis(d time.Duration) Timestamp {
	return Timestamp(uint32(d.Milliseconds()))
}

// State is the publish schedule.
type State struct {
	NextPublish Timestamp
	LastPublish Timestamp
}

// Scheduler decides when a publish cycle runs and how commands move it.
type Scheduler struct {
	State              State
	MinPublishInterval Timestamp
	PublishInterval    Timestamp
}

// New creates a scheduler that publishes on its first Due check.
func New(minInterval, interval Timestamp) *Scheduler {
	return &Scheduler{
		MinPublishInterval: minInterval,
		PublishInterval:    interval,
	}
}

// Due returns true if a publish cycle should run at now.
func (s *Scheduler) Due(now Timestamp) bool {
	return AtOrAfter(now, s.State.NextPublish)
}

// MarkPublished records a completed cycle that was started at now.
func (s *Scheduler) MarkPublished(now Timestamp) {
	s.State.LastPublish = now
	s.State.NextPublish = now + s.PublishInterval
}

// Remaining returns the time left until the next publish, zero if it is due.
func (s *Scheduler) Remaining(now Timestamp) Timestamp {
	if s.Due(now) {
		return 0
	}
	return s.State.NextPublish - now
}

// OnCommand applies an inbound command to the schedule.
func (s *Scheduler) OnCommand(cmd command.Command, now Timestamp) Decision {
	switch cmd.Message {
	case command.Connect:
		return s.onConnect(now)
	case command.Poll:
		return s.onPoll(now)
	default:
		return DecisionIgnored
	}
}

// onConnect pulls a distant publish in to now+min. Repeated connects do not
// move it again once it is that close.
func (s *Scheduler) onConnect(now Timestamp) Decision {
	if s.Due(now) {
		return DecisionImminent
	}
	if s.State.NextPublish-now > s.MinPublishInterval {
		s.State.NextPublish = now + s.MinPublishInterval
		return DecisionPulledIn
	}
	return DecisionImminent
}

// onPoll rules are checked in order; the first match wins. An overdue
// publish moves to now only after a full idle interval.
func (s *Scheduler) onPoll(now Timestamp) Decision {
	idle := now-s.State.LastPublish >= s.PublishInterval
	if s.Due(now) {
		if idle {
			s.State.NextPublish = now
			return DecisionImmediate
		}
		return DecisionAlreadySoon
	}
	if s.State.NextPublish-now < s.PublishInterval {
		return DecisionAlreadySoon
	}
	if !idle {
		s.State.NextPublish = now + s.MinPublishInterval
		return DecisionNearTerm
	}
	s.State.NextPublish = now
	return DecisionImmediate
}
