package schedule

import "time"

// Clock provides the current time on the wrapping millisecond clock.
type Clock interface {
	Now() Timestamp
}

// MonotonicClock counts milliseconds since it was created. It wraps after
// roughly 49.7 days like a hardware millis() counter.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Now() Timestamp {
	return Timestamp(uint32(time.Since(c.start).Milliseconds()))
}
