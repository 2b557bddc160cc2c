package mqtt

import (
	"context"
	"time"

	"tracker-service/internal/command"
)

// Fixed publish policy
const (
	QoS    = 1
	Retain = false
)

// Transport carries telemetry out and commands in.
type Transport interface {
	// Connect establishes the session and subscribes to the command topic.
	Connect(ctx context.Context) error
	// Publish sends one payload; it fails once ctx expires.
	Publish(ctx context.Context, topic, payload string) error
	// Receive returns the commands that arrived since the last call. It
	// finishes reading before returning so no publish overlaps it.
	Receive(ctx context.Context) ([]command.Command, error)
	// Reconnect tears the session down and connects again.
	Reconnect(ctx context.Context) error
	Close() error
}

// Config describes the broker session.
type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	ClientID     string
	CommandTopic string
	KeepAlive    time.Duration
	// ConnectTimeout bounds Connect when ctx has no earlier deadline.
	ConnectTimeout time.Duration
	// PublishTimeout bounds Publish when ctx has no deadline.
	PublishTimeout time.Duration
	// ReceiveWindow is how long Receive listens for notifications.
	ReceiveWindow time.Duration
}

// timeoutFor returns the time left on ctx, or fallback when it has no deadline.
func timeoutFor(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
