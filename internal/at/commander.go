package at

import (
	"context"
	"time"
)

// Commander runs a single AT command and returns its information lines.
type Commander interface {
	Command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error)
}
