package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"tracker-service/internal/publish"
	"tracker-service/internal/telemetry"
)

// Hash keys mirrored by the tracker.
const (
	TrackerKey = "tracker"
	GPSKey     = "gps"
)

// Client wraps the Redis client with additional functionality
type Client struct {
	client *redis.Client
	logger *log.Logger

	mu   sync.Mutex
	last map[string]string
}

// New creates a new Redis client
func New(redisURL string, logger *log.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %v", err)
	}

	client := redis.NewClient(opt)
	return &Client{
		client: client,
		logger: logger,
		last:   make(map[string]string),
	}, nil
}

// Ping checks if the Redis server is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// PublishTrackerState sets a field of the tracker hash and notifies
// subscribers. Unchanged values are not written again.
func (c *Client) PublishTrackerState(ctx context.Context, field, value string) error {
	c.mu.Lock()
	prev, seen := c.last[field]
	c.mu.Unlock()
	if seen && prev == value {
		return nil
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, TrackerKey, field, value)
	pipe.Publish(ctx, TrackerKey, field)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Printf("Unable to set tracker.%s in redis: %v", field, err)
		return fmt.Errorf("cannot write to redis: %v", err)
	}

	c.mu.Lock()
	c.last[field] = value
	c.mu.Unlock()
	return nil
}

// PublishSchedule mirrors the scheduler state in milliseconds.
func (c *Client) PublishSchedule(ctx context.Context, next, last uint32) error {
	if err := c.PublishTrackerState(ctx, "next-publish", strconv.FormatUint(uint64(next), 10)); err != nil {
		return err
	}
	return c.PublishTrackerState(ctx, "last-publish", strconv.FormatUint(uint64(last), 10))
}

// PublishCycle mirrors the outcome of a publish cycle.
func (c *Client) PublishCycle(ctx context.Context, r publish.Report) error {
	data := map[string]interface{}{
		"cycle-id":       r.ID,
		"cycle-started":  r.Started.Unix(),
		"cycle-duration": r.Duration.Milliseconds(),
		"gps-status":     r.GPSStatus,
		"published":      len(r.Published),
		"failed":         len(r.Failed),
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, TrackerKey, data)
	pipe.Publish(ctx, TrackerKey, "cycle-id")
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Printf("Unable to set cycle state in redis: %v", err)
		return fmt.Errorf("cannot write cycle state to redis: %v", err)
	}
	return nil
}

// PublishLocation stores the last GPS fix in the gps hash.
func (c *Client) PublishLocation(ctx context.Context, fix telemetry.GpsFix) error {
	data := map[string]interface{}{
		"fix":       fix.Quality.String(),
		"latitude":  strconv.FormatFloat(fix.Latitude, 'f', 6, 64),
		"longitude": strconv.FormatFloat(fix.Longitude, 'f', 6, 64),
		"altitude":  strconv.FormatFloat(fix.AltitudeM, 'f', 1, 64),
		"speed":     strconv.FormatFloat(fix.SpeedKph, 'f', 1, 64),
		"course":    strconv.FormatFloat(fix.HeadingDeg, 'f', 1, 64),
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, GPSKey, data)
	pipe.Publish(ctx, GPSKey, "fix")
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Printf("Unable to set location in redis: %v", err)
		return fmt.Errorf("cannot write location to redis: %v", err)
	}
	return nil
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.client.Close()
}
