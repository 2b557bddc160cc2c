package redis

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"tracker-service/internal/publish"
	"tracker-service/internal/telemetry"
)

// getTestRedisURL returns the Redis URL for testing
func getTestRedisURL() string {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}
	return url
}

// setupTestClient creates a test client and cleans up test data
func setupTestClient(t *testing.T) (*Client, func()) {
	t.Helper()

	logger := log.New(os.Stdout, "test: ", log.LstdFlags)
	client, err := New(getTestRedisURL(), logger)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	cleanup := func() {
		client.client.Del(context.Background(), TrackerKey, GPSKey)
		client.Close()
	}

	return client, cleanup
}

func TestNew(t *testing.T) {
	logger := log.New(os.Stdout, "test: ", log.LstdFlags)

	tests := []struct {
		name     string
		redisURL string
		wantErr  bool
	}{
		{
			name:     "valid URL with port",
			redisURL: "redis://localhost:6379",
			wantErr:  false,
		},
		{
			name:     "valid URL with database",
			redisURL: "redis://localhost:6379/2",
			wantErr:  false,
		},
		{
			name:     "missing scheme",
			redisURL: "localhost:6379",
			wantErr:  true,
		},
		{
			name:     "unsupported scheme",
			redisURL: "http://localhost:6379",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.redisURL, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if client != nil {
				client.Close()
			}
		})
	}
}

func TestPublishTrackerState(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		field string
		value string
	}{
		{"last-command", "poll"},
		{"transport-health", "normal"},
		{"transport-health", "degraded"},
	}

	for _, tt := range tests {
		if err := client.PublishTrackerState(ctx, tt.field, tt.value); err != nil {
			t.Fatalf("PublishTrackerState(%s) error = %v", tt.field, err)
		}
		val, err := client.client.HGet(ctx, TrackerKey, tt.field).Result()
		if err != nil {
			t.Fatalf("Failed to get field %s: %v", tt.field, err)
		}
		if val != tt.value {
			t.Errorf("Field %s = %v, want %v", tt.field, val, tt.value)
		}
	}
}

func TestPublishTrackerStateSkipsUnchanged(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	if err := client.PublishTrackerState(ctx, "gps-status", "No GPS fix"); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	// Remove the field behind the client's back: an unchanged value must not
	// be written again.
	client.client.HDel(ctx, TrackerKey, "gps-status")
	if err := client.PublishTrackerState(ctx, "gps-status", "No GPS fix"); err != nil {
		t.Fatalf("second publish failed: %v", err)
	}
	if n, _ := client.client.HExists(ctx, TrackerKey, "gps-status").Result(); n {
		t.Error("unchanged value was written again")
	}
}

func TestPublishScheduleAndCycle(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	if err := client.PublishSchedule(ctx, 301000, 1000); err != nil {
		t.Fatalf("PublishSchedule() error = %v", err)
	}
	report := publish.Report{
		ID:        "c0ffee",
		Started:   time.Now(),
		Duration:  1500 * time.Millisecond,
		GPSStatus: "3D fix",
		Published: []string{"location", "weather", "battery"},
		Failed:    map[string]string{},
	}
	if err := client.PublishCycle(ctx, report); err != nil {
		t.Fatalf("PublishCycle() error = %v", err)
	}

	all, err := client.client.HGetAll(ctx, TrackerKey).Result()
	if err != nil {
		t.Fatalf("HGetAll() error = %v", err)
	}
	want := map[string]string{
		"next-publish":   "301000",
		"last-publish":   "1000",
		"cycle-id":       "c0ffee",
		"cycle-duration": "1500",
		"published":      "3",
		"failed":         "0",
	}
	for k, v := range want {
		if all[k] != v {
			t.Errorf("%s = %q, want %q", k, all[k], v)
		}
	}
}

func TestPublishLocation(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	fix := telemetry.GpsFix{Latitude: 47.606209, Longitude: -122.332069, AltitudeM: 56.2, Quality: telemetry.Fix3D}
	if err := client.PublishLocation(ctx, fix); err != nil {
		t.Fatalf("PublishLocation() error = %v", err)
	}

	all, err := client.client.HGetAll(ctx, GPSKey).Result()
	if err != nil {
		t.Fatalf("HGetAll() error = %v", err)
	}
	if all["latitude"] != "47.606209" || all["longitude"] != "-122.332069" || all["fix"] != "3D fix" {
		t.Errorf("gps hash = %v", all)
	}
}

func TestClose(t *testing.T) {
	logger := log.New(os.Stdout, "test: ", log.LstdFlags)
	client, err := New(getTestRedisURL(), logger)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
