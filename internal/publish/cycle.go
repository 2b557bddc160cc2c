package publish

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"tracker-service/internal/telemetry"
)

// Publisher sends a payload to a topic. Implementations enforce their own
// timeout and return an error when it expires.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Topics are the outbound topic names.
type Topics struct {
	Location string
	Weather  string
	Battery  string
	Error    string
}

// DefaultTopics match the dashboard subscriptions.
var DefaultTopics = Topics{
	Location: "location",
	Weather:  "weather",
	Battery:  "battery",
	Error:    "error",
}

// Sample sources
const (
	SourceGPS     = "gps"
	SourceWeather = "weather"
	SourcePower   = "power"
)

// Report summarises one publish cycle.
type Report struct {
	ID           string               `json:"id"`
	Started      time.Time            `json:"started"`
	Duration     time.Duration        `json:"duration"`
	GPSQuality   telemetry.FixQuality `json:"gps_quality"`
	GPSStatus    string               `json:"gps_status"`
	Fix          *telemetry.GpsFix    `json:"fix,omitempty"`
	Published    []string             `json:"published"`
	Failed       map[string]string    `json:"failed,omitempty"`
	ReadFailures []string             `json:"read_failures,omitempty"`
}

// OK reports whether every publish in the cycle succeeded.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// Cycle runs one round of sampling and publishing. Nil readers are treated
// as unavailable.
type Cycle struct {
	Publisher    Publisher
	Location     telemetry.LocationReader
	Weather      telemetry.WeatherReader
	Power        telemetry.PowerReader
	Topics       Topics
	FixThreshold telemetry.FixQuality
	// Timeout bounds each individual publish.
	Timeout time.Duration
	Logger  *log.Logger
}

// Run samples every source and publishes the results. A failed read or
// publish is recorded in the report and never stops the rest of the cycle.
func (c *Cycle) Run(ctx context.Context) Report {
	report := Report{
		ID:      uuid.NewString(),
		Started: time.Now(),
		Failed:  make(map[string]string),
	}

	power := c.readPower(ctx, &report)
	fix, gpsErr := c.readLocation(ctx, &report)

	switch {
	case gpsErr != nil:
		report.GPSQuality = telemetry.FixOff
		report.GPSStatus = telemetry.StatusQueryFailed
		c.publish(ctx, &report, c.Topics.Error, telemetry.StatusQueryFailed)
	case fix.Quality >= c.FixThreshold:
		report.GPSQuality = fix.Quality
		report.GPSStatus = fix.Quality.Status()
		report.Fix = &fix
		c.publish(ctx, &report, c.Topics.Location, telemetry.LocationPayload(fix))
	default:
		report.GPSQuality = fix.Quality
		report.GPSStatus = fix.Quality.Status()
		c.publish(ctx, &report, c.Topics.Error, fix.Quality.Status())
	}

	weather := c.readWeather(ctx, &report)
	c.publish(ctx, &report, c.Topics.Weather, telemetry.WeatherPayload(weather))
	c.publish(ctx, &report, c.Topics.Battery, telemetry.PowerPayload(power))

	report.Duration = time.Since(report.Started)
	return report
}

func (c *Cycle) publish(ctx context.Context, report *Report, topic, payload string) {
	pctx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	if err := c.Publisher.Publish(pctx, topic, payload); err != nil {
		c.logf("Failed to publish to %s: %v", topic, err)
		report.Failed[topic] = err.Error()
		return
	}
	report.Published = append(report.Published, topic)
}

func (c *Cycle) readLocation(ctx context.Context, report *Report) (telemetry.GpsFix, error) {
	if c.Location == nil {
		report.ReadFailures = append(report.ReadFailures, SourceGPS)
		return telemetry.GpsFix{}, telemetry.ErrUnavailable
	}
	fix, err := c.Location.Location(ctx)
	if err != nil {
		c.logf("Failed to read GPS: %v", err)
		report.ReadFailures = append(report.ReadFailures, SourceGPS)
		return telemetry.GpsFix{}, err
	}
	return fix, nil
}

func (c *Cycle) readWeather(ctx context.Context, report *Report) telemetry.WeatherSample {
	if c.Weather == nil {
		report.ReadFailures = append(report.ReadFailures, SourceWeather)
		return telemetry.UnavailableWeather()
	}
	w, err := c.Weather.Weather(ctx)
	if err != nil {
		c.logf("Failed to read weather sensor: %v", err)
		report.ReadFailures = append(report.ReadFailures, SourceWeather)
		return telemetry.UnavailableWeather()
	}
	return w
}

func (c *Cycle) readPower(ctx context.Context, report *Report) telemetry.PowerSample {
	if c.Power == nil {
		report.ReadFailures = append(report.ReadFailures, SourcePower)
		return telemetry.UnavailablePower()
	}
	p, err := c.Power.Power(ctx)
	if err != nil {
		c.logf("Failed to read power monitor: %v", err)
		report.ReadFailures = append(report.ReadFailures, SourcePower)
		return telemetry.UnavailablePower()
	}
	return p
}

func (c *Cycle) logf(format string, v ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, v...)
	}
}
