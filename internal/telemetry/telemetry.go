package telemetry

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Unavailable is the field value reported when a reading could not be taken.
const Unavailable = -1

// ErrUnavailable is returned by sources that have no reading to offer.
var ErrUnavailable = errors.New("telemetry unavailable")

// FixQuality is the GPS receiver's confidence in its position.
type FixQuality int

const (
	FixOff FixQuality = iota
	FixNone
	Fix2D
	Fix3D
)

// Status returns the text published to the error topic for fixes below the
// publish threshold.
func (q FixQuality) Status() string {
	switch q {
	case FixOff:
		return "GPS off"
	case FixNone:
		return "No GPS fix"
	case Fix2D:
		return "2D fix"
	case Fix3D:
		return "3D fix"
	default:
		return fmt.Sprintf("Unknown GPS status %d", int(q))
	}
}

func (q FixQuality) String() string {
	return q.Status()
}

// StatusQueryFailed is published when the GPS could not be queried at all.
const StatusQueryFailed = "Failed to query GPS data"

type GpsFix struct {
	Latitude   float64
	Longitude  float64
	SpeedKph   float64
	HeadingDeg float64
	AltitudeM  float64
	Quality    FixQuality
}

type WeatherSample struct {
	TempC       float64
	PressureHpa float64
	AltitudeM   float64
	HumidityPct float64
}

type PowerSample struct {
	VoltageV   float64
	CurrentMa  float64
	PowerMw    float64
	BatteryPct float64
}

// UnavailableWeather is the sample used when the weather sensor fails.
func UnavailableWeather() WeatherSample {
	return WeatherSample{Unavailable, Unavailable, Unavailable, Unavailable}
}

// UnavailablePower is the sample used when the power monitor fails.
func UnavailablePower() PowerSample {
	return PowerSample{Unavailable, Unavailable, Unavailable, Unavailable}
}

// LocationReader returns the current GPS fix.
type LocationReader interface {
	Location(ctx context.Context) (GpsFix, error)
}

// WeatherReader returns a weather sample.
type WeatherReader interface {
	Weather(ctx context.Context) (WeatherSample, error)
}

// PowerReader returns a power sample.
type PowerReader interface {
	Power(ctx context.Context) (PowerSample, error)
}
