package sensors

import (
	"context"
	"math"

	"tracker-service/internal/telemetry"
)

// SeaLevelHpa is the reference pressure for the barometric altitude.
const SeaLevelHpa = 1013.25

// IIO attributes of a BME280-class sensor
const (
	attrTemp     = "in_temp_input"
	attrPressure = "in_pressure_input"
	attrHumidity = "in_humidityrelative_input"
)

// Weather reads a combined temperature/pressure/humidity sensor exposed
// through the Linux IIO subsystem, e.g. /sys/bus/iio/devices/iio:device0.
type Weather struct {
	dir         string
	hasHumidity bool
}

// NewWeather checks that dir carries temperature and pressure channels.
// Humidity is optional; BMP280 parts do not have it.
func NewWeather(dir string) (*Weather, error) {
	if err := checkDir(dir, attrTemp, attrPressure); err != nil {
		return nil, err
	}
	return &Weather{dir: dir, hasHumidity: checkDir(dir, attrHumidity) == nil}, nil
}

func (w *Weather) Weather(ctx context.Context) (telemetry.WeatherSample, error) {
	sample := telemetry.UnavailableWeather()

	// millidegrees Celsius
	temp, err := readValue(w.dir, attrTemp)
	if err != nil {
		return sample, err
	}
	// kilopascal
	kpa, err := readValue(w.dir, attrPressure)
	if err != nil {
		return sample, err
	}

	sample.TempC = temp / 1000
	sample.PressureHpa = kpa * 10
	sample.AltitudeM = Altitude(sample.PressureHpa, SeaLevelHpa)

	if w.hasHumidity {
		// milli-percent
		if hum, err := readValue(w.dir, attrHumidity); err == nil {
			sample.HumidityPct = hum / 1000
		}
	}
	return sample, nil
}

// Altitude returns the barometric altitude in metres for pressure hPa.
func Altitude(pressureHpa, seaLevelHpa float64) float64 {
	return 44330 * (1 - math.Pow(pressureHpa/seaLevelHpa, 1/5.255))
}
