package location

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"tracker-service/internal/at"
	"tracker-service/internal/modem"
	"tracker-service/internal/telemetry"
)

const knotsToKph = 1.852

// ATReader queries the modem's GNSS engine directly.
type ATReader struct {
	Commander at.Commander
	Dialect   modem.GNSSDialect
	Timeout   time.Duration
}

func (r *ATReader) Location(ctx context.Context) (telemetry.GpsFix, error) {
	switch r.Dialect {
	case modem.GNSSCGNSINF:
		lines, err := r.Commander.Command(ctx, "AT+CGNSINF", r.Timeout)
		if err != nil {
			return telemetry.GpsFix{}, errors.Wrap(err, "failed to query GNSS")
		}
		return ParseCGNSINF(at.PrefixedValue(lines, "+CGNSINF:"))
	case modem.GNSSCGPSINFO:
		lines, err := r.Commander.Command(ctx, "AT+CGPSINFO", r.Timeout)
		if err != nil {
			return telemetry.GpsFix{}, errors.Wrap(err, "failed to query GPS")
		}
		return ParseCGPSINFO(at.PrefixedValue(lines, "+CGPSINFO:"))
	default:
		return telemetry.GpsFix{}, telemetry.ErrUnavailable
	}
}

// ParseCGNSINF decodes an AT+CGNSINF result:
// run,fix,utc,lat,lon,alt,speed,course,...
func ParseCGNSINF(value string) (telemetry.GpsFix, error) {
	fields := at.Fields(value)
	if len(fields) < 2 {
		return telemetry.GpsFix{}, errors.Errorf("invalid CGNSINF response %q", value)
	}

	if fields[0] != "1" {
		return telemetry.GpsFix{Quality: telemetry.FixOff}, nil
	}
	if fields[1] != "1" {
		return telemetry.GpsFix{Quality: telemetry.FixNone}, nil
	}

	fix := telemetry.GpsFix{Quality: telemetry.Fix2D}
	var ok bool
	if fix.Latitude, ok = at.FloatField(fields, 3); !ok {
		return telemetry.GpsFix{Quality: telemetry.FixNone}, nil
	}
	if fix.Longitude, ok = at.FloatField(fields, 4); !ok {
		return telemetry.GpsFix{Quality: telemetry.FixNone}, nil
	}
	if alt, ok := at.FloatField(fields, 5); ok {
		fix.AltitudeM = alt
		fix.Quality = telemetry.Fix3D
	}
	fix.SpeedKph, _ = at.FloatField(fields, 6)
	fix.HeadingDeg, _ = at.FloatField(fields, 7)
	return fix, nil
}

// ParseCGPSINFO decodes an AT+CGPSINFO result:
// lat,N/S,lon,E/W,date,time,alt,speed,course
// Coordinates are NMEA ddmm.mmmm and speed is in knots. An all-empty
// result means the engine is running without a fix.
func ParseCGPSINFO(value string) (telemetry.GpsFix, error) {
	parts := strings.Split(strings.TrimSpace(value), ",")
	if len(parts) < 9 {
		return telemetry.GpsFix{}, errors.Errorf("invalid CGPSINFO response %q", value)
	}

	if parts[0] == "" || parts[0] == "0.0" {
		return telemetry.GpsFix{Quality: telemetry.FixNone}, nil
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return telemetry.GpsFix{}, errors.Wrapf(err, "invalid latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return telemetry.GpsFix{}, errors.Wrapf(err, "invalid longitude %q", parts[2])
	}

	fix := telemetry.GpsFix{
		Latitude:  nmeaToDecimal(lat),
		Longitude: nmeaToDecimal(lon),
		Quality:   telemetry.Fix2D,
	}
	if parts[1] == "S" {
		fix.Latitude = -fix.Latitude
	}
	if parts[3] == "W" {
		fix.Longitude = -fix.Longitude
	}
	if alt, err := strconv.ParseFloat(parts[6], 64); err == nil {
		fix.AltitudeM = alt
		fix.Quality = telemetry.Fix3D
	}
	if speed, err := strconv.ParseFloat(parts[7], 64); err == nil {
		fix.SpeedKph = speed * knotsToKph
	}
	if course, err := strconv.ParseFloat(parts[8], 64); err == nil {
		fix.HeadingDeg = course
	}
	return fix, nil
}

// nmeaToDecimal converts NMEA dddmm.mmmm to decimal degrees
func nmeaToDecimal(nmea float64) float64 {
	degrees := int(nmea / 100)
	minutes := nmea - float64(degrees*100)
	return float64(degrees) + (minutes / 60.0)
}
