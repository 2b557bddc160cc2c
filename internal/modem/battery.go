package modem

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"tracker-service/internal/at"
	"tracker-service/internal/telemetry"
)

// BatteryReader reports the supply voltage measured by the modem. Current
// and power are not available this way and read as -1.
type BatteryReader struct {
	Commander at.Commander
	Variant   Variant
	Range     telemetry.BatteryRange
	Timeout   time.Duration
}

func (b *BatteryReader) Power(ctx context.Context) (telemetry.PowerSample, error) {
	sample := telemetry.UnavailablePower()

	lines, err := b.Commander.Command(ctx, "AT+CBC", b.Timeout)
	if err != nil {
		return sample, errors.Wrap(err, "failed to read battery")
	}

	volts, pct, err := ParseCBC(at.PrefixedValue(lines, "+CBC:"))
	if err != nil {
		return sample, err
	}

	sample.VoltageV = volts
	if pct >= 0 && b.Variant.SupportsBatteryPercent() {
		sample.BatteryPct = pct
	} else {
		sample.BatteryPct = b.Range.Percent(volts)
	}
	return sample, nil
}

// ParseCBC decodes either "<bcs>,<bcl>,<mV>" or "<volts>V". The percent is
// -1 when the response does not carry one.
func ParseCBC(value string) (float64, float64, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "V") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(value, "V"), 64)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "invalid CBC response %q", value)
		}
		return v, telemetry.Unavailable, nil
	}

	fields := at.Fields(value)
	if len(fields) < 3 {
		return 0, 0, errors.Errorf("invalid CBC response %q", value)
	}
	pct, ok := at.FloatField(fields, 1)
	if !ok {
		return 0, 0, errors.Errorf("invalid CBC charge level %q", value)
	}
	mv, ok := at.FloatField(fields, 2)
	if !ok {
		return 0, 0, errors.Errorf("invalid CBC voltage %q", value)
	}
	return mv / 1000, pct, nil
}
