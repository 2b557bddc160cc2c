package sensors

import (
	"context"

	"tracker-service/internal/telemetry"
)

const (
	attrVoltage = "in1_input"
	attrCurrent = "curr1_input"
	attrPower   = "power1_input"
)

// Power reads an INA219/INA2xx power monitor through its hwmon directory,
// e.g. /sys/class/hwmon/hwmon0.
type Power struct {
	dir string
	rng telemetry.BatteryRange
}

func NewPower(dir string, rng telemetry.BatteryRange) (*Power, error) {
	if err := checkDir(dir, attrVoltage, attrCurrent); err != nil {
		return nil, err
	}
	return &Power{dir: dir, rng: rng}, nil
}

func (p *Power) Power(ctx context.Context) (telemetry.PowerSample, error) {
	sample := telemetry.UnavailablePower()

	mv, err := readValue(p.dir, attrVoltage)
	if err != nil {
		return sample, err
	}
	ma, err := readValue(p.dir, attrCurrent)
	if err != nil {
		return sample, err
	}

	sample.VoltageV = mv / 1000
	sample.CurrentMa = ma
	sample.BatteryPct = p.rng.Percent(sample.VoltageV)

	// microwatts; derive from V*I when the driver has no power channel
	if uw, err := readValue(p.dir, attrPower); err == nil {
		sample.PowerMw = uw / 1000
	} else {
		sample.PowerMw = sample.VoltageV * sample.CurrentMa
	}
	return sample, nil
}
