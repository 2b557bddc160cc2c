package gpio

import (
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const (
	DefaultChip = "gpiochip0"
	DefaultLine = 18

	// SIM7000 needs PWRKEY low for at least 72 ms to power on
	DefaultPulse = 100 * time.Millisecond
)

// Line is the output line driving the modem's PWRKEY.
type Line interface {
	SetValue(value int) error
	Close() error
}

// PowerKey pulses the modem's active-low PWRKEY.
type PowerKey struct {
	chip   string
	offset int
	pulse  time.Duration
	line   Line
	logger func(string, ...interface{})
}

func NewPowerKey(chip string, offset int, pulse time.Duration, logger func(string, ...interface{})) *PowerKey {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &PowerKey{chip: chip, offset: offset, pulse: pulse, logger: logger}
}

// Init requests the line as an output, initially released (high).
func (pk *PowerKey) Init() error {
	line, err := gpiocdev.RequestLine(pk.chip, pk.offset,
		gpiocdev.AsOutput(1),
		gpiocdev.WithConsumer("modem-pwrkey"),
	)
	if err != nil {
		return errors.Wrap(err, "failed to request GPIO line")
	}

	pk.line = line
	pk.log("PWRKEY initialized (chip=%s, line=%d)", pk.chip, pk.offset)
	return nil
}

// Close releases the GPIO line
func (pk *PowerKey) Close() error {
	if pk.line == nil {
		return nil
	}

	err := pk.line.Close()
	pk.line = nil
	return err
}

// PowerOn holds PWRKEY low for the pulse duration and releases it.
func (pk *PowerKey) PowerOn() error {
	if pk.line == nil {
		return errors.New("GPIO not initialized")
	}

	pk.log("Sending power ON pulse (%v)...", pk.pulse)

	if err := pk.line.SetValue(0); err != nil {
		return errors.Wrap(err, "failed to set PWRKEY low")
	}

	time.Sleep(pk.pulse)

	if err := pk.line.SetValue(1); err != nil {
		return errors.Wrap(err, "failed to set PWRKEY high")
	}

	pk.log("Power ON pulse complete")
	return nil
}

func (pk *PowerKey) log(format string, args ...interface{}) {
	pk.logger("[GPIO] "+format, args...)
}
