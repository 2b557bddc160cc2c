package at

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	serial "go.bug.st/serial"
)

// OpenSerial opens a modem serial device at the given baud rate.
func OpenSerial(device string, baud int) (serial.Port, error) {
	p, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial %s", device)
	}
	return p, nil
}

// Dial opens device at initialBaud, asks the modem to switch to baud with
// AT+IPR and reopens the device at the new rate. When both rates match the
// device is opened once.
func Dial(ctx context.Context, device string, initialBaud, baud int, logger func(string, ...interface{}), opts ...Option) (*Port, error) {
	conn, err := OpenSerial(device, initialBaud)
	if err != nil {
		return nil, err
	}
	port := NewPort(conn, logger, opts...)
	if initialBaud == baud {
		return port, nil
	}

	port.logf("Switching %s from %d to %d baud", device, initialBaud, baud)
	if _, err := port.Command(ctx, fmt.Sprintf("AT+IPR=%d", baud), 2*time.Second); err != nil {
		// The modem may already be running at the target rate.
		port.logf("Baud switch not acknowledged: %v", err)
	}
	port.Close()

	conn, err = OpenSerial(device, baud)
	if err != nil {
		return nil, err
	}
	return NewPort(conn, logger, opts...), nil
}
