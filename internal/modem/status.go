package modem

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rescoot/go-mmcli"
)

// Power states
const (
	PowerStateOn  = "on"
	PowerStateOff = "off"
)

// Connection states
const (
	StatusNoModem      = "no-modem"
	StatusOff          = "off"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Status is a ModemManager view of the modem used on nodes where the modem
// is managed by the system.
type Status struct {
	Status        string
	PowerState    string
	AccessTech    string
	SignalQuality uint8
	IMEI          string
	Registration  string
	SIMMissing    bool
}

func (s *Status) String() string {
	return fmt.Sprintf("%s (power=%s tech=%s signal=%d%% reg=%s)",
		s.Status, s.PowerState, s.AccessTech, s.SignalQuality, s.Registration)
}

// FindModemID finds the ModemManager index of the first modem.
func FindModemID() (string, error) {
	modemList, err := mmcli.ListModems()
	if err != nil {
		return "", fmt.Errorf("mmcli ListModems error: %v", err)
	}

	if len(modemList) == 0 {
		return "", fmt.Errorf("no modem found")
	}

	// /org/freedesktop/ModemManager1/Modem/<id>
	parts := strings.Split(modemList[0], "/")
	return parts[len(parts)-1], nil
}

// ReadStatus collects the current modem status from ModemManager.
func ReadStatus() (*Status, error) {
	state := &Status{Status: StatusNoModem, PowerState: PowerStateOff}

	modemID, err := FindModemID()
	if err != nil {
		return state, err
	}

	mm, err := mmcli.GetModemDetails(modemID)
	if err != nil {
		return state, fmt.Errorf("mmcli GetModemDetails error: %v", err)
	}

	state.PowerState = mm.Modem.Generic.PowerState
	state.SIMMissing = mm.Modem.Generic.SIM == "" || mm.Modem.Generic.SIM == "--"
	if quality, err := mm.SignalStrength(); err == nil {
		state.SignalQuality = uint8(quality)
	}
	state.AccessTech = mm.GetCurrentAccessTechnology()
	state.IMEI = mm.Modem.ThreeGPP.IMEI
	state.Registration = mm.Modem.ThreeGPP.RegistrationState

	switch {
	case mm.Modem.Generic.PowerState != PowerStateOn:
		state.Status = StatusOff
	case mm.IsConnected():
		state.Status = StatusConnected
	default:
		state.Status = StatusDisconnected
	}

	return state, nil
}

// WaitForModem polls ModemManager until a modem shows up or maxChecks
// polls have failed.
func WaitForModem(ctx context.Context, interval time.Duration, maxChecks int, logger *log.Logger) error {
	if _, err := FindModemID(); err == nil {
		return nil
	}
	logger.Printf("Waiting for modem to come up...")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := FindModemID(); err == nil {
				logger.Printf("Modem is now present via mmcli/dbus")
				return nil
			}

			count++
			if count >= maxChecks {
				return fmt.Errorf("modem did not come up after %d checks", maxChecks)
			}
		}
	}
}
