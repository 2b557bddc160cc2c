package modem

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"tracker-service/internal/at"
)

// Bring-up defaults
const (
	DefaultAPN        = "hologram"
	DefaultRetries    = 10
	DefaultRetryDelay = time.Second
)

// Modem drives a SIMCom module over an AT channel.
type Modem struct {
	cmd     at.Commander
	timeout time.Duration
	logger  func(string, ...interface{})

	Variant Variant
	Model   string
	IMEI    string
}

// BringUpConfig controls the network attach performed by BringUp.
type BringUpConfig struct {
	APN        string
	Retries    int
	RetryDelay time.Duration
}

func New(cmd at.Commander, timeout time.Duration, logger func(string, ...interface{})) *Modem {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &Modem{cmd: cmd, timeout: timeout, logger: logger}
}

func (m *Modem) log(format string, v ...interface{}) {
	m.logger("[MODEM] "+format, v...)
}

func (m *Modem) command(ctx context.Context, cmd string) ([]string, error) {
	return m.cmd.Command(ctx, cmd, m.timeout)
}

// Identify disables echo and reads the model and IMEI. An error means the
// modem is not answering.
func (m *Modem) Identify(ctx context.Context) error {
	if _, err := m.command(ctx, "ATE0"); err != nil {
		return errors.Wrap(err, "modem not answering")
	}

	model, err := m.command(ctx, "AT+CGMM")
	if err != nil || DetectVariant(model...) == VariantUnknown {
		if ati, atiErr := m.command(ctx, "ATI"); atiErr == nil {
			model = ati
		}
	}
	m.Model = at.Value(model)
	m.Variant = DetectVariant(model...)
	m.log("Modem type: %s (%s)", m.Variant, m.Model)

	imei, err := m.command(ctx, "AT+GSN")
	if err != nil {
		m.log("Warning: failed to read IMEI: %v", err)
	} else {
		m.IMEI = at.Value(imei)
		m.log("Module IMEI: %s", m.IMEI)
	}
	return nil
}

// BringUp identifies the modem, sets full functionality and the APN, then
// enables GNSS and the data bearer. GNSS and data failures are logged and
// left for later cycles to surface.
func (m *Modem) BringUp(ctx context.Context, cfg BringUpConfig) error {
	if err := m.Identify(ctx); err != nil {
		return err
	}
	if !m.Variant.SupportsNativeMQTT() {
		return fmt.Errorf("modem %s (%s) has no native MQTT client", m.Variant, m.Model)
	}

	if _, err := m.command(ctx, "AT+CFUN=1"); err != nil {
		return errors.Wrap(err, "failed to set full functionality")
	}
	if _, err := m.command(ctx, fmt.Sprintf("AT+CGDCONT=1,\"IP\",%s", at.Quote(cfg.APN))); err != nil {
		m.log("Warning: failed to set APN: %v", err)
	}

	if err := m.retry(ctx, cfg, "enable GNSS", m.EnableGNSS); err != nil {
		m.log("Warning: %v", err)
	}
	if err := m.retry(ctx, cfg, "enable data", func(ctx context.Context) error {
		return m.EnableData(ctx, cfg.APN)
	}); err != nil {
		m.log("Warning: %v", err)
	}
	return nil
}

// EnableGNSS powers the GNSS engine.
func (m *Modem) EnableGNSS(ctx context.Context) error {
	cmd := m.Variant.GNSSPowerCommand()
	if cmd == "" {
		return fmt.Errorf("no GNSS support on %s", m.Variant)
	}
	_, err := m.command(ctx, cmd)
	return err
}

// EnableData activates the packet data bearer.
func (m *Modem) EnableData(ctx context.Context, apn string) error {
	_, err := m.command(ctx, fmt.Sprintf("AT+CNACT=1,%s", at.Quote(apn)))
	return err
}

func (m *Modem) retry(ctx context.Context, cfg BringUpConfig, what string, fn func(context.Context) error) error {
	attempts := cfg.Retries
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			m.log("%s: ok", what)
			return nil
		}
		if i == attempts {
			break
		}
		m.log("Failed to %s (attempt %d/%d), retrying...", what, i, attempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
	return errors.Wrapf(err, "failed to %s after %d attempts", what, attempts)
}
