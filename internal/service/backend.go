package service

import (
	"context"
	"fmt"
	"time"

	"tracker-service/internal/at"
	"tracker-service/internal/command"
	"tracker-service/internal/gpio"
	"tracker-service/internal/location"
	"tracker-service/internal/mm"
	"tracker-service/internal/modem"
	"tracker-service/internal/mqtt"
	"tracker-service/internal/sensors"
	"tracker-service/internal/telemetry"
)

const (
	modemBootWait     = 5 * time.Second
	modemPollInterval = 5 * time.Second
	modemMaxChecks    = 24
	brokerKeepAlive   = 60 * time.Second
	connectTimeout    = 30 * time.Second
)

// backend is the modem-dependent half of the node.
type backend struct {
	transport mqtt.Transport
	location  telemetry.LocationReader
	// power is the modem's own supply reading, used without a power monitor.
	power telemetry.PowerReader
}

func (s *Service) mqttConfig() mqtt.Config {
	cfg := s.Config
	return mqtt.Config{
		Host:           cfg.MQTTHost,
		Port:           cfg.MQTTPort,
		Username:       cfg.MQTTUsername,
		Password:       cfg.MQTTPassword,
		ClientID:       cfg.ClientID,
		CommandTopic:   cfg.CommandTopic,
		KeepAlive:      brokerKeepAlive,
		ConnectTimeout: connectTimeout,
		PublishTimeout: cfg.PublishTimeout,
		ReceiveWindow:  cfg.ReceiveWindow,
	}
}

func (s *Service) batteryRange() telemetry.BatteryRange {
	return telemetry.BatteryRange{MinV: s.Config.BatteryMinV, MaxV: s.Config.BatteryMaxV}
}

// serialBackend powers the SIM7000 on, brings up its data bearer and uses
// its built-in MQTT client and GNSS engine over the serial AT channel.
func (s *Service) serialBackend(ctx context.Context) (*backend, error) {
	cfg := s.Config

	if cfg.PwrkeyChip != "" {
		pk := gpio.NewPowerKey(cfg.PwrkeyChip, cfg.PwrkeyLine, gpio.DefaultPulse, s.Logger.Printf)
		if err := pk.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize PWRKEY: %v", err)
		}
		s.addCloser(pk.Close)

		if err := pk.PowerOn(); err != nil {
			return nil, fmt.Errorf("failed to power on modem: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(modemBootWait):
		}
	}

	port, err := at.Dial(ctx, cfg.Device, cfg.InitialBaud, cfg.Baud, s.Logger.Printf,
		at.WithURCMatcher(command.IsNotification),
		at.WithQueueSize(cfg.URCQueueSize),
		at.WithDebug(cfg.Debug),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open modem port: %v", err)
	}
	s.addCloser(port.Close)

	m := modem.New(port, cfg.ATTimeout, s.Logger.Printf)
	err = m.BringUp(ctx, modem.BringUpConfig{
		APN:        cfg.APN,
		Retries:    modem.DefaultRetries,
		RetryDelay: modem.DefaultRetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("modem bring-up failed: %v", err)
	}

	return &backend{
		transport: mqtt.NewSIM7000(port, s.mqttConfig(), s.Logger.Printf),
		location: &location.ATReader{
			Commander: port,
			Dialect:   m.Variant.GNSSDialect(),
			Timeout:   cfg.ATTimeout,
		},
		power: &modem.BatteryReader{
			Commander: port,
			Variant:   m.Variant,
			Range:     s.batteryRange(),
			Timeout:   cfg.ATTimeout,
		},
	}, nil
}

// modemManagerBackend leaves the modem to ModemManager, reads GPS from gpsd
// and publishes through a broker connection over the cellular bearer.
func (s *Service) modemManagerBackend(ctx context.Context) (*backend, error) {
	cfg := s.Config

	if err := modem.WaitForModem(ctx, modemPollInterval, modemMaxChecks, s.Logger); err != nil {
		return nil, fmt.Errorf("modem not available: %v", err)
	}
	if status, err := modem.ReadStatus(); err != nil {
		s.Logger.Printf("Failed to read modem status: %v", err)
	} else {
		s.Logger.Printf("Modem: %s", status)
	}

	client, err := mm.NewClient(cfg.Debug, s.Logger.Printf)
	if err != nil {
		return nil, fmt.Errorf("failed to create ModemManager client: %v", err)
	}
	s.addCloser(client.Close)

	modemPath, err := client.FindModem()
	if err != nil {
		return nil, fmt.Errorf("modem not available: %v", err)
	}
	if state, err := client.State(modemPath); err != nil {
		s.Logger.Printf("Failed to read modem state: %v", err)
	} else if !mm.IsReady(state) {
		s.Logger.Printf("Modem is %s, publishes fail until it registers", mm.ModemStateToString(state))
	}
	if err := client.EnableUnmanagedGPS(modemPath); err != nil {
		s.Logger.Printf("Failed to enable GPS: %v", err)
	}

	gps := location.NewGpsd(s.Logger, cfg.GpsdServer)
	if err := gps.Connect(); err != nil {
		s.Logger.Printf("gpsd not reachable yet, will retry: %v", err)
	}
	s.addCloser(func() error {
		gps.Close()
		return nil
	})

	b := &backend{
		transport: mqtt.NewBroker(s.mqttConfig(), s.Logger.Printf),
		location:  gps,
	}

	// AT passthrough only works with ModemManager in debug mode, so the
	// battery fallback is best effort.
	cmdr := mm.NewATCommander(client, modemPath)
	m := modem.New(cmdr, cfg.ATTimeout, s.Logger.Printf)
	if err := m.Identify(ctx); err != nil {
		s.Logger.Printf("No AT access through ModemManager, battery fallback disabled: %v", err)
	} else {
		b.power = &modem.BatteryReader{
			Commander: cmdr,
			Variant:   m.Variant,
			Range:     s.batteryRange(),
			Timeout:   cfg.ATTimeout,
		}
	}
	return b, nil
}

// openSensors opens the configured sensor directories. A configured sensor that
// cannot be opened is fatal. Without a power monitor the modem's supply
// reading is used instead.
func (s *Service) openSensors(modemPower telemetry.PowerReader) (telemetry.WeatherReader, telemetry.PowerReader, error) {
	cfg := s.Config

	var weather telemetry.WeatherReader
	if cfg.WeatherDir != "" {
		w, err := sensors.NewWeather(cfg.WeatherDir)
		if err != nil {
			return nil, nil, fmt.Errorf("weather sensor not found: %v", err)
		}
		weather = w
	} else {
		s.Logger.Printf("No weather sensor configured, publishing -1")
	}

	power := modemPower
	if cfg.PowerDir != "" {
		p, err := sensors.NewPower(cfg.PowerDir, s.batteryRange())
		if err != nil {
			return nil, nil, fmt.Errorf("power monitor not found: %v", err)
		}
		power = p
	} else if power == nil {
		s.Logger.Printf("No power source configured, publishing -1")
	}

	return weather, power, nil
}
