package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"tracker-service/internal/at"
	"tracker-service/internal/command"
)

// ATPort is the AT channel used by the modem's built-in MQTT client.
type ATPort interface {
	at.Commander
	CommandWithPayload(ctx context.Context, cmd, payload string, timeout time.Duration) ([]string, error)
	ReadURCs(ctx context.Context, window time.Duration) ([]string, error)
}

// SIM7000 drives the AT+SM* MQTT client of a SIM7000 module.
type SIM7000 struct {
	port   ATPort
	cfg    Config
	logger func(string, ...interface{})
}

func NewSIM7000(port ATPort, cfg Config, logger func(string, ...interface{})) *SIM7000 {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &SIM7000{port: port, cfg: cfg, logger: logger}
}

func (s *SIM7000) log(format string, v ...interface{}) {
	s.logger("[MQTT] "+format, v...)
}

func (s *SIM7000) command(ctx context.Context, cmd string) error {
	_, err := s.port.Command(ctx, cmd, timeoutFor(ctx, s.cfg.ConnectTimeout))
	return err
}

// Connect configures the session, connects and subscribes to the command topic.
func (s *SIM7000) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conf := []string{
		fmt.Sprintf(`AT+SMCONF="URL",%s,%d`, at.Quote(s.cfg.Host), s.cfg.Port),
		fmt.Sprintf(`AT+SMCONF="KEEPTIME",%d`, int(s.cfg.KeepAlive.Seconds())),
		`AT+SMCONF="CLEANSS",1`,
		fmt.Sprintf(`AT+SMCONF="CLIENTID",%s`, at.Quote(s.cfg.ClientID)),
	}
	if s.cfg.Username != "" {
		conf = append(conf,
			fmt.Sprintf(`AT+SMCONF="USERNAME",%s`, at.Quote(s.cfg.Username)),
			fmt.Sprintf(`AT+SMCONF="PASSWORD",%s`, at.Quote(s.cfg.Password)))
	}
	for _, cmd := range conf {
		if err := s.command(ctx, cmd); err != nil {
			return errors.Wrap(err, "failed to configure MQTT")
		}
	}

	s.log("Connecting to %s:%d as %s", s.cfg.Host, s.cfg.Port, s.cfg.ClientID)
	if err := s.command(ctx, "AT+SMCONN"); err != nil {
		return errors.Wrap(err, "failed to connect to MQTT broker")
	}

	if err := s.command(ctx, fmt.Sprintf("AT+SMSUB=%s,%d", at.Quote(s.cfg.CommandTopic), QoS)); err != nil {
		return errors.Wrapf(err, "failed to subscribe to %s", s.cfg.CommandTopic)
	}
	s.log("Subscribed to %s", s.cfg.CommandTopic)
	return nil
}

func (s *SIM7000) Publish(ctx context.Context, topic, payload string) error {
	retain := 0
	if Retain {
		retain = 1
	}
	cmd := fmt.Sprintf("AT+SMPUB=%s,%d,%d,%d", at.Quote(topic), len(payload), QoS, retain)

	timeout := timeoutFor(ctx, s.cfg.PublishTimeout)
	if timeout <= 0 {
		return errors.Wrapf(at.ErrTimeout, "publish to %s", topic)
	}
	if _, err := s.port.CommandWithPayload(ctx, cmd, payload, timeout); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

// Receive reads notifications for the receive window and parses the
// inbound messages. Malformed notifications are logged and dropped.
func (s *SIM7000) Receive(ctx context.Context) ([]command.Command, error) {
	lines, err := s.port.ReadURCs(ctx, s.cfg.ReceiveWindow)

	var cmds []command.Command
	for _, line := range lines {
		cmd, ok := command.Parse(line)
		if !ok {
			s.log("Discarding malformed notification %q", line)
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, err
}

func (s *SIM7000) Reconnect(ctx context.Context) error {
	if err := s.command(ctx, "AT+SMDISC"); err != nil {
		s.log("Disconnect before reconnect failed: %v", err)
	}
	return s.Connect(ctx)
}

func (s *SIM7000) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()
	return s.command(ctx, "AT+SMDISC")
}
