package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tracker-service/internal/command"
	"tracker-service/internal/config"
	"tracker-service/internal/health"
	"tracker-service/internal/journal"
	"tracker-service/internal/metrics"
	"tracker-service/internal/mqtt"
	"tracker-service/internal/publish"
	redisClient "tracker-service/internal/redis"
	"tracker-service/internal/schedule"
	"tracker-service/internal/telemetry"
)

const (
	reconnectTimeout = 60 * time.Second
	mirrorTimeout    = time.Second
)

// StateMirror receives a copy of the tracker state for local consumers.
type StateMirror interface {
	PublishTrackerState(ctx context.Context, field, value string) error
	PublishSchedule(ctx context.Context, next, last uint32) error
	PublishCycle(ctx context.Context, r publish.Report) error
	PublishLocation(ctx context.Context, fix telemetry.GpsFix) error
}

// CycleJournal stores completed cycle reports.
type CycleJournal interface {
	Append(r publish.Report) error
}

type Service struct {
	Config    *config.Config
	Logger    *log.Logger
	Clock     schedule.Clock
	Scheduler *schedule.Scheduler
	Transport mqtt.Transport
	Cycle     *publish.Cycle
	Health    *health.Health

	// Optional local outputs; nil disables them.
	Metrics *metrics.Metrics
	Mirror  StateMirror
	Journal CycleJournal

	terminalLogged bool
	closers        []func() error
}

// New builds the modem backend, sensors and local outputs described by cfg.
// Any error means the node cannot produce telemetry and must not start.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger, version string) (*Service, error) {
	s := &Service{
		Config: cfg,
		Logger: logger,
		Clock:  schedule.NewMonotonicClock(),
		Scheduler: schedule.New(
			schedule.Millis(cfg.MinPublishInterval),
			schedule.Millis(cfg.PublishInterval),
		),
		Health: health.New(),
	}

	s.Logger.Printf("tracker-service v%s", version)

	if err := s.setup(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) setup(ctx context.Context) error {
	cfg := s.Config

	var b *backend
	var err error
	switch cfg.Backend {
	case config.BackendSerial:
		b, err = s.serialBackend(ctx)
	case config.BackendModemManager:
		b, err = s.modemManagerBackend(ctx)
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return err
	}
	s.Transport = b.transport
	s.addCloser(b.transport.Close)

	weather, power, err := s.openSensors(b.power)
	if err != nil {
		return err
	}

	s.Cycle = &publish.Cycle{
		Publisher: s.Transport,
		Location:  b.location,
		Weather:   weather,
		Power:     power,
		Topics: publish.Topics{
			Location: cfg.LocationTopic,
			Weather:  cfg.WeatherTopic,
			Battery:  cfg.BatteryTopic,
			Error:    cfg.ErrorTopic,
		},
		FixThreshold: telemetry.FixQuality(cfg.FixThreshold),
		Timeout:      cfg.PublishTimeout,
		Logger:       s.Logger,
	}

	if err := s.Transport.Connect(ctx); err != nil {
		// Publishes will fail and the health check will reconnect.
		s.Logger.Printf("Failed to connect to broker: %v", err)
	}

	return s.setupOutputs(ctx)
}

func (s *Service) setupOutputs(ctx context.Context) error {
	cfg := s.Config

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		s.Metrics = metrics.New(reg)
		srv := metrics.Serve(cfg.MetricsAddr, reg, s.Logger)
		s.addCloser(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
		s.Logger.Printf("Serving metrics on %s", cfg.MetricsAddr)
	}

	if cfg.RedisURL != "" {
		redis, err := redisClient.New(cfg.RedisURL, s.Logger)
		if err != nil {
			return fmt.Errorf("failed to create Redis client: %v", err)
		}
		s.addCloser(redis.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := redis.Ping(pingCtx); err != nil {
			s.Logger.Printf("Redis not reachable, mirroring anyway: %v", err)
		}
		s.Mirror = redis
	}

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, cfg.JournalMax)
		if err != nil {
			return fmt.Errorf("failed to open journal: %v", err)
		}
		s.addCloser(j.Close)
		s.Journal = j
	}

	return nil
}

// Run drives the main loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Logger.Printf("Publishing every %v, %v after a command (fix threshold %d)",
		s.Config.PublishInterval, s.Config.MinPublishInterval, s.Config.FixThreshold)

	defer s.Close()

	ticker := time.NewTicker(s.Config.LoopInterval)
	defer ticker.Stop()

	for {
		s.step(ctx)

		select {
		case <-ctx.Done():
			s.Logger.Printf("Shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// step runs one loop iteration: drain commands, publish if due, then look
// after the transport.
func (s *Service) step(ctx context.Context) {
	cmds, err := s.Transport.Receive(ctx)
	if err != nil {
		s.Logger.Printf("Failed to receive commands: %v", err)
	}
	for _, cmd := range cmds {
		s.handleCommand(ctx, cmd)
	}

	now := s.Clock.Now()
	if s.Scheduler.Due(now) {
		report := s.Cycle.Run(ctx)
		s.Scheduler.MarkPublished(now)
		s.afterCycle(ctx, report)
	}

	s.checkTransport(ctx)

	if s.Metrics != nil {
		s.Metrics.SetNextPublish(float64(s.Scheduler.Remaining(s.Clock.Now())))
	}
	s.mirror(ctx, func(ctx context.Context, m StateMirror) error {
		return m.PublishSchedule(ctx, uint32(s.Scheduler.State.NextPublish), uint32(s.Scheduler.State.LastPublish))
	})
}

func (s *Service) handleCommand(ctx context.Context, cmd command.Command) {
	if cmd.Message == command.Unknown {
		s.Logger.Printf("Ignoring unknown command %q on %s", cmd.Raw, cmd.Topic)
	}

	now := s.Clock.Now()
	decision := s.Scheduler.OnCommand(cmd, now)
	switch {
	case decision.Changed():
		s.Logger.Printf("Command %s: %s, next publish in %dms", cmd.Message, decision, s.Scheduler.Remaining(now))
	case cmd.Message != command.Unknown:
		s.Logger.Printf("Command %s: %s", cmd.Message, decision)
	}

	if s.Metrics != nil {
		s.Metrics.ObserveCommand(cmd.Message.String(), string(decision))
	}
	s.mirror(ctx, func(ctx context.Context, m StateMirror) error {
		return m.PublishTrackerState(ctx, "last-command", cmd.Message.String())
	})
}

func (s *Service) afterCycle(ctx context.Context, report publish.Report) {
	if report.OK() {
		s.Logger.Printf("Cycle %s published %v in %v", report.ID, report.Published, report.Duration)
	} else {
		s.Logger.Printf("Cycle %s published %v, failed %v", report.ID, report.Published, report.Failed)
	}

	s.Health.RecordCycle(report.OK())

	if s.Metrics != nil {
		s.Metrics.ObserveCycle(report)
	}
	if s.Journal != nil {
		if err := s.Journal.Append(report); err != nil {
			s.Logger.Printf("Failed to journal cycle %s: %v", report.ID, err)
		}
	}
	s.mirror(ctx, func(ctx context.Context, m StateMirror) error {
		if err := m.PublishCycle(ctx, report); err != nil {
			return err
		}
		if err := m.PublishTrackerState(ctx, "gps-status", report.GPSStatus); err != nil {
			return err
		}
		if report.Fix == nil {
			return nil
		}
		return m.PublishLocation(ctx, *report.Fix)
	})
}

// checkTransport reconnects after repeated failing cycles. Attempts are
// bounded by the health state machine.
func (s *Service) checkTransport(ctx context.Context) {
	defer s.mirror(ctx, func(ctx context.Context, m StateMirror) error {
		return m.PublishTrackerState(ctx, "transport-health", s.Health.State)
	})

	if s.Health.IsTerminal() {
		if !s.terminalLogged {
			s.Logger.Printf("Transport reconnect attempts exhausted: %s", s.Health)
			s.terminalLogged = true
		}
		return
	}
	s.terminalLogged = false

	if !s.Health.NeedsRecovery(time.Now()) {
		return
	}

	s.Health.StartRecovery()
	s.Logger.Printf("Reconnecting transport (attempt %d/%d)",
		s.Health.RecoveryAttempts, s.Health.MaxRecoveryAttempts)

	rctx, cancel := context.WithTimeout(ctx, reconnectTimeout)
	defer cancel()
	err := s.Transport.Reconnect(rctx)
	if s.Metrics != nil {
		s.Metrics.ObserveReconnect(err)
	}
	if err != nil {
		s.Logger.Printf("Reconnect failed: %v", err)
		s.Health.MarkRecoveryFailed()
		return
	}
	s.Logger.Printf("Transport reconnected")
	s.Health.MarkRecovered()
}

func (s *Service) mirror(ctx context.Context, fn func(context.Context, StateMirror) error) {
	if s.Mirror == nil {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	// Failures are logged by the mirror.
	_ = fn(mctx, s.Mirror)
}

func (s *Service) addCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases everything New acquired, newest first.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.Printf("Error during shutdown: %v", err)
		}
	}
	s.closers = nil
}
