package service

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tracker-service/internal/command"
	"tracker-service/internal/config"
	"tracker-service/internal/health"
	"tracker-service/internal/metrics"
	"tracker-service/internal/publish"
	"tracker-service/internal/schedule"
	"tracker-service/internal/telemetry"
)

type fakeClock struct {
	now schedule.Timestamp
}

func (c *fakeClock) Now() schedule.Timestamp { return c.now }

type fakeTransport struct {
	inbox        []command.Command
	published    []string
	failPublish  bool
	reconnects   int
	reconnectErr error
	closed       bool
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }

func (f *fakeTransport) Publish(ctx context.Context, topic, payload string) error {
	if f.failPublish {
		return errors.New("+SMPUB: timeout")
	}
	f.published = append(f.published, topic)
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) ([]command.Command, error) {
	cmds := f.inbox
	f.inbox = nil
	return cmds, nil
}

func (f *fakeTransport) Reconnect(ctx context.Context) error {
	f.reconnects++
	return f.reconnectErr
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) send(msg string) {
	f.inbox = append(f.inbox, command.FromMessage("command", []byte(msg)))
}

func (f *fakeTransport) reset() {
	f.published = nil
}

type fakeGPS struct {
	fix telemetry.GpsFix
}

func (f *fakeGPS) Location(ctx context.Context) (telemetry.GpsFix, error) {
	return f.fix, nil
}

type fakeMirror struct {
	fields    map[string]string
	next      uint32
	last      uint32
	cycles    int
	locations int
}

func (f *fakeMirror) PublishTrackerState(ctx context.Context, field, value string) error {
	f.fields[field] = value
	return nil
}

func (f *fakeMirror) PublishSchedule(ctx context.Context, next, last uint32) error {
	f.next, f.last = next, last
	return nil
}

func (f *fakeMirror) PublishCycle(ctx context.Context, r publish.Report) error {
	f.cycles++
	return nil
}

func (f *fakeMirror) PublishLocation(ctx context.Context, fix telemetry.GpsFix) error {
	f.locations++
	return nil
}

type fakeJournal struct {
	reports []publish.Report
}

func (f *fakeJournal) Append(r publish.Report) error {
	f.reports = append(f.reports, r)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeTransport, *fakeClock) {
	t.Helper()

	logger := log.New(os.Stdout, "TEST: ", log.LstdFlags)
	cfg := &config.Config{
		MinPublishInterval: time.Second,
		PublishInterval:    5 * time.Minute,
		LoopInterval:       time.Millisecond,
		FixThreshold:       2,
	}
	transport := &fakeTransport{}
	clock := &fakeClock{}

	s := &Service{
		Config:    cfg,
		Logger:    logger,
		Clock:     clock,
		Scheduler: schedule.New(schedule.DefaultMinPublishInterval, schedule.DefaultPublishInterval),
		Transport: transport,
		Cycle: &publish.Cycle{
			Publisher:    transport,
			Location:     &fakeGPS{fix: telemetry.GpsFix{Latitude: 51.5, Longitude: -0.12, Quality: telemetry.Fix3D}},
			Topics:       publish.DefaultTopics,
			FixThreshold: telemetry.Fix2D,
			Timeout:      time.Second,
			Logger:       logger,
		},
		Health: health.New(),
	}
	return s, transport, clock
}

func TestStepPublishesOnFirstIteration(t *testing.T) {
	s, transport, _ := newTestService(t)

	s.step(context.Background())

	if len(transport.published) != 3 || transport.published[0] != "location" {
		t.Fatalf("published = %v, want location, weather, battery", transport.published)
	}
	if s.Scheduler.State.NextPublish != 300000 || s.Scheduler.State.LastPublish != 0 {
		t.Errorf("schedule = %+v, want next 300000 last 0", s.Scheduler.State)
	}
}

func TestStepWaitsForSchedule(t *testing.T) {
	s, transport, clock := newTestService(t)
	ctx := context.Background()

	s.step(ctx)
	transport.reset()

	for _, now := range []schedule.Timestamp{1000, 150000, 299999} {
		clock.now = now
		s.step(ctx)
	}
	if len(transport.published) != 0 {
		t.Fatalf("published before the interval elapsed: %v", transport.published)
	}

	clock.now = 300000
	s.step(ctx)
	if len(transport.published) != 3 {
		t.Errorf("published = %v at the interval, want a full cycle", transport.published)
	}
	if s.Scheduler.State.NextPublish != 600000 {
		t.Errorf("NextPublish = %d, want 600000", s.Scheduler.State.NextPublish)
	}
}

func TestConnectCommandPullsInPublish(t *testing.T) {
	s, transport, clock := newTestService(t)
	ctx := context.Background()

	s.step(ctx)
	transport.reset()

	clock.now = 5000
	transport.send("connect")
	s.step(ctx)
	if s.Scheduler.State.NextPublish != 6000 {
		t.Fatalf("NextPublish = %d, want 6000", s.Scheduler.State.NextPublish)
	}
	if len(transport.published) != 0 {
		t.Fatalf("published before the pulled-in time: %v", transport.published)
	}

	clock.now = 6000
	s.step(ctx)
	if len(transport.published) != 3 {
		t.Errorf("published = %v, want a full cycle", transport.published)
	}
}

func TestCommandScenarios(t *testing.T) {
	tests := []struct {
		name     string
		now      schedule.Timestamp
		message  string
		wantNext schedule.Timestamp
	}{
		{"connect at the boundary", 299000, "connect", 300000},
		{"connect early", 10000, "connect", 11000},
		{"poll with publish already soon", 250000, "poll", 300000},
		{"unknown message", 10000, "reboot", 300000},
		{"case sensitive", 10000, "Connect", 300000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, transport, clock := newTestService(t)
			ctx := context.Background()
			s.step(ctx)

			clock.now = tt.now
			transport.send(tt.message)
			s.step(ctx)

			if s.Scheduler.State.NextPublish != tt.wantNext {
				t.Errorf("NextPublish = %d, want %d", s.Scheduler.State.NextPublish, tt.wantNext)
			}
		})
	}
}

func TestPollAfterIdleTriggersImmediately(t *testing.T) {
	s, transport, clock := newTestService(t)
	ctx := context.Background()

	// Pretend the last publish was long ago and the next one is far out.
	s.Scheduler.State = schedule.State{NextPublish: 900000, LastPublish: 100000}
	clock.now = 500000
	transport.send("poll")
	s.step(ctx)

	if len(transport.published) != 3 {
		t.Errorf("published = %v, want an immediate cycle", transport.published)
	}
	if s.Scheduler.State.LastPublish != 500000 {
		t.Errorf("LastPublish = %d, want 500000", s.Scheduler.State.LastPublish)
	}
}

func TestPollAfterMissedPublishIsImmediate(t *testing.T) {
	s, transport, clock := newTestService(t)
	reg := prometheus.NewRegistry()
	s.Metrics = metrics.New(reg)
	ctx := context.Background()

	s.step(ctx)
	transport.reset()

	// The loop missed the publish at 300000.
	clock.now = 400000
	transport.send("poll")
	s.step(ctx)

	if len(transport.published) != 3 {
		t.Fatalf("published = %v, want a full cycle", transport.published)
	}
	if s.Scheduler.State.LastPublish != 400000 || s.Scheduler.State.NextPublish != 700000 {
		t.Errorf("schedule = %+v, want last 400000 next 700000", s.Scheduler.State)
	}

	expected := `
# HELP tracker_commands_total Inbound commands by message and scheduling decision.
# TYPE tracker_commands_total counter
tracker_commands_total{decision="immediate",message="poll"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "tracker_commands_total"); err != nil {
		t.Error(err)
	}
}

func TestFailedPublishStillAdvancesSchedule(t *testing.T) {
	s, transport, _ := newTestService(t)
	transport.failPublish = true

	s.step(context.Background())

	if s.Scheduler.State.NextPublish != 300000 {
		t.Errorf("NextPublish = %d, want 300000", s.Scheduler.State.NextPublish)
	}
	if s.Health.FailedCycles != 1 {
		t.Errorf("FailedCycles = %d, want 1", s.Health.FailedCycles)
	}
}

func TestFailingCyclesTriggerReconnect(t *testing.T) {
	s, transport, clock := newTestService(t)
	transport.failPublish = true
	ctx := context.Background()

	for i := 0; i < s.Health.FailureThreshold; i++ {
		clock.now = schedule.Timestamp(i) * schedule.DefaultPublishInterval
		s.step(ctx)
	}

	if transport.reconnects != 1 {
		t.Fatalf("reconnects = %d, want 1", transport.reconnects)
	}
	if s.Health.State != health.StateDegraded {
		t.Errorf("State = %s, want %s", s.Health.State, health.StateDegraded)
	}

	// The next attempt waits for RecoveryWaitTime.
	s.step(ctx)
	if transport.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1 within the wait time", transport.reconnects)
	}

	transport.failPublish = false
	clock.now = schedule.Timestamp(s.Health.FailureThreshold) * schedule.DefaultPublishInterval
	s.step(ctx)
	if s.Health.State != health.StateNormal || s.Health.FailedCycles != 0 {
		t.Errorf("successful cycle should reset health: %s", s.Health)
	}
}

func TestReconnectAttemptsAreBounded(t *testing.T) {
	s, transport, clock := newTestService(t)
	transport.reconnectErr = errors.New("+SMCONN: ERROR")
	ctx := context.Background()

	s.Health.MaxRecoveryAttempts = 2
	s.Health.RecoveryWaitTime = 0
	s.Health.FailedCycles = s.Health.FailureThreshold
	s.Health.State = health.StateDegraded
	s.Scheduler.State.NextPublish = 300000
	clock.now = 1000

	for i := 0; i < 5; i++ {
		s.step(ctx)
	}

	if transport.reconnects != 2 {
		t.Errorf("reconnects = %d, want 2", transport.reconnects)
	}
	if !s.Health.IsTerminal() {
		t.Errorf("State = %s, want terminal", s.Health.State)
	}
}

func TestLocalOutputs(t *testing.T) {
	s, transport, clock := newTestService(t)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	mirror := &fakeMirror{fields: make(map[string]string)}
	j := &fakeJournal{}
	s.Metrics = metrics.New(reg)
	s.Mirror = mirror
	s.Journal = j

	s.step(ctx)
	clock.now = 2000
	transport.send("poll")
	s.step(ctx)

	if len(j.reports) != 1 || !j.reports[0].OK() {
		t.Fatalf("journal = %+v, want one successful report", j.reports)
	}
	if mirror.cycles != 1 || mirror.locations != 1 {
		t.Errorf("mirror cycles = %d locations = %d, want 1 and 1", mirror.cycles, mirror.locations)
	}
	if mirror.fields["gps-status"] != "3D fix" || mirror.fields["last-command"] != "poll" {
		t.Errorf("mirror fields = %v", mirror.fields)
	}
	if mirror.fields["transport-health"] != health.StateNormal {
		t.Errorf("transport-health = %q", mirror.fields["transport-health"])
	}
	if mirror.next != 300000 || mirror.last != 0 {
		t.Errorf("mirrored schedule = %d/%d, want 300000/0", mirror.next, mirror.last)
	}

	if n, err := testutil.GatherAndCount(reg, "tracker_publish_cycles_total"); err != nil || n != 1 {
		t.Errorf("cycle metric series = %d, %v, want 1", n, err)
	}
	if n, err := testutil.GatherAndCount(reg, "tracker_commands_total"); err != nil || n != 1 {
		t.Errorf("command metric series = %d, %v, want 1", n, err)
	}
}

func TestSensorsConfiguredButMissing(t *testing.T) {
	s, _, _ := newTestService(t)

	s.Config.WeatherDir = t.TempDir()
	if _, _, err := s.openSensors(nil); err == nil {
		t.Error("expected error for a weather directory without channels")
	}

	s.Config.WeatherDir = ""
	s.Config.PowerDir = t.TempDir()
	if _, _, err := s.openSensors(nil); err == nil {
		t.Error("expected error for a power directory without channels")
	}
}

func TestSensorsFallBackToModemPower(t *testing.T) {
	s, _, _ := newTestService(t)
	modemPower := &fakePower{}

	weather, power, err := s.openSensors(modemPower)
	if err != nil {
		t.Fatalf("openSensors() error = %v", err)
	}
	if weather != nil {
		t.Error("weather reader without a configured sensor")
	}
	if power != modemPower {
		t.Error("expected the modem supply reading as power source")
	}
}

type fakePower struct{}

func (f *fakePower) Power(ctx context.Context) (telemetry.PowerSample, error) {
	return telemetry.UnavailablePower(), nil
}

func TestRunStopsOnCancel(t *testing.T) {
	s, transport, _ := newTestService(t)
	s.addCloser(transport.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(transport.published) != 3 {
		t.Errorf("published = %v, want one cycle before stopping", transport.published)
	}
	if !transport.closed {
		t.Error("transport not closed on shutdown")
	}
}

func TestCloseOrder(t *testing.T) {
	s, _, _ := newTestService(t)

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		s.addCloser(func() error {
			order = append(order, i)
			return nil
		})
	}
	s.Close()

	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("close order = %v, want [3 2 1]", order)
	}
}
