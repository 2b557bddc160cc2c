package location

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"tracker-service/internal/telemetry"
)

const (
	DefaultStaleAfter    = 30 * time.Second
	DefaultRetryInterval = 10 * time.Second
)

// Gpsd tracks the latest TPV report from a gpsd daemon. Reports arrive on
// the session's watch goroutine; Location reads the latest under a lock.
type Gpsd struct {
	Server        string
	StaleAfter    time.Duration
	RetryInterval time.Duration
	Logger        *log.Logger

	mu          sync.Mutex
	conn        *gpsd.Session
	done        chan bool
	fix         telemetry.GpsFix
	lastReport  time.Time
	lastAttempt time.Time
}

func NewGpsd(logger *log.Logger, server string) *Gpsd {
	return &Gpsd{
		Server:        server,
		StaleAfter:    DefaultStaleAfter,
		RetryInterval: DefaultRetryInterval,
		Logger:        logger,
	}
}

// Connect dials gpsd and starts watching TPV reports.
func (g *Gpsd) Connect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectLocked()
}

func (g *Gpsd) connectLocked() error {
	g.lastAttempt = time.Now()
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}

	g.Logger.Printf("Connecting to gpsd on %s", g.Server)
	conn, err := gpsd.Dial(g.Server)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd: %v", err)
	}
	if conn == nil {
		return fmt.Errorf("failed to connect to gpsd")
	}

	conn.AddFilter("TPV", func(r interface{}) {
		report, ok := r.(*gpsd.TPVReport)
		if !ok {
			g.Logger.Printf("Error: Could not cast TPV report")
			return
		}
		g.handleTPV(report)
	})

	g.conn = conn
	g.done = conn.Watch()
	return nil
}

func (g *Gpsd) handleTPV(report *gpsd.TPVReport) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastReport = time.Now()

	switch report.Mode {
	case 2:
		g.fix.Quality = telemetry.Fix2D
	case 3:
		g.fix.Quality = telemetry.Fix3D
	default:
		// 0=unknown, 1=no fix
		g.fix.Quality = telemetry.FixNone
		return
	}

	g.fix.Latitude = report.Lat
	g.fix.Longitude = report.Lon
	g.fix.AltitudeM = report.Alt
	g.fix.SpeedKph = report.Speed * 3.6
	g.fix.HeadingDeg = report.Track
}

// Location returns the most recent fix. Without a recent report it retries
// the gpsd connection at most once per RetryInterval.
func (g *Gpsd) Location(ctx context.Context) (telemetry.GpsFix, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lastReport.IsZero() && time.Since(g.lastReport) <= g.StaleAfter {
		return g.fix, nil
	}

	if g.conn == nil {
		if time.Since(g.lastAttempt) < g.RetryInterval {
			return telemetry.GpsFix{}, telemetry.ErrUnavailable
		}
		if err := g.connectLocked(); err != nil {
			return telemetry.GpsFix{}, err
		}
	}

	// connected but silent
	return telemetry.GpsFix{Quality: telemetry.FixNone}, nil
}

func (g *Gpsd) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
}
