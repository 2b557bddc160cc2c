package sensors

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"tracker-service/internal/telemetry"
)

func writeAttrs(t *testing.T, attrs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, value := range attrs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestWeather(t *testing.T) {
	dir := writeAttrs(t, map[string]string{
		attrTemp:     "21450",
		attrPressure: "101.325",
		attrHumidity: "40500",
	})

	w, err := NewWeather(dir)
	if err != nil {
		t.Fatalf("NewWeather() error = %v", err)
	}
	s, err := w.Weather(context.Background())
	if err != nil {
		t.Fatalf("Weather() error = %v", err)
	}

	if !approx(s.TempC, 21.45, 1e-9) {
		t.Errorf("TempC = %v", s.TempC)
	}
	if !approx(s.PressureHpa, 1013.25, 1e-9) {
		t.Errorf("PressureHpa = %v", s.PressureHpa)
	}
	if !approx(s.AltitudeM, 0, 1e-6) {
		t.Errorf("AltitudeM = %v, want 0 at sea level pressure", s.AltitudeM)
	}
	if !approx(s.HumidityPct, 40.5, 1e-9) {
		t.Errorf("HumidityPct = %v", s.HumidityPct)
	}
}

func TestWeatherWithoutHumidity(t *testing.T) {
	dir := writeAttrs(t, map[string]string{attrTemp: "20000", attrPressure: "100"})

	w, err := NewWeather(dir)
	if err != nil {
		t.Fatalf("NewWeather() error = %v", err)
	}
	s, err := w.Weather(context.Background())
	if err != nil {
		t.Fatalf("Weather() error = %v", err)
	}
	if s.HumidityPct != telemetry.Unavailable {
		t.Errorf("HumidityPct = %v, want unavailable", s.HumidityPct)
	}
	if s.AltitudeM <= 100 || s.AltitudeM >= 120 {
		t.Errorf("AltitudeM = %v, want about 111 m at 1000 hPa", s.AltitudeM)
	}
}

func TestWeatherMissingSensor(t *testing.T) {
	if _, err := NewWeather(filepath.Join(t.TempDir(), "iio:device9")); err == nil {
		t.Error("expected error for missing device")
	}
	dir := writeAttrs(t, map[string]string{attrTemp: "20000"})
	if _, err := NewWeather(dir); err == nil {
		t.Error("expected error for device without pressure channel")
	}
}

func TestWeatherReadFailure(t *testing.T) {
	dir := writeAttrs(t, map[string]string{attrTemp: "20000", attrPressure: "100"})
	w, err := NewWeather(dir)
	if err != nil {
		t.Fatalf("NewWeather() error = %v", err)
	}
	os.WriteFile(filepath.Join(dir, attrPressure), []byte("garbage"), 0644)

	s, err := w.Weather(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if s != telemetry.UnavailableWeather() {
		t.Errorf("Weather() = %+v, want unavailable sample", s)
	}
}

func TestPower(t *testing.T) {
	dir := writeAttrs(t, map[string]string{
		attrVoltage: "3600",
		attrCurrent: "125",
		attrPower:   "450000",
	})

	p, err := NewPower(dir, telemetry.DefaultBatteryRange)
	if err != nil {
		t.Fatalf("NewPower() error = %v", err)
	}
	s, err := p.Power(context.Background())
	if err != nil {
		t.Fatalf("Power() error = %v", err)
	}
	if !approx(s.VoltageV, 3.6, 1e-9) || s.CurrentMa != 125 || !approx(s.PowerMw, 450, 1e-9) {
		t.Errorf("Power() = %+v", s)
	}
	if !approx(s.BatteryPct, 50, 1e-6) {
		t.Errorf("BatteryPct = %v, want 50", s.BatteryPct)
	}
}

func TestPowerDerivedWhenNoPowerChannel(t *testing.T) {
	dir := writeAttrs(t, map[string]string{attrVoltage: "4000", attrCurrent: "100"})

	p, err := NewPower(dir, telemetry.DefaultBatteryRange)
	if err != nil {
		t.Fatalf("NewPower() error = %v", err)
	}
	s, err := p.Power(context.Background())
	if err != nil {
		t.Fatalf("Power() error = %v", err)
	}
	if !approx(s.PowerMw, 400, 1e-9) {
		t.Errorf("PowerMw = %v, want 400", s.PowerMw)
	}
}
