package telemetry

import "testing"

func TestLocationPayload(t *testing.T) {
	fix := GpsFix{
		Latitude:   47.6062091,
		Longitude:  -122.3320708,
		SpeedKph:   12.6,
		HeadingDeg: 269.4,
		AltitudeM:  56.78,
		Quality:    Fix3D,
	}

	got := LocationPayload(fix)
	want := "13,47.606209,-122.332071,56.8,269"
	if got != want {
		t.Errorf("LocationPayload() = %q, want %q", got, want)
	}
}

func TestWeatherPayload(t *testing.T) {
	got := WeatherPayload(WeatherSample{TempC: 21.456, PressureHpa: 1013.25, AltitudeM: 0, HumidityPct: 40.5})
	want := "21.46,1013.25,0.00,40.50"
	if got != want {
		t.Errorf("WeatherPayload() = %q, want %q", got, want)
	}
}

func TestPowerPayloadUnavailable(t *testing.T) {
	got := PowerPayload(UnavailablePower())
	want := "-1.00,-1.00,-1.00,-1.00"
	if got != want {
		t.Errorf("PowerPayload() = %q, want %q", got, want)
	}
}

func TestFixQualityStatus(t *testing.T) {
	tests := []struct {
		q    FixQuality
		want string
	}{
		{FixOff, "GPS off"},
		{FixNone, "No GPS fix"},
		{Fix2D, "2D fix"},
		{Fix3D, "3D fix"},
		{FixQuality(7), "Unknown GPS status 7"},
	}
	for _, tt := range tests {
		if got := tt.q.Status(); got != tt.want {
			t.Errorf("FixQuality(%d).Status() = %q, want %q", tt.q, got, tt.want)
		}
	}
}

func TestBatteryPercent(t *testing.T) {
	r := DefaultBatteryRange

	tests := []struct {
		name string
		v    float64
		want float64
	}{
		{"empty", 3.0, 0},
		{"full", 4.2, 100},
		{"half", 3.6, 50},
		{"below range clamps", 2.5, 0},
		{"above range clamps", 4.4, 100},
		{"unavailable", Unavailable, Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Percent(tt.v)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Percent(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}

	if got := (BatteryRange{MinV: 4, MaxV: 3}).Percent(3.5); got != Unavailable {
		t.Errorf("inverted range Percent() = %v, want %v", got, Unavailable)
	}
}
