package telemetry

import "fmt"

// LocationPayload formats speed,lat,lon,alt,heading.
func LocationPayload(f GpsFix) string {
	return fmt.Sprintf("%.0f,%.6f,%.6f,%.1f,%.0f",
		f.SpeedKph, f.Latitude, f.Longitude, f.AltitudeM, f.HeadingDeg)
}

// WeatherPayload formats temp,pressure,alt,humidity.
func WeatherPayload(w WeatherSample) string {
	return fmt.Sprintf("%.2f,%.2f,%.2f,%.2f",
		w.TempC, w.PressureHpa, w.AltitudeM, w.HumidityPct)
}

// PowerPayload formats voltage,current,power,percent.
func PowerPayload(p PowerSample) string {
	return fmt.Sprintf("%.2f,%.2f,%.2f,%.2f",
		p.VoltageV, p.CurrentMa, p.PowerMw, p.BatteryPct)
}
