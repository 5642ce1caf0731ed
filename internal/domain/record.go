package domain

import "strconv"

// TelemetryRecord is the canonical unit of vehicle telemetry. Location is
// flattened into Lat/Lon by the decoder.
type TelemetryRecord struct {
	Timestamp string  `json:"timestamp"`
	Speed     float64 `json:"speed"`
	RPM       float64 `json:"rpm"`
	Fuel      float64 `json:"fuel"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Throttle  float64 `json:"throttle"`
	Temp      float64 `json:"temp"`
}

// Columns is the tabular column order shared by every sink.
var Columns = []string{"speed", "rpm", "fuel", "lat", "lon", "throttle", "temp", "timestamp"}

// Row renders the record in Columns order.
func (r TelemetryRecord) Row() []string {
	return []string{
		formatFloat(r.Speed),
		formatFloat(r.RPM),
		formatFloat(r.Fuel),
		formatFloat(r.Lat),
		formatFloat(r.Lon),
		formatFloat(r.Throttle),
		formatFloat(r.Temp),
		r.Timestamp,
	}
}

// Fields returns the record keyed by column name.
func (r TelemetryRecord) Fields() map[string]any {
	return map[string]any{
		"timestamp": r.Timestamp,
		"speed":     r.Speed,
		"rpm":       r.RPM,
		"fuel":      r.Fuel,
		"lat":       r.Lat,
		"lon":       r.Lon,
		"throttle":  r.Throttle,
		"temp":      r.Temp,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
