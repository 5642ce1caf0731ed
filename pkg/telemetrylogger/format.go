package telemetrylogger

import (
	"fmt"
	"strconv"
)

// FormatRow renders a stored record the way the query tool prints it.
func FormatRow(r Record) string {
	return fmt.Sprintf("Time: %s | Speed: %s | Fuel: %s | RPM: %s | Location: Lat-%s, Lon-%s | Throttle: %s | Temperature: %s",
		r.Timestamp, num(r.Speed), num(r.Fuel), num(r.RPM), num(r.Lat), num(r.Lon), num(r.Throttle), num(r.Temp))
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
