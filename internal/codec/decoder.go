package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
)

var (
	scalarFields   = []string{"speed", "rpm", "fuel", "throttle", "temp"}
	locationFields = []string{"lat", "lon"}
	nullLiteral    = []byte("null")
)

// Decode parses one frame into a TelemetryRecord. A JSON null document
// returns ok=false with no error. Malformed JSON yields *domain.DecodeError;
// a missing or mistyped field yields *domain.ValidationError.
func Decode(frame []byte) (rec domain.TelemetryRecord, ok bool, err error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(frame, &doc); err != nil {
		return rec, false, &domain.DecodeError{Err: err}
	}
	if doc == nil {
		return rec, false, nil
	}

	ts, err := requireString(doc, "timestamp")
	if err != nil {
		return rec, false, err
	}

	scalars := make(map[string]float64, len(scalarFields))
	for _, name := range scalarFields {
		v, err := requireNumber(doc, name, name)
		if err != nil {
			return rec, false, err
		}
		scalars[name] = v
	}

	rawLoc, present := doc["location"]
	if !present || isNull(rawLoc) {
		return rec, false, &domain.ValidationError{Field: "location", Reason: "missing"}
	}
	var loc map[string]json.RawMessage
	if err := json.Unmarshal(rawLoc, &loc); err != nil {
		return rec, false, &domain.ValidationError{Field: "location", Reason: "not an object"}
	}
	coords := make(map[string]float64, len(locationFields))
	for _, name := range locationFields {
		v, err := requireNumber(loc, name, "location."+name)
		if err != nil {
			return rec, false, err
		}
		coords[name] = v
	}

	return domain.TelemetryRecord{
		Timestamp: ts,
		Speed:     scalars["speed"],
		RPM:       scalars["rpm"],
		Fuel:      scalars["fuel"],
		Lat:       coords["lat"],
		Lon:       coords["lon"],
		Throttle:  scalars["throttle"],
		Temp:      scalars["temp"],
	}, true, nil
}

func requireString(doc map[string]json.RawMessage, name string) (string, error) {
	raw, present := doc[name]
	if !present || isNull(raw) {
		return "", &domain.ValidationError{Field: name, Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &domain.ValidationError{Field: name, Reason: "not a string"}
	}
	if s == "" {
		return "", &domain.ValidationError{Field: name, Reason: "empty"}
	}
	return s, nil
}

func requireNumber(doc map[string]json.RawMessage, key, field string) (float64, error) {
	raw, present := doc[key]
	if !present || isNull(raw) {
		return 0, &domain.ValidationError{Field: field, Reason: "missing"}
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, &domain.ValidationError{Field: field, Reason: fmt.Sprintf("not a number: %s", raw)}
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), nullLiteral)
}
