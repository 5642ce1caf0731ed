package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/TelemetryLogger/internal/domain"
)

const scenarioA = `{"timestamp":"t1","speed":10,"rpm":1000,"fuel":99,"throttle":5,"temp":21,"location":{"lat":1.0,"lon":2.0}}`

func TestDecodeValidFrame(t *testing.T) {
	rec, ok, err := Decode([]byte(scenarioA))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.TelemetryRecord{
		Timestamp: "t1",
		Speed:     10,
		RPM:       1000,
		Fuel:      99,
		Lat:       1,
		Lon:       2,
		Throttle:  5,
		Temp:      21,
	}, rec)
	require.Len(t, rec.Fields(), 8)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	frame := `{"timestamp":"t","speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5,"location":{"lat":6,"lon":7,"alt":8},"gear":3}`
	rec, ok, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 6.0, rec.Lat)
	require.Len(t, rec.Fields(), 8)
}

func TestDecodeNullDocumentIsSkipped(t *testing.T) {
	_, ok, err := Decode([]byte(" null "))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range []string{"garbage", `{"speed":`, `[1,2,3]`, `"text"`, `42`} {
		_, ok, err := Decode([]byte(frame))
		require.False(t, ok, frame)

		var decodeErr *domain.DecodeError
		require.True(t, errors.As(err, &decodeErr), "frame %q: got %v", frame, err)
	}
}

func TestDecodeValidation(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		field string
	}{
		{"missing location", `{"timestamp":"t","speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5}`, "location"},
		{"null location", `{"timestamp":"t","speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5,"location":null}`, "location"},
		{"location not object", `{"timestamp":"t","speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5,"location":3}`, "location"},
		{"missing lat", `{"timestamp":"t","speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5,"location":{"lon":2}}`, "location.lat"},
		{"missing lon", `{"timestamp":"t","speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5,"location":{"lat":2}}`, "location.lon"},
		{"missing timestamp", `{"speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5,"location":{"lat":1,"lon":2}}`, "timestamp"},
		{"empty timestamp", `{"timestamp":"","speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5,"location":{"lat":1,"lon":2}}`, "timestamp"},
		{"numeric timestamp", `{"timestamp":12,"speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":5,"location":{"lat":1,"lon":2}}`, "timestamp"},
		{"missing speed", `{"timestamp":"t","rpm":2,"fuel":3,"throttle":4,"temp":5,"location":{"lat":1,"lon":2}}`, "speed"},
		{"string rpm", `{"timestamp":"t","speed":1,"rpm":"fast","fuel":3,"throttle":4,"temp":5,"location":{"lat":1,"lon":2}}`, "rpm"},
		{"null temp", `{"timestamp":"t","speed":1,"rpm":2,"fuel":3,"throttle":4,"temp":null,"location":{"lat":1,"lon":2}}`, "temp"},
		{"empty object", `{}`, "timestamp"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, ok, err := Decode([]byte(c.frame))
			require.False(t, ok)

			var valErr *domain.ValidationError
			require.True(t, errors.As(err, &valErr), "got %v", err)
			require.Equal(t, c.field, valErr.Field)
		})
	}
}
