package states

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flightmap/tracker/internal/timeutil"
)

// Placeholders substituted for absent provider fields.
const (
	UnknownAircraft = "UNKNOWN"
	NotAvailable    = "N/A"
)

// Column positions inside one provider state vector. Only these are consumed.
const (
	colID         = 0
	colCallsign   = 1
	colCountry    = 2
	colObservedAt = 3
	colLongitude  = 5
	colLatitude   = 6
	colAltitude   = 7
	colVelocity   = 9
)

// ErrMalformedRecord marks a provider record that cannot become a Sample.
var ErrMalformedRecord = errors.New("malformed state record")

// Sample is one observation of one aircraft at one instant. ObservedAt is nil
// when the provider did not report a position timestamp.
type Sample struct {
	AircraftID    string     `json:"aircraft_id"`
	Callsign      string     `json:"callsign"`
	OriginCountry string     `json:"origin_country"`
	ObservedAt    *time.Time `json:"observed_at,omitempty"`
	Longitude     float64    `json:"longitude"`
	Latitude      float64    `json:"latitude"`
	Velocity      float64    `json:"velocity"`
	Altitude      float64    `json:"altitude"`
}

// Raw holds the consumed columns of one provider record. A nil field means the
// column was missing or JSON null, which keeps "absent" apart from a present
// zero or empty value.
type Raw struct {
	ID         *string
	Callsign   *string
	Country    *string
	ObservedAt *float64
	Longitude  *float64
	Latitude   *float64
	Altitude   *float64
	Velocity   *float64
}

// DecodeRaw decodes one positional state vector.
func DecodeRaw(data json.RawMessage) (Raw, error) {
	var cols []json.RawMessage
	if err := json.Unmarshal(data, &cols); err != nil {
		return Raw{}, fmt.Errorf("%w: not an array: %v", ErrMalformedRecord, err)
	}

	var (
		raw Raw
		err error
	)
	if raw.ID, err = stringAt(cols, colID); err != nil {
		return Raw{}, err
	}
	if raw.Callsign, err = stringAt(cols, colCallsign); err != nil {
		return Raw{}, err
	}
	if raw.Country, err = stringAt(cols, colCountry); err != nil {
		return Raw{}, err
	}
	if raw.ObservedAt, err = numberAt(cols, colObservedAt); err != nil {
		return Raw{}, err
	}
	if raw.Longitude, err = numberAt(cols, colLongitude); err != nil {
		return Raw{}, err
	}
	if raw.Latitude, err = numberAt(cols, colLatitude); err != nil {
		return Raw{}, err
	}
	if raw.Altitude, err = numberAt(cols, colAltitude); err != nil {
		return Raw{}, err
	}
	if raw.Velocity, err = numberAt(cols, colVelocity); err != nil {
		return Raw{}, err
	}
	return raw, nil
}

// Normalize applies the fixed defaulting table. A record without longitude or
// latitude cannot be placed and is rejected with ErrMalformedRecord.
//
// A missing identifier becomes UnknownAircraft, so every such record lands in
// one synthetic aircraft bucket downstream.
func Normalize(raw Raw) (Sample, error) {
	if raw.Longitude == nil || raw.Latitude == nil {
		return Sample{}, fmt.Errorf("%w: missing position", ErrMalformedRecord)
	}

	return Sample{
		AircraftID:    textOr(raw.ID, UnknownAircraft),
		Callsign:      textOr(raw.Callsign, NotAvailable),
		OriginCountry: textOr(raw.Country, NotAvailable),
		ObservedAt:    timeutil.FromUnixSeconds(raw.ObservedAt),
		Longitude:     *raw.Longitude,
		Latitude:      *raw.Latitude,
		Velocity:      numberOr(raw.Velocity, 0),
		Altitude:      numberOr(raw.Altitude, 0),
	}, nil
}

// FromJSON decodes and normalizes one provider record.
func FromJSON(data json.RawMessage) (Sample, error) {
	raw, err := DecodeRaw(data)
	if err != nil {
		return Sample{}, err
	}
	return Normalize(raw)
}

func textOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func numberOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func present(cols []json.RawMessage, idx int) bool {
	if idx >= len(cols) {
		return false
	}
	return !bytes.Equal(bytes.TrimSpace(cols[idx]), []byte("null"))
}

func stringAt(cols []json.RawMessage, idx int) (*string, error) {
	if !present(cols, idx) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(cols[idx], &s); err != nil {
		return nil, fmt.Errorf("%w: column %d is not a string", ErrMalformedRecord, idx)
	}
	return &s, nil
}

func numberAt(cols []json.RawMessage, idx int) (*float64, error) {
	if !present(cols, idx) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(cols[idx], &f); err != nil {
		return nil, fmt.Errorf("%w: column %d is not a number", ErrMalformedRecord, idx)
	}
	return &f, nil
}
