// Package reading defines the cooking-session telemetry event and its wire
// encoding.
package reading

import (
	"bytes"
	"strings"

	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	"github.com/drblury/cookflow/internal/runtime/jsoncodec"
)

// Sample is one thermistor sample taken at the event's time.
type Sample struct {
	Pin        int     `json:"pin"`
	Value      int     `json:"value"`
	Resistance float64 `json:"resistance"`
	Kelvins    float64 `json:"kelvins"`
}

// Event is a single telemetry report for a cooking session. DeviceID and
// CookID identify the session; Time identifies the sampling instant.
type Event struct {
	DeviceID      string   `json:"device_id"`
	CookID        string   `json:"cook_id"`
	Time          string   `json:"time"`
	CookStartTime string   `json:"cook_start_time,omitempty"`
	ChamberTarget float64  `json:"chamber_target"`
	CookerOn      bool     `json:"cooker_on"`
	Readings      []Sample `json:"readings"`
}

// SessionKey returns the "device|cook" identifier of the event's session.
func (e *Event) SessionKey() string {
	return e.DeviceID + "|" + e.CookID
}

// Decode parses an inbound payload. Any failure is a *errors.DecodeError.
func Decode(raw []byte) (*Event, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &errspkg.DecodeError{Reason: "empty payload"}
	}
	if !jsoncodec.Valid(raw) {
		return nil, &errspkg.DecodeError{Reason: "payload is not well-formed JSON"}
	}

	ev := &Event{}
	if err := jsoncodec.Unmarshal(raw, ev); err != nil {
		return nil, &errspkg.DecodeError{Reason: "payload does not match the reading shape", Err: err}
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	if ev.Readings == nil {
		ev.Readings = []Sample{}
	}
	return ev, nil
}

// Encode serializes the event for the delivery queue.
func Encode(ev *Event) ([]byte, error) {
	if ev == nil {
		return nil, errspkg.ErrEventRequired
	}
	return jsoncodec.Marshal(ev)
}

// EncodeSamples serializes only the samples, as stored on history records.
func EncodeSamples(samples []Sample) (string, error) {
	if samples == nil {
		samples = []Sample{}
	}
	return jsoncodec.MarshalToString(samples)
}

func (e *Event) validate() error {
	var missing []string
	if e.DeviceID == "" {
		missing = append(missing, "device_id")
	}
	if e.CookID == "" {
		missing = append(missing, "cook_id")
	}
	if e.Time == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		return &errspkg.DecodeError{Reason: "missing required fields: " + strings.Join(missing, ", ")}
	}

	var invalid []string
	for _, f := range []struct{ name, value string }{
		{"device_id", e.DeviceID},
		{"cook_id", e.CookID},
		{"time", e.Time},
	} {
		if !validKeyPart(f.value) {
			invalid = append(invalid, f.name)
		}
	}
	if len(invalid) > 0 {
		return &errspkg.DecodeError{Reason: "fields not usable as record keys: " + strings.Join(invalid, ", ")}
	}
	return nil
}

// validKeyPart reports whether s can be part of a table partition or row
// key: no '/', '\\', '#', '?' and no control characters.
func validKeyPart(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r == '/', r == '\\', r == '#', r == '?':
			return true
		case r < 0x20, r >= 0x7f && r <= 0x9f:
			return true
		}
		return false
	})
}
