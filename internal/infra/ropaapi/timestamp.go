package ropaapi

import (
	"bytes"
	"fmt"
	"time"
)

// naiveLayout is what the backend emits for timestamp columns without a zone.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// timestamp decodes RFC3339 as well as zone-less ISO 8601, which is read as UTC.
// It encodes zone-less with microsecond precision, the way the backend does.
type timestamp struct {
	time.Time
}

func stamp(t time.Time) timestamp { return timestamp{t} }

func stampPtr(t *time.Time) *timestamp {
	if t == nil {
		return nil
	}
	return &timestamp{*t}
}

// ptr returns nil for a missing or null timestamp.
func (t *timestamp) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("timestamp: expected a string, got %s", b)
	}
	s := string(b[1 : len(b)-1])
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v.UTC()
		return nil
	}
	v, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("timestamp: %q is neither RFC3339 nor ISO 8601 without zone", s)
	}
	t.Time = v
	return nil
}

func (t timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format("2006-01-02T15:04:05.000000") + `"`), nil
}
