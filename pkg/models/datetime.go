package models

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// timestampLayouts are tried in order when decoding. PostgREST renders
// timestamptz with a space or a T separator and an hour-only offset, and date
// columns as a bare YYYY-MM-DD.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// Timestamp embeds time.Time and reads every timestamp rendering the remote
// store produces. It always writes RFC 3339 in UTC.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses s with the first layout that accepts it.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.String())), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("timestamp must be a JSON string: %w", err)
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// String renders the timestamp the way filters send it: RFC 3339 in UTC.
func (t Timestamp) String() string {
	return t.UTC().Format(time.RFC3339Nano)
}
