package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

	testcases := []struct {
		name  string
		input string
		want  time.Time
	}{
		{name: "rfc3339", input: "2024-03-05T10:30:00Z", want: want},
		{name: "rfc3339 offset", input: "2024-03-05T12:30:00+02:00", want: want},
		{name: "postgrest timestamptz", input: "2024-03-05T10:30:00+00", want: want},
		{name: "space separator", input: "2024-03-05 10:30:00+00", want: want},
		{name: "fractional seconds", input: "2024-03-05T10:30:00.000000+00:00", want: want},
		{name: "no zone", input: "2024-03-05T10:30:00", want: want},
		{name: "date only", input: "2024-03-05", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTimestamp(tc.input)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got.Time), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTimestamp("next tuesday")
	require.Error(t, err)
}

func TestTimestamp_json(t *testing.T) {
	t.Parallel()

	var row struct {
		Expiry  *Timestamp `json:"expiry_date"`
		Created Timestamp  `json:"created_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"expiry_date":null,"created_at":"2024-03-05"}`), &row))
	assert.Nil(t, row.Expiry)
	assert.Equal(t, "2024-03-05T00:00:00Z", row.Created.String())

	data, err := json.Marshal(row.Created)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-03-05T00:00:00Z"`, string(data))

	data, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var bad Timestamp
	require.Error(t, json.Unmarshal([]byte(`12345`), &bad))
}
