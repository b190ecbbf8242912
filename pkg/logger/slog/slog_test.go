package slog_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	rawslog "log/slog"

	"github.com/stretchr/testify/require"

	"github.com/medkit/medinventory/pkg/logger/slog"
)

type testMethod struct {
	fn    func(msg string, args ...any)
	level rawslog.Level
}

type testLogJSON struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Table     string `json:"table"`
	Component string `json:"component"`
}

func TestSlogHandler(t *testing.T) {
	buffer := bytes.NewBuffer([]byte{})

	// level needs to be set to debug for log all
	handler := rawslog.NewJSONHandler(buffer, &rawslog.HandlerOptions{Level: rawslog.LevelDebug})
	logger := slog.New(handler).With("component", "medinventory")

	testMethods := []testMethod{
		{fn: logger.Error, level: rawslog.LevelError},
		{fn: logger.Warn, level: rawslog.LevelWarn},
		{fn: logger.Info, level: rawslog.LevelInfo},
		{fn: logger.Debug, level: rawslog.LevelDebug},
	}

	for _, v := range testMethods {
		t.Run(fmt.Sprintf("testing %s", v.level.String()), func(t *testing.T) {
			buffer.Reset()
			v.fn("fetch failed", "table", "inventory")

			var line testLogJSON
			require.NoError(t, json.Unmarshal(buffer.Bytes(), &line))
			require.Equal(t, v.level.String(), line.Level)
			require.Equal(t, "fetch failed", line.Msg)
			require.Equal(t, "inventory", line.Table)
			require.Equal(t, "medinventory", line.Component)
		})
	}
}
