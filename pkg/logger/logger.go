// Package logger provides the structured logger used by the inventory core.
//
// The default implementation is built on zerolog through [LogBuild]. Callers that
// already use log/slog can plug in [github.com/medkit/medinventory/pkg/logger/slog].
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// Logger is the leveled key/value logger accepted by the DB handle and connections.
// args alternate keys and values, as with log/slog.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level sets the minimum level; unknown names keep the current level.
func (build *LogBuild) Level(name string) *LogBuild {
	if lvl, err := zerolog.ParseLevel(name); err == nil && name != "" {
		build.level = lvl
	}
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	writer := build.writer
	if writer == nil {
		writer = os.Stderr
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return logData, nil
}

// Close releases the log file when the logger was built FromPath.
func (l *LogData) Close() error {
	if l.LogFile == nil {
		return nil
	}
	return l.LogFile.Close()
}

func (l *LogData) Error(msg string, args ...any) {
	withFields(l.Logger.Error(), args).Msg(msg)
}

func (l *LogData) Warn(msg string, args ...any) {
	withFields(l.Logger.Warn(), args).Msg(msg)
}

func (l *LogData) Info(msg string, args ...any) {
	withFields(l.Logger.Info(), args).Msg(msg)
}

func (l *LogData) Debug(msg string, args ...any) {
	withFields(l.Logger.Debug(), args).Msg(msg)
}

func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			e = e.Str(key, "!MISSING")
			break
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

type nop struct{}

func (nop) Error(string, ...any) {}
func (nop) Warn(string, ...any)  {}
func (nop) Info(string, ...any)  {}
func (nop) Debug(string, ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}
