// Package slog adapts a log/slog handler to the inventory core's Logger.
package slog

import (
	"log/slog"

	"github.com/medkit/medinventory/pkg/logger"
)

type SlogHandler struct {
	logger *slog.Logger
}

var _ logger.Logger = (*SlogHandler)(nil)

func New(h slog.Handler) *SlogHandler {
	return &SlogHandler{logger: slog.New(h)}
}

// FromLogger wraps an existing *slog.Logger.
func FromLogger(l *slog.Logger) *SlogHandler {
	return &SlogHandler{logger: l}
}

// With returns a handler that adds args to every record.
func (handler *SlogHandler) With(args ...any) *SlogHandler {
	return &SlogHandler{logger: handler.logger.With(args...)}
}

func (handler *SlogHandler) Error(msg string, args ...any) {
	handler.logger.Error(msg, args...)
}

func (handler *SlogHandler) Warn(msg string, args ...any) {
	handler.logger.Warn(msg, args...)
}

func (handler *SlogHandler) Info(msg string, args ...any) {
	handler.logger.Info(msg, args...)
}

func (handler *SlogHandler) Debug(msg string, args ...any) {
	handler.logger.Debug(msg, args...)
}
