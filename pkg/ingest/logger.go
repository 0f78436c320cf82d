package ingest

import (
	"fmt"
	"log/slog"
)

// slogLogger adapts the process-wide slog logger to asynq's Logger interface
// so queue internals log in the same shape as everything else.
type slogLogger struct{}

func (slogLogger) Debug(args ...any) { slog.Debug(fmt.Sprint(args...)) }
func (slogLogger) Info(args ...any)  { slog.Info(fmt.Sprint(args...)) }
func (slogLogger) Warn(args ...any)  { slog.Warn(fmt.Sprint(args...)) }
func (slogLogger) Error(args ...any) { slog.Error(fmt.Sprint(args...)) }
func (slogLogger) Fatal(args ...any) { slog.Error(fmt.Sprint(args...)) }
