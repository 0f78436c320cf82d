package config

import (
	"log/slog"
	"os"
)

// SetupLogging installs the process-wide slog default handler.
// Production logs JSON at Info; everything else logs text at Debug.
func SetupLogging(env string) {
	var handler slog.Handler
	if env == EnvProduction {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}
