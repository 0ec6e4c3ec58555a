package logging

import (
	"log/slog"
	"os"
)

// SetupJSON sets slog's default logger to a JSON handler writing to stdout.
// Every record carries a "service" attribute so logs from the api and the
// migrator can be told apart in a shared stream. Source locations are
// included at debug level only.
func SetupJSON(service string, level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
}
