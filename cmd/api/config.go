package main

import (
	"log/slog"
	"time"

	"github.com/nickzitzer/pulseplus-economy/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"PORT" envDefault:"8080"`
	LogLevel        slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// RedisURL is optional; when empty the engine runs without cache
	// invalidation.
	RedisURL string `env:"REDIS_URL" envDefault:""`

	Postgres config.PostgresConfig
	Economy  config.EconomyConfig
}
