// Package logging configures structured logging shared by every sync
// orchestrator component, following the service-scoped logrus setup used
// across the rest of the ecosystem.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls logger construction.
type Config struct {
	Level     string // "debug", "info", "warn", "error"
	Format    string // "json" or "text"
	Service   string
	AddCaller bool
}

// DefaultConfig returns sensible defaults for local/dev runs.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Service: "syncorch"}
}

// New builds a *logrus.Logger from cfg.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
	logger.SetReportCaller(cfg.AddCaller)

	return logger
}

// Component returns a *logrus.Entry scoped to a single named component,
// e.g. logging.Component(logger, "engine").
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
