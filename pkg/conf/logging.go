// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"io"
	"log/slog"
	"os"

	"github.com/sapcc/go-api-declarations/bininfo"
)

// Conform to the slog.Leveler interface. Unknown or empty levels fall back
// to info.
func (c LoggingConfig) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LevelStr)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Structured logger writing to w, in the configured format. Every record
// carries the component name.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("component", bininfo.Component())
}

// Install the configured logger as the process default.
func (c LoggingConfig) SetDefaultLogger() {
	slog.SetDefault(c.NewLogger(os.Stdout))
	slog.Info("logging: set default logger", "level", c.Level().String(), "format", c.Format)
}
