// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/config"
)

// Setup installs the global logger. Format "json" writes one JSON object per
// line; anything else uses the console writer.
func Setup(cfg config.LogConfig) {
	setup(cfg, os.Stdout)
}

func setup(cfg config.LogConfig, out io.Writer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("app", "z-tutor").
		Logger()
}
