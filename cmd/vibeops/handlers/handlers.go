// Package handlers implements the vibeops commands.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/KaranKendre11/VibeOPS/internal/config"
)

// Globals holds the persistent flags of the root command.
type Globals struct {
	ConfigPath string
	LogLevel   string
}

func loadConfig(g Globals) (*config.Config, error) {
	cfg, err := config.LoadFile(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
