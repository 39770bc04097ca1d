package runtime

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/metrics"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithConfig sets the configuration. Required.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return fmt.Errorf("nil config")
		}
		a.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithCompleter replaces the completion client built from llm.
func WithCompleter(c ports.Completer) Option {
	return func(a *App) error {
		a.completer = c
		return nil
	}
}

// WithProvisioner replaces the terraform runner built from terraform.
func WithProvisioner(p ports.Provisioner) Option {
	return func(a *App) error {
		a.provisioner = p
		return nil
	}
}

// WithRunStore replaces the store opened from storage. A nil store turns
// run history off.
func WithRunStore(store ports.RunStore) Option {
	return func(a *App) error {
		a.store = store
		a.storeSet = true
		return nil
	}
}

// WithInventory replaces the inventory reader built from inventory.
func WithInventory(inv ports.Inventory) Option {
	return func(a *App) error {
		a.inventory = inv
		return nil
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) error {
		a.metrics = m
		return nil
	}
}

// WithTraceWriter sets where spans are exported when tracing is enabled.
func WithTraceWriter(w io.Writer) Option {
	return func(a *App) error {
		a.traceWriter = w
		return nil
	}
}

// WithListenAddr overrides the address derived from server.port.
func WithListenAddr(addr string) Option {
	return func(a *App) error {
		a.addr = addr
		return nil
	}
}

// WithVersion sets the version reported by GET /.
func WithVersion(v string) Option {
	return func(a *App) error {
		a.version = v
		return nil
	}
}

// WithClock sets the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) error {
		a.now = now
		return nil
	}
}
