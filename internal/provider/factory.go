// Package provider builds the completion service configured under llm.
//
// # Adding a New Provider
//
// Implement ports.Completer in a subpackage and expose an explicit
// registration function that calls registry.RegisterFactory, then call it
// from RegisterBuiltins. No init() side effects.
package provider

import (
	"net/http"
	"sync"

	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/provider/anthropic"
	"github.com/KaranKendre11/VibeOPS/internal/provider/openai"
	"github.com/KaranKendre11/VibeOPS/internal/provider/registry"
)

var registerOnce sync.Once

// RegisterBuiltins registers the bundled completers.
func RegisterBuiltins() {
	registerOnce.Do(func() {
		openai.RegisterProviderFactory()
		anthropic.RegisterProviderFactory()
	})
}

// New builds the completer for cfg.Provider, bounded by cfg.Timeout per call.
// httpClient may be nil.
func New(cfg config.LLMConfig, httpClient *http.Client) (ports.Completer, error) {
	RegisterBuiltins()

	c, err := registry.CreateFromFactory(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return NewTracedCompleter(c, cfg.Provider, cfg.Timeout), nil
}

// ListProviderTypes returns the registered provider types.
func ListProviderTypes() []string {
	RegisterBuiltins()
	return registry.ListProviderTypes()
}
