// Package registry provides completer factory registration and lookup.
//
// Each backend package exposes an explicit registration function that the
// provider package calls once, so nothing depends on init() ordering:
//
//	func RegisterProviderFactory() {
//	    if registry.IsRegistered(ProviderType) {
//	        return
//	    }
//	    registry.RegisterFactory(registry.ProviderFactory{
//	        Type:           ProviderType,
//	        Description:    "OpenAI chat completions",
//	        Create:         CreateFromConfig,
//	        ValidateConfig: ValidateConfig,
//	    })
//	}
package registry

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

// ProviderFactory defines how to build a completer of a specific type.
type ProviderFactory struct {
	// Type is the identifier used in llm.provider.
	Type string

	Description string

	// Create builds a completer. httpClient may be nil.
	Create func(cfg config.LLMConfig, httpClient *http.Client) (ports.Completer, error)

	// ValidateConfig is optional.
	ValidateConfig func(cfg config.LLMConfig) error
}

var (
	factoryMu   sync.RWMutex
	factoryMap  = make(map[string]ProviderFactory)
	factoryList []ProviderFactory
)

// RegisterFactory registers a factory. It panics on an empty type, a missing
// Create function or a duplicate registration.
func RegisterFactory(f ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Type == "" {
		panic("provider factory type cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("provider factory %q must have a Create function", f.Type))
	}
	if _, exists := factoryMap[f.Type]; exists {
		panic(fmt.Sprintf("provider factory %q already registered", f.Type))
	}

	factoryMap[f.Type] = f
	factoryList = append(factoryList, f)
}

// GetFactory returns the factory for a provider type, if registered.
func GetFactory(providerType string) (ProviderFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factoryMap[providerType]
	return f, ok
}

// ListProviderTypes returns all registered provider type names, sorted.
func ListProviderTypes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	types := make([]string, len(factoryList))
	for i, f := range factoryList {
		types[i] = f.Type
	}
	sort.Strings(types)
	return types
}

// IsRegistered returns true if a provider type is registered.
func IsRegistered(providerType string) bool {
	_, ok := GetFactory(providerType)
	return ok
}

// CreateFromFactory validates cfg and builds a completer with the factory
// registered for cfg.Provider.
func CreateFromFactory(cfg config.LLMConfig, httpClient *http.Client) (ports.Completer, error) {
	f, ok := GetFactory(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s (registered types: %v)", cfg.Provider, ListProviderTypes())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration for provider type %s: %w", cfg.Provider, err)
		}
	}

	return f.Create(cfg, httpClient)
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryMap = make(map[string]ProviderFactory)
	factoryList = nil
}
