// factory.go implements the store backend registry, mapping backend names
// (mongodb, postgres, memory) to constructor functions.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mickBoat00/email-service/internal/config"
)

// FactoryFunc creates a store backend from configuration
type FactoryFunc func(ctx context.Context, cfg *config.Config) (AppStore, error)

var factories = make(map[string]FactoryFunc)

// Register registers a store backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// New creates the store backend selected by cfg.Store.Backend
func New(ctx context.Context, cfg *config.Config) (AppStore, error) {
	factory, ok := factories[cfg.Store.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported store backend: %s (registered: %s)", cfg.Store.Backend, strings.Join(registered(), ", "))
	}
	return factory(ctx, cfg)
}

func registered() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
