/**
 * @description
 * Explicit provider registry. Provider identifiers map to constructor
 * functions registered at startup; unknown identifiers are a configuration
 * error, never a reflective lookup.
 */
package providers

import (
	"fmt"
	"sort"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/config"
)

// Constructor builds a driver from its provider configuration.
type Constructor func(cfg config.ProviderConfig) Driver

// builtin constructors, keyed by provider identifier.
var builtin = map[string]Constructor{
	ProviderAnchor:   NewAnchorDriver,
	ProviderPaystack: NewPaystackDriver,
}

// Registry holds the drivers for all enabled providers.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry instantiates a driver for every enabled provider in the
// configuration. An enabled provider whose identifier has no registered
// constructor fails fast.
func NewRegistry(cfgs map[string]config.ProviderConfig) (*Registry, error) {
	r := &Registry{drivers: make(map[string]Driver, len(cfgs))}
	for name, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		ctor, ok := builtin[name]
		if !ok {
			return nil, fmt.Errorf("configuration invalid: unknown provider %q", name)
		}
		r.drivers[name] = ctor(cfg)
	}
	return r, nil
}

// Get returns the driver for a provider identifier.
func (r *Registry) Get(name string) (Driver, bool) {
	d, ok := r.drivers[name]
	return d, ok
}

// Names returns the enabled provider identifiers in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
