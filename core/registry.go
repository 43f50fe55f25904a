package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DriverRegistry resolves provider names to configuration-bound drivers.
// Resolution precedence: registered extension factory, built-in driver,
// qualified factory name. Resolved drivers are cached for the life of the
// registry so configuration-bound instances are constructed once.
type DriverRegistry struct {
	mu         sync.RWMutex
	config     map[string]ProviderConfig
	builtins   map[string]DriverFactory
	extensions map[string]DriverFactory
	qualified  map[string]DriverFactory
	cache      map[string]Driver
}

func NewDriverRegistry(cfg Config, builtins map[string]DriverFactory) *DriverRegistry {
	providers := make(map[string]ProviderConfig, len(cfg.Providers))
	for name, provider := range cfg.Providers {
		providers[strings.TrimSpace(name)] = provider
	}
	factories := make(map[string]DriverFactory, len(builtins))
	for name, factory := range builtins {
		if factory == nil {
			continue
		}
		factories[normalizeDriverName(name)] = factory
	}
	return &DriverRegistry{
		config:     providers,
		builtins:   factories,
		extensions: map[string]DriverFactory{},
		qualified:  map[string]DriverFactory{},
		cache:      map[string]Driver{},
	}
}

// RegisterExtension registers a custom driver factory under a driver name.
// Registration is additive: already-resolved drivers keep their instances.
func (r *DriverRegistry) RegisterExtension(driverName string, factory DriverFactory) error {
	if r == nil {
		return fmt.Errorf("core: driver registry is nil")
	}
	name := normalizeDriverName(driverName)
	if name == "" {
		return fmt.Errorf("core: driver name is required")
	}
	if factory == nil {
		return fmt.Errorf("core: driver factory is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.extensions[name]; exists {
		return fmt.Errorf("core: driver extension already registered: %s", name)
	}
	r.extensions[name] = factory
	return nil
}

// RegisterQualified registers a factory under a fully-qualified type name,
// the last rung of the resolution precedence.
func (r *DriverRegistry) RegisterQualified(qualifiedName string, factory DriverFactory) error {
	if r == nil {
		return fmt.Errorf("core: driver registry is nil")
	}
	name := strings.TrimSpace(qualifiedName)
	if name == "" {
		return fmt.Errorf("core: qualified driver name is required")
	}
	if factory == nil {
		return fmt.Errorf("core: driver factory is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.qualified[name]; exists {
		return fmt.Errorf("core: qualified driver already registered: %s", name)
	}
	r.qualified[name] = factory
	return nil
}

// Resolve returns the driver for a provider name, constructing and caching it
// on first use. Unconfigured providers and unresolvable driver names fail
// with an unknown-provider error and are never cached.
func (r *DriverRegistry) Resolve(provider string) (Driver, error) {
	if r == nil {
		return nil, fmt.Errorf("core: driver registry is nil")
	}
	name := strings.TrimSpace(provider)
	if name == "" {
		return nil, NewUnknownProviderError(provider)
	}

	r.mu.RLock()
	if driver, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return driver, nil
	}
	cfg, configured := r.config[name]
	r.mu.RUnlock()
	if !configured {
		return nil, NewUnknownProviderError(name)
	}

	factory, ok := r.factoryFor(cfg.Driver)
	if !ok {
		return nil, NewUnknownProviderError(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if driver, ok := r.cache[name]; ok {
		return driver, nil
	}
	driver, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	r.cache[name] = driver
	return driver, nil
}

// Providers lists the configured provider names in stable order.
func (r *DriverRegistry) Providers() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.config))
	for name := range r.config {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *DriverRegistry) factoryFor(driverName string) (DriverFactory, bool) {
	normalized := normalizeDriverName(driverName)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if factory, ok := r.extensions[normalized]; ok {
		return factory, true
	}
	if factory, ok := r.builtins[normalized]; ok {
		return factory, true
	}
	if factory, ok := r.qualified[strings.TrimSpace(driverName)]; ok {
		return factory, true
	}
	return nil, false
}

func normalizeDriverName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
