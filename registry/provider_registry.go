/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/errors"
)

// Factory connects a provider from its configuration record.
type Factory func(ctx context.Context, cfg config.ProviderConfig) (datastore.Provider, error)

var (
	providerRegistry = make(map[string]Factory)
	mu               sync.RWMutex
)

// RegisterProvider registers a factory for a discriminator.
// It panics if the name is already registered to prevent accidental overrides.
func RegisterProvider(name string, factory Factory) {
	name = strings.ToLower(name)
	mu.Lock()
	defer mu.Unlock()
	if _, exists := providerRegistry[name]; exists {
		panic(fmt.Sprintf("provider registry: provider %q already registered", name))
	}
	providerRegistry[name] = factory
}

// Lookup returns the factory registered for name.
func Lookup(name string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := providerRegistry[strings.ToLower(name)]
	if !ok {
		return nil, errors.Configurationf("connect", "provider registry: no provider registered as %q", name)
	}
	return f, nil
}

// Names lists the registered discriminators in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connect resolves cfg's discriminator and invokes its factory.
func Connect(ctx context.Context, cfg config.ProviderConfig) (datastore.Provider, error) {
	name := cfg.Provider()
	if name == "" {
		return nil, errors.Configurationf("connect", "provider registry: configuration has no %q", config.ProviderKey)
	}
	factory, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	p, err := factory(ctx, cfg)
	if err != nil {
		return nil, errors.Ensure("connect", err)
	}
	return p, nil
}
