package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a plugin instance. Each plugin registers its factory in an
// init() function.
type Factory func() Plugin

var (
	registry = make(map[string]entry)
	mu       sync.RWMutex
)

type entry struct {
	factory Factory
	info    Info
}

// Register adds a plugin factory to the registry. Panics if the ID is
// already taken.
func Register(id string, info Info, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[id]; exists {
		panic(fmt.Sprintf("plugin: %q already registered", id))
	}

	info.ID = id
	registry[id] = entry{factory: factory, info: info}
}

// Get returns a plugin factory by ID.
func Get(id string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()

	e, ok := registry[id]
	if !ok {
		return nil, false
	}
	return e.factory, true
}

// MustGet returns a plugin factory by ID or panics.
func MustGet(id string) Factory {
	factory, ok := Get(id)
	if !ok {
		panic(fmt.Sprintf("plugin: %q not registered. Available: %v", id, List()))
	}
	return factory
}

// List returns all registered plugin IDs in sorted order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InfoFor returns the Info for a registered plugin.
func InfoFor(id string) (Info, bool) {
	mu.RLock()
	defer mu.RUnlock()

	e, ok := registry[id]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// AllInfo returns Info for every registered plugin, sorted by ID.
func AllInfo() []Info {
	mu.RLock()
	defer mu.RUnlock()

	infos := make([]Info, 0, len(registry))
	for _, e := range registry {
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// IsRegistered checks if a plugin is registered.
func IsRegistered(id string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[id]
	return ok
}
