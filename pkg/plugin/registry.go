// Package plugin is the string-keyed provider registry. Agent configs
// store provider names ("openai", "deepgram", ...); the worker resolves
// them here into capability instances. The set of providers is closed at
// compile time: plugins register from init functions, never by
// reflection.
package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Capability kinds.
const (
	KindSTT = "stt"
	KindLLM = "llm"
	KindTTS = "tts"
	KindVAD = "vad"
)

// Config carries provider construction parameters: model, credentials,
// voice, language. Built explicitly from the process config, never read
// from the environment inside a plugin.
type Config map[string]any

// String returns the string value for key, or fallback when absent.
func (c Config) String(key, fallback string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Factory builds a provider instance. The returned value is asserted to
// the capability interface for the registered kind.
type Factory func(cfg Config) (any, error)

// Entry is one registered provider.
type Entry struct {
	Kind    string
	Name    string
	Factory Factory
}

// Registry maps [kind][name] to factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[string]*Entry
}

// NewRegistry returns an empty registry. Most callers use the package
// level functions backed by the global registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]map[string]*Entry)}
}

var global = NewRegistry()

// Register adds a provider to the global registry. Called from plugin
// init functions; panics on duplicate registration.
func Register(kind, name string, factory Factory) {
	global.Register(kind, name, factory)
}

// Get looks up a factory in the global registry.
func Get(kind, name string) (Factory, bool) {
	return global.Get(kind, name)
}

// List returns the registered provider names for a kind, sorted.
func List(kind string) []string {
	return global.List(kind)
}

// Register adds a provider to this registry. Panics on empty fields or
// duplicate (kind, name) pairs: both are programmer errors.
func (r *Registry) Register(kind, name string, factory Factory) {
	if kind == "" || name == "" {
		panic("plugin: kind and name are required")
	}
	if factory == nil {
		panic("plugin: factory is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[kind] == nil {
		r.entries[kind] = make(map[string]*Entry)
	}
	if _, exists := r.entries[kind][name]; exists {
		panic(fmt.Sprintf("plugin: %s/%s already registered", kind, name))
	}
	r.entries[kind][name] = &Entry{Kind: kind, Name: name, Factory: factory}
}

// Get looks up a factory.
func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName, ok := r.entries[kind]
	if !ok {
		return nil, false
	}
	e, ok := byName[name]
	if !ok {
		return nil, false
	}
	return e.Factory, true
}

// List returns the provider names registered for kind, sorted.
func (r *Registry) List(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name := range r.entries[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves (kind, name) and invokes the factory.
func (r *Registry) Build(kind, name string, cfg Config) (any, error) {
	factory, ok := r.Get(kind, name)
	if !ok {
		return nil, fmt.Errorf("plugin: no %s provider named %q (have %v)", kind, name, r.List(kind))
	}
	return factory(cfg)
}

// Build resolves against the global registry.
func Build(kind, name string, cfg Config) (any, error) {
	return global.Build(kind, name, cfg)
}
