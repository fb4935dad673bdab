// Package parameter implements the kernel's Parameter Manager (§4.6):
// definition-driven runtime configuration with validated writes.
package parameter

import (
	"sync"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernelerr"
	"github.com/rs/zerolog"
)

// Sink is the event-emission surface for ParameterChange events.
type Sink interface {
	Emit(domain.Event) domain.Event
}

// Manager is the thread-safe parameter store of §4.6. The read path holds
// the lock only for the hash lookup, so automation never blocks on a writer
// for long.
type Manager struct {
	mu    sync.RWMutex
	defs  map[string]domain.ParameterDefinition

	sink Sink
	log  zerolog.Logger
}

// New constructs a Manager seeded with defs.
func New(defs []domain.ParameterDefinition, sink Sink, log zerolog.Logger) *Manager {
	m := &Manager{
		defs: make(map[string]domain.ParameterDefinition, len(defs)),
		sink: sink,
		log:  log.With().Str("component", "parameter_manager").Logger(),
	}
	for _, d := range defs {
		m.defs[d.Name] = d
	}
	return m
}

// Get returns the current value of name.
func (m *Manager) Get(name string) (domain.TypedValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.defs[name]
	if !ok {
		return domain.TypedValue{}, kernelerr.Newf(kernelerr.NotFound, "unknown parameter %q", name)
	}
	return def.Value, nil
}

// GetDefinition returns an owned copy of name's definition.
func (m *Manager) GetDefinition(name string) (domain.ParameterDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.defs[name]
	if !ok {
		return domain.ParameterDefinition{}, kernelerr.Newf(kernelerr.NotFound, "unknown parameter %q", name)
	}
	return def.Clone(), nil
}

// GetAllDefinitions returns owned copies of every definition.
func (m *Manager) GetAllDefinitions() []domain.ParameterDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ParameterDefinition, 0, len(m.defs))
	for _, d := range m.defs {
		out = append(out, d.Clone())
	}
	return out
}

// Set validates and applies a write (§4.6). On success it emits a
// ParameterChange event after releasing the lock, unless the new value
// renders to the same string as the old one, in which case no event is
// emitted.
func (m *Manager) Set(name string, value domain.TypedValue) error {
	m.mu.Lock()
	def, ok := m.defs[name]
	if !ok {
		m.mu.Unlock()
		return kernelerr.Newf(kernelerr.NotFound, "unknown parameter %q", name)
	}
	if !def.IsAllowed(value) {
		m.mu.Unlock()
		return kernelerr.Newf(kernelerr.InvalidArgument, "value rejected for parameter %q: out of range or not allowed", name)
	}

	oldStr := def.ValueString()
	def.Value = value
	newStr := def.ValueString()
	m.defs[name] = def
	m.mu.Unlock()

	if m.sink != nil && oldStr != newStr {
		m.sink.Emit(domain.NewParameterChange(name, oldStr, newStr))
	}
	return nil
}
