// Package mode implements the kernel's Mode Manager (§4.5): the
// safety-critical finite state machine gating control dispatch.
package mode

import (
	"sync"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/rs/zerolog"
)

// ChangeFunc is a mode-change callback invoked with (old, new) outside any
// kernel lock (§4.5, §9 "Callback dispatch outside locks").
type ChangeFunc func(old, new domain.RuntimeMode)

// Sink is the event-emission surface for ModeChange events.
type Sink interface {
	Emit(domain.Event) domain.Event
}

var allowedTransitions = map[domain.RuntimeMode]map[domain.RuntimeMode]bool{
	domain.ModeManual: {domain.ModeAuto: true, domain.ModeIdle: true, domain.ModeFault: true},
	domain.ModeAuto:   {domain.ModeManual: true, domain.ModeFault: true},
	domain.ModeIdle:   {domain.ModeManual: true, domain.ModeFault: true},
	domain.ModeFault:  {domain.ModeManual: true},
}

// Manager is the thread-safe mode FSM of §4.5.
type Manager struct {
	mu      sync.RWMutex
	current domain.RuntimeMode

	callbackMu sync.Mutex
	callbacks  []ChangeFunc

	sink Sink
	log  zerolog.Logger
}

// New constructs a Manager starting in initial.
func New(initial domain.RuntimeMode, sink Sink, log zerolog.Logger) *Manager {
	return &Manager{
		current: initial,
		sink:    sink,
		log:     log.With().Str("component", "mode_manager").Logger(),
	}
}

// CurrentMode is a shared read.
func (m *Manager) CurrentMode() domain.RuntimeMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsIdle is a shared read.
func (m *Manager) IsIdle() bool { return m.CurrentMode() == domain.ModeIdle }

// IsFault is a shared read.
func (m *Manager) IsFault() bool { return m.CurrentMode() == domain.ModeFault }

// SetMode validates and applies a transition (§4.5). A no-op transition to
// the current mode succeeds without an event or callback dispatch. Callback
// panics are caught and discarded; the transition is never rolled back.
func (m *Manager) SetMode(target domain.RuntimeMode) bool {
	m.mu.Lock()
	old := m.current
	if old == target {
		m.mu.Unlock()
		return true
	}
	if !allowedTransitions[old][target] {
		m.mu.Unlock()
		m.log.Warn().Str("from", string(old)).Str("to", string(target)).Msg("rejected invalid mode transition")
		return false
	}
	m.current = target
	m.mu.Unlock()

	m.callbackMu.Lock()
	callbacks := append([]ChangeFunc(nil), m.callbacks...)
	m.callbackMu.Unlock()

	if m.sink != nil {
		m.sink.Emit(domain.NewModeChange(old, target))
	}

	for _, cb := range callbacks {
		m.dispatchOne(cb, old, target)
	}
	return true
}

func (m *Manager) dispatchOne(cb ChangeFunc, old, new domain.RuntimeMode) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("mode change callback panicked, discarding")
		}
	}()
	cb(old, new)
}

// OnModeChange registers a callback; registration is append-only and safe to
// interleave with transitions (§4.5).
func (m *Manager) OnModeChange(fn ChangeFunc) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}
