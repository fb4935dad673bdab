package mode

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
)

type recordingSink struct {
	events []domain.Event
}

func (s *recordingSink) Emit(ev domain.Event) domain.Event {
	s.events = append(s.events, ev)
	return ev
}

func TestSetMode_FullTransitionSequence(t *testing.T) {
	sink := &recordingSink{}
	m := New(domain.ModeManual, sink, zerolog.Nop())

	require.True(t, m.SetMode(domain.ModeAuto))
	assert.Equal(t, domain.ModeAuto, m.CurrentMode())

	require.True(t, m.SetMode(domain.ModeFault))
	assert.Equal(t, domain.ModeFault, m.CurrentMode())

	require.False(t, m.SetMode(domain.ModeAuto), "FAULT can only transition to MANUAL")
	assert.Equal(t, domain.ModeFault, m.CurrentMode(), "rejected transition leaves mode unchanged")

	require.True(t, m.SetMode(domain.ModeManual))
	require.True(t, m.SetMode(domain.ModeAuto))
	assert.Equal(t, domain.ModeAuto, m.CurrentMode())

	require.Len(t, sink.events, 4, "only the 4 successful transitions emit events")
}

func TestSetMode_NoOpToSameModeSucceedsSilently(t *testing.T) {
	sink := &recordingSink{}
	m := New(domain.ModeManual, sink, zerolog.Nop())

	require.True(t, m.SetMode(domain.ModeManual))
	assert.Empty(t, sink.events, "a no-op transition emits no event")
}

func TestSetMode_CallbackPanicIsContained(t *testing.T) {
	m := New(domain.ModeManual, &recordingSink{}, zerolog.Nop())

	called := false
	m.OnModeChange(func(old, new domain.RuntimeMode) { panic("boom") })
	m.OnModeChange(func(old, new domain.RuntimeMode) { called = true })

	require.True(t, m.SetMode(domain.ModeAuto))
	assert.True(t, called, "a panicking callback must not prevent later callbacks from running")
	assert.Equal(t, domain.ModeAuto, m.CurrentMode())
}

func TestIsIdleIsFault(t *testing.T) {
	m := New(domain.ModeIdle, &recordingSink{}, zerolog.Nop())
	assert.True(t, m.IsIdle())
	assert.False(t, m.IsFault())
}
