package parameter

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

func newTestManager(sink Sink) *Manager {
	min := domain.Double(0)
	max := domain.Double(100)
	return New([]domain.ParameterDefinition{
		{Name: "setpoint", Type: domain.ParamDouble, Value: domain.Double(50), Min: &min, Max: &max},
		{Name: "mode_label", Type: domain.ParamString, Value: domain.String("auto"),
			AllowedValues: []domain.TypedValue{domain.String("auto"), domain.String("manual")}},
	}, sink, zerolog.Nop())
}

func TestSet_WithinRangeSucceeds(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(sink)

	require.NoError(t, m.Set("setpoint", domain.Double(75)))
	v, err := m.Get("setpoint")
	require.NoError(t, err)
	assert.Equal(t, domain.Double(75), v)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "50", sink.events[0].OldValueStr)
	assert.Equal(t, "75", sink.events[0].NewValueStr)
}

func TestSet_OutOfRangeRejected(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(sink)

	err := m.Set("setpoint", domain.Double(150))
	require.Error(t, err)
	assert.Empty(t, sink.events)

	v, _ := m.Get("setpoint")
	assert.Equal(t, domain.Double(50), v, "a rejected write must not change the stored value")
}

func TestSet_NotInAllowList(t *testing.T) {
	m := newTestManager(&recordingSink{})
	err := m.Set("mode_label", domain.String("turbo"))
	assert.Error(t, err)
}

func TestSet_WrongTypeRejected(t *testing.T) {
	m := newTestManager(&recordingSink{})
	err := m.Set("setpoint", domain.Bool(true))
	assert.Error(t, err)
}

func TestSet_UnchangedValueEmitsNoEvent(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(sink)
	require.NoError(t, m.Set("setpoint", domain.Double(50)))
	assert.Empty(t, sink.events, "identical string rendering suppresses the event")
}

func TestGet_UnknownParameter(t *testing.T) {
	m := newTestManager(&recordingSink{})
	_, err := m.Get("does_not_exist")
	assert.Error(t, err)
}

func TestGetAllDefinitions_ReturnsOwnedCopies(t *testing.T) {
	m := newTestManager(&recordingSink{})
	defs := m.GetAllDefinitions()
	require.Len(t, defs, 2)

	for i := range defs {
		if defs[i].Name == "setpoint" {
			*defs[i].Min = domain.Double(999)
		}
	}
	def, err := m.GetDefinition("setpoint")
	require.NoError(t, err)
	assert.Equal(t, domain.Double(0), *def.Min, "mutating a returned copy must not affect stored state")
}
