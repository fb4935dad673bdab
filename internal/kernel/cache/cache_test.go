package cache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
	"github.com/nexus-edge/anolis/internal/kernel/registry"
)

const providerID = "p1"
const deviceID = "d1"

type recordingSink struct {
	events []domain.Event
}

func (s *recordingSink) Emit(ev domain.Event) domain.Event {
	s.events = append(s.events, ev)
	return ev
}

type noopLocks struct{}

func (noopLocks) Lock(string)   {}
func (noopLocks) Unlock(string) {}

type fakeCapability struct {
	available bool
	readings  []provider.SignalReading
	readErr   error
}

func (f *fakeCapability) IsAvailable() bool { return f.available }
func (f *fakeCapability) Call(ctx context.Context, deviceID string, functionID uint32, functionName string, args map[string]domain.TypedValue) (provider.CallResponse, error) {
	return provider.CallResponse{}, nil
}
func (f *fakeCapability) ListDevices(ctx context.Context) ([]string, error) { return []string{deviceID}, nil }
func (f *fakeCapability) DescribeDevice(ctx context.Context, id string) (provider.DeviceDescriptor, error) {
	return provider.DeviceDescriptor{
		DeviceID: id,
		Capabilities: domain.DeviceCapabilitySet{
			Signals: map[string]domain.SignalSpec{
				"temp": {SignalID: "temp", ValueType: domain.ValueDouble, Readable: true, IsDefaultPolled: true},
			},
		},
	}, nil
}
func (f *fakeCapability) ReadSignals(ctx context.Context, deviceID string, signalIDs []string) ([]provider.SignalReading, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.readings, nil
}
func (f *fakeCapability) LastError() error                    { return nil }
func (f *fakeCapability) LastStatusCode() provider.StatusCode { return provider.StatusOK }

func buildTestCache(t *testing.T, cap *fakeCapability, sink Sink) *Cache {
	t.Helper()
	reg := registry.New(zerolog.Nop())
	require.NoError(t, reg.DiscoverProvider(context.Background(), providerID, cap))

	lookup := func(id string) (provider.Capability, bool) {
		if id == providerID {
			return cap, true
		}
		return nil, false
	}
	c := New(reg, lookup, noopLocks{}, sink, 0, zerolog.Nop(), nil)
	c.BuildPollConfigs()
	return c
}

func TestPollDeviceNow_FirstReadingEmitsStateUpdate(t *testing.T) {
	cap := &fakeCapability{available: true, readings: []provider.SignalReading{
		{SignalID: "temp", Value: domain.Double(21.5), Quality: domain.QualityOK},
	}}
	sink := &recordingSink{}
	c := buildTestCache(t, cap, sink)

	handle := domain.BuildHandle(providerID, deviceID)
	require.NoError(t, c.PollDeviceNow(context.Background(), handle))

	require.Len(t, sink.events, 2, "device transitions to available, then the first reading is a state update")
	assert.Equal(t, domain.EventDeviceAvailability, sink.events[0].Kind)
	assert.Equal(t, domain.EventStateUpdate, sink.events[1].Kind)

	val, err := c.GetSignalValue(handle, "temp")
	require.NoError(t, err)
	assert.Equal(t, domain.Double(21.5), val.Value)
}

func TestPollDeviceNow_UnchangedValueEmitsNothing(t *testing.T) {
	cap := &fakeCapability{available: true, readings: []provider.SignalReading{
		{SignalID: "temp", Value: domain.Double(21.5), Quality: domain.QualityOK},
	}}
	sink := &recordingSink{}
	c := buildTestCache(t, cap, sink)
	handle := domain.BuildHandle(providerID, deviceID)

	require.NoError(t, c.PollDeviceNow(context.Background(), handle))
	sink.events = nil

	require.NoError(t, c.PollDeviceNow(context.Background(), handle))
	assert.Empty(t, sink.events, "an unchanged value and quality must not re-emit")
}

func TestPollDeviceNow_QualityChangeWithoutValueChange(t *testing.T) {
	cap := &fakeCapability{available: true, readings: []provider.SignalReading{
		{SignalID: "temp", Value: domain.Double(21.5), Quality: domain.QualityOK},
	}}
	sink := &recordingSink{}
	c := buildTestCache(t, cap, sink)
	handle := domain.BuildHandle(providerID, deviceID)
	require.NoError(t, c.PollDeviceNow(context.Background(), handle))
	sink.events = nil

	cap.readings[0].Quality = domain.QualityStale
	require.NoError(t, c.PollDeviceNow(context.Background(), handle))

	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.EventQualityChange, sink.events[0].Kind)
}

func TestPollDeviceNow_ProviderUnavailableMarksStaleAndEmitsOnce(t *testing.T) {
	cap := &fakeCapability{available: true, readings: []provider.SignalReading{
		{SignalID: "temp", Value: domain.Double(21.5), Quality: domain.QualityOK},
	}}
	sink := &recordingSink{}
	c := buildTestCache(t, cap, sink)
	handle := domain.BuildHandle(providerID, deviceID)
	require.NoError(t, c.PollDeviceNow(context.Background(), handle))
	sink.events = nil

	cap.available = false
	require.NoError(t, c.PollDeviceNow(context.Background(), handle))
	require.NoError(t, c.PollDeviceNow(context.Background(), handle))

	require.Len(t, sink.events, 1, "unavailability is only emitted on the transition, not every subsequent poll")
	assert.Equal(t, domain.EventDeviceAvailability, sink.events[0].Kind)
	assert.False(t, sink.events[0].Available)

	state, err := c.GetDeviceState(handle)
	require.NoError(t, err)
	assert.False(t, state.ProviderAvailable)
	assert.Empty(t, state.Signals)
}

func TestGetDeviceState_UnknownHandle(t *testing.T) {
	cap := &fakeCapability{available: true}
	c := buildTestCache(t, cap, &recordingSink{})

	_, err := c.GetDeviceState("nope/nope")
	assert.Error(t, err)
}
