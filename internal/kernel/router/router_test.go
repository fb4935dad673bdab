package router

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
	"github.com/nexus-edge/anolis/internal/kernel/providerlock"
	"github.com/nexus-edge/anolis/internal/kernel/registry"
)

const testProviderID = "p1"
const testDeviceID = "d1"

func maxArg(v float64) *domain.TypedValue {
	tv := domain.Double(v)
	return &tv
}

func setpointFunction() domain.FunctionSpec {
	return domain.FunctionSpec{
		FunctionID:   1,
		FunctionName: "set_setpoint",
		Args: []domain.ArgSpec{
			{Name: "value", ValueType: domain.ValueDouble, Required: true, Max: maxArg(1.0)},
		},
	}
}

func buildRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(zerolog.Nop())
	cap := &fakeProvider{available: true}
	require.NoError(t, reg.DiscoverProvider(context.Background(), testProviderID, cap))
	return reg
}

type fakeProvider struct {
	available bool
	lastCall  struct {
		deviceID     string
		functionID   uint32
		functionName string
		args         map[string]domain.TypedValue
	}
}

func (f *fakeProvider) IsAvailable() bool { return f.available }

func (f *fakeProvider) Call(ctx context.Context, deviceID string, functionID uint32, functionName string, args map[string]domain.TypedValue) (provider.CallResponse, error) {
	f.lastCall.deviceID = deviceID
	f.lastCall.functionID = functionID
	f.lastCall.functionName = functionName
	f.lastCall.args = args
	return provider.CallResponse{Status: provider.StatusOK, Values: map[string]domain.TypedValue{"value": args["value"]}}, nil
}

func (f *fakeProvider) ListDevices(ctx context.Context) ([]string, error) {
	return []string{testDeviceID}, nil
}

func (f *fakeProvider) DescribeDevice(ctx context.Context, deviceID string) (provider.DeviceDescriptor, error) {
	fn := setpointFunction()
	return provider.DeviceDescriptor{
		DeviceID: deviceID,
		Capabilities: domain.DeviceCapabilitySet{
			Functions: map[string]domain.FunctionSpec{fn.FunctionName: fn},
		},
	}, nil
}

func (f *fakeProvider) ReadSignals(ctx context.Context, deviceID string, signalIDs []string) ([]provider.SignalReading, error) {
	return nil, nil
}

func (f *fakeProvider) LastError() error                      { return nil }
func (f *fakeProvider) LastStatusCode() provider.StatusCode   { return provider.StatusOK }

type fakeRefresher struct {
	calls int
}

func (f *fakeRefresher) PollDeviceNow(ctx context.Context, handle string) error {
	f.calls++
	return nil
}

type fakeModeSource struct {
	mode domain.RuntimeMode
}

func (f *fakeModeSource) CurrentMode() domain.RuntimeMode { return f.mode }

func newTestRouter(t *testing.T, reg *registry.Registry, cap provider.Capability, modeSrc ModeSource, policy domain.GatingPolicy) (*Router, *fakeRefresher) {
	t.Helper()
	refresher := &fakeRefresher{}
	caps := func(providerID string) (provider.Capability, bool) {
		if providerID == testProviderID {
			return cap, true
		}
		return nil, false
	}
	r := New(reg, modeSrc, caps, refresher, policy, providerlock.New(), zerolog.Nop(), nil)
	return r, refresher
}

func TestExecuteCall_HappyPath(t *testing.T) {
	reg := buildRegistry(t)
	cap := &fakeProvider{available: true}
	// rediscover so the fake capability used for Call matches the one the
	// registry's capability set was built from
	require.NoError(t, reg.DiscoverProvider(context.Background(), testProviderID, cap))

	r, refresher := newTestRouter(t, reg, cap, &fakeModeSource{mode: domain.ModeManual}, domain.GatingBlock)

	result, err := r.ExecuteCall(context.Background(), CallRequest{
		DeviceHandle: domain.BuildHandle(testProviderID, testDeviceID),
		FunctionName: "set_setpoint",
		Args:         map[string]domain.TypedValue{"value": domain.Double(0.5)},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Double(0.5), result.Values["value"])
	assert.Equal(t, 1, refresher.calls, "a successful call must trigger a post-call refresh")
}

func TestExecuteCall_ArgumentAboveMaximumRejected(t *testing.T) {
	reg := buildRegistry(t)
	cap := &fakeProvider{available: true}
	require.NoError(t, reg.DiscoverProvider(context.Background(), testProviderID, cap))

	r, refresher := newTestRouter(t, reg, cap, &fakeModeSource{mode: domain.ModeManual}, domain.GatingBlock)

	_, err := r.ExecuteCall(context.Background(), CallRequest{
		DeviceHandle: domain.BuildHandle(testProviderID, testDeviceID),
		FunctionName: "set_setpoint",
		Args:         map[string]domain.TypedValue{"value": domain.Double(1.5)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "above maximum 1")
	assert.Equal(t, 0, refresher.calls, "a rejected call never reaches the provider or triggers a refresh")
}

func TestExecuteCall_ManualGating_BlockPolicy(t *testing.T) {
	reg := buildRegistry(t)
	cap := &fakeProvider{available: true}
	require.NoError(t, reg.DiscoverProvider(context.Background(), testProviderID, cap))

	r, _ := newTestRouter(t, reg, cap, &fakeModeSource{mode: domain.ModeAuto}, domain.GatingBlock)

	_, err := r.ExecuteCall(context.Background(), CallRequest{
		DeviceHandle: domain.BuildHandle(testProviderID, testDeviceID),
		FunctionName: "set_setpoint",
		Args:         map[string]domain.TypedValue{"value": domain.Double(0.5)},
		IsAutomated:  false,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manual call blocked in AUTO")
}

func TestExecuteCall_ManualGating_OverridePolicyAllows(t *testing.T) {
	reg := buildRegistry(t)
	cap := &fakeProvider{available: true}
	require.NoError(t, reg.DiscoverProvider(context.Background(), testProviderID, cap))

	r, _ := newTestRouter(t, reg, cap, &fakeModeSource{mode: domain.ModeAuto}, domain.GatingOverride)

	_, err := r.ExecuteCall(context.Background(), CallRequest{
		DeviceHandle: domain.BuildHandle(testProviderID, testDeviceID),
		FunctionName: "set_setpoint",
		Args:         map[string]domain.TypedValue{"value": domain.Double(0.5)},
		IsAutomated:  false,
	})
	assert.NoError(t, err)
}

func TestExecuteCall_AutomatedCallAlwaysAllowedInAuto(t *testing.T) {
	reg := buildRegistry(t)
	cap := &fakeProvider{available: true}
	require.NoError(t, reg.DiscoverProvider(context.Background(), testProviderID, cap))

	r, _ := newTestRouter(t, reg, cap, &fakeModeSource{mode: domain.ModeAuto}, domain.GatingBlock)

	_, err := r.ExecuteCall(context.Background(), CallRequest{
		DeviceHandle: domain.BuildHandle(testProviderID, testDeviceID),
		FunctionName: "set_setpoint",
		Args:         map[string]domain.TypedValue{"value": domain.Double(0.5)},
		IsAutomated:  true,
	})
	assert.NoError(t, err)
}

func TestExecuteCall_BlockedInIdle(t *testing.T) {
	reg := buildRegistry(t)
	cap := &fakeProvider{available: true}
	require.NoError(t, reg.DiscoverProvider(context.Background(), testProviderID, cap))

	r, _ := newTestRouter(t, reg, cap, &fakeModeSource{mode: domain.ModeIdle}, domain.GatingBlock)

	_, err := r.ExecuteCall(context.Background(), CallRequest{
		DeviceHandle: domain.BuildHandle(testProviderID, testDeviceID),
		FunctionName: "set_setpoint",
		Args:         map[string]domain.TypedValue{"value": domain.Double(0.5)},
		IsAutomated:  true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked in IDLE")
}

func TestExecuteCall_UnknownDeviceHandle(t *testing.T) {
	reg := buildRegistry(t)
	cap := &fakeProvider{available: true}
	r, _ := newTestRouter(t, reg, cap, &fakeModeSource{mode: domain.ModeManual}, domain.GatingBlock)

	_, err := r.ExecuteCall(context.Background(), CallRequest{
		DeviceHandle: "nope/also-nope",
		FunctionName: "set_setpoint",
	})
	assert.Error(t, err)
}

func TestExecuteCall_MalformedHandle(t *testing.T) {
	reg := buildRegistry(t)
	cap := &fakeProvider{available: true}
	r, _ := newTestRouter(t, reg, cap, &fakeModeSource{mode: domain.ModeManual}, domain.GatingBlock)

	_, err := r.ExecuteCall(context.Background(), CallRequest{DeviceHandle: "no-slash"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed device handle")
}
