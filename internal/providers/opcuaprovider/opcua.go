// Package opcuaprovider is a demonstration provider.Capability implementation
// backed by github.com/gopcua/opcua. Like modbusprovider, it lives entirely
// outside the kernel packages.
package opcuaprovider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
)

// NodeMap maps one signal or function argument to an OPC UA node id string.
type NodeMap struct {
	SignalID   string
	FunctionID uint32
	NodeID     string
}

// DeviceConfig is one OPC UA device's static description.
type DeviceConfig struct {
	DeviceID     string
	Capabilities domain.DeviceCapabilitySet
	Nodes        []NodeMap
}

// Provider is a demonstration OPC UA provider.Capability.
type Provider struct {
	endpoint string

	mu        sync.RWMutex
	client    *opcua.Client
	connected atomic.Bool
	lastErr   error
	lastCode  provider.StatusCode

	devices map[string]DeviceConfig

	log zerolog.Logger
}

// New constructs an OPC UA provider. Connect must be called before use.
func New(endpoint string, devices []DeviceConfig, log zerolog.Logger) *Provider {
	byID := make(map[string]DeviceConfig, len(devices))
	for _, d := range devices {
		byID[d.DeviceID] = d
	}
	return &Provider{
		endpoint: endpoint,
		devices:  byID,
		log:      log.With().Str("component", "opcua_provider").Str("endpoint", endpoint).Logger(),
	}
}

// Connect establishes the session with the OPC UA server.
func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected.Load() {
		return nil
	}
	c, err := opcua.NewClient(p.endpoint)
	if err != nil {
		p.lastErr = err
		p.lastCode = provider.StatusUnavailable
		return err
	}
	if err := c.Connect(ctx); err != nil {
		p.lastErr = err
		p.lastCode = provider.StatusUnavailable
		return err
	}
	p.client = c
	p.connected.Store(true)
	p.log.Info().Msg("connected to opcua server")
	return nil
}

// Disconnect closes the session.
func (p *Provider) Disconnect(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		_ = p.client.Close(ctx)
	}
	p.connected.Store(false)
}

// IsAvailable implements provider.Capability.
func (p *Provider) IsAvailable() bool { return p.connected.Load() }

// LastError implements provider.Capability.
func (p *Provider) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// LastStatusCode implements provider.Capability.
func (p *Provider) LastStatusCode() provider.StatusCode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastCode
}

// ListDevices implements provider.Capability.
func (p *Provider) ListDevices(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(p.devices))
	for id := range p.devices {
		ids = append(ids, id)
	}
	return ids, nil
}

// DescribeDevice implements provider.Capability.
func (p *Provider) DescribeDevice(ctx context.Context, deviceID string) (provider.DeviceDescriptor, error) {
	d, ok := p.devices[deviceID]
	if !ok {
		return provider.DeviceDescriptor{}, fmt.Errorf("opcua: unknown device %q", deviceID)
	}
	return provider.DeviceDescriptor{DeviceID: deviceID, Capabilities: d.Capabilities.Clone()}, nil
}

// ReadSignals implements provider.Capability via a batched OPC UA Read request.
func (p *Provider) ReadSignals(ctx context.Context, deviceID string, signalIDs []string) ([]provider.SignalReading, error) {
	d, ok := p.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("opcua: unknown device %q", deviceID)
	}

	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return nil, fmt.Errorf("opcua: not connected")
	}

	var nodesToRead []*ua.ReadValueID
	var orderedSignals []string
	for _, sigID := range signalIDs {
		nm, ok := findNode(d.Nodes, sigID, 0, false)
		if !ok {
			continue
		}
		id, err := ua.ParseNodeID(nm.NodeID)
		if err != nil {
			continue
		}
		nodesToRead = append(nodesToRead, &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue})
		orderedSignals = append(orderedSignals, sigID)
	}
	if len(nodesToRead) == 0 {
		return nil, nil
	}

	resp, err := client.Read(ctx, &ua.ReadRequest{NodesToRead: nodesToRead, TimestampsToReturn: ua.TimestampsToReturnBoth})
	if err != nil {
		p.recordErr(err, provider.StatusUnavailable)
		return nil, err
	}

	out := make([]provider.SignalReading, 0, len(orderedSignals))
	for i, sigID := range orderedSignals {
		if i >= len(resp.Results) {
			break
		}
		dv := resp.Results[i]
		if dv.Status != ua.StatusOK {
			out = append(out, provider.SignalReading{SignalID: sigID, Quality: domain.QualityFault})
			continue
		}
		out = append(out, provider.SignalReading{SignalID: sigID, Value: convertVariant(dv.Value), Quality: domain.QualityOK})
	}
	return out, nil
}

// Call implements provider.Capability via an OPC UA Write request.
func (p *Provider) Call(ctx context.Context, deviceID string, functionID uint32, functionName string, args map[string]domain.TypedValue) (provider.CallResponse, error) {
	d, ok := p.devices[deviceID]
	if !ok {
		return provider.CallResponse{Status: provider.StatusNotFound, Message: "unknown device"}, nil
	}
	nm, ok := findNode(d.Nodes, "", functionID, true)
	if !ok {
		return provider.CallResponse{Status: provider.StatusNotFound, Message: "unmapped function"}, nil
	}

	var v domain.TypedValue
	for _, arg := range args {
		v = arg
		break
	}

	id, err := ua.ParseNodeID(nm.NodeID)
	if err != nil {
		return provider.CallResponse{Status: provider.StatusInvalidArgument, Message: err.Error()}, nil
	}

	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return provider.CallResponse{Status: provider.StatusUnavailable, Message: "not connected"}, nil
	}

	variant, err := ua.NewVariant(toOPCUANative(v))
	if err != nil {
		return provider.CallResponse{Status: provider.StatusInvalidArgument, Message: err.Error()}, nil
	}

	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      id,
			AttributeID: ua.AttributeIDValue,
			Value:       &ua.DataValue{EncodingMask: ua.DataValueValue, Value: variant},
		}},
	}
	resp, err := client.Write(ctx, req)
	if err != nil {
		p.recordErr(err, provider.StatusUnavailable)
		return provider.CallResponse{Status: provider.StatusUnavailable, Message: err.Error()}, nil
	}
	if len(resp.Results) > 0 && resp.Results[0] != ua.StatusOK {
		return provider.CallResponse{Status: provider.StatusInternal, Message: resp.Results[0].Error()}, nil
	}
	return provider.CallResponse{Status: provider.StatusOK}, nil
}

func (p *Provider) recordErr(err error, code provider.StatusCode) {
	p.mu.Lock()
	p.lastErr = err
	p.lastCode = code
	p.mu.Unlock()
}

func findNode(nodes []NodeMap, signalID string, functionID uint32, byFunction bool) (NodeMap, bool) {
	for _, n := range nodes {
		if byFunction && n.FunctionID == functionID {
			return n, true
		}
		if !byFunction && n.SignalID == signalID {
			return n, true
		}
	}
	return NodeMap{}, false
}

func convertVariant(v *ua.Variant) domain.TypedValue {
	if v == nil {
		return domain.TypedValue{}
	}
	switch val := v.Value().(type) {
	case float64:
		return domain.Double(val)
	case float32:
		return domain.Double(float64(val))
	case int64:
		return domain.Int64Value(val)
	case int32:
		return domain.Int64Value(int64(val))
	case uint64:
		return domain.Uint64Value(val)
	case uint32:
		return domain.Uint64Value(uint64(val))
	case bool:
		return domain.Bool(val)
	case string:
		return domain.String(val)
	default:
		return domain.String(fmt.Sprintf("%v", val))
	}
}

func toOPCUANative(v domain.TypedValue) interface{} {
	switch v.Type {
	case domain.ValueDouble:
		return v.Double
	case domain.ValueInt64:
		return v.Int64
	case domain.ValueUint64:
		return v.Uint64
	case domain.ValueBool:
		return v.Bool
	case domain.ValueString:
		return v.Str
	case domain.ValueBytes:
		return v.Bytes
	default:
		return nil
	}
}
