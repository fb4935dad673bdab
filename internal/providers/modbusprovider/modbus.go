// Package modbusprovider is a demonstration provider.Capability implementation
// backed by github.com/goburrow/modbus. It lives outside the kernel packages
// entirely — the kernel never imports it — satisfying the Non-goal that the
// core does not own device driver logic.
package modbusprovider

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
)

// RegisterMap describes where one signal or function argument lives on the
// wire: four consecutive 16-bit Modbus holding registers interpreted as a
// big-endian float64 bit pattern, or a single coil for bool.
type RegisterMap struct {
	SignalID    string
	FunctionID  uint32
	Address     uint16
	IsCoil      bool
	ValueType   domain.ValueType
}

// DeviceConfig is one Modbus-connected device's static description.
type DeviceConfig struct {
	DeviceID string
	Capabilities domain.DeviceCapabilitySet
	Registers    []RegisterMap
}

// Provider is a demonstration Modbus TCP provider.Capability.
type Provider struct {
	address string
	slaveID byte
	timeout time.Duration

	mu        sync.RWMutex
	handler   *modbus.TCPClientHandler
	client    modbus.Client
	connected atomic.Bool
	lastErr   error
	lastCode  provider.StatusCode

	devices map[string]DeviceConfig

	log zerolog.Logger
}

// New constructs a Modbus provider. Connect must be called before use.
func New(address string, slaveID byte, timeout time.Duration, devices []DeviceConfig, log zerolog.Logger) *Provider {
	byID := make(map[string]DeviceConfig, len(devices))
	for _, d := range devices {
		byID[d.DeviceID] = d
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Provider{
		address: address,
		slaveID: slaveID,
		timeout: timeout,
		devices: byID,
		log:     log.With().Str("component", "modbus_provider").Str("address", address).Logger(),
	}
}

// Connect establishes the TCP connection. The reference host calls it once
// when attaching the provider; neither the kernel nor the supervisor calls
// it, so a connection that fails or drops is not re-established.
func (p *Provider) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected.Load() {
		return nil
	}
	handler := modbus.NewTCPClientHandler(p.address)
	handler.Timeout = p.timeout
	handler.SlaveId = p.slaveID
	if err := handler.Connect(); err != nil {
		p.lastErr = err
		p.lastCode = provider.StatusUnavailable
		return err
	}
	p.handler = handler
	p.client = modbus.NewClient(handler)
	p.connected.Store(true)
	p.log.Info().Msg("connected to modbus device")
	return nil
}

// Disconnect tears down the TCP connection.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler != nil {
		_ = p.handler.Close()
	}
	p.connected.Store(false)
}

// IsAvailable implements provider.Capability.
func (p *Provider) IsAvailable() bool {
	return p.connected.Load()
}

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
		return provider.DeviceDescriptor{}, fmt.Errorf("modbus: unknown device %q", deviceID)
	}
	return provider.DeviceDescriptor{DeviceID: deviceID, Capabilities: d.Capabilities.Clone()}, nil
}

// ReadSignals implements provider.Capability, reading each requested signal
// as a four-register big-endian double (or a single coil for bool).
func (p *Provider) ReadSignals(ctx context.Context, deviceID string, signalIDs []string) ([]provider.SignalReading, error) {
	d, ok := p.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("modbus: unknown device %q", deviceID)
	}

	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return nil, fmt.Errorf("modbus: not connected")
	}

	out := make([]provider.SignalReading, 0, len(signalIDs))
	for _, sigID := range signalIDs {
		reg, ok := findRegister(d.Registers, sigID, 0, false)
		if !ok {
			continue
		}
		value, err := p.readOne(client, reg)
		if err != nil {
			p.recordErr(err, provider.StatusUnavailable)
			return nil, err
		}
		out = append(out, provider.SignalReading{SignalID: sigID, Value: value, Quality: domain.QualityOK})
	}
	return out, nil
}

// Call implements provider.Capability by writing the function's single
// primary argument to its mapped register.
func (p *Provider) Call(ctx context.Context, deviceID string, functionID uint32, functionName string, args map[string]domain.TypedValue) (provider.CallResponse, error) {
	d, ok := p.devices[deviceID]
	if !ok {
		return provider.CallResponse{Status: provider.StatusNotFound, Message: "unknown device"}, nil
	}
	reg, ok := findRegister(d.Registers, "", functionID, true)
	if !ok {
		return provider.CallResponse{Status: provider.StatusNotFound, Message: "unmapped function"}, nil
	}

	var v domain.TypedValue
	for _, arg := range args {
		v = arg
		break
	}

	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return provider.CallResponse{Status: provider.StatusUnavailable, Message: "not connected"}, nil
	}

	if err := p.writeOne(client, reg, v); err != nil {
		p.recordErr(err, provider.StatusUnavailable)
		return provider.CallResponse{Status: provider.StatusUnavailable, Message: err.Error()}, nil
	}
	return provider.CallResponse{Status: provider.StatusOK}, nil
}

func (p *Provider) readOne(client modbus.Client, reg RegisterMap) (domain.TypedValue, error) {
	if reg.IsCoil {
		raw, err := client.ReadCoils(reg.Address, 1)
		if err != nil {
			return domain.TypedValue{}, err
		}
		return domain.Bool(raw[0]&0x01 != 0), nil
	}
	raw, err := client.ReadHoldingRegisters(reg.Address, 4)
	if err != nil {
		return domain.TypedValue{}, err
	}
	bits := binary.BigEndian.Uint64(raw)
	return domain.Double(math.Float64frombits(bits)), nil
}

func (p *Provider) writeOne(client modbus.Client, reg RegisterMap, v domain.TypedValue) error {
	if reg.IsCoil {
		val := uint16(0x0000)
		if v.Bool {
			val = 0xFF00
		}
		_, err := client.WriteSingleCoil(reg.Address, val)
		return err
	}
	bits := math.Float64bits(v.Double)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	_, err := client.WriteMultipleRegisters(reg.Address, 4, buf)
	return err
}

func (p *Provider) recordErr(err error, code provider.StatusCode) {
	p.mu.Lock()
	p.lastErr = err
	p.lastCode = code
	p.mu.Unlock()
}

func findRegister(regs []RegisterMap, signalID string, functionID uint32, byFunction bool) (RegisterMap, bool) {
	for _, r := range regs {
		if byFunction && r.FunctionID == functionID {
			return r, true
		}
		if !byFunction && r.SignalID == signalID {
			return r, true
		}
	}
	return RegisterMap{}, false
}
