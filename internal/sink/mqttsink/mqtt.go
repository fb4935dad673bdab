// Package mqttsink republishes kernel events onto an MQTT broker using
// github.com/eclipse/paho.mqtt.golang, the way the bridge teacher's
// internal/mqtt client publishes device state.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/emitter"
)

// Config is the MQTT sink's connection configuration.
type Config struct {
	BrokerURL string
	ClientID  string
	Topic     string // prefix; events publish under Topic/<kind>
	QoS       byte
}

// Client wraps a paho client with the connect/publish surface the sink uses.
type Client struct {
	cfg Config

	mu        sync.RWMutex
	client    mqtt.Client
	connected atomic.Bool

	log zerolog.Logger
}

// NewClient constructs an MQTT client. Connect must be called before use.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{cfg: cfg, log: log.With().Str("component", "mqtt_sink").Logger()}
}

// Connect establishes the broker connection with auto-reconnect, a last-will
// offline status, and an online status publish on connect.
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURL)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(5 * time.Minute)
	opts.SetWill(fmt.Sprintf("%s/bridge/status", c.cfg.Topic), "offline", 1, true)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.connected.Store(true)
		c.log.Info().Str("broker", c.cfg.BrokerURL).Msg("connected to mqtt broker")
		_ = c.publish(fmt.Sprintf("%s/bridge/status", c.cfg.Topic), []byte("online"), true)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.connected.Store(false)
		c.log.Warn().Err(err).Msg("mqtt connection lost")
	})

	c.mu.Lock()
	c.client = mqtt.NewClient(opts)
	client := c.client
	c.mu.Unlock()

	token := client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Disconnect publishes an offline status and tears down the connection.
func (c *Client) Disconnect() {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return
	}
	_ = c.publish(fmt.Sprintf("%s/bridge/status", c.cfg.Topic), []byte("offline"), true)
	client.Disconnect(250)
	c.connected.Store(false)
}

// IsConnected reports the current broker connection state.
func (c *Client) IsConnected() bool { return c.connected.Load() }

func (c *Client) publish(topic string, payload []byte, retain bool) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}
	token := client.Publish(topic, c.cfg.QoS, retain, payload)
	token.Wait()
	return token.Error()
}

// eventPayload is the JSON wire shape published per event. Field presence
// mirrors which arm of domain.Event is populated for that Kind.
type eventPayload struct {
	EventID    uint64 `json:"event_id"`
	Kind       string `json:"kind"`
	Timestamp  int64  `json:"timestamp_unix_ms"`
	ProviderID string `json:"provider_id,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	SignalID   string `json:"signal_id,omitempty"`
	Quality    string `json:"quality,omitempty"`
	Available  *bool  `json:"available,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Parameter  string `json:"parameter,omitempty"`
	Value      string `json:"value,omitempty"`
}

func formatValue(v domain.TypedValue) string {
	switch v.Type {
	case domain.ValueDouble:
		return fmt.Sprintf("%g", v.Double)
	case domain.ValueInt64:
		return fmt.Sprintf("%d", v.Int64)
	case domain.ValueUint64:
		return fmt.Sprintf("%d", v.Uint64)
	case domain.ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	case domain.ValueString:
		return v.Str
	case domain.ValueBytes:
		return fmt.Sprintf("%x", v.Bytes)
	default:
		return ""
	}
}

func toPayload(ev domain.Event) eventPayload {
	p := eventPayload{
		EventID:    ev.EventID,
		Kind:       string(ev.Kind),
		Timestamp:  ev.Timestamp.UnixMilli(),
		ProviderID: ev.ProviderID,
		DeviceID:   ev.DeviceID,
		SignalID:   ev.SignalID,
	}
	switch ev.Kind {
	case domain.EventStateUpdate:
		p.Quality = string(ev.Quality)
		p.Value = formatValue(ev.Value)
	case domain.EventQualityChange:
		p.Quality = string(ev.Quality)
	case domain.EventDeviceAvailability:
		avail := ev.Available
		p.Available = &avail
	case domain.EventModeChange:
		p.Mode = string(ev.NewMode)
	case domain.EventParameterChange:
		p.Parameter = ev.ParameterName
		p.Value = ev.NewValueStr
	case domain.EventProviderHealthChange:
		p.Mode = ev.ProviderHealthState
	}
	return p
}

// Forwarder drains a kernel event subscription and republishes each event
// onto MQTT under Topic/<kind>.
type Forwarder struct {
	client *Client
	sub    *emitter.Subscription
	log    zerolog.Logger

	stopFlag atomic.Bool
	wg       sync.WaitGroup
}

// NewForwarder builds a Forwarder over an existing subscription. The caller
// owns the subscription's lifetime (Unsubscribe after Stop).
func NewForwarder(client *Client, sub *emitter.Subscription, log zerolog.Logger) *Forwarder {
	return &Forwarder{client: client, sub: sub, log: log.With().Str("component", "mqtt_forwarder").Logger()}
}

// Start launches the forwarding loop.
func (f *Forwarder) Start() {
	f.stopFlag.Store(false)
	f.wg.Add(1)
	go f.loop()
}

// Stop joins the forwarding loop.
func (f *Forwarder) Stop() {
	f.stopFlag.Store(true)
	f.wg.Wait()
}

func (f *Forwarder) loop() {
	defer f.wg.Done()
	for !f.stopFlag.Load() {
		ev, ok := f.sub.Pop(500 * time.Millisecond)
		if !ok {
			continue
		}
		f.forward(ev)
	}
}

func (f *Forwarder) forward(ev domain.Event) {
	data, err := json.Marshal(toPayload(ev))
	if err != nil {
		f.log.Error().Err(err).Msg("failed to marshal event payload")
		return
	}
	topic := fmt.Sprintf("%s/%s", f.client.cfg.Topic, ev.Kind)
	if err := f.client.publish(topic, data, false); err != nil {
		f.log.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}
