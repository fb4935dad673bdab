// Package cache implements the kernel's State Cache (§4.2): the polling
// loop, change detection, and owned-copy snapshots that every other
// component reads a device's live view through.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
	"github.com/nexus-edge/anolis/internal/kernel/registry"
	"github.com/nexus-edge/anolis/internal/kernelerr"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the default polling loop period (§4.2, §6).
const DefaultPollInterval = 500 * time.Millisecond

// Sink is the event-emission surface the cache pushes change events through.
// Satisfied by *emitter.Emitter; declared here to keep cache from importing
// emitter directly and to simplify unit testing with a fake.
type Sink interface {
	Emit(domain.Event) domain.Event
}

// CapabilityLookup resolves the live provider capability for a provider_id,
// or ok=false if the provider is not currently registered with the
// supervisor. Satisfied by the kernel composition root.
type CapabilityLookup func(providerID string) (provider.Capability, bool)

// ProviderLocks hands out the per-provider serialization lock shared with
// the Call Router (§4.2 "Post-call refresh", §4.4, §5).
type ProviderLocks interface {
	Lock(providerID string)
	Unlock(providerID string)
}

// PollMetrics is the optional instrumentation surface for poll outcomes.
// Satisfied by *metrics.Registry; nil-safe when not configured, keeping the
// cache itself metrics-agnostic.
type PollMetrics interface {
	IncPollOK()
	IncPollFailed()
	SetStaleSignals(float64)
}

// pollConfig is the per-device polling plan built at Start (§4.2).
type pollConfig struct {
	handle     string
	providerID string
	deviceID   string
	signalIDs  []string
}

// Cache is the kernel's State Cache (§4.2).
type Cache struct {
	mu     sync.RWMutex
	states map[string]domain.DeviceState

	pollMu  sync.Mutex
	configs []pollConfig

	registry *registry.Registry
	caps     CapabilityLookup
	locks    ProviderLocks
	sink     Sink
	metrics  PollMetrics
	log      zerolog.Logger

	interval time.Duration

	stopFlag atomic.Bool
	wg       sync.WaitGroup
}

// New constructs a State Cache. interval <= 0 selects DefaultPollInterval.
// metrics may be nil to run without poll instrumentation.
func New(reg *registry.Registry, caps CapabilityLookup, locks ProviderLocks, sink Sink, interval time.Duration, log zerolog.Logger, metrics PollMetrics) *Cache {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Cache{
		states:   make(map[string]domain.DeviceState),
		registry: reg,
		caps:     caps,
		locks:    locks,
		sink:     sink,
		metrics:  metrics,
		interval: interval,
		log:      log.With().Str("component", "state_cache").Logger(),
	}
}

// BuildPollConfigs enumerates registered devices and collects each device's
// default-polled signals, creating a state slot for every device even when
// it has zero default signals (§4.2 "Initialization").
func (c *Cache) BuildPollConfigs() {
	devices := c.registry.AllDevices()

	c.pollMu.Lock()
	c.configs = c.configs[:0]
	for _, d := range devices {
		signals := d.Capabilities.DefaultPolledSignals()
		c.configs = append(c.configs, pollConfig{
			handle:     d.Handle(),
			providerID: d.ProviderID,
			deviceID:   d.DeviceID,
			signalIDs:  signals,
		})
	}
	c.pollMu.Unlock()

	c.mu.Lock()
	for _, d := range devices {
		if _, exists := c.states[d.Handle()]; !exists {
			c.states[d.Handle()] = domain.NewDeviceState(d.Handle())
		}
	}
	c.mu.Unlock()
}

// Start launches the dedicated polling thread (§4.2, §5). Calling Start
// twice without an intervening Stop is a programmer error.
func (c *Cache) Start() {
	c.stopFlag.Store(false)
	c.wg.Add(1)
	go c.pollLoop()
}

// Stop sets the atomic stop flag and joins the polling thread. The loop
// exits at the end of its current pass, never mid-provider-call (§4.2, §5).
func (c *Cache) Stop() {
	c.stopFlag.Store(true)
	c.wg.Wait()
}

func (c *Cache) pollLoop() {
	defer c.wg.Done()

	for !c.stopFlag.Load() {
		start := time.Now()
		c.runPass(context.Background())
		elapsed := time.Since(start)

		if elapsed > c.interval {
			c.log.Warn().Dur("elapsed", elapsed).Dur("interval", c.interval).Msg("poll pass exceeded interval, starting next pass immediately")
			continue
		}
		select {
		case <-time.After(c.interval - elapsed):
		}
		if c.stopFlag.Load() {
			return
		}
	}
}

func (c *Cache) runPass(ctx context.Context) {
	c.pollMu.Lock()
	configs := append([]pollConfig(nil), c.configs...)
	c.pollMu.Unlock()

	for _, cfg := range configs {
		if c.stopFlag.Load() {
			return
		}
		c.pollOne(ctx, cfg)
	}

	if c.metrics != nil {
		c.metrics.SetStaleSignals(float64(c.countStaleSignals()))
	}
}

// countStaleSignals reports how many cached signals are either unavailable
// or carry a non-OK quality, as a cheap proxy for the Prometheus stale gauge.
func (c *Cache) countStaleSignals() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var stale int
	for _, state := range c.states {
		if !state.ProviderAvailable {
			stale += len(state.Signals)
			continue
		}
		for _, sig := range state.Signals {
			if sig.Quality != domain.QualityOK {
				stale++
			}
		}
	}
	return stale
}

// PollDeviceNow performs an immediate single-device poll on the caller's
// thread, serialized by the same per-provider lock as control calls, and
// never sleeps (§4.2 "Post-call refresh").
func (c *Cache) PollDeviceNow(ctx context.Context, handle string) error {
	providerID, deviceID, ok := domain.SplitHandle(handle)
	if !ok {
		return kernelerr.Newf(kernelerr.InvalidArgument, "malformed device handle %q", handle)
	}

	dev, err := c.registry.GetByHandle(handle)
	if err != nil {
		return err
	}

	var signalIDs []string
	c.pollMu.Lock()
	for _, cfg := range c.configs {
		if cfg.handle == handle {
			signalIDs = cfg.signalIDs
			break
		}
	}
	c.pollMu.Unlock()
	if signalIDs == nil {
		signalIDs = dev.Capabilities.DefaultPolledSignals()
	}

	c.pollOne(ctx, pollConfig{handle: handle, providerID: providerID, deviceID: deviceID, signalIDs: signalIDs})
	return nil
}

func (c *Cache) pollOne(ctx context.Context, cfg pollConfig) {
	cap, ok := c.caps(cfg.providerID)
	if !ok || !cap.IsAvailable() {
		c.markUnavailable(cfg)
		return
	}

	if len(cfg.signalIDs) == 0 {
		return
	}

	c.locks.Lock(cfg.providerID)
	readings, err := cap.ReadSignals(ctx, cfg.deviceID, cfg.signalIDs)
	c.locks.Unlock(cfg.providerID)

	if err != nil {
		if c.metrics != nil {
			c.metrics.IncPollFailed()
		}
		c.markUnavailable(cfg)
		return
	}

	if c.metrics != nil {
		c.metrics.IncPollOK()
	}
	c.applyReadings(cfg, readings)
}

func (c *Cache) markUnavailable(cfg pollConfig) {
	c.mu.Lock()
	state, exists := c.states[cfg.handle]
	if !exists {
		state = domain.NewDeviceState(cfg.handle)
	}
	wasAvailable := state.ProviderAvailable
	state.ProviderAvailable = false
	state.Signals = make(map[string]domain.CachedSignalValue)
	c.states[cfg.handle] = state
	c.mu.Unlock()

	if wasAvailable {
		c.sink.Emit(domain.NewDeviceAvailability(cfg.providerID, cfg.deviceID, false))
	}
}

// applyReadings performs change detection and emits events per §4.2: an
// unknown signal is a value-change; otherwise value_changed (bitwise for
// double) or quality_changed determines StateUpdate vs QualityChange, never
// both for the same observation.
func (c *Cache) applyReadings(cfg pollConfig, readings []provider.SignalReading) {
	now := time.Now()

	c.mu.Lock()
	state, exists := c.states[cfg.handle]
	if !exists {
		state = domain.NewDeviceState(cfg.handle)
	}
	wasAvailable := state.ProviderAvailable
	state.ProviderAvailable = true
	state.LastPollTime = now

	type pending struct {
		kind   domain.EventKind
		signal string
		value  domain.TypedValue
		q      domain.Quality
		oldQ   domain.Quality
	}
	var toEmit []pending

	for _, r := range readings {
		ts := now
		if r.Timestamp != nil {
			ts = time.Unix(0, *r.Timestamp)
		}
		prior, known := state.Signals[r.SignalID]
		switch {
		case !known:
			toEmit = append(toEmit, pending{kind: domain.EventStateUpdate, signal: r.SignalID, value: r.Value, q: r.Quality})
		case !prior.Value.Equal(r.Value):
			toEmit = append(toEmit, pending{kind: domain.EventStateUpdate, signal: r.SignalID, value: r.Value, q: r.Quality})
		case prior.Quality != r.Quality:
			toEmit = append(toEmit, pending{kind: domain.EventQualityChange, signal: r.SignalID, value: r.Value, q: r.Quality, oldQ: prior.Quality})
		}
		state.Signals[r.SignalID] = domain.CachedSignalValue{Value: r.Value, Quality: r.Quality, Timestamp: ts}
	}
	c.states[cfg.handle] = state
	c.mu.Unlock()

	if !wasAvailable {
		c.sink.Emit(domain.NewDeviceAvailability(cfg.providerID, cfg.deviceID, true))
	}
	for _, p := range toEmit {
		switch p.kind {
		case domain.EventStateUpdate:
			c.sink.Emit(domain.NewStateUpdate(cfg.providerID, cfg.deviceID, p.signal, p.value, p.q))
		case domain.EventQualityChange:
			c.sink.Emit(domain.NewQualityChange(cfg.providerID, cfg.deviceID, p.signal, p.oldQ, p.q))
		}
	}
}

// GetDeviceState returns an owned copy of a device's cached state (§4.2
// "Snapshots").
func (c *Cache) GetDeviceState(handle string) (domain.DeviceState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[handle]
	if !ok {
		return domain.DeviceState{}, kernelerr.Newf(kernelerr.NotFound, "no cached state for %q", handle)
	}
	return state.Clone(), nil
}

// GetSignalValue returns an owned copy of a single cached signal value.
func (c *Cache) GetSignalValue(handle, signalID string) (domain.CachedSignalValue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[handle]
	if !ok {
		return domain.CachedSignalValue{}, kernelerr.Newf(kernelerr.NotFound, "no cached state for %q", handle)
	}
	val, ok := state.Signals[signalID]
	if !ok {
		return domain.CachedSignalValue{}, kernelerr.Newf(kernelerr.NotFound, "signal %q not cached for %q", signalID, handle)
	}
	return val, nil
}
