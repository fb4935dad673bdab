// Package supervisor implements the reference Provider Supervisor of §4.8:
// it observes each provider's availability (it does not connect, reconnect
// or restart providers), wraps every outbound call through a per-provider
// circuit breaker, and periodically
// emits ProviderHealthChange events off its own derived lifecycle state
// (a supplemented feature — §4 schedules no such cadence explicitly).
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
	"github.com/rs/zerolog"
)

// DefaultHealthPollInterval is how often the supervisor recomputes and
// reports each provider's lifecycle state.
const DefaultHealthPollInterval = 2 * time.Second

// Connector is the underlying provider surface the supervisor wraps. It adds
// nothing to provider.Capability; in particular it has no connect method, so
// the supervisor never re-establishes a provider's connection.
type Connector interface {
	provider.Capability
}

// Sink is the event-emission surface for ProviderHealthChange events.
type Sink interface {
	Emit(domain.Event) domain.Event
}

// entry tracks one provider's breaker, underlying capability, and restart
// bookkeeping.
type entry struct {
	providerID string
	underlying Connector
	breaker    *gobreaker.CircuitBreaker[provider.CallResponse]

	attemptCount atomic.Int32
	maxAttempts  int
	startedAt    time.Time
	lastSeen     atomic.Int64 // unix nano

	lastLifecycle atomic.Value // provider.LifecycleState
}

// Supervisor is the reference Provider Supervisor implementation (§4.8).
type Supervisor struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	sink     Sink
	interval time.Duration
	log      zerolog.Logger

	stopFlag atomic.Bool
	wg       sync.WaitGroup
}

// New constructs a Supervisor. interval <= 0 selects DefaultHealthPollInterval.
func New(sink Sink, interval time.Duration, log zerolog.Logger) *Supervisor {
	if interval <= 0 {
		interval = DefaultHealthPollInterval
	}
	return &Supervisor{
		entries:  make(map[string]*entry),
		sink:     sink,
		interval: interval,
		log:      log.With().Str("component", "supervisor").Logger(),
	}
}

// Supervise registers a provider's underlying capability and wraps it in a
// breaker-protected Capability the kernel can consume.
func (s *Supervisor) Supervise(providerID string, underlying Connector, maxAttempts int) provider.Capability {
	settings := gobreaker.Settings{
		Name:        providerID,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	e := &entry{
		providerID:  providerID,
		underlying:  underlying,
		breaker:     gobreaker.NewCircuitBreaker[provider.CallResponse](settings),
		maxAttempts: maxAttempts,
		startedAt:   time.Now(),
	}
	e.lastLifecycle.Store(provider.LifecycleDown)

	s.mu.Lock()
	s.entries[providerID] = e
	s.mu.Unlock()

	return &breakerCapability{entry: e}
}

// Snapshot returns the current SupervisionSnapshot for a provider.
func (s *Supervisor) Snapshot(providerID string) (provider.SupervisionSnapshot, bool) {
	s.mu.RLock()
	e, ok := s.entries[providerID]
	s.mu.RUnlock()
	if !ok {
		return provider.SupervisionSnapshot{}, false
	}
	return e.snapshot(), true
}

func (e *entry) snapshot() provider.SupervisionSnapshot {
	available := e.underlying.IsAvailable()
	circuitOpen := e.breaker.State() == gobreaker.StateOpen
	lastSeenNano := e.lastSeen.Load()
	var lastSeenAgo int64
	if lastSeenNano > 0 {
		lastSeenAgo = time.Since(time.Unix(0, lastSeenNano)).Milliseconds()
	}
	return provider.SupervisionSnapshot{
		Available:       available,
		UptimeMs:        time.Since(e.startedAt).Milliseconds(),
		LastSeenAgoMs:   lastSeenAgo,
		AttemptCount:    int(e.attemptCount.Load()),
		MaxAttempts:     e.maxAttempts,
		CrashDetected:   !available && e.attemptCount.Load() > 0,
		CircuitOpen:     circuitOpen,
		NextRestartInMs: nextRestartMs(circuitOpen, e.breaker),
	}
}

func nextRestartMs(circuitOpen bool, b *gobreaker.CircuitBreaker[provider.CallResponse]) int64 {
	if !circuitOpen {
		return 0
	}
	return int64(10 * time.Second / time.Millisecond)
}

// Start launches the health-polling thread that emits ProviderHealthChange
// events on lifecycle transitions (supplemented feature, see SPEC_FULL.md).
func (s *Supervisor) Start() {
	s.stopFlag.Store(false)
	s.wg.Add(1)
	go s.healthLoop()
}

// Stop joins the health-polling thread.
func (s *Supervisor) Stop() {
	s.stopFlag.Store(true)
	s.wg.Wait()
}

func (s *Supervisor) healthLoop() {
	defer s.wg.Done()
	for !s.stopFlag.Load() {
		s.pollOnce()
		select {
		case <-time.After(s.interval):
		}
	}
}

func (s *Supervisor) pollOnce() {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		snap := e.snapshot()
		lifecycle := provider.DeriveLifecycle(snap)
		prev, _ := e.lastLifecycle.Load().(provider.LifecycleState)
		if prev != lifecycle {
			e.lastLifecycle.Store(lifecycle)
			if s.sink != nil {
				s.sink.Emit(domain.NewProviderHealthChange(e.providerID, string(lifecycle)))
			}
		}
	}
}

// breakerCapability wraps Connector.Call with the per-provider circuit
// breaker; all other methods pass through directly.
type breakerCapability struct {
	entry *entry
}

func (b *breakerCapability) IsAvailable() bool { return b.entry.underlying.IsAvailable() }

func (b *breakerCapability) Call(ctx context.Context, deviceID string, functionID uint32, functionName string, args map[string]domain.TypedValue) (provider.CallResponse, error) {
	resp, err := b.entry.breaker.Execute(func() (provider.CallResponse, error) {
		return b.entry.underlying.Call(ctx, deviceID, functionID, functionName, args)
	})
	if err == nil {
		b.entry.lastSeen.Store(time.Now().UnixNano())
		b.entry.attemptCount.Store(0)
	} else {
		b.entry.attemptCount.Add(1)
	}
	return resp, err
}

func (b *breakerCapability) ListDevices(ctx context.Context) ([]string, error) {
	return b.entry.underlying.ListDevices(ctx)
}

func (b *breakerCapability) DescribeDevice(ctx context.Context, deviceID string) (provider.DeviceDescriptor, error) {
	return b.entry.underlying.DescribeDevice(ctx, deviceID)
}

func (b *breakerCapability) ReadSignals(ctx context.Context, deviceID string, signalIDs []string) ([]provider.SignalReading, error) {
	readings, err := b.entry.underlying.ReadSignals(ctx, deviceID, signalIDs)
	if err == nil {
		b.entry.lastSeen.Store(time.Now().UnixNano())
	}
	return readings, err
}

func (b *breakerCapability) LastError() error { return b.entry.underlying.LastError() }

func (b *breakerCapability) LastStatusCode() provider.StatusCode { return b.entry.underlying.LastStatusCode() }
