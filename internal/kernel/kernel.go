// Package kernel wires the Device Registry, State Cache, Event Emitter,
// Mode Manager, Call Router, Parameter Manager, and Automation Runtime into
// the single composition root described by the lock hierarchy of §5.
package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/nexus-edge/anolis/internal/kernel/automation"
	"github.com/nexus-edge/anolis/internal/kernel/cache"
	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/emitter"
	"github.com/nexus-edge/anolis/internal/kernel/mode"
	"github.com/nexus-edge/anolis/internal/kernel/parameter"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
	"github.com/nexus-edge/anolis/internal/kernel/providerlock"
	"github.com/nexus-edge/anolis/internal/kernel/registry"
	"github.com/nexus-edge/anolis/internal/kernel/router"
	"github.com/nexus-edge/anolis/internal/metrics"
	"github.com/rs/zerolog"
)

// Config is the injected configuration object of §6.
type Config struct {
	PollInterval        time.Duration
	AutomationEnabled   bool
	TickRateHz          float64
	ManualGatingPolicy  domain.GatingPolicy
	InitialMode         domain.RuntimeMode
	ParameterDefinitions []domain.ParameterDefinition
	EventQueueDefault   int
	MaxSubscribers      int
}

// Kernel is the composed, running core.
type Kernel struct {
	Registry  *registry.Registry
	Cache     *cache.Cache
	Emitter   *emitter.Emitter
	Mode      *mode.Manager
	Router    *router.Router
	Parameter *parameter.Manager
	Automation *automation.Runtime

	providers providerSet
	log       zerolog.Logger
}

// providerSet is the supervisor-owned, swappable provider capability table
// (§9 "Provider handle aliasing across restart"). Mutators swap the map
// entry under lock; readers take a snapshot of the pointer.
type providerSet struct {
	get func(string) (provider.Capability, bool)
	set func(string, provider.Capability)
	del func(string)
}

// New composes the kernel's subsystems. root is the behavior tree to drive
// the Automation Runtime; pass nil if automation is disabled. metricsReg is
// optional; pass nil to run without Prometheus instrumentation.
func New(cfg Config, root automation.Node, metricsReg *metrics.Registry, log zerolog.Logger) *Kernel {
	var dropMetrics emitter.DropMetrics
	if metricsReg != nil {
		dropMetrics = metricsReg
	}

	reg := registry.New(log)
	emit := emitter.New(log, cfg.MaxSubscribers, dropMetrics)
	sink := &observingSink{emitter: emit, metrics: metricsReg}
	modeMgr := mode.New(cfg.InitialMode, sink, log)
	paramMgr := parameter.New(cfg.ParameterDefinitions, sink, log)
	locks := providerlock.New()

	caps := newCapabilityTable()

	k := &Kernel{
		Registry:  reg,
		Emitter:   emit,
		Mode:      modeMgr,
		Parameter: paramMgr,
		providers: providerSet{get: caps.get, set: caps.set, del: caps.del},
		log:       log.With().Str("component", "kernel").Logger(),
	}

	var pollMetrics cache.PollMetrics
	var callMetrics router.CallMetrics
	if metricsReg != nil {
		pollMetrics = metricsReg
		callMetrics = metricsReg
	}

	k.Cache = cache.New(reg, caps.get, locks, sink, cfg.PollInterval, log, pollMetrics)
	k.Router = router.New(reg, modeMgr, caps.get, k.Cache, cfg.ManualGatingPolicy, locks, log, callMetrics)

	if cfg.AutomationEnabled {
		readPort := &cacheReadPort{cache: k.Cache}
		paramPort := &paramReadPort{mgr: paramMgr}
		writePort := &routerWritePort{router: k.Router}
		modeFn := func() domain.RuntimeMode { return modeMgr.CurrentMode() }
		var tickMetrics automation.TickMetrics
		if metricsReg != nil {
			tickMetrics = metricsReg
		}
		k.Automation = automation.New(root, readPort, paramPort, writePort, modeFn, sink, cfg.TickRateHz, log, tickMetrics)
	}

	return k
}

// observingSink wraps the Event Emitter with Prometheus instrumentation
// (events emitted by kind, queue drops) without requiring any kernel
// subsystem to know metrics exist — an ambient concern layered at the
// composition root, not a core dependency.
type observingSink struct {
	emitter *emitter.Emitter
	metrics *metrics.Registry
}

func (s *observingSink) Emit(ev domain.Event) domain.Event {
	out := s.emitter.Emit(ev)
	if s.metrics != nil {
		s.metrics.IncEventEmitted(string(out.Kind))
		if out.Kind == domain.EventModeChange {
			s.metrics.IncModeTransition(string(out.NewMode))
		}
		if out.Kind == domain.EventParameterChange {
			s.metrics.IncParameterChange()
		}
	}
	return out
}

// RegisterProvider installs a provider's capability and triggers discovery
// (§4.1). Call before Start, or any time after — the registry and
// CapabilityLookup both tolerate concurrent discovery.
func (k *Kernel) RegisterProvider(ctx context.Context, providerID string, cap provider.Capability) error {
	k.providers.set(providerID, cap)
	if err := k.Registry.DiscoverProvider(ctx, providerID, cap); err != nil {
		return err
	}
	k.Cache.BuildPollConfigs()
	return nil
}

// EvictProvider removes a provider's devices and its capability entry
// (§4.1 "clear_provider_devices").
func (k *Kernel) EvictProvider(providerID string) {
	k.Registry.ClearProviderDevices(providerID)
	k.providers.del(providerID)
	k.Cache.BuildPollConfigs()
}

// Start launches the State Cache polling thread and, if configured, the
// Automation tick thread (§5 "Long-lived threads").
func (k *Kernel) Start() {
	k.Cache.Start()
	if k.Automation != nil {
		k.Automation.Start()
	}
}

// Stop joins every kernel thread in reverse startup order.
func (k *Kernel) Stop() {
	if k.Automation != nil {
		k.Automation.Stop()
	}
	k.Cache.Stop()
}

// capabilityTable is the swappable, lock-protected provider capability map
// backing providerSet (§9).
type capabilityTable struct {
	mu sync.RWMutex
	m  map[string]provider.Capability
}

func newCapabilityTable() *capabilityTable {
	return &capabilityTable{m: make(map[string]provider.Capability)}
}

func (t *capabilityTable) get(id string) (provider.Capability, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.m[id]
	return c, ok
}

func (t *capabilityTable) set(id string, cap provider.Capability) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[id] = cap
}

func (t *capabilityTable) del(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, id)
}

// cacheReadPort adapts *cache.Cache to automation.ReadPort.
type cacheReadPort struct {
	cache *cache.Cache
}

func (p *cacheReadPort) GetSignalValue(providerID, deviceID, signalID string) (domain.TypedValue, domain.Quality, error) {
	handle := domain.BuildHandle(providerID, deviceID)
	v, err := p.cache.GetSignalValue(handle, signalID)
	if err != nil {
		return domain.TypedValue{}, "", err
	}
	return v.Value, v.Quality, nil
}

// paramReadPort adapts *parameter.Manager to automation.ParameterPort.
type paramReadPort struct {
	mgr *parameter.Manager
}

func (p *paramReadPort) Get(name string) (domain.TypedValue, error) {
	return p.mgr.Get(name)
}

// routerWritePort adapts *router.Router to automation.WritePort, marking
// every request as automated.
type routerWritePort struct {
	router *router.Router
}

func (w *routerWritePort) Call(ctx context.Context, req router.CallRequest) (router.CallResult, error) {
	req.IsAutomated = true
	return w.router.ExecuteCall(ctx, req)
}
