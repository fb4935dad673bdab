// Package router implements the kernel's Call Router (§4.4): the only
// control path, with validation, mode gating, per-provider serialization,
// and post-call cache refresh.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
	"github.com/nexus-edge/anolis/internal/kernel/providerlock"
	"github.com/nexus-edge/anolis/internal/kernel/registry"
	"github.com/nexus-edge/anolis/internal/kernelerr"
	"github.com/rs/zerolog"
)

// CallRequest is the router's sole input (§4.4).
type CallRequest struct {
	DeviceHandle string
	FunctionID   *uint32 // set when selecting by id
	FunctionName string  // set when selecting by name; FunctionID takes precedence if both set
	Args         map[string]domain.TypedValue
	IsAutomated  bool
}

// CallResult is the router's output on success.
type CallResult struct {
	Values map[string]domain.TypedValue
}

// ModeSource reports the runtime mode for gating decisions (§4.4). Satisfied
// by *mode.Manager.
type ModeSource interface {
	CurrentMode() domain.RuntimeMode
}

// Refresher performs the post-call cache refresh (§4.2 "Post-call refresh").
// Satisfied by *cache.Cache.
type Refresher interface {
	PollDeviceNow(ctx context.Context, handle string) error
}

// CapabilityLookup resolves the live provider capability for a provider_id.
type CapabilityLookup func(providerID string) (provider.Capability, bool)

// CallMetrics is the optional instrumentation surface for call outcomes and
// latency. Satisfied by *metrics.Registry; nil-safe when not configured.
type CallMetrics interface {
	IncCall(kind string)
	ObserveCallLatency(seconds float64)
}

// Router is the kernel's Call Router (§4.4).
type Router struct {
	registry *registry.Registry
	mode     ModeSource
	caps     CapabilityLookup
	cache    Refresher
	policy   domain.GatingPolicy

	locks   *providerlock.Table
	metrics CallMetrics

	log zerolog.Logger
}

// New constructs a Router over a shared providerlock.Table so the State
// Cache can serialize its poll-loop and post-call-refresh access against the
// exact same per-provider locks the router uses for control dispatch (§4.2,
// §4.4, §5 "per-provider serialization lock"). metrics may be nil.
func New(reg *registry.Registry, modeSrc ModeSource, caps CapabilityLookup, cache Refresher, policy domain.GatingPolicy, locks *providerlock.Table, log zerolog.Logger, metrics CallMetrics) *Router {
	return &Router{
		registry: reg,
		mode:     modeSrc,
		caps:     caps,
		cache:    cache,
		policy:   policy,
		locks:    locks,
		metrics:  metrics,
		log:      log.With().Str("component", "call_router").Logger(),
	}
}

// ExecuteCall validates, gates, dispatches, and refreshes for one call
// request, in the order specified by §4.4.
func (r *Router) ExecuteCall(ctx context.Context, req CallRequest) (CallResult, error) {
	start := time.Now()
	result, err := r.executeCall(ctx, req)
	if r.metrics != nil {
		r.metrics.ObserveCallLatency(time.Since(start).Seconds())
		r.metrics.IncCall(callOutcomeKind(err))
	}
	return result, err
}

func callOutcomeKind(err error) string {
	if err == nil {
		return "ok"
	}
	return string(kernelerr.KindOf(err))
}

func (r *Router) executeCall(ctx context.Context, req CallRequest) (CallResult, error) {
	providerID, deviceID, ok := domain.SplitHandle(req.DeviceHandle)
	if !ok {
		return CallResult{}, kernelerr.Newf(kernelerr.InvalidArgument, "malformed device handle %q", req.DeviceHandle)
	}

	dev, err := r.registry.GetDevice(providerID, deviceID)
	if err != nil {
		return CallResult{}, err
	}

	fn, err := r.resolveFunction(dev, req)
	if err != nil {
		return CallResult{}, err
	}

	if err := validateArgs(fn, req.Args); err != nil {
		return CallResult{}, err
	}

	if err := r.checkGating(req.IsAutomated); err != nil {
		return CallResult{}, err
	}

	cap, ok := r.caps(providerID)
	if !ok {
		return CallResult{}, kernelerr.Newf(kernelerr.NotFound, "provider %q not registered", providerID)
	}
	if !cap.IsAvailable() {
		return CallResult{}, kernelerr.Newf(kernelerr.Unavailable, "provider %q unavailable", providerID)
	}

	r.locks.Lock(providerID)
	resp, err := cap.Call(ctx, deviceID, fn.FunctionID, fn.FunctionName, req.Args)
	r.locks.Unlock(providerID)

	if err != nil {
		return CallResult{}, kernelerr.Wrap(kernelerr.Unavailable, "provider call transport failure", err)
	}
	if resp.Status != provider.StatusOK {
		kind := kernelerr.ProviderStatusKind(string(resp.Status))
		return CallResult{}, kernelerr.New(kind, resp.Message)
	}

	// Post-call refresh runs before return so a subsequent get_device_state
	// observes the post-call poll, not a stale pre-call value (§4.2, §5, §8).
	if err := r.cache.PollDeviceNow(ctx, req.DeviceHandle); err != nil {
		r.log.Warn().Err(err).Str("handle", req.DeviceHandle).Msg("post-call refresh failed")
	}

	return CallResult{Values: resp.Values}, nil
}

func (r *Router) resolveFunction(dev domain.RegisteredDevice, req CallRequest) (domain.FunctionSpec, error) {
	if req.FunctionID != nil {
		fn, ok := dev.Capabilities.FunctionByID(*req.FunctionID)
		if !ok {
			return domain.FunctionSpec{}, kernelerr.Newf(kernelerr.NotFound, "function id %d not found on %q", *req.FunctionID, dev.Handle())
		}
		return fn, nil
	}
	fn, ok := dev.Capabilities.Functions[req.FunctionName]
	if !ok {
		return domain.FunctionSpec{}, kernelerr.Newf(kernelerr.NotFound, "function %q not found on %q", req.FunctionName, dev.Handle())
	}
	return fn, nil
}

func validateArgs(fn domain.FunctionSpec, args map[string]domain.TypedValue) error {
	for _, spec := range fn.Args {
		v, present := args[spec.Name]
		if !present {
			if spec.Required {
				return kernelerr.Newf(kernelerr.InvalidArgument, "missing required argument %q", spec.Name)
			}
			continue
		}
		if v.Type != spec.ValueType {
			return kernelerr.Newf(kernelerr.InvalidArgument, "argument %q has type %s, expected %s", spec.Name, v.GoString(), spec.ValueType)
		}
		if spec.Max != nil && !v.InRange(nil, spec.Max) {
			return kernelerr.Newf(kernelerr.InvalidArgument, "argument %q value above maximum %s", spec.Name, formatBound(*spec.Max))
		}
		if spec.Min != nil && !v.InRange(spec.Min, nil) {
			return kernelerr.Newf(kernelerr.InvalidArgument, "argument %q value below minimum %s", spec.Name, formatBound(*spec.Min))
		}
	}
	for name := range args {
		if fn.ArgByName(name) == nil {
			return kernelerr.Newf(kernelerr.InvalidArgument, "unknown argument %q", name)
		}
	}
	return nil
}

func formatBound(v domain.TypedValue) string {
	switch v.Type {
	case domain.ValueDouble:
		return fmt.Sprintf("%g", v.Double)
	case domain.ValueInt64:
		return fmt.Sprintf("%d", v.Int64)
	case domain.ValueUint64:
		return fmt.Sprintf("%d", v.Uint64)
	default:
		return ""
	}
}

// checkGating implements §4.4's mode gating table.
func (r *Router) checkGating(isAutomated bool) error {
	m := r.mode.CurrentMode()
	if m == domain.ModeIdle {
		return kernelerr.New(kernelerr.FailedPrecondition, "control blocked in IDLE")
	}
	if !isAutomated && m == domain.ModeAuto {
		if r.policy == domain.GatingBlock {
			return kernelerr.New(kernelerr.FailedPrecondition, "manual call blocked in AUTO")
		}
	}
	return nil
}
