// Package automation implements the kernel's Automation/BT Runtime (§4.7):
// a single-threaded tick loop that is a pure consumer of the State Cache and
// Call Router, never a direct producer of provider I/O.
package automation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/router"
	"github.com/rs/zerolog"
)

// DefaultTickRateHz is the default tick loop frequency (§4.7, §6).
const DefaultTickRateHz = 10.0

// Status is the health status of the tick loop (§4.7).
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusRunning Status = "RUNNING"
	StatusStalled Status = "STALLED"
	StatusError   Status = "ERROR"
)

// TickResult is what one invocation of a tree returns.
type TickResult string

const (
	TickSuccess TickResult = "SUCCESS"
	TickFailure TickResult = "FAILURE"
	TickRunning TickResult = "RUNNING"
)

// ReadPort is the cache-backed read surface a tree consumes (§4.7 "Contract
// for tree nodes"). Satisfied by a thin adapter over *cache.Cache.
type ReadPort interface {
	GetSignalValue(providerID, deviceID, signalID string) (domain.TypedValue, domain.Quality, error)
}

// ParameterPort is the parameter read surface a tree consumes.
type ParameterPort interface {
	Get(name string) (domain.TypedValue, error)
}

// WritePort is the call-dispatch surface a tree consumes; every dispatch
// carries IsAutomated=true (§4.7, §9).
type WritePort interface {
	Call(ctx context.Context, req router.CallRequest) (router.CallResult, error)
}

// Node is the minimal host interface for a behavior-tree node (§1 Non-goal:
// "does not implement the behavior-tree node library, only its host").
type Node interface {
	Tick(ctx context.Context, tick *TickContext) (TickResult, error)
}

// TickContext is the working memory handed to the tree for one tick.
type TickContext struct {
	Reads  ReadPort
	Params ParameterPort
	Writes WritePort
	Mode   func() domain.RuntimeMode
}

// Sink is the event-emission surface for BTError events.
type Sink interface {
	Emit(domain.Event) domain.Event
}

// TickMetrics is the optional instrumentation surface for tick loop health.
// Satisfied by *metrics.Registry; nil-safe when not configured.
type TickMetrics interface {
	IncAutomationTick()
	IncAutomationError()
}

// StallThreshold is the default number of consecutive RUNNING-without-progress
// ticks before status transitions to STALLED (§4.7).
const StallThreshold = 50

// Runtime is the kernel's Automation/BT Runtime (§4.7).
type Runtime struct {
	root   Node
	reads  ReadPort
	params ParameterPort
	writes WritePort
	mode    func() domain.RuntimeMode
	sink    Sink
	metrics TickMetrics
	log     zerolog.Logger

	tickRateHz     float64
	stallThreshold int

	mu            sync.RWMutex
	status        Status
	totalTicks    uint64
	lastTickAt    time.Time
	errorCount    uint64
	lastError     string
	stalledTicks  int

	enabled  atomic.Bool
	stopFlag atomic.Bool
	wg       sync.WaitGroup
}

// New constructs a Runtime. tickRateHz <= 0 selects DefaultTickRateHz.
// metrics may be nil.
func New(root Node, reads ReadPort, params ParameterPort, writes WritePort, modeFn func() domain.RuntimeMode, sink Sink, tickRateHz float64, log zerolog.Logger, metrics TickMetrics) *Runtime {
	if tickRateHz <= 0 {
		tickRateHz = DefaultTickRateHz
	}
	return &Runtime{
		root:           root,
		reads:          reads,
		params:         params,
		writes:         writes,
		mode:           modeFn,
		sink:           sink,
		metrics:        metrics,
		tickRateHz:     tickRateHz,
		stallThreshold: StallThreshold,
		status:         StatusIdle,
		log:            log.With().Str("component", "automation").Logger(),
	}
}

// Start launches the tick thread; the thread runs only while enabled (§4.7,
// §5 "at most one" automation thread).
func (r *Runtime) Start() {
	if !r.enabled.CompareAndSwap(false, true) {
		return
	}
	r.stopFlag.Store(false)
	r.wg.Add(1)
	go r.loop()
}

// Stop sets the atomic stop flag and joins the tick thread.
func (r *Runtime) Stop() {
	if !r.enabled.CompareAndSwap(true, false) {
		return
	}
	r.stopFlag.Store(true)
	r.wg.Wait()
}

func (r *Runtime) loop() {
	defer r.wg.Done()
	period := time.Duration(float64(time.Second) / r.tickRateHz)

	for !r.stopFlag.Load() {
		start := time.Now()
		r.tickOnce()
		elapsed := time.Since(start)

		if elapsed >= period {
			continue // no burst compensation (§4.7)
		}
		select {
		case <-time.After(period - elapsed):
		}
	}
}

func (r *Runtime) tickOnce() {
	ctx := context.Background()
	tickCtx := &TickContext{Reads: r.reads, Params: r.params, Writes: r.writes, Mode: r.mode}

	result, err := r.invokeRoot(ctx, tickCtx)

	if r.metrics != nil {
		r.metrics.IncAutomationTick()
	}

	r.mu.Lock()
	r.totalTicks++
	r.lastTickAt = time.Now()

	if err != nil {
		r.status = StatusError
		r.errorCount++
		r.lastError = err.Error()
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.IncAutomationError()
		}
		if r.sink != nil {
			r.sink.Emit(domain.NewBTError("", err.Error()))
		}
		return
	}

	switch result {
	case TickRunning:
		r.stalledTicks++
		if r.stalledTicks >= r.stallThreshold {
			r.status = StatusStalled
		} else if r.status != StatusStalled {
			r.status = StatusRunning
		}
	default:
		r.stalledTicks = 0
		r.status = StatusRunning
	}
	r.mu.Unlock()
}

func (r *Runtime) invokeRoot(ctx context.Context, tickCtx *TickContext) (result TickResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicAsError(rec)
		}
	}()
	if r.root == nil {
		return TickSuccess, nil
	}
	return r.root.Tick(ctx, tickCtx)
}

func panicAsError(rec interface{}) error {
	if e, ok := rec.(error); ok {
		return e
	}
	return &panicError{rec}
}

type panicError struct{ v interface{} }

func (p *panicError) Error() string { return "behavior tree node panic" }

// Health is a shared read of the loop's current health (§4.7).
type Health struct {
	Status     Status
	TotalTicks uint64
	LastTickAt time.Time
	ErrorCount uint64
	LastError  string
}

// GetHealth is a shared read.
func (r *Runtime) GetHealth() Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Health{
		Status:     r.status,
		TotalTicks: r.totalTicks,
		LastTickAt: r.lastTickAt,
		ErrorCount: r.errorCount,
		LastError:  r.lastError,
	}
}

// GatedCall is the helper tree nodes use to dispatch writes; it always
// forces IsAutomated=true and short-circuits with a failure (not an error)
// when the current mode is not AUTO, regardless of implementation choice
// for whether the loop itself pauses (§4.7 "Gating").
func GatedCall(ctx context.Context, tc *TickContext, req router.CallRequest) (router.CallResult, bool) {
	if tc.Mode() != domain.ModeAuto {
		return router.CallResult{}, false
	}
	req.IsAutomated = true
	res, err := tc.Writes.Call(ctx, req)
	if err != nil {
		return router.CallResult{}, false
	}
	return res, true
}
