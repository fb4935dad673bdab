// Package emitter implements the kernel's Event Emitter (§4.3): thread-safe
// fan-out of Events to per-subscriber bounded queues.
package emitter

import (
	"sync"
	"time"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernelerr"
	"github.com/rs/zerolog"
)

// DefaultMaxSubscribers is the default cap on concurrent subscriptions (§4.3, §6).
const DefaultMaxSubscribers = 32

// Filter matches events for one subscription. An empty field matches
// anything (§4.3).
type Filter struct {
	ProviderID string
	DeviceID   string
	SignalID   string
}

func (f Filter) matches(e domain.Event) bool {
	if f.ProviderID != "" && f.ProviderID != e.ProviderID {
		return false
	}
	if f.DeviceID != "" && f.DeviceID != e.DeviceID {
		return false
	}
	if f.SignalID != "" && f.SignalID != e.SignalID {
		return false
	}
	return true
}

// Subscription is the unique-ownership handle a caller uses to consume
// events (§4.3). It is movable but not copyable in spirit: callers should
// treat it as owned by one consumer goroutine and call Unsubscribe exactly
// once.
type Subscription struct {
	id     uint64
	name   string
	filter Filter

	mu       sync.Mutex
	cond     *sync.Cond
	buf      []domain.Event
	capacity int
	closed   bool
	dropped  uint64

	emitter *Emitter
}

// Pop waits up to timeout for the next event. It returns ok=false on
// timeout or once the subscription is closed and drained.
func (s *Subscription) Pop(timeout time.Duration) (domain.Event, bool) {
	deadline := time.Now().Add(timeout)

	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		if !time.Now().Before(deadline) {
			return domain.Event{}, false
		}
		s.cond.Wait()
	}
	if len(s.buf) == 0 {
		return domain.Event{}, false
	}
	ev := s.buf[0]
	s.buf = s.buf[1:]
	return ev, true
}

// TryPop returns the next event without waiting.
func (s *Subscription) TryPop() (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return domain.Event{}, false
	}
	ev := s.buf[0]
	s.buf = s.buf[1:]
	return ev, true
}

// DroppedCount reports how many events this subscription has lost to
// overflow (§4.3, §8 scenario 6).
func (s *Subscription) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Unsubscribe closes the queue and wakes any blocked Pop (§4.3).
func (s *Subscription) Unsubscribe() {
	s.emitter.unsubscribe(s.id)
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Subscription) push(ev domain.Event, log zerolog.Logger, metrics DropMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if len(s.buf) >= s.capacity {
		s.buf = s.buf[1:]
		s.dropped++
		if metrics != nil {
			metrics.IncEventDropped()
		}
		if s.dropped == 1 || s.dropped%100 == 0 {
			log.Warn().Str("subscriber", s.name).Uint64("dropped", s.dropped).Msg("subscriber queue overflow, dropping oldest event")
		}
	}
	s.buf = append(s.buf, ev)
	s.cond.Broadcast()
}

// DropMetrics is the optional instrumentation surface for subscriber queue
// overflow. Satisfied by *metrics.Registry; nil-safe when not configured.
type DropMetrics interface {
	IncEventDropped()
}

// Emitter is the thread-safe fan-out table of §4.3.
type Emitter struct {
	mu            sync.Mutex
	nextEventID   uint64
	subscribers   map[uint64]*Subscription
	nextSubID     uint64
	maxSubscribers int

	metrics DropMetrics
	log     zerolog.Logger
}

// New constructs an Emitter. maxSubscribers <= 0 selects DefaultMaxSubscribers.
// metrics may be nil.
func New(log zerolog.Logger, maxSubscribers int, metrics DropMetrics) *Emitter {
	if maxSubscribers <= 0 {
		maxSubscribers = DefaultMaxSubscribers
	}
	return &Emitter{
		subscribers:    make(map[uint64]*Subscription),
		maxSubscribers: maxSubscribers,
		metrics:        metrics,
		log:            log.With().Str("component", "emitter").Logger(),
	}
}

// Subscribe creates a bounded queue and returns its handle (§4.3).
func (e *Emitter) Subscribe(filter Filter, queueSize int, name string) (*Subscription, error) {
	if queueSize <= 0 {
		queueSize = 64
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.subscribers) >= e.maxSubscribers {
		return nil, kernelerr.Newf(kernelerr.FailedPrecondition, "max subscribers (%d) reached", e.maxSubscribers)
	}

	e.nextSubID++
	sub := &Subscription{
		id:       e.nextSubID,
		name:     name,
		filter:   filter,
		capacity: queueSize,
		emitter:  e,
	}
	sub.cond = sync.NewCond(&sub.mu)
	e.subscribers[sub.id] = sub
	return sub, nil
}

// Emit assigns the next monotonic event_id under the emitter lock, snapshots
// matching queues, releases the lock, then pushes into each queue (§4.3).
// Pushing never blocks.
func (e *Emitter) Emit(ev domain.Event) domain.Event {
	e.mu.Lock()
	e.nextEventID++
	ev.EventID = e.nextEventID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	var targets []*Subscription
	for _, sub := range e.subscribers {
		if sub.filter.matches(ev) {
			targets = append(targets, sub)
		}
	}
	e.mu.Unlock()

	for _, sub := range targets {
		sub.push(ev, e.log, e.metrics)
	}
	return ev
}

// SubscriberCount is a diagnostic read.
func (e *Emitter) SubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subscribers)
}

func (e *Emitter) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subscribers, id)
}
