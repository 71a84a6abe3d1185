// Package connectivity turns periodic pings into a stream of online/offline
// transitions that other components can subscribe to.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/logging"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	}
	return "unknown"
}

// Event is published on every status transition.
type Event struct {
	Status Status
	At     time.Time
	Err    error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	defaultPingTimeout = 3 * time.Second
	subscriberBuffer   = 4
)

type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	mu     sync.Mutex
	status Status
	subs   map[int]chan Event
	nextID int
}

func NewMonitor(p Pinger, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		pinger:   p,
		interval: interval,
		timeout:  defaultPingTimeout,
		log:      log.With("module", "connectivity"),
		subs:     make(map[int]chan Event),
	}
}

// Run checks connectivity immediately and then on every interval until ctx
// is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check pings once and publishes an event if the status changed.
func (m *Monitor) Check(ctx context.Context) Status {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pctx)
	cancel()

	next := StatusOnline
	if err != nil {
		next = StatusOffline
	}
	m.set(ctx, next, err)
	return next
}

// Report records an outcome observed elsewhere, e.g. a failed remote call.
func (m *Monitor) Report(ctx context.Context, err error) {
	if err != nil {
		m.set(ctx, StatusOffline, err)
		return
	}
	m.set(ctx, StatusOnline, nil)
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe returns a channel of transitions and a function that closes it.
// A subscriber that falls behind loses events rather than blocking others.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Event, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

func (m *Monitor) set(ctx context.Context, next Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == next {
		return
	}
	m.log.Info(ctx, "connectivity changed", "from", m.status.String(), "to", next.String())
	m.status = next

	ev := Event{Status: next, At: time.Now(), Err: err}
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.log.Warn(ctx, "dropping connectivity event for slow subscriber", "subscriber", id)
		}
	}
}
