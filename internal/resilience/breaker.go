// Package resilience guards calls to a flaky remote with a circuit breaker.
//
// A [Breaker] counts consecutive failures. Once the limit is reached it
// opens and rejects calls with [ErrOpen] until the cooldown has passed; it
// then lets a single probe through and closes again if the probe succeeds.
// The transcript fetcher uses one breaker per download run so that a site
// that stops answering does not cost one timeout per remaining episode.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open.
var ErrOpen = errors.New("resilience: circuit open")

// State is the mode of a [Breaker].
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	defaultMaxFailures = 5
	defaultCooldown    = 30 * time.Second
)

// Breaker is a consecutive-failure circuit breaker. It is safe for
// concurrent use.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
	onChange    func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// Option configures a [Breaker].
type Option func(*Breaker)

// WithMaxFailures sets how many consecutive failures open the breaker.
// Default: 5.
func WithMaxFailures(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before probing.
// Default: 30s.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateChange registers a callback run on every transition, outside the
// breaker's lock.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// New returns a closed breaker. name labels log records.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		maxFailures: defaultMaxFailures,
		cooldown:    defaultCooldown,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn unless the breaker is open. Errors caused by ctx being
// cancelled are returned but not counted as failures.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}

	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release(probe)
		return err
	}
	b.record(probe, err)
	return err
}

// State returns the current state. An open breaker whose cooldown has
// passed reports [HalfOpen].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	var from State
	changed := false
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, HalfOpen)
		}
	}()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrOpen
		}
		from, changed = Open, true
		b.state = HalfOpen
		b.probing = false
		fallthrough
	case HalfOpen:
		// One probe at a time.
		if b.probing {
			return false, ErrOpen
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

// release gives back a probe slot without judging the remote.
func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	from := b.state
	switch {
	case err == nil:
		b.failures = 0
		b.state = Closed
	case probe:
		b.state = Open
		b.openedAt = b.now()
	default:
		b.failures++
		if b.state == Closed && b.failures >= b.maxFailures {
			b.state = Open
			b.openedAt = b.now()
		}
	}
	if probe {
		b.probing = false
	}
	to, failures := b.state, b.failures
	b.mu.Unlock()

	if from != to {
		if to == Open {
			slog.Warn("resilience: circuit opened", "name", b.name, "consecutive_failures", failures)
		}
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if to == Closed {
		slog.Info("resilience: circuit closed", "name", b.name)
	}
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
