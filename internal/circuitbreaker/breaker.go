// Package circuitbreaker guards calls to an upstream HTTP service. Once the
// weighted failure rate over a rolling window crosses a threshold the breaker
// opens and calls fail fast until a single probe succeeds.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen reports a call rejected by an open breaker.
var ErrOpen = errors.New("circuit open")

// State is the breaker state.
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
		return "half_open"
	}
	return "unknown"
}

// Config tunes a Breaker. Zero fields take the defaults from DefaultConfig.
type Config struct {
	Threshold float64       `yaml:"threshold"` // weighted failure rate that trips the breaker
	MinCalls  int           `yaml:"min_calls"` // calls required in the window before tripping
	Window    time.Duration `yaml:"window"`    // rolling window, whole seconds up to 2m
	Cooldown  time.Duration `yaml:"cooldown"`  // time spent open before a probe is let through
}

// DefaultConfig returns the breaker defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.5,
		MinCalls:  5,
		Window:    time.Minute,
		Cooldown:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.MinCalls <= 0 {
		c.MinCalls = d.MinCalls
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	win      window
	openedAt time.Time
	probing  bool
	onChange func(from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithStateHook registers fn to be called on every state transition. fn runs
// with the breaker lock held and must not call back into the breaker.
func WithStateHook(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// New creates a closed Breaker.
func New(cfg Config, opts ...Option) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{
		cfg: cfg,
		now: time.Now,
		win: newWindow(int(cfg.Window / time.Second)),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. After the cooldown exactly one
// caller is let through as a probe; its outcome closes or reopens the circuit.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.transition(HalfOpen)
		b.probing = true
		return true
	default:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// Record registers the outcome of an allowed call. A weight of 0 is a
// success; see Weight for how outcomes are scored.
func (b *Breaker) Record(weight float64) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.win.add(weight, now)
	switch b.state {
	case HalfOpen:
		b.probing = false
		if weight == 0 {
			b.win.reset()
			b.transition(Closed)
			return
		}
		b.openedAt = now
		b.transition(Open)
	case Closed:
		if weight == 0 {
			return
		}
		if rate, calls := b.win.rate(now); calls >= b.cfg.MinCalls && rate >= b.cfg.Threshold {
			b.openedAt = now
			b.transition(Open)
		}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}
