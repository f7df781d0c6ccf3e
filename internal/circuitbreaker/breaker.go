// Package circuitbreaker keeps the service from hammering an upstream
// that is already failing. Each key (one per upstream, e.g. the escrow
// gateway) carries its own closed → open → half-open circuit.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the circuit position for one key.
type State int

const (
	StateClosed   State = iota // requests flow
	StateOpen                  // requests rejected until the cooldown elapses
	StateHalfOpen              // one probe in flight, everything else rejected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "admincore",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker tracks consecutive failures per key. A key trips open at the
// failure threshold, rejects requests for the cooldown period, then lets
// a single probe through. The probe's outcome decides whether the
// circuit closes again or reopens.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	circuits map[string]*circuit
	notify   func(key string, from, to State)
}

// New builds a Breaker that opens after threshold consecutive failures
// and probes again after cooldown. Non-positive arguments fall back to
// 5 failures and 30 seconds.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		circuits:  make(map[string]*circuit),
	}
}

// OnTransition registers a callback fired (on its own goroutine) for
// every state change.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

// Allow reports whether a request to key may proceed. When an open
// circuit's cooldown has elapsed it moves to half-open and this call
// admits the probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok || c.state == StateClosed {
		return true
	}
	if c.state == StateHalfOpen {
		// A probe is already out; hold everything else back.
		return false
	}
	if time.Since(c.openedAt) < b.cooldown {
		return false
	}
	b.shift(key, c, StateHalfOpen)
	return true
}

// RecordSuccess clears the failure streak for key and, if a probe just
// succeeded, closes the circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return
	}
	c.failures = 0
	if c.state == StateHalfOpen {
		b.shift(key, c, StateClosed)
	}
}

// RecordFailure extends the failure streak for key. A failed probe
// reopens the circuit immediately; a closed circuit trips once the
// streak reaches the threshold.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	c.failures++

	switch {
	case c.state == StateHalfOpen:
		b.shift(key, c, StateOpen)
	case c.state == StateClosed && c.failures >= b.threshold:
		b.shift(key, c, StateOpen)
	}
}

// State returns the circuit position for key. Unknown keys are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return StateClosed
}

// shift moves a circuit to a new state. Caller holds b.mu.
func (b *Breaker) shift(key string, c *circuit, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if to == StateOpen {
		c.openedAt = time.Now()
	}
	transitionsTotal.WithLabelValues(key, from.String(), to.String()).Inc()
	if b.notify != nil {
		go b.notify(key, from, to)
	}
}
