// Package circuit stops calls to a backend that keeps failing and lets a trial call
// through once the open timeout has passed.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned in place of a call while the breaker is open.
var ErrOpen = errors.New("backend unavailable: circuit open")

type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

type Config struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Ticket ties a verdict to the breaker state its call was admitted under. Each
// state change starts a new generation and verdicts from older ones are dropped.
type Ticket struct {
	gen uint64
}

type Breaker struct {
	config        Config
	state         State
	gen           uint64
	failures      int
	successes     int
	lastFailure   time.Time
	halfOpenCalls int
	mu            sync.Mutex

	now func() time.Time
}

func New(config Config) *Breaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = def.OpenTimeout
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return &Breaker{config: config, state: Closed, now: time.Now}
}

// Allow reports whether a call may proceed. Every allowed call must hand its
// ticket back through RecordSuccess, RecordFailure or Abandon.
func (b *Breaker) Allow() (Ticket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return Ticket{gen: b.gen}, true

	case Open:
		if b.now().Sub(b.lastFailure) >= b.config.OpenTimeout {
			b.transition(HalfOpen)
			return b.allowHalfOpen()
		}
		return Ticket{}, false

	case HalfOpen:
		return b.allowHalfOpen()
	}

	return Ticket{}, false
}

func (b *Breaker) allowHalfOpen() (Ticket, bool) {
	if b.halfOpenCalls < b.config.HalfOpenMaxCalls {
		b.halfOpenCalls++
		return Ticket{gen: b.gen}, true
	}
	return Ticket{}, false
}

// transition moves to state and starts a new generation. Caller holds mu.
func (b *Breaker) transition(state State) {
	b.state = state
	b.gen++
	b.failures = 0
	b.successes = 0
	b.halfOpenCalls = 0
}

func (b *Breaker) current(t Ticket) bool {
	return t.gen == b.gen
}

func (b *Breaker) releaseTrial() {
	if b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

func (b *Breaker) RecordSuccess(t Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.current(t) {
		return
	}

	switch b.state {
	case Closed:
		b.failures = 0

	case HalfOpen:
		b.successes++
		b.releaseTrial()
		if b.successes >= b.config.SuccessThreshold {
			b.transition(Closed)
		}
	}
}

func (b *Breaker) RecordFailure(t Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.current(t) {
		return
	}

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.lastFailure = b.now()
			b.transition(Open)
		}

	case HalfOpen:
		b.lastFailure = b.now()
		b.transition(Open)
	}
}

// Abandon gives back an allowed call that ended without a verdict on the backend.
func (b *Breaker) Abandon(t Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current(t) && b.state == HalfOpen {
		b.releaseTrial()
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transition(Closed)
}
