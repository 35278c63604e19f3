package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// OpenError is returned when a call is rejected because the circuit is open.
// Callers must supply a fallback or surface the rejection as a degraded result.
type OpenError struct {
	Service string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for service %q", e.Service)
}

// IsOpen reports whether err is a circuit-open rejection.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

// Config holds circuit breaker configuration
type Config struct {
	FailureRatePct int           // Failure percentage within the window that opens the circuit
	MinSamples     int           // Minimum outcomes in the window before the rate is evaluated
	Window         time.Duration // Rolling window length for outcome counters
	ResetTimeout   time.Duration // Time in OPEN before a half-open probe is allowed
	MaxBackoff     int           // Cap on reset timeout backoff, as a multiple of ResetTimeout
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureRatePct: 50,
		MinSamples:     10,
		Window:         60 * time.Second,
		ResetTimeout:   30 * time.Second,
		MaxBackoff:     4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureRatePct <= 0 {
		c.FailureRatePct = d.FailureRatePct
	}
	if c.MinSamples <= 0 {
		c.MinSamples = d.MinSamples
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// Breaker protects one external service with the circuit breaker pattern.
// Shared by every concurrent call to that service, so all state transitions
// happen under the mutex.
type Breaker struct {
	service string
	config  Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	windowStart time.Time
	openedAt    time.Time
	reopenCount int  // consecutive OPEN entries, drives reset timeout backoff
	probing     bool // a half-open trial call is in flight
	now         func() time.Time
}

// New creates a new circuit breaker for the named service
func New(service string, config Config) *Breaker {
	cfg := config.withDefaults()
	return &Breaker{
		service:     service,
		config:      cfg,
		state:       StateClosed,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// Call executes fn with circuit breaker protection. When the circuit is
// open the function is not invoked and an *OpenError is returned.
// Context cancellation during fn is recorded as neither success nor failure:
// an interrupted turn says nothing about provider health.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
		b.recordCancelled()
		return err
	}
	b.record(err == nil)
	return err
}

// allow decides whether a call may proceed, transitioning OPEN→HALF_OPEN
// when the reset timeout has elapsed. Exactly one probe call passes in
// HALF_OPEN; concurrent calls are rejected until the probe resolves.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindow()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout() {
			return &OpenError{Service: b.service}
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	default: // StateHalfOpen
		if b.probing {
			return &OpenError{Service: b.service}
		}
		b.probing = true
		return nil
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindow()

	if b.state == StateHalfOpen {
		b.probing = false
		if success {
			b.toClosed()
		} else {
			b.toOpen()
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}

	total := b.failures + b.successes
	if b.state == StateClosed && total >= b.config.MinSamples {
		if b.failures*100 >= b.config.FailureRatePct*total {
			b.toOpen()
		}
	}
}

// recordCancelled releases a half-open probe slot without judging the
// provider. Cancelled turns are interruptions, not provider failures.
func (b *Breaker) recordCancelled() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
}

func (b *Breaker) toOpen() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.reopenCount++
}

func (b *Breaker) toClosed() {
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.windowStart = b.now()
	b.reopenCount = 0
}

// rollWindow starts a fresh counting window once the configured window
// length has elapsed, so stale outcomes cannot keep a healthy circuit open.
func (b *Breaker) rollWindow() {
	now := b.now()
	if now.Sub(b.windowStart) >= b.config.Window {
		b.failures = 0
		b.successes = 0
		b.windowStart = now
	}
}

// resetTimeout backs off by doubling per consecutive reopen, capped at
// MaxBackoff times the configured base.
func (b *Breaker) resetTimeout() time.Duration {
	multiplier := 1
	for i := 1; i < b.reopenCount && multiplier < b.config.MaxBackoff; i++ {
		multiplier *= 2
	}
	if multiplier > b.config.MaxBackoff {
		multiplier = b.config.MaxBackoff
	}
	return time.Duration(multiplier) * b.config.ResetTimeout
}

// GetState returns the current state
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time view of one breaker.
type Stats struct {
	Service     string    `json:"service"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	WindowStart time.Time `json:"window_start"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
	ReopenCount int       `json:"reopen_count"`
}

// GetStats returns circuit breaker statistics
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Service:     b.service,
		State:       b.state.String(),
		Failures:    b.failures,
		Successes:   b.successes,
		WindowStart: b.windowStart,
		OpenedAt:    b.openedAt,
		ReopenCount: b.reopenCount,
	}
}

// Reset forces the breaker back to CLOSED with empty counters.
// Administrative override only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	b.toClosed()
}
