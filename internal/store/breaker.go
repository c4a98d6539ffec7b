package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed: calls flow normally
	StateClosed CircuitState = iota
	// StateOpen: calls fail fast
	StateOpen
	// StateHalfOpen: one probe call is let through
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker is open.
	ErrCircuitOpen = errors.New("storage circuit breaker is open")

	// ErrTooManyRequests is returned when a half-open breaker already has a probe in flight.
	ErrTooManyRequests = errors.New("too many requests while circuit is half-open")
)

// CircuitBreaker trips after maxFailures consecutive failures and fails fast
// until timeout has passed since the last one.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures uint32
	timeout     time.Duration
	maxHalfOpen uint32

	state            CircuitState
	failures         uint32
	lastFailureTime  time.Time
	halfOpenRequests uint32

	now func() time.Time
}

func NewCircuitBreaker(maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		maxHalfOpen: 1,
		state:       StateClosed,
		now:         time.Now,
	}
}

// Execute runs fn under breaker protection. The lock is not held while fn
// runs, so long transfers do not serialise.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) <= cb.timeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenRequests = 0
		slog.Info("storage circuit half-open", slog.Duration("timeout", cb.timeout))
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.maxHalfOpen {
			cb.mu.Unlock()
			return ErrTooManyRequests
		}
		cb.halfOpenRequests++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if errors.Is(err, errSourceFailed) {
		// Says nothing about the backend either way.
		if cb.state == StateHalfOpen && cb.halfOpenRequests > 0 {
			cb.halfOpenRequests--
		}
		return err
	}
	if countsAsFailure(err) {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return err
}

func (cb *CircuitBreaker) onSuccess() {
	if cb.state == StateHalfOpen {
		slog.Info("storage circuit closed")
	}
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenRequests = 0
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailureTime = cb.now()

	if (cb.failures >= cb.maxFailures || cb.state == StateHalfOpen) && cb.state != StateOpen {
		cb.state = StateOpen
		slog.Warn("storage circuit opened",
			slog.Any("failures", cb.failures),
			slog.Duration("timeout", cb.timeout),
		)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Caller mistakes and cancelled requests say nothing about backend health.
func countsAsFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidName):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// errSourceFailed marks a Put that failed because the caller's reader did:
// an oversized, stalled or truncated request body.
var errSourceFailed = errors.New("store: source read failed")

// sourceReader remembers the first non-EOF error returned by the upload body.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

// Guarded wraps a remote Backend with a CircuitBreaker so an unreachable
// object store fails requests fast instead of tying up connections.
type Guarded struct {
	Backend
	cb *CircuitBreaker
}

func NewGuarded(b Backend, cb *CircuitBreaker) *Guarded {
	return &Guarded{Backend: b, cb: cb}
}

// Put counts only backend-side failures against the breaker. When the body
// itself fails to read, the backend's error is still returned to the caller.
func (g *Guarded) Put(ctx context.Context, name string, r io.Reader, contentType string) (Info, error) {
	src := &sourceReader{r: r}
	var (
		info   Info
		putErr error
	)
	err := g.cb.Execute(func() error {
		info, putErr = g.Backend.Put(ctx, name, src, contentType)
		if putErr != nil && src.err != nil {
			return errSourceFailed
		}
		return putErr
	})
	if putErr != nil {
		return info, putErr
	}
	return info, err
}

func (g *Guarded) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	var (
		rc   io.ReadCloser
		info Info
	)
	err := g.cb.Execute(func() error {
		var err error
		rc, info, err = g.Backend.Open(ctx, name)
		return err
	})
	return rc, info, err
}

// Ping bypasses the breaker so health checks see the real backend state.
func (g *Guarded) Ping(ctx context.Context) error {
	return g.Backend.Ping(ctx)
}

// Breaker exposes the breaker for health reporting.
func (g *Guarded) Breaker() *CircuitBreaker {
	return g.cb
}
