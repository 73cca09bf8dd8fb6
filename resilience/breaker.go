package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrOpen is returned when the circuit is open and calls are being shed.
var ErrOpen = errors.New("circuit open")

// State is the circuit state.
type State int32

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	}
	return "UNKNOWN"
}

// Config tunes the breaker.
type Config struct {
	// MaxFailures is how many consecutive failures open the circuit.
	MaxFailures int

	// Cooldown is how long the circuit stays open before a probe is allowed.
	Cooldown time.Duration

	// SuccessThreshold is how many consecutive probe successes close the
	// circuit again.
	SuccessThreshold int

	// MaxProbes limits concurrent calls while half-open.
	MaxProbes int

	// IsFailure classifies errors. When nil, every non-nil error counts
	// against the circuit. Use it to let caller mistakes (bad requests,
	// missing documents) pass through without tripping the breaker.
	IsFailure func(error) bool
}

func DefaultConfig() Config {
	return Config{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		SuccessThreshold: 3,
		MaxProbes:        1,
	}
}

// Breaker sheds calls to an upstream that keeps failing, probing it again
// after a cooldown.
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
}

func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{cfg: cfg}
}

// Execute runs fn under the breaker. When the circuit is open it returns
// ErrOpen without calling fn; otherwise fn's error is returned as-is and
// recorded against the circuit.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probing, err := b.allow()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(probing, err)
	return err
}

// allow decides whether a call may proceed. The bool reports whether the
// call is a half-open probe, which must be released in record.
func (b *Breaker) allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if time.Since(b.lastFailure) < b.cfg.Cooldown {
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.probes = 0
		fallthrough
	default: // StateHalfOpen
		if b.probes >= b.cfg.MaxProbes {
			return false, ErrOpen
		}
		b.probes++
		return true, nil
	}
}

func (b *Breaker) record(probing bool, err error) {
	failed := err != nil
	if failed && b.cfg.IsFailure != nil {
		failed = b.cfg.IsFailure(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if probing {
		b.probes--
	}

	if failed {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
			b.state = StateOpen
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the circuit closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.probes = 0
}
