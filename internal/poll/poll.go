// Package poll repeatedly invokes a probe until its result satisfies a
// predicate or a fixed number of attempts is used up.
//
// It is used to wait out effects that a device does not make visible
// immediately, such as a reboot completing or a firmware version increment.
package poll

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Policy selects what happens when a probe returns an error
type Policy int

const (
	// SwallowTransient treats transient probe errors as a non-matching
	// attempt and keeps polling. All other errors abort the poll.
	SwallowTransient Policy = iota

	// Propagate aborts the poll on any probe error
	Propagate
)

func (p Policy) String() string {
	switch p {
	case SwallowTransient:
		return "swallow-transient"
	case Propagate:
		return "propagate"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a configuration string to a Policy.
// An empty string selects SwallowTransient.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "swallow-transient":
		return SwallowTransient, nil
	case "propagate":
		return Propagate, nil
	default:
		return 0, fmt.Errorf("unknown poll policy %q", s)
	}
}

// Sleeper suspends the caller between attempts
type Sleeper interface {
	Sleep(d time.Duration)
}

// SleeperFunc adapts a function to the Sleeper interface
type SleeperFunc func(d time.Duration)

func (f SleeperFunc) Sleep(d time.Duration) {
	f(d)
}

// Stats describes what a single Poll call did
type Stats struct {
	Attempts  int
	Swallowed int
	Slept     time.Duration
	Matched   bool
}

type options struct {
	policy    Policy
	transient func(error) bool
	sleeper   Sleeper
	logger    zerolog.Logger
	stats     *Stats
}

// Option configures a Poll call
type Option func(*options)

// WithPolicy sets the probe error policy (default SwallowTransient)
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithClassifier replaces IsTransient as the test for swallowable errors
func WithClassifier(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.transient = fn
		}
	}
}

// WithSleeper replaces time.Sleep, mainly so tests can use a fake clock
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleeper = s
		}
	}
}

// WithLogger logs each attempt at debug level
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStats fills s when Poll returns
func WithStats(s *Stats) Option {
	return func(o *options) {
		o.stats = s
	}
}

// Poll invokes probe up to tries times, sleeping timeout between attempts,
// and returns the first outcome for which predicate is true.
//
// When no outcome matches, the outcome of the final attempt is returned with
// a nil error; callers check its content themselves. A probe error either
// aborts the poll or is swallowed depending on the Policy. If the final
// attempt ends in a swallowed error there is no outcome, and Poll returns the
// zero value together with that error.
func Poll[T any](probe func() (T, error), predicate func(T) bool, tries int, timeout time.Duration, opts ...Option) (T, error) {
	var zero T

	o := options{
		policy:    SwallowTransient,
		transient: IsTransient,
		sleeper:   SleeperFunc(time.Sleep),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var stats Stats
	if o.stats != nil {
		defer func() { *o.stats = stats }()
	}

	if tries <= 0 {
		return zero, fmt.Errorf("%w: got %d", ErrInvalidTries, tries)
	}
	if timeout < 0 {
		return zero, fmt.Errorf("%w: got %s", ErrInvalidTimeout, timeout)
	}

	var (
		outcome T
		lastErr error
	)
	for attempt := 1; ; attempt++ {
		stats.Attempts = attempt
		outcome, lastErr = probe()

		if lastErr != nil {
			if o.policy == Propagate || !o.transient(lastErr) {
				o.logger.Debug().Err(lastErr).Int("attempt", attempt).Msg("probe failed, aborting poll")
				return zero, lastErr
			}
			stats.Swallowed++
			o.logger.Debug().Err(lastErr).Int("attempt", attempt).Int("tries", tries).Msg("probe failed, retrying")
			outcome = zero
		} else if predicate(outcome) {
			stats.Matched = true
			o.logger.Debug().Int("attempt", attempt).Msg("poll condition met")
			return outcome, nil
		}

		if attempt >= tries {
			break
		}
		o.sleeper.Sleep(timeout)
		stats.Slept += timeout
	}

	if lastErr != nil {
		return zero, fmt.Errorf("attempt %d/%d: %w", tries, tries, lastErr)
	}
	o.logger.Debug().Int("tries", tries).Msg("poll attempts exhausted")
	return outcome, nil
}
