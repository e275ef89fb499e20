// internal/poll/poll_test.go
package poll

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeSleeper records requested delays instead of sleeping
type fakeSleeper struct {
	sleeps []time.Duration
}

func (f *fakeSleeper) Sleep(d time.Duration) {
	f.sleeps = append(f.sleeps, d)
}

func (f *fakeSleeper) total() time.Duration {
	var sum time.Duration
	for _, d := range f.sleeps {
		sum += d
	}
	return sum
}

// sequence returns a probe yielding values in order, repeating the last one
func sequence(values ...int) (func() (int, error), *int) {
	calls := 0
	return func() (int, error) {
		calls++
		if calls > len(values) {
			return values[len(values)-1], nil
		}
		return values[calls-1], nil
	}, &calls
}

func TestPoll_StopsOnFirstMatch(t *testing.T) {
	probe, calls := sequence(1, 2, 3, 4)
	sleeper := &fakeSleeper{}

	got, err := Poll(probe, func(x int) bool { return x == 3 }, 5, time.Second, WithSleeper(sleeper))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if got != 3 {
		t.Errorf("Poll() = %d, want 3", got)
	}
	if *calls != 3 {
		t.Errorf("probe calls = %d, want 3", *calls)
	}
	if len(sleeper.sleeps) != 2 {
		t.Errorf("sleeps = %d, want 2", len(sleeper.sleeps))
	}
}

func TestPoll_ExhaustedReturnsLastOutcome(t *testing.T) {
	calls := 0
	probe := func() (*string, error) {
		calls++
		return nil, nil
	}
	sleeper := &fakeSleeper{}

	got, err := Poll(probe, func(x *string) bool { return x != nil }, 3, time.Second, WithSleeper(sleeper))
	if err != nil {
		t.Fatalf("exhaustion should not be an error: %v", err)
	}
	if got != nil {
		t.Errorf("Poll() = %v, want nil", got)
	}
	if calls != 3 {
		t.Errorf("probe calls = %d, want 3", calls)
	}
}

func TestPoll_ExhaustedReturnsFinalAttempt(t *testing.T) {
	probe, calls := sequence(10, 20, 30, 40)

	got, err := Poll(probe, func(int) bool { return false }, 4, 0, WithSleeper(&fakeSleeper{}))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if got != 40 {
		t.Errorf("Poll() = %d, want outcome of attempt 4 (40)", got)
	}
	if *calls != 4 {
		t.Errorf("probe calls = %d, want 4", *calls)
	}
}

func TestPoll_SingleTryNeverSleeps(t *testing.T) {
	probe, calls := sequence(7)
	sleeper := &fakeSleeper{}
	var stats Stats

	got, err := Poll(probe, func(int) bool { return false }, 1, 5*time.Second,
		WithSleeper(sleeper), WithStats(&stats))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if got != 7 {
		t.Errorf("Poll() = %d, want 7", got)
	}
	if *calls != 1 {
		t.Errorf("probe calls = %d, want 1", *calls)
	}
	if len(sleeper.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", sleeper.sleeps)
	}
	if stats.Slept != 0 {
		t.Errorf("Stats.Slept = %v, want 0", stats.Slept)
	}
}

func TestPoll_DelayBetweenAttempts(t *testing.T) {
	probe, _ := sequence(0, 0, 0, 0, 1)
	sleeper := &fakeSleeper{}
	timeout := 1500 * time.Millisecond

	if _, err := Poll(probe, func(x int) bool { return x == 1 }, 10, timeout, WithSleeper(sleeper)); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	// 5 attempts means 4 gaps, and nothing before the first or after the match
	if len(sleeper.sleeps) != 4 {
		t.Fatalf("sleeps = %d, want 4", len(sleeper.sleeps))
	}
	for i, d := range sleeper.sleeps {
		if d < timeout {
			t.Errorf("sleep %d = %v, want at least %v", i, d, timeout)
		}
	}
	if sleeper.total() != 4*timeout {
		t.Errorf("total sleep = %v, want %v", sleeper.total(), 4*timeout)
	}
}

func TestPoll_ZeroTimeoutIsLegal(t *testing.T) {
	probe, calls := sequence(0, 0, 1)
	sleeper := &fakeSleeper{}

	got, err := Poll(probe, func(x int) bool { return x == 1 }, 3, 0, WithSleeper(sleeper))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if got != 1 || *calls != 3 {
		t.Errorf("Poll() = %d after %d calls, want 1 after 3", got, *calls)
	}
	if sleeper.total() != 0 {
		t.Errorf("total sleep = %v, want 0", sleeper.total())
	}
}

func TestPoll_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		tries   int
		timeout time.Duration
		wantErr error
	}{
		{"zero tries", 0, time.Second, ErrInvalidTries},
		{"negative tries", -3, time.Second, ErrInvalidTries},
		{"negative timeout", 3, -time.Second, ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			probe := func() (int, error) {
				calls++
				return 0, nil
			}

			_, err := Poll(probe, func(int) bool { return true }, tt.tries, tt.timeout, WithSleeper(&fakeSleeper{}))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Poll() error = %v, want %v", err, tt.wantErr)
			}
			if calls != 0 {
				t.Errorf("probe calls = %d, want 0", calls)
			}
		})
	}
}

func TestPoll_SwallowsTransientErrors(t *testing.T) {
	calls := 0
	probe := func() (int, error) {
		calls++
		if calls <= 2 {
			return 0, Transient(errors.New("malformed response"))
		}
		return 42, nil
	}
	var stats Stats

	got, err := Poll(probe, func(x int) bool { return x == 42 }, 5, time.Second,
		WithSleeper(&fakeSleeper{}), WithStats(&stats))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if got != 42 {
		t.Errorf("Poll() = %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("probe calls = %d, want 3", calls)
	}
	if stats.Swallowed != 2 {
		t.Errorf("Stats.Swallowed = %d, want 2", stats.Swallowed)
	}
	if stats.Attempts != 3 || !stats.Matched {
		t.Errorf("Stats = %+v, want 3 attempts and a match", stats)
	}
}

func TestPoll_NonTransientErrorPropagates(t *testing.T) {
	boom := errors.New("permission denied")
	calls := 0
	probe := func() (int, error) {
		calls++
		return 0, boom
	}

	_, err := Poll(probe, func(int) bool { return true }, 5, time.Second, WithSleeper(&fakeSleeper{}))
	if !errors.Is(err, boom) {
		t.Errorf("Poll() error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("probe calls = %d, want 1", calls)
	}
}

func TestPoll_PropagatePolicy(t *testing.T) {
	calls := 0
	probe := func() (int, error) {
		calls++
		return 0, Transient(errors.New("connection reset"))
	}

	_, err := Poll(probe, func(int) bool { return true }, 5, time.Second,
		WithSleeper(&fakeSleeper{}), WithPolicy(Propagate))
	if !IsTransient(err) {
		t.Errorf("Poll() error = %v, want the transient probe error", err)
	}
	if calls != 1 {
		t.Errorf("probe calls = %d, want 1", calls)
	}
}

func TestPoll_FinalAttemptErrorReturned(t *testing.T) {
	calls := 0
	probe := func() (int, error) {
		calls++
		if calls == 1 {
			return 5, nil
		}
		return 99, Transient(errors.New("sensor offline"))
	}

	got, err := Poll(probe, func(int) bool { return false }, 3, time.Second, WithSleeper(&fakeSleeper{}))
	if err == nil {
		t.Fatal("expected the final transient error")
	}
	if !IsTransient(err) {
		t.Errorf("error should stay transient: %v", err)
	}
	if got != 0 {
		t.Errorf("Poll() = %d, want zero value (earlier outcomes are not returned)", got)
	}
	if calls != 3 {
		t.Errorf("probe calls = %d, want 3", calls)
	}
}

func TestPoll_CustomClassifier(t *testing.T) {
	retryable := errors.New("busy")
	calls := 0
	probe := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, retryable
		}
		return 1, nil
	}

	got, err := Poll(probe, func(x int) bool { return x == 1 }, 3, 0,
		WithSleeper(&fakeSleeper{}),
		WithClassifier(func(err error) bool { return errors.Is(err, retryable) }))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if got != 1 {
		t.Errorf("Poll() = %d, want 1", got)
	}
}

func TestPoll_AttemptBounds(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("tries=%d", n), func(t *testing.T) {
			probe, calls := sequence(0)
			_, err := Poll(probe, func(int) bool { return false }, n, time.Millisecond, WithSleeper(&fakeSleeper{}))
			if err != nil {
				t.Fatalf("Poll failed: %v", err)
			}
			if *calls != n {
				t.Errorf("probe calls = %d, want %d", *calls, n)
			}
		})
	}
}

func TestTransient(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}

	base := errors.New("decode failed")
	err := Transient(base)
	if !IsTransient(err) {
		t.Error("wrapped error should be transient")
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should still match the cause")
	}
	if err.Error() != "decode failed" {
		t.Errorf("Error() = %q, want %q", err.Error(), "decode failed")
	}

	wrapped := fmt.Errorf("get_info: %w", err)
	if !IsTransient(wrapped) {
		t.Error("transient marker should survive further wrapping")
	}
	if IsTransient(base) {
		t.Error("unmarked error should not be transient")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"", SwallowTransient, false},
		{"swallow-transient", SwallowTransient, false},
		{"propagate", Propagate, false},
		{"ignore", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParsePolicy(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
