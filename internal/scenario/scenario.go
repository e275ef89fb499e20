// Package scenario holds the remote-operation checks run against a sensor.
package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/sensorcheck/internal/models"
	"github.com/afroash/sensorcheck/internal/poll"
	"github.com/afroash/sensorcheck/internal/sensor"
)

// PollSettings controls how scenarios wait for asynchronous effects
type PollSettings struct {
	Tries   int
	Timeout time.Duration
	Policy  poll.Policy
}

// DefaultPollSettings waits up to ten seconds, one second apart
func DefaultPollSettings() PollSettings {
	return PollSettings{
		Tries:   10,
		Timeout: time.Second,
		Policy:  poll.SwallowTransient,
	}
}

// Env is what a scenario runs against
type Env struct {
	Sensor             sensor.Sensor
	Logger             zerolog.Logger
	Poll               PollSettings
	MaxFirmwareVersion int

	// Sleeper replaces real sleeping between poll attempts when set
	Sleeper poll.Sleeper

	// PollAttempts counts probe invocations made by the current scenario
	PollAttempts int
}

// NewEnv creates an Env with default poll settings
func NewEnv(s sensor.Sensor, logger zerolog.Logger) *Env {
	return &Env{
		Sensor:             s,
		Logger:             logger,
		Poll:               DefaultPollSettings(),
		MaxFirmwareVersion: sensor.MaxFirmwareVersion,
	}
}

// Step logs a numbered scenario step
func (e *Env) Step(n int, msg string) {
	e.Logger.Info().Int("step", n).Msg(msg)
}

// Scenario is a named check against a sensor
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) error
}

// All returns every scenario in run order
func All() []Scenario {
	return []Scenario{
		{Name: "sanity", Description: "Settings round-trip and every info field is well formed", Run: Sanity},
		{Name: "reboot", Description: "Sensor comes back after reboot with the same info", Run: Reboot},
		{Name: "set-name", Description: "New name is reported back", Run: SetName},
		{Name: "set-reading-interval", Description: "New interval is reported and readings change within it", Run: SetReadingInterval},
		{Name: "update-firmware", Description: "Firmware steps up by one until the maximum, then stays", Run: UpdateFirmware},
		{Name: "reset-to-factory", Description: "Reset discards changed settings and keeps identity", Run: ResetToFactory},
		{Name: "invalid-reading-interval", Description: "Interval 0 is rejected and nothing changes", Run: InvalidReadingInterval},
		{Name: "empty-name", Description: "Empty name is rejected and nothing changes", Run: EmptyName},
	}
}

// Lookup returns the named scenarios in the order given.
// With no names it returns All.
func Lookup(names ...string) ([]Scenario, error) {
	all := All()
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]Scenario, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}

	selected := make([]Scenario, 0, len(names))
	var unknown []string
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		selected = append(selected, s)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown scenario(s): %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}

// waitFor polls probe with the env's settings until predicate holds
func waitFor[T any](env *Env, probe func() (T, error), predicate func(T) bool, tries int, timeout time.Duration) (T, error) {
	var stats poll.Stats
	opts := []poll.Option{
		poll.WithPolicy(env.Poll.Policy),
		poll.WithLogger(env.Logger),
		poll.WithStats(&stats),
	}
	if env.Sleeper != nil {
		opts = append(opts, poll.WithSleeper(env.Sleeper))
	}

	outcome, err := poll.Poll(probe, predicate, tries, timeout, opts...)
	env.PollAttempts += stats.Attempts
	if stats.Swallowed > 0 {
		env.Logger.Debug().Int("swallowed", stats.Swallowed).Int("attempts", stats.Attempts).Msg("Tolerated transient sensor errors")
	}
	return outcome, err
}

// awaitInfo waits until the sensor answers with a well-formed info record
func awaitInfo(ctx context.Context, env *Env) (*models.SensorInfo, error) {
	info, err := waitFor(env,
		func() (*models.SensorInfo, error) { return env.Sensor.Info(ctx) },
		(*models.SensorInfo).IsValid,
		env.Poll.Tries, env.Poll.Timeout,
	)
	if err != nil {
		return nil, fmt.Errorf("sensor did not come back online: %w", err)
	}
	// exhausting the tries is not a poll error, so the last record may still be malformed
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("sensor did not come back online after %d tries: %w", env.Poll.Tries, err)
	}
	return info, nil
}
