package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afroash/sensorcheck/internal/models"
	"github.com/afroash/sensorcheck/internal/sensor"
)

// Sanity sets a name and interval, then checks every info field and a reading
func Sanity(ctx context.Context, env *Env) error {
	const (
		name     = "new_name"
		interval = 10
	)

	env.Step(1, "Set sensor name and reading interval")
	if err := env.Sensor.SetName(ctx, name); err != nil {
		return fmt.Errorf("set sensor name: %w", err)
	}
	if err := env.Sensor.SetReadingInterval(ctx, interval); err != nil {
		return fmt.Errorf("set reading interval: %w", err)
	}

	env.Step(2, "Get sensor info")
	info, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}

	env.Step(3, "Validate sensor info fields")
	if err := info.Validate(); err != nil {
		return fmt.Errorf("sensor info is malformed: %w", err)
	}
	if info.Name != name {
		return fmt.Errorf("sensor name was not set correctly: got %q, want %q", info.Name, name)
	}
	if info.ReadingInterval != interval {
		return fmt.Errorf("sensor reading interval was not set correctly: got %d, want %d", info.ReadingInterval, interval)
	}

	env.Step(4, "Validate the sensor lists every method")
	methods, err := env.Sensor.Methods(ctx)
	if err != nil {
		return fmt.Errorf("get sensor methods: %w", err)
	}
	if missing := missingMethods(methods); len(missing) > 0 {
		return fmt.Errorf("sensor does not list methods %v", missing)
	}

	env.Step(5, "Get sensor reading")
	temperature, err := env.Sensor.Reading(ctx)
	if err != nil {
		return fmt.Errorf("get sensor reading: %w", err)
	}
	reading := models.NewReading(temperature)
	if !reading.IsValid() {
		return fmt.Errorf("sensor doesn't seem to register temperature: %s", reading)
	}

	env.Logger.Info().Float64("temperature", temperature).Msg("Sanity check passed")
	return nil
}

func missingMethods(methods []string) []string {
	have := make(map[string]bool, len(methods))
	for _, m := range methods {
		have[m] = true
	}
	var missing []string
	for _, m := range []string{
		models.MethodGetInfo,
		models.MethodGetReading,
		models.MethodGetMethods,
		models.MethodSetName,
		models.MethodSetReadingInterval,
		models.MethodResetToFactory,
		models.MethodUpdateFirmware,
		models.MethodReboot,
	} {
		if !have[m] {
			missing = append(missing, m)
		}
	}
	return missing
}

// Reboot checks that the sensor returns with unchanged info after a reboot
func Reboot(ctx context.Context, env *Env) error {
	env.Step(1, "Get original sensor info")
	before, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}

	env.Step(2, "Reboot sensor")
	reply, err := env.Sensor.Reboot(ctx)
	if err != nil {
		return fmt.Errorf("reboot sensor: %w", err)
	}
	if reply != sensor.RebootReply {
		return fmt.Errorf("sensor did not return proper text in response to reboot request: %q", reply)
	}

	env.Step(3, "Wait for sensor to come back online")
	after, err := awaitInfo(ctx, env)
	if err != nil {
		return err
	}

	env.Step(4, "Validate that info before and after reboot is equal")
	if !before.Equal(after) {
		return fmt.Errorf("sensor info after reboot doesn't match original info: before %s, after %s", before, after)
	}
	return nil
}

// SetName checks that a new name is reported back
func SetName(ctx context.Context, env *Env) error {
	const name = "new_name"

	env.Step(1, "Set sensor name to 'new_name'")
	if err := env.Sensor.SetName(ctx, name); err != nil {
		return fmt.Errorf("set sensor name: %w", err)
	}

	env.Step(2, "Get sensor info")
	info, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}

	env.Logger.Info().Str("name", info.Name).Msg("Validate that current sensor name matches the name set")
	if info.Name != name {
		return fmt.Errorf("sensor name was not set correctly: got %q, want %q", info.Name, name)
	}
	return nil
}

// SetReadingInterval checks that a new interval is reported and that a
// new reading shows up within it
func SetReadingInterval(ctx context.Context, env *Env) error {
	const interval = 1

	env.Step(1, "Set sensor reading interval to 1")
	if err := env.Sensor.SetReadingInterval(ctx, interval); err != nil {
		return fmt.Errorf("set reading interval: %w", err)
	}

	env.Step(2, "Get sensor info")
	info, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}

	env.Step(3, "Validate that sensor reading interval is set")
	if info.ReadingInterval != interval {
		return fmt.Errorf("sensor reading interval was not set correctly: got %d, want %d", info.ReadingInterval, interval)
	}

	env.Step(4, "Get sensor reading")
	baseline, err := env.Sensor.Reading(ctx)
	if err != nil {
		return fmt.Errorf("get sensor reading: %w", err)
	}

	env.Step(5, "Wait for the reading to change")
	next, err := waitFor(env,
		func() (float64, error) { return env.Sensor.Reading(ctx) },
		func(x float64) bool { return x != baseline },
		env.Poll.Tries, interval*time.Second,
	)
	if err != nil {
		return fmt.Errorf("get sensor reading after interval: %w", err)
	}

	env.Logger.Info().Float64("before", baseline).Float64("after", next).Msg("Validate that readings differ")
	if next == baseline {
		return fmt.Errorf("sensor reading interval is not working correctly: reading stayed at %.2f", baseline)
	}
	return nil
}

// UpdateFirmware steps the firmware up one version at a time to the maximum
// and checks that a further update is refused
func UpdateFirmware(ctx context.Context, env *Env) error {
	maxVersion := env.MaxFirmwareVersion

	env.Step(1, "Get original sensor firmware version")
	info, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}
	version := info.FirmwareVersion

	if version < maxVersion {
		for version < maxVersion-1 {
			env.Step(2, "Request firmware update")
			if _, err := env.Sensor.UpdateFirmware(ctx); err != nil {
				return fmt.Errorf("update firmware from %d: %w", version, err)
			}

			env.Step(3, "Get current sensor firmware version")
			updated, err := awaitInfo(ctx, env)
			if err != nil {
				return err
			}

			env.Logger.Info().Int("from", version).Int("to", updated.FirmwareVersion).Msg("Validate that firmware version went up by one")
			if updated.FirmwareVersion != version+1 {
				return fmt.Errorf("sensor firmware version was not updated correctly: got %d, want %d", updated.FirmwareVersion, version+1)
			}
			version = updated.FirmwareVersion
		}

		env.Step(6, "Update sensor to max firmware version")
		if _, err := env.Sensor.UpdateFirmware(ctx); err != nil {
			return fmt.Errorf("update firmware to max: %w", err)
		}

		env.Step(7, "Validate that sensor is at max firmware version")
		updated, err := awaitInfo(ctx, env)
		if err != nil {
			return err
		}
		if updated.FirmwareVersion != maxVersion {
			return fmt.Errorf("sensor firmware version not max: got %d, want %d", updated.FirmwareVersion, maxVersion)
		}
	} else {
		env.Logger.Info().Int("version", version).Msg("Sensor already at max firmware version")
	}

	env.Step(8, "Request another firmware update")
	reply, err := env.Sensor.UpdateFirmware(ctx)
	if err != nil {
		return fmt.Errorf("update firmware at max: %w", err)
	}

	env.Step(9, "Validate that sensor doesn't update and responds appropriately")
	if reply != sensor.FirmwareUpToDateReply {
		return fmt.Errorf("sensor did not refuse update at max firmware version: %q", reply)
	}

	env.Step(10, "Validate that firmware version doesn't change at maximum value")
	final, err := awaitInfo(ctx, env)
	if err != nil {
		return err
	}
	if final.FirmwareVersion != maxVersion {
		return fmt.Errorf("sensor firmware version changed past max: got %d, want %d", final.FirmwareVersion, maxVersion)
	}
	return nil
}

// ResetToFactory checks that a reset discards changed settings, keeps the
// device identity and is repeatable
func ResetToFactory(ctx context.Context, env *Env) error {
	const (
		scratchName     = "scratch_name"
		scratchInterval = 7
	)

	env.Step(1, "Get original sensor info")
	original, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}

	env.Step(2, "Change sensor name and reading interval")
	if err := env.Sensor.SetName(ctx, scratchName); err != nil {
		return fmt.Errorf("set sensor name: %w", err)
	}
	if err := env.Sensor.SetReadingInterval(ctx, scratchInterval); err != nil {
		return fmt.Errorf("set reading interval: %w", err)
	}

	env.Step(3, "Reset sensor to factory")
	if err := env.Sensor.ResetToFactory(ctx); err != nil {
		return fmt.Errorf("reset sensor: %w", err)
	}

	env.Step(4, "Wait for sensor to come back online")
	reset, err := awaitInfo(ctx, env)
	if err != nil {
		return err
	}

	env.Step(5, "Validate that changed settings were discarded")
	if reset.Name == scratchName {
		return fmt.Errorf("sensor name survived factory reset: %q", reset.Name)
	}
	if reset.ReadingInterval == scratchInterval {
		return fmt.Errorf("sensor reading interval survived factory reset: %d", reset.ReadingInterval)
	}
	if reset.HID != original.HID || reset.Model != original.Model {
		return fmt.Errorf("sensor identity changed on factory reset: before %s, after %s", original, reset)
	}

	env.Step(6, "Reset again and validate the result is the same")
	if err := env.Sensor.ResetToFactory(ctx); err != nil {
		return fmt.Errorf("reset sensor again: %w", err)
	}
	again, err := awaitInfo(ctx, env)
	if err != nil {
		return err
	}
	if !reset.Equal(again) {
		return fmt.Errorf("factory reset is not repeatable: first %s, second %s", reset, again)
	}
	return nil
}

// InvalidReadingInterval checks that interval 0 is rejected without effect
func InvalidReadingInterval(ctx context.Context, env *Env) error {
	env.Step(1, "Get original sensor info")
	before, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}

	env.Step(2, "Set sensor reading interval to 0")
	err = env.Sensor.SetReadingInterval(ctx, 0)
	if err := expectRejection(err, "reading interval 0"); err != nil {
		return err
	}

	env.Step(3, "Validate that reading interval is unchanged")
	after, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}
	if after.ReadingInterval != before.ReadingInterval {
		return fmt.Errorf("rejected reading interval changed the sensor: got %d, want %d", after.ReadingInterval, before.ReadingInterval)
	}
	return nil
}

// EmptyName checks that an empty name is rejected without effect
func EmptyName(ctx context.Context, env *Env) error {
	env.Step(1, "Get original sensor info")
	before, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}

	env.Step(2, "Set sensor name to an empty string")
	err = env.Sensor.SetName(ctx, "")
	if err := expectRejection(err, "an empty name"); err != nil {
		return err
	}

	env.Step(3, "Validate that sensor name is unchanged")
	after, err := env.Sensor.Info(ctx)
	if err != nil {
		return fmt.Errorf("get sensor info: %w", err)
	}
	if after.Name != before.Name {
		return fmt.Errorf("rejected name changed the sensor: got %q, want %q", after.Name, before.Name)
	}
	return nil
}

// expectRejection turns a setter result into a check failure unless the
// sensor explicitly rejected the request
func expectRejection(err error, what string) error {
	if err == nil {
		return fmt.Errorf("sensor accepted %s", what)
	}
	var remote *sensor.RemoteError
	if !errors.As(err, &remote) {
		return fmt.Errorf("sensor failed instead of rejecting %s: %w", what, err)
	}
	return nil
}
