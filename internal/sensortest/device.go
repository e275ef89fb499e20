package sensortest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/afroash/sensorcheck/internal/models"
	"github.com/afroash/sensorcheck/internal/poll"
	"github.com/afroash/sensorcheck/internal/sensor"
)

// ErrUnavailable is returned while the device is rebooting or updating
var ErrUnavailable = poll.Transient(errors.New("sensor unavailable"))

// Compile-time interface check
var _ sensor.Sensor = (*Device)(nil)

// DefaultFactory is the factory record of a new Device
var DefaultFactory = models.SensorInfo{
	Name:            "temperature-sensor",
	HID:             "a3f1c9d2e7b4",
	Model:           "TS-100",
	FirmwareVersion: 10,
	ReadingInterval: 5,
}

// Device is an in-memory temperature sensor. It goes away for a while after
// a reboot, a firmware update or a factory reset, and produces a new
// temperature once per reading interval.
type Device struct {
	mu               sync.Mutex
	now              func() time.Time
	factory          models.SensorInfo
	info             models.SensorInfo
	epoch            time.Time
	unavailableUntil time.Time
	rebootDuration   time.Duration
	updateDuration   time.Duration
	calls            map[string]int
}

// DeviceOption configures a Device
type DeviceOption func(*Device)

// WithClock makes the device read time from now
func WithClock(now func() time.Time) DeviceOption {
	return func(d *Device) {
		d.now = now
	}
}

// WithFactory overrides the factory record
func WithFactory(info models.SensorInfo) DeviceOption {
	return func(d *Device) {
		d.factory = info
	}
}

// WithRebootDuration sets how long reboot and factory reset keep the device away
func WithRebootDuration(dur time.Duration) DeviceOption {
	return func(d *Device) {
		d.rebootDuration = dur
	}
}

// WithUpdateDuration sets how long a firmware update keeps the device away
func WithUpdateDuration(dur time.Duration) DeviceOption {
	return func(d *Device) {
		d.updateDuration = dur
	}
}

// NewDevice creates a device in its factory state
func NewDevice(opts ...DeviceOption) *Device {
	d := &Device{
		now:            time.Now,
		factory:        DefaultFactory,
		rebootDuration: 3 * time.Second,
		updateDuration: 2 * time.Second,
		calls:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.info = d.factory
	d.epoch = d.now()
	return d
}

// Calls returns how many times method was invoked, including failed calls
func (d *Device) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// Available reports whether the device currently answers requests
func (d *Device) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.availableLocked()
}

func (d *Device) availableLocked() bool {
	return !d.now().Before(d.unavailableUntil)
}

// begin records a call and fails if the device is away. Caller holds mu.
func (d *Device) begin(method string) error {
	d.calls[method]++
	if !d.availableLocked() {
		return ErrUnavailable
	}
	return nil
}

func (d *Device) goAway(dur time.Duration) {
	d.unavailableUntil = d.now().Add(dur)
}

// temperatureLocked derives the reading for the current interval window.
// Consecutive windows always produce different values.
func (d *Device) temperatureLocked() float64 {
	interval := time.Duration(d.info.ReadingInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	window := int64(d.now().Sub(d.epoch) / interval)
	return 20.0 + float64(window%40)*0.25
}

func (d *Device) Info(ctx context.Context) (*models.SensorInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(models.MethodGetInfo); err != nil {
		return nil, err
	}
	info := d.info
	return &info, nil
}

func (d *Device) Reading(ctx context.Context) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(models.MethodGetReading); err != nil {
		return 0, err
	}
	return d.temperatureLocked(), nil
}

func (d *Device) Methods(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(models.MethodGetMethods); err != nil {
		return nil, err
	}
	return []string{
		models.MethodGetInfo,
		models.MethodGetReading,
		models.MethodGetMethods,
		models.MethodSetName,
		models.MethodSetReadingInterval,
		models.MethodResetToFactory,
		models.MethodUpdateFirmware,
		models.MethodReboot,
	}, nil
}

func (d *Device) SetName(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(models.MethodSetName); err != nil {
		return err
	}
	if name == "" {
		return &sensor.RemoteError{
			Method:  models.MethodSetName,
			Code:    models.ErrorCodeInvalidParams,
			Message: "name must not be empty",
		}
	}
	d.info.Name = name
	return nil
}

func (d *Device) SetReadingInterval(ctx context.Context, seconds int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(models.MethodSetReadingInterval); err != nil {
		return err
	}
	if seconds < 1 {
		return &sensor.RemoteError{
			Method:  models.MethodSetReadingInterval,
			Code:    models.ErrorCodeInvalidParams,
			Message: "interval must be at least 1",
		}
	}
	d.info.ReadingInterval = seconds
	d.epoch = d.now()
	return nil
}

func (d *Device) ResetToFactory(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(models.MethodResetToFactory); err != nil {
		return err
	}
	// Firmware is not rolled back by a reset
	firmware := d.info.FirmwareVersion
	d.info = d.factory
	d.info.FirmwareVersion = firmware
	d.epoch = d.now()
	d.goAway(d.rebootDuration)
	return nil
}

func (d *Device) UpdateFirmware(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(models.MethodUpdateFirmware); err != nil {
		return "", err
	}
	if d.info.FirmwareVersion >= sensor.MaxFirmwareVersion {
		return sensor.FirmwareUpToDateReply, nil
	}
	d.info.FirmwareVersion++
	d.goAway(d.updateDuration)
	return sensor.FirmwareUpdateReply, nil
}

func (d *Device) Reboot(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(models.MethodReboot); err != nil {
		return "", err
	}
	d.goAway(d.rebootDuration)
	return sensor.RebootReply, nil
}
