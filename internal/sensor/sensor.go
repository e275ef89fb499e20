// Package sensor defines the remote operations a temperature sensor exposes.
package sensor

import (
	"context"

	"github.com/afroash/sensorcheck/internal/models"
)

// Replies and limits reported by the sensor firmware
const (
	RebootReply           = "rebooting, will be back in 3 seconds"
	FirmwareUpdateReply   = "updating firmware"
	FirmwareUpToDateReply = "already at latest firmware version"
	MaxFirmwareVersion    = 15
)

// Sensor is the set of remote operations a check can perform against a device
type Sensor interface {
	// Info returns the identity and settings record
	Info(ctx context.Context) (*models.SensorInfo, error)

	// Reading returns the most recent temperature reading in °C
	Reading(ctx context.Context) (float64, error)

	// Methods lists the remote methods the sensor supports
	Methods(ctx context.Context) ([]string, error)

	SetName(ctx context.Context, name string) error
	SetReadingInterval(ctx context.Context, seconds int) error
	ResetToFactory(ctx context.Context) error

	// UpdateFirmware requests an update and returns the sensor's reply text
	UpdateFirmware(ctx context.Context) (string, error)

	// Reboot requests a reboot and returns the sensor's reply text
	Reboot(ctx context.Context) (string, error)
}
