package models

import "fmt"

// SensorInfo is the identity and settings record reported by a sensor
type SensorInfo struct {
	Name            string `json:"name"`
	HID             string `json:"hid"`
	Model           string `json:"model"`
	FirmwareVersion int    `json:"firmware_version"`
	ReadingInterval int    `json:"reading_interval"`
}

// Validate checks that every field a sensor must report is present
func (s *SensorInfo) Validate() error {
	if s == nil {
		return fmt.Errorf("sensor info is missing")
	}
	if s.Name == "" {
		return fmt.Errorf("sensor name is empty")
	}
	if s.HID == "" {
		return fmt.Errorf("sensor hid is empty")
	}
	if s.Model == "" {
		return fmt.Errorf("sensor model is empty")
	}
	if s.FirmwareVersion <= 0 {
		return fmt.Errorf("sensor firmware version %d is not positive", s.FirmwareVersion)
	}
	if s.ReadingInterval <= 0 {
		return fmt.Errorf("sensor reading interval %d is not positive", s.ReadingInterval)
	}
	return nil
}

// IsValid is Validate as a predicate, handy as a poll condition
func (s *SensorInfo) IsValid() bool {
	return s.Validate() == nil
}

// Equal reports whether both records carry the same values
func (s *SensorInfo) Equal(other *SensorInfo) bool {
	if s == nil || other == nil {
		return s == other
	}
	return *s == *other
}

// Copy returns a copy of the SensorInfo
func (s *SensorInfo) Copy() *SensorInfo {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (s *SensorInfo) String() string {
	return fmt.Sprintf("SensorInfo{name=%s, hid=%s, model=%s, firmware=%d, interval=%ds}",
		s.Name,
		s.HID,
		s.Model,
		s.FirmwareVersion,
		s.ReadingInterval)
}
