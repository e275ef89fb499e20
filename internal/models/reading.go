package models

import (
	"fmt"
	"time"
)

// Reading is a single temperature sample returned by a sensor
type Reading struct {
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsValid checks the reading against the range a temperature sensor can report
func (r *Reading) IsValid() bool {
	const (
		minTemp = -40.0
		maxTemp = 125.0
	)

	if r == nil {
		return false
	}
	if r.Timestamp.IsZero() {
		return false
	}
	if r.Temperature < minTemp || r.Temperature > maxTemp {
		return false
	}
	return true
}

// get the reading as a string
func (r *Reading) String() string {
	return fmt.Sprintf("Timestamp: %s, Temperature: %.2f°C",
		r.Timestamp.Format(time.RFC3339),
		r.Temperature)
}

// NewReading creates a new Reading with the current timestamp
func NewReading(temperature float64) *Reading {
	return &Reading{
		Temperature: temperature,
		Timestamp:   time.Now(),
	}
}
