package main

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotConnected is returned when a source is read before Connect.
	ErrNotConnected = errors.New("simulator not connected")
	// ErrSimClosed is returned once the simulator has quit or dropped the connection.
	ErrSimClosed = errors.New("simulator connection closed")
	// ErrSimPaused is returned while the simulator is paused or in a menu.
	// The session stays open.
	ErrSimPaused = errors.New("simulator paused")
	// ErrMalformedSample marks a sample with missing or impossible fields.
	ErrMalformedSample = errors.New("malformed sample")
)

// AircraftInfo identifies the user aircraft loaded in the simulator.
type AircraftInfo struct {
	Title        string `json:"title"`
	ICAO         string `json:"icao"`
	Registration string `json:"registration"`
}

// TelemetrySample is one snapshot of simulator state. Samples are passed by
// value and never modified after the adapter builds them.
type TelemetrySample struct {
	Timestamp         time.Time    `json:"timestamp"`
	Latitude          float64      `json:"latitude"`    // degrees
	Longitude         float64      `json:"longitude"`   // degrees
	Altitude          float64      `json:"altitude"`    // feet MSL
	AltitudeAGL       float64      `json:"altitudeAgl"` // feet
	GroundSpeed       float64      `json:"groundSpeed"` // knots
	IndicatedAirspeed float64      `json:"ias"`         // knots
	OnGround          bool         `json:"onGround"`
	EngineRunning     bool         `json:"engineRunning"`
	Aircraft          AircraftInfo `json:"aircraft"`
}

// Position returns the sample's coordinates.
func (s TelemetrySample) Position() Position {
	return Position{Latitude: s.Latitude, Longitude: s.Longitude}
}

// Validate reports whether the sample can be fed to the tracker.
func (s TelemetrySample) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedSample)
	}
	for name, v := range map[string]float64{
		"latitude":    s.Latitude,
		"longitude":   s.Longitude,
		"altitude":    s.Altitude,
		"altitudeAgl": s.AltitudeAGL,
		"groundSpeed": s.GroundSpeed,
		"ias":         s.IndicatedAirspeed,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrMalformedSample, name, v)
		}
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: latitude %.4f out of range", ErrMalformedSample, s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: longitude %.4f out of range", ErrMalformedSample, s.Longitude)
	}
	if s.GroundSpeed < 0 {
		return fmt.Errorf("%w: negative ground speed %.1f", ErrMalformedSample, s.GroundSpeed)
	}
	return nil
}

// SampleSource abstracts a simulator connection (SimConnect, X-Plane plugin).
// Every source is either a PollingSource or a PushSource.
type SampleSource interface {
	Connect() error
	Disconnect() error
	Name() string
}

// PollingSource is read by the ingestion loop at a fixed interval.
type PollingSource interface {
	SampleSource
	NextSample() (TelemetrySample, error)
}

// PushSource delivers samples as the simulator produces them. The handler
// is called from the source's own goroutine; ErrSimClosed-style endings are
// reported through Done.
type PushSource interface {
	SampleSource
	OnSample(handler func(TelemetrySample))
	Done() <-chan error
}
