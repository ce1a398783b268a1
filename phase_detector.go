package main

import (
	"fmt"
	"time"
)

// FlightPhase is the tracker's view of where the aircraft is in a flight.
type FlightPhase int

const (
	PhasePreflight FlightPhase = iota
	PhaseTaxi
	PhaseTakeoff
	PhaseAirborne
	PhaseMaybeLanded
	PhaseTouchAndGo
	PhaseLanding
	PhaseShutdown
)

func (p FlightPhase) String() string {
	switch p {
	case PhasePreflight:
		return "Preflight"
	case PhaseTaxi:
		return "Taxi"
	case PhaseTakeoff:
		return "Takeoff"
	case PhaseAirborne:
		return "Airborne"
	case PhaseMaybeLanded:
		return "MaybeLanded"
	case PhaseTouchAndGo:
		return "TouchAndGo"
	case PhaseLanding:
		return "Landing"
	case PhaseShutdown:
		return "Shutdown"
	default:
		return fmt.Sprintf("FlightPhase(%d)", int(p))
	}
}

// IncompletePolicy decides what happens to a flight whose session ends
// before shutdown.
type IncompletePolicy string

const (
	PolicyDiscard IncompletePolicy = "discard"
	PolicyFlag    IncompletePolicy = "flag"
)

// abortRatio is the fraction of the rotation speed below which a takeoff
// roll counts as rejected.
const abortRatio = 0.8

// TrackerConfig holds the detector tunables. Durations are measured on the
// tracker's session clock, so they hold regardless of the sampling rate.
type TrackerConfig struct {
	GroundDebounce     time.Duration    `yaml:"ground_debounce"`
	EngineDebounce     time.Duration    `yaml:"engine_debounce"`
	RotationSpeedKt    float64          `yaml:"rotation_speed_kt"`
	TouchAndGoWindow   time.Duration    `yaml:"touch_and_go_window"`
	GapThreshold       time.Duration    `yaml:"gap_threshold"`
	TeleportDistanceNM float64          `yaml:"teleport_distance_nm"`
	IncompletePolicy   IncompletePolicy `yaml:"incomplete_policy"`
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		GroundDebounce:     time.Second,
		EngineDebounce:     2 * time.Second,
		RotationSpeedKt:    40,
		TouchAndGoWindow:   45 * time.Second,
		GapThreshold:       10 * time.Second,
		TeleportDistanceNM: 5,
		IncompletePolicy:   PolicyDiscard,
	}
}

func (c TrackerConfig) Validate() error {
	switch {
	case c.GroundDebounce < 0 || c.EngineDebounce < 0:
		return fmt.Errorf("debounce durations must not be negative")
	case c.RotationSpeedKt <= 0:
		return fmt.Errorf("rotation speed must be positive, got %.1f", c.RotationSpeedKt)
	case c.TouchAndGoWindow <= 0:
		return fmt.Errorf("touch-and-go window must be positive, got %s", c.TouchAndGoWindow)
	case c.GapThreshold <= 0:
		return fmt.Errorf("gap threshold must be positive, got %s", c.GapThreshold)
	case c.TeleportDistanceNM <= 0:
		return fmt.Errorf("teleport distance must be positive, got %.1f", c.TeleportDistanceNM)
	}
	switch c.IncompletePolicy {
	case PolicyDiscard, PolicyFlag:
	default:
		return fmt.Errorf("unknown incomplete policy %q", c.IncompletePolicy)
	}
	return nil
}

// debouncer holds a boolean that only flips once the raw value has disagreed
// with it for a whole hold period.
type debouncer struct {
	value   bool
	pending bool
	since   time.Duration
}

// update feeds one raw reading taken at now and reports whether the
// confirmed value flipped.
func (d *debouncer) update(raw bool, now, hold time.Duration) bool {
	if raw == d.value {
		d.pending = false
		return false
	}
	if !d.pending {
		d.pending = true
		d.since = now
	}
	if now-d.since >= hold {
		d.value = raw
		d.pending = false
		return true
	}
	return false
}

// restart drops a half-confirmed candidate. Used across discontinuities,
// where the time a reading has been held is unknown.
func (d *debouncer) restart() {
	d.pending = false
}

// Signals is the detector's debounced reading of a single sample.
type Signals struct {
	OnGround      bool // confirmed
	EngineRunning bool // confirmed
	Armed         bool // rotation speed reached on the current ground roll
}

// PhaseDetector turns raw samples into debounced signals and classifies the
// next phase. It keeps only O(1) history.
type PhaseDetector struct {
	cfg    TrackerConfig
	ground debouncer
	engine debouncer
	slowed bool
	armed  bool
	primed bool
}

func NewPhaseDetector(cfg TrackerConfig) PhaseDetector {
	return PhaseDetector{cfg: cfg}
}

// Observe updates the debouncers with s, read at session clock now.
func (d *PhaseDetector) Observe(s TelemetrySample, now time.Duration) Signals {
	if !d.primed {
		d.ground = debouncer{value: s.OnGround}
		d.engine = debouncer{value: s.EngineRunning}
		d.primed = true
	}

	if d.ground.update(s.OnGround, now, d.cfg.GroundDebounce) && d.ground.value {
		// A fresh touchdown at landing speed must slow down before another
		// roll can arm a takeoff.
		d.slowed = false
		d.armed = false
	}
	d.engine.update(s.EngineRunning, now, d.cfg.EngineDebounce)

	if d.ground.value && s.OnGround {
		switch {
		case s.GroundSpeed < d.abortSpeed():
			d.slowed = true
			d.armed = false
		case d.slowed && s.GroundSpeed >= d.cfg.RotationSpeedKt:
			d.armed = true
		}
	}

	return Signals{
		OnGround:      d.ground.value,
		EngineRunning: d.engine.value,
		Armed:         d.armed,
	}
}

// Restart forgets half-confirmed readings after a discontinuity.
func (d *PhaseDetector) Restart() {
	d.ground.restart()
	d.engine.restart()
}

// Reset returns the detector to its unprimed state for a new session.
func (d *PhaseDetector) Reset() {
	*d = PhaseDetector{cfg: d.cfg}
}

func (d *PhaseDetector) abortSpeed() float64 {
	return d.cfg.RotationSpeedKt * abortRatio
}

// Discontinuity reports whether cur follows prev across a simulator pause,
// slew or teleport rather than through normal flight.
func (d *PhaseDetector) Discontinuity(prev, cur TelemetrySample) bool {
	if cur.Timestamp.Sub(prev.Timestamp) > d.cfg.GapThreshold {
		return true
	}
	return prev.Position().DistanceNM(cur.Position()) > d.cfg.TeleportDistanceNM
}

// Next classifies the phase that follows phase given the current signals.
// sinceContact is the session time since ground contact was confirmed.
// Next is pure; the tracker applies the side effects of each step.
func (d *PhaseDetector) Next(phase FlightPhase, sig Signals, sinceContact time.Duration) FlightPhase {
	switch phase {
	case PhasePreflight:
		if sig.EngineRunning && sig.OnGround {
			return PhaseTaxi
		}
	case PhaseTaxi:
		if !sig.EngineRunning {
			return PhasePreflight
		}
		if !sig.OnGround && sig.Armed {
			return PhaseTakeoff
		}
	case PhaseTakeoff:
		return PhaseAirborne
	case PhaseAirborne:
		if sig.OnGround {
			return PhaseMaybeLanded
		}
	case PhaseMaybeLanded:
		switch {
		case !sig.EngineRunning:
			return PhaseLanding
		case !sig.OnGround && sinceContact <= d.cfg.TouchAndGoWindow:
			return PhaseTouchAndGo
		case sinceContact > d.cfg.TouchAndGoWindow:
			return PhaseLanding
		}
	case PhaseTouchAndGo:
		return PhaseAirborne
	case PhaseLanding:
		if !sig.EngineRunning {
			return PhaseShutdown
		}
		if !sig.OnGround {
			return PhaseTakeoff
		}
	case PhaseShutdown:
		return PhasePreflight
	}
	return phase
}
