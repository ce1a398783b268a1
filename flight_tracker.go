package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrOutOfOrder is returned for a sample older than the last accepted one.
var ErrOutOfOrder = errors.New("sample out of order")

// TouchAndGo is a ground contact followed by a renewed takeoff.
type TouchAndGo = Waypoint

// Flight accumulates one flight from engine start to shutdown. While the
// tracker owns it the flight is mutable; once returned by Process or Abandon
// the tracker never touches it again.
type Flight struct {
	ID               string        `json:"id"`
	Aircraft         AircraftInfo  `json:"aircraft"`
	Start            Waypoint      `json:"start"`
	End              time.Time     `json:"end"`
	Departure        Waypoint      `json:"departure"`
	Arrival          Waypoint      `json:"arrival"`
	TouchAndGos      []TouchAndGo  `json:"touchAndGos"`
	AirborneDuration time.Duration `json:"airborneDuration"`
	MaxAltitude      float64       `json:"maxAltitude"`
	MaxGroundSpeed   float64       `json:"maxGroundSpeed"`
	Incomplete       bool          `json:"incomplete"`
}

// Clone returns a deep copy of f.
func (f *Flight) Clone() *Flight {
	if f == nil {
		return nil
	}
	c := *f
	c.TouchAndGos = append([]TouchAndGo(nil), f.TouchAndGos...)
	return &c
}

func (f *Flight) observe(s TelemetrySample) {
	f.MaxAltitude = max(f.MaxAltitude, s.Altitude)
	f.MaxGroundSpeed = max(f.MaxGroundSpeed, s.GroundSpeed)
}

// TrackerHooks are optional observers of tracker activity. They are called
// synchronously from Process and must not call back into the tracker.
type TrackerHooks struct {
	OnTransition    func(from, to FlightPhase, s TelemetrySample)
	OnDiscontinuity func(prev, cur TelemetrySample)
	OnDiscard       func(f *Flight, reason string)
	OnTouchAndGo    func(f *Flight, tg TouchAndGo)
}

// TrackerState is a comparable snapshot of everything Process reads and
// writes.
type TrackerState struct {
	Phase    FlightPhase
	Clock    time.Duration
	Last     TelemetrySample
	HasLast  bool
	Flight   *Flight
	Contact  Waypoint
	Detector PhaseDetector
}

// Tracker is the flight-phase state machine. It is not safe for concurrent
// use: exactly one goroutine may call Process and Abandon.
type Tracker struct {
	cfg      TrackerConfig
	hooks    TrackerHooks
	newID    func() string
	detector PhaseDetector

	phase   FlightPhase
	clock   time.Duration // session time, frozen across discontinuities
	last    TelemetrySample
	hasLast bool
	flight  *Flight

	// Unresolved touchdown: set on confirmed ground contact, consumed by a
	// touch-and-go or a landing.
	contact      Waypoint
	contactClock time.Duration
}

func NewTracker(cfg TrackerConfig, hooks TrackerHooks) *Tracker {
	return &Tracker{
		cfg:      cfg,
		hooks:    hooks,
		newID:    func() string { return uuid.NewString() },
		detector: NewPhaseDetector(cfg),
		phase:    PhasePreflight,
	}
}

func (t *Tracker) Phase() FlightPhase {
	return t.phase
}

func (t *Tracker) State() TrackerState {
	return TrackerState{
		Phase:    t.phase,
		Clock:    t.clock,
		Last:     t.last,
		HasLast:  t.hasLast,
		Flight:   t.flight.Clone(),
		Contact:  t.contact,
		Detector: t.detector,
	}
}

// Process feeds one sample through the state machine. It returns the
// finalized flight on the sample that confirms shutdown and nil otherwise.
// Rejected samples leave the tracker untouched.
func (t *Tracker) Process(s TelemetrySample) (*Flight, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if t.hasLast && s.Timestamp.Before(t.last.Timestamp) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrOutOfOrder,
			s.Timestamp.Format(time.RFC3339Nano), t.last.Timestamp.Format(time.RFC3339Nano))
	}

	var done *Flight
	if t.flight != nil && aircraftChanged(t.flight.Aircraft, s.Aircraft) {
		done = t.Abandon("aircraft changed")
	}

	if t.hasLast {
		if t.detector.Discontinuity(t.last, s) {
			t.detector.Restart()
			if t.hooks.OnDiscontinuity != nil {
				t.hooks.OnDiscontinuity(t.last, s)
			}
		} else {
			dt := s.Timestamp.Sub(t.last.Timestamp)
			t.clock += dt
			if t.phase == PhaseAirborne && t.flight != nil {
				t.flight.AirborneDuration += dt
			}
		}
	}

	sig := t.detector.Observe(s, t.clock)
	if t.flight != nil {
		t.flight.observe(s)
	}

	// A single sample can walk several edges, e.g. Taxi -> Takeoff ->
	// Airborne on lift-off, or MaybeLanded -> Landing -> Shutdown ->
	// Preflight when the engine is cut right after touchdown.
	for range 4 {
		next := t.detector.Next(t.phase, sig, t.clock-t.contactClock)
		if next == t.phase {
			break
		}
		if f := t.transition(next, s); f != nil {
			done = f
		}
	}

	t.last = s
	t.hasLast = true
	return done, nil
}

func (t *Tracker) transition(next FlightPhase, s TelemetrySample) *Flight {
	from := t.phase
	t.phase = next
	if t.hooks.OnTransition != nil {
		t.hooks.OnTransition(from, next, s)
	}

	switch {
	case from == PhasePreflight && next == PhaseTaxi:
		t.flight = &Flight{
			ID:             t.newID(),
			Aircraft:       s.Aircraft,
			Start:          waypointOf(s),
			MaxAltitude:    s.Altitude,
			MaxGroundSpeed: s.GroundSpeed,
		}
	case from == PhaseTaxi && next == PhasePreflight:
		t.discard("engine shut down before takeoff")
	case from == PhaseTakeoff && next == PhaseAirborne:
		if t.flight.Departure.IsZero() {
			t.flight.Departure = waypointOf(s)
		}
		if !t.contact.IsZero() {
			// Stop-and-go: the touchdown was already classified as a
			// landing before the aircraft took off again.
			t.appendTouchAndGo()
			t.flight.Arrival = Waypoint{}
		}
	case from == PhaseAirborne && next == PhaseMaybeLanded:
		t.contact = waypointOf(s)
		t.contactClock = t.clock
	case from == PhaseMaybeLanded && next == PhaseTouchAndGo:
		t.appendTouchAndGo()
	case from == PhaseMaybeLanded && next == PhaseLanding:
		t.flight.Arrival = t.contact
	case next == PhaseShutdown:
		f := t.flight
		f.End = s.Timestamp
		t.flight = nil
		t.contact = Waypoint{}
		return f
	}
	return nil
}

// Abandon ends the current session: the simulator quit, the connection
// dropped, the aircraft was swapped or the logger is shutting down. An
// active flight is discarded, or returned flagged incomplete when the
// policy says so. The next sample starts a fresh session.
func (t *Tracker) Abandon(reason string) *Flight {
	var out *Flight
	if f := t.flight; f != nil {
		if t.cfg.IncompletePolicy == PolicyFlag {
			f.Incomplete = true
			f.End = t.last.Timestamp
			if f.Arrival.IsZero() && !t.contact.IsZero() {
				f.Arrival = t.contact
			}
			out = f
		} else {
			t.discard(reason)
		}
	}
	if t.phase != PhasePreflight && t.hooks.OnTransition != nil {
		t.hooks.OnTransition(t.phase, PhasePreflight, t.last)
	}

	t.phase = PhasePreflight
	t.flight = nil
	t.contact = Waypoint{}
	t.contactClock = 0
	t.clock = 0
	t.last = TelemetrySample{}
	t.hasLast = false
	t.detector.Reset()
	return out
}

func (t *Tracker) appendTouchAndGo() {
	t.flight.TouchAndGos = append(t.flight.TouchAndGos, t.contact)
	if t.hooks.OnTouchAndGo != nil {
		t.hooks.OnTouchAndGo(t.flight, t.contact)
	}
	t.contact = Waypoint{}
}

func (t *Tracker) discard(reason string) {
	if t.flight != nil && t.hooks.OnDiscard != nil {
		t.hooks.OnDiscard(t.flight, reason)
	}
	t.flight = nil
}

func aircraftChanged(a, b AircraftInfo) bool {
	if a.Title == "" || b.Title == "" {
		return false
	}
	if a.Title != b.Title {
		return true
	}
	return a.Registration != "" && b.Registration != "" && a.Registration != b.Registration
}
