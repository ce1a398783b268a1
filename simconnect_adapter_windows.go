package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	sim "github.com/lian/msfs2020-go/simconnect"
)

// simDataStaleAfter bounds how old the cached dispatch may be before
// NextSample reports an error instead of repeating it.
const simDataStaleAfter = 10 * time.Second

// SimConnectAdapter polls MSFS through SimConnect. All SimConnect calls run
// on one locked OS thread; NextSample only reads the cached result.
type SimConnectAdapter struct {
	mu         sync.RWMutex
	sc         *sim.SimConnect
	latest     *TelemetrySample
	receivedAt time.Time
	paused     bool
	closed     bool
	stopCh     chan struct{}
	stopped    chan struct{}
}

type simReport struct {
	sim.RecvSimobjectDataByType

	Latitude    float64 `name:"PLANE LATITUDE" unit:"degrees"`
	Longitude   float64 `name:"PLANE LONGITUDE" unit:"degrees"`
	Altitude    float64 `name:"PLANE ALTITUDE" unit:"feet"`
	AltitudeAGL float64 `name:"PLANE ALT ABOVE GROUND" unit:"feet"`
	IAS         float64 `name:"AIRSPEED INDICATED" unit:"knots"`
	GS          float64 `name:"GROUND VELOCITY" unit:"knots"`

	Eng1Combustion float64 `name:"GENERAL ENG COMBUSTION:1" unit:"Bool"`
	Eng2Combustion float64 `name:"GENERAL ENG COMBUSTION:2" unit:"Bool"`
	Eng3Combustion float64 `name:"GENERAL ENG COMBUSTION:3" unit:"Bool"`
	Eng4Combustion float64 `name:"GENERAL ENG COMBUSTION:4" unit:"Bool"`

	OnGround       float64 `name:"SIM ON GROUND" unit:"Bool"`
	SimulationRate float64 `name:"SIMULATION RATE" unit:"number"`

	// Strings go last: the 256-byte arrays would misalign the float64s.
	Title [256]byte `name:"TITLE" unit:""`
	ATCID [256]byte `name:"ATC ID" unit:""`
}

func NewSimConnectAdapter() SampleSource {
	return &SimConnectAdapter{}
}

func (s *SimConnectAdapter) Name() string {
	return "SimConnect"
}

func (s *SimConnectAdapter) Connect() error {
	s.mu.Lock()
	s.latest = nil
	s.receivedAt = time.Time{}
	s.paused = false
	s.closed = false
	s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})
	errCh := make(chan error, 1)

	go s.run(errCh)

	return <-errCh
}

func (s *SimConnectAdapter) Disconnect() error {
	s.mu.RLock()
	sc := s.sc
	s.mu.RUnlock()

	if sc != nil {
		close(s.stopCh)
		<-s.stopped
	}
	return nil
}

// run performs ALL SimConnect operations on a single locked OS thread.
func (s *SimConnectAdapter) run(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.stopped)

	sc, err := sim.New("Sim Logbook")
	if err != nil {
		errCh <- fmt.Errorf("simconnect open: %w", err)
		return
	}

	report := &simReport{}
	if err := sc.RegisterDataDefinition(report); err != nil {
		sc.Close()
		errCh <- fmt.Errorf("register data definition: %w", err)
		return
	}

	s.mu.Lock()
	s.sc = sc
	s.mu.Unlock()

	slog.Info("SimConnect connected")
	errCh <- nil

	defineID := sc.GetDefineID(report)

	requestTicker := time.NewTicker(time.Second)
	defer requestTicker.Stop()

	sc.RequestDataOnSimObjectType(0, defineID, 0, sim.SIMOBJECT_TYPE_USER)

	defer func() {
		sc.Close()
		s.mu.Lock()
		s.sc = nil
		s.latest = nil
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-requestTicker.C:
			sc.RequestDataOnSimObjectType(0, defineID, 0, sim.SIMOBJECT_TYPE_USER)
		default:
			ppData, r1, _ := sc.GetNextDispatch()
			if r1 < 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}

			recvInfo := *(*sim.Recv)(ppData)

			switch recvInfo.ID {
			case sim.RECV_ID_SIMOBJECT_DATA_BYTYPE:
				s.store((*simReport)(ppData), time.Now())
			case sim.RECV_ID_QUIT:
				slog.Info("SimConnect: simulator quit")
				s.mu.Lock()
				s.closed = true
				s.mu.Unlock()
				<-s.stopCh
				return
			case sim.RECV_ID_EXCEPTION:
				slog.Warn("SimConnect exception received")
			}
		}
	}
}

// store caches a dispatch. A paused sim (rate 0) keeps the last sample but
// still counts as fresh data.
func (s *SimConnectAdapter) store(r *simReport, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivedAt = now
	s.paused = r.SimulationRate == 0
	if s.paused {
		return
	}
	sample := sampleFromReport(r, now)
	s.latest = &sample
}

func sampleFromReport(r *simReport, at time.Time) TelemetrySample {
	return TelemetrySample{
		Timestamp:         at,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		Altitude:          r.Altitude,
		AltitudeAGL:       r.AltitudeAGL,
		GroundSpeed:       r.GS,
		IndicatedAirspeed: r.IAS,
		OnGround:          r.OnGround != 0,
		EngineRunning: r.Eng1Combustion != 0 || r.Eng2Combustion != 0 ||
			r.Eng3Combustion != 0 || r.Eng4Combustion != 0,
		Aircraft: AircraftInfo{
			Title: trimNullBytes(r.Title[:]),
			// SimConnect does not expose the ICAO type designator.
			ICAO:         "",
			Registration: trimNullBytes(r.ATCID[:]),
		},
	}
}

// trimNullBytes returns a string from a null-padded byte slice.
func trimNullBytes(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// NextSample returns the most recently cached sample.
func (s *SimConnectAdapter) NextSample() (TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return TelemetrySample{}, ErrSimClosed
	}
	if s.sc == nil {
		return TelemetrySample{}, ErrNotConnected
	}
	if !s.receivedAt.IsZero() && time.Since(s.receivedAt) > simDataStaleAfter {
		return TelemetrySample{}, fmt.Errorf("sim data stale since %s", s.receivedAt.Format(time.TimeOnly))
	}
	if s.paused {
		return TelemetrySample{}, ErrSimPaused
	}
	if s.latest == nil {
		return TelemetrySample{}, fmt.Errorf("waiting for sim data")
	}

	return *s.latest, nil
}
