package main

import (
	"sync"
	"time"
)

var testEpoch = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var testAircraft = AircraftInfo{
	Title:        "Boeing 737-800",
	ICAO:         "B738",
	Registration: "G-ABCD",
}

// sampleAt returns a sample sec seconds after testEpoch. The position
// creeps north so consecutive samples never look like a teleport.
func sampleAt(sec int, onGround, engine bool, gs, alt float64) TelemetrySample {
	agl := alt - 83
	if onGround {
		agl = 0
	}
	return TelemetrySample{
		Timestamp:         testEpoch.Add(time.Duration(sec) * time.Second),
		Latitude:          51.4775 + float64(sec)*0.0005,
		Longitude:         -0.4614,
		Altitude:          alt,
		AltitudeAGL:       agl,
		GroundSpeed:       gs,
		IndicatedAirspeed: gs,
		OnGround:          onGround,
		EngineRunning:     engine,
		Aircraft:          testAircraft,
	}
}

// flightScript builds a sample sequence one second apart.
type flightScript struct {
	sec     int
	samples []TelemetrySample
}

func (f *flightScript) ground(n int, engine bool, gs float64) *flightScript {
	for range n {
		f.samples = append(f.samples, sampleAt(f.sec, true, engine, gs, 83))
		f.sec++
	}
	return f
}

func (f *flightScript) air(n int, gs, alt float64) *flightScript {
	for range n {
		f.samples = append(f.samples, sampleAt(f.sec, false, true, gs, alt))
		f.sec++
	}
	return f
}

// departure scripts engine start, taxi, a takeoff roll and lift-off. With
// the default tunables the tracker is Airborne after the last sample
// (t+10s), having entered Taxi at t+3s.
func departure() *flightScript {
	return (&flightScript{}).
		ground(1, false, 0).
		ground(4, true, 0).
		ground(2, true, 15).
		ground(2, true, 60).
		air(2, 140, 500)
}

// MockPollingSource implements PollingSource for use in tests. It hands out
// its scripted samples in order and then reports the simulator closed. When
// pauseCalls is set it reports ErrSimPaused that many times before handing
// out sample pauseAt.
type MockPollingSource struct {
	mu              sync.Mutex
	name            string
	samples         []TelemetrySample
	next            int
	connected       bool
	connectErr      error
	sampleErr       error
	pauseAt         int
	pauseCalls      int
	connectCalls    int
	disconnectCalls int
}

func (m *MockPollingSource) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockPollingSource) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectCalls++
	m.connected = false
	return nil
}

func (m *MockPollingSource) Name() string { return m.name }

func (m *MockPollingSource) NextSample() (TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return TelemetrySample{}, ErrNotConnected
	}
	if m.sampleErr != nil {
		return TelemetrySample{}, m.sampleErr
	}
	if m.pauseCalls > 0 && m.next == m.pauseAt {
		m.pauseCalls--
		return TelemetrySample{}, ErrSimPaused
	}
	if m.next >= len(m.samples) {
		return TelemetrySample{}, ErrSimClosed
	}
	s := m.samples[m.next]
	m.next++
	return s, nil
}

func (m *MockPollingSource) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

func (m *MockPollingSource) SetSampleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleErr = err
}

func (m *MockPollingSource) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

func (m *MockPollingSource) DisconnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectCalls
}

// MockPushSource implements PushSource. Emit delivers a sample through the
// registered handler the way an adapter goroutine would; Close ends the
// current connection.
type MockPushSource struct {
	mu       sync.Mutex
	name     string
	handler  func(TelemetrySample)
	done     chan error
	connects int
}

func NewMockPushSource(name string) *MockPushSource {
	return &MockPushSource{name: name, done: make(chan error, 1)}
}

func (m *MockPushSource) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = make(chan error, 1)
	m.connects++
	return nil
}

func (m *MockPushSource) Disconnect() error { return nil }
func (m *MockPushSource) Name() string      { return m.name }

func (m *MockPushSource) OnSample(handler func(TelemetrySample)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *MockPushSource) Done() <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Ready reports whether the ingestor has registered its handler and
// connected n times.
func (m *MockPushSource) Ready(n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler != nil && m.connects >= n
}

func (m *MockPushSource) Emit(s TelemetrySample) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(s)
	}
}

func (m *MockPushSource) Close(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done <- err
}

// memorySink collects exported records.
type memorySink struct {
	mu      sync.Mutex
	records []FlightRecord
	err     error
}

func (m *memorySink) Append(r FlightRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memorySink) Records() []FlightRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FlightRecord(nil), m.records...)
}

// mapResolver resolves exact coordinates from a fixed table.
type mapResolver map[Position]string

func (m mapResolver) NearestAirport(lat, lon float64) (string, bool) {
	ident, ok := m[Position{Latitude: lat, Longitude: lon}]
	return ident, ok
}
