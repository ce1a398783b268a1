package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// xplanePluginAddr is where the logbook plugin inside X-Plane listens.
const xplanePluginAddr = "127.0.0.1:52000"

// XPlaneAdapter is a push source fed by the X-Plane logbook plugin. The
// plugin writes one record per flight loop over TCP:
//
//	lat=51.47,lon=-0.46,alt=83,agl=0,gs=0,ias=0,icao=B738,name=Boeing 737-800,reg=G-ABCD,engine_on=true,on_ground=true\r\n
//
// agl, ias and the aircraft fields are optional. An optional ts field
// carries the sim time in unix milliseconds; without it the receive time is
// used.
type XPlaneAdapter struct {
	addr string

	mu      sync.Mutex
	conn    net.Conn
	handler func(TelemetrySample)
	done    chan error
	stopped chan struct{}
	now     func() time.Time
	warn    *rate.Limiter
}

func NewXPlaneAdapter(addr string) *XPlaneAdapter {
	if addr == "" {
		addr = xplanePluginAddr
	}
	return &XPlaneAdapter{
		addr: addr,
		done: make(chan error, 1),
		now:  time.Now,
		warn: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
}

func (x *XPlaneAdapter) Name() string {
	return "X-Plane"
}

func (x *XPlaneAdapter) OnSample(handler func(TelemetrySample)) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.handler = handler
}

// Done yields one value when the current connection ends.
func (x *XPlaneAdapter) Done() <-chan error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.done
}

func (x *XPlaneAdapter) Connect() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, err := net.DialTimeout("tcp", x.addr, 2*time.Second)
	if err != nil {
		return fmt.Errorf("dial plugin: %w", err)
	}
	x.conn = conn
	x.done = make(chan error, 1)
	x.stopped = make(chan struct{})

	go x.readLoop(conn, x.done, x.stopped)

	slog.Info("X-Plane plugin connected", "addr", x.addr)
	return nil
}

func (x *XPlaneAdapter) Disconnect() error {
	x.mu.Lock()
	conn := x.conn
	stopped := x.stopped
	x.conn = nil
	x.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-stopped
	return err
}

func (x *XPlaneAdapter) readLoop(conn net.Conn, done chan<- error, stopped chan<- struct{}) {
	defer close(stopped)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s, err := parseXPlaneRecord(line, x.now())
		if err != nil {
			if x.warn.Allow() {
				slog.Warn("dropping X-Plane record", "error", err)
			}
			continue
		}

		x.mu.Lock()
		handler := x.handler
		x.mu.Unlock()
		if handler != nil {
			handler(s)
		}
	}

	err := scanner.Err()
	if err == nil || errors.Is(err, net.ErrClosed) {
		err = ErrSimClosed
	}
	done <- err
}

var xplaneRecordKeys = map[string]bool{
	"lat": true, "lon": true, "alt": true, "agl": true, "gs": true, "ias": true,
	"icao": true, "name": true, "reg": true, "engine_on": true, "on_ground": true, "ts": true,
}

// parseXPlaneRecord decodes one plugin record. received is used when the
// record carries no timestamp.
func parseXPlaneRecord(line string, received time.Time) (TelemetrySample, error) {
	fields := make(map[string]string)
	last := ""
	for _, kv := range strings.Split(line, ",") {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if ok && xplaneRecordKeys[k] {
			fields[k] = strings.TrimSpace(v)
			last = k
			continue
		}
		// Aircraft names may contain commas.
		if last == "" {
			return TelemetrySample{}, fmt.Errorf("%w: unexpected field %q", ErrMalformedSample, kv)
		}
		fields[last] += "," + strings.TrimRight(kv, " ")
	}

	var err error
	num := func(key string, required bool) float64 {
		v, ok := fields[key]
		if !ok {
			if required && err == nil {
				err = fmt.Errorf("%w: missing %s", ErrMalformedSample, key)
			}
			return 0
		}
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil && err == nil {
			err = fmt.Errorf("%w: %s: %w", ErrMalformedSample, key, perr)
		}
		return f
	}
	flag := func(key string) bool {
		v, ok := fields[key]
		if !ok {
			if err == nil {
				err = fmt.Errorf("%w: missing %s", ErrMalformedSample, key)
			}
			return false
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil && err == nil {
			err = fmt.Errorf("%w: %s: %w", ErrMalformedSample, key, perr)
		}
		return b
	}

	s := TelemetrySample{
		Timestamp:         received,
		Latitude:          num("lat", true),
		Longitude:         num("lon", true),
		Altitude:          num("alt", true),
		AltitudeAGL:       num("agl", false),
		GroundSpeed:       num("gs", true),
		IndicatedAirspeed: num("ias", false),
		EngineRunning:     flag("engine_on"),
		OnGround:          flag("on_ground"),
		Aircraft: AircraftInfo{
			Title:        fields["name"],
			ICAO:         fields["icao"],
			Registration: fields["reg"],
		},
	}
	if ts, ok := fields["ts"]; ok {
		ms, perr := strconv.ParseInt(ts, 10, 64)
		if perr != nil && err == nil {
			err = fmt.Errorf("%w: ts: %w", ErrMalformedSample, perr)
		}
		s.Timestamp = time.UnixMilli(ms).UTC()
	}
	if err != nil {
		return TelemetrySample{}, err
	}
	return s, nil
}
