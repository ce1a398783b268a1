package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	reconnectBaseDelay  = 5 * time.Second
	reconnectMaxBackoff = 60 * time.Second
	staleSourceTimeout  = 30 * time.Second
	pushBufferSize      = 64
)

// errExport marks failures of the logbook. They are the only errors that
// stop the ingestion loop.
var errExport = errors.New("export failed")

// FlightSink receives finalized flight records.
type FlightSink interface {
	Append(FlightRecord) error
}

// NewSampleSource picks the simulator adapter for simType.
func NewSampleSource(simType, xplaneAddr string) (SampleSource, error) {
	switch simType {
	case "xplane":
		return NewXPlaneAdapter(xplaneAddr), nil
	case "msfs":
		src := NewSimConnectAdapter()
		if src == nil {
			return nil, fmt.Errorf("SimConnect not available on this platform")
		}
		return src, nil
	case "auto":
		if src := NewSimConnectAdapter(); src != nil {
			return src, nil
		}
		return NewXPlaneAdapter(xplaneAddr), nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s", simType)
	}
}

// Ingestor owns the simulator connection and is the only goroutine that
// feeds the tracker.
type Ingestor struct {
	source   SampleSource
	tracker  *Tracker
	resolver AirportResolver
	sink     FlightSink
	metrics  *Metrics
	interval time.Duration

	warn        *rate.Limiter
	backoffBase time.Duration
	staleAfter  time.Duration
	pushed      chan TelemetrySample
}

// NewIngestor wires source to a fresh tracker. resolver may be nil.
func NewIngestor(source SampleSource, cfg Config, resolver AirportResolver, sink FlightSink, metrics *Metrics) *Ingestor {
	in := &Ingestor{
		source:      source,
		resolver:    resolver,
		sink:        sink,
		metrics:     metrics,
		interval:    cfg.PollInterval,
		warn:        rate.NewLimiter(rate.Every(10*time.Second), 3),
		backoffBase: reconnectBaseDelay,
		staleAfter:  staleSourceTimeout,
	}
	in.tracker = NewTracker(cfg.Tracker, TrackerHooks{
		OnTransition:    in.onTransition,
		OnDiscontinuity: in.onDiscontinuity,
		OnDiscard:       in.onDiscard,
		OnTouchAndGo:    in.onTouchAndGo,
	})
	return in
}

// backoff returns min(2^attempts * base, reconnectMaxBackoff).
func (in *Ingestor) backoff(attempts int) time.Duration {
	if attempts > 10 {
		return reconnectMaxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * in.backoffBase
	return min(d, reconnectMaxBackoff)
}

// Run connects, streams samples into the tracker and reconnects with
// backoff until ctx is cancelled. On exit the active flight is abandoned
// according to the incomplete policy. Only logbook failures are returned.
func (in *Ingestor) Run(ctx context.Context) (err error) {
	if push, ok := in.source.(PushSource); ok {
		in.pushed = make(chan TelemetrySample, pushBufferSize)
		push.OnSample(in.enqueue)
	}

	defer func() {
		if endErr := in.endSession("shutdown"); err == nil {
			err = endErr
		}
	}()

	attempts := 0
	for {
		connErr := in.source.Connect()
		if connErr == nil {
			attempts = 0
			in.metrics.Connected.Set(1)
			slog.Info("connected to simulator", "adapter", in.source.Name())

			streamErr := in.stream(ctx)
			in.source.Disconnect()
			in.metrics.Connected.Set(0)

			if errors.Is(streamErr, errExport) {
				return streamErr
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("simulator session ended", "adapter", in.source.Name(), "error", streamErr)
			if err := in.endSession("simulator disconnected"); err != nil {
				return err
			}
		} else {
			slog.Debug("connect failed", "adapter", in.source.Name(), "error", connErr)
		}

		delay := in.backoff(attempts)
		attempts++
		in.metrics.ReconnectsTotal.Inc()
		slog.Info("waiting to reconnect", "adapter", in.source.Name(), "delay", delay, "attempt", attempts)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (in *Ingestor) stream(ctx context.Context) error {
	if push, ok := in.source.(PushSource); ok {
		return in.streamPush(ctx, push)
	}
	if poll, ok := in.source.(PollingSource); ok {
		return in.streamPoll(ctx, poll)
	}
	return fmt.Errorf("adapter %s is neither polling nor push", in.source.Name())
}

func (in *Ingestor) streamPoll(ctx context.Context, src PollingSource) error {
	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	lastGood := time.Now()
	paused := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s, err := src.NextSample()
			if errors.Is(err, ErrSimClosed) {
				return err
			}
			// A pause keeps the session and the flight. The timestamp gap
			// on resume freezes the flight clock.
			if errors.Is(err, ErrSimPaused) {
				if !paused {
					slog.Info("simulator paused", "adapter", src.Name(), "phase", in.tracker.Phase())
					paused = true
				}
				lastGood = time.Now()
				continue
			}
			if paused {
				slog.Info("simulator resumed", "adapter", src.Name())
				paused = false
			}
			if err != nil {
				if time.Since(lastGood) > in.staleAfter {
					return fmt.Errorf("no telemetry for %s: %w", in.staleAfter, err)
				}
				slog.Debug("failed to get sample", "error", err)
				continue
			}
			lastGood = time.Now()
			if err := in.handle(s); err != nil {
				return err
			}
		}
	}
}

func (in *Ingestor) streamPush(ctx context.Context, src PushSource) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-src.Done():
			// Drain what the adapter delivered before it went away.
			for {
				select {
				case s := <-in.pushed:
					if err := in.handle(s); err != nil {
						return err
					}
				default:
					if err == nil {
						err = ErrSimClosed
					}
					return err
				}
			}
		case s := <-in.pushed:
			if err := in.handle(s); err != nil {
				return err
			}
		}
	}
}

// enqueue runs on the push adapter's goroutine.
func (in *Ingestor) enqueue(s TelemetrySample) {
	select {
	case in.pushed <- s:
	default:
		if in.warn.Allow() {
			slog.Warn("sample buffer full, dropping sample", "timestamp", s.Timestamp)
		}
	}
}

func (in *Ingestor) handle(s TelemetrySample) error {
	f, err := in.tracker.Process(s)
	if err != nil {
		in.metrics.SamplesTotal.WithLabelValues("rejected").Inc()
		if in.warn.Allow() {
			slog.Warn("sample rejected", "error", err)
		}
		return nil
	}
	in.metrics.SamplesTotal.WithLabelValues("accepted").Inc()
	in.metrics.Phase.Set(float64(in.tracker.Phase()))

	if f != nil {
		return in.export(f)
	}
	return nil
}

func (in *Ingestor) endSession(reason string) error {
	if f := in.tracker.Abandon(reason); f != nil {
		return in.export(f)
	}
	return nil
}

func (in *Ingestor) export(f *Flight) error {
	rec := AssembleRecord(f, in.resolver)
	if err := in.sink.Append(rec); err != nil {
		return fmt.Errorf("%w: flight %s: %w", errExport, f.ID, err)
	}

	outcome := "logged"
	if f.Incomplete {
		outcome = "incomplete"
	}
	in.metrics.FlightsTotal.WithLabelValues(outcome).Inc()
	slog.Info("flight logged",
		"id", rec.ID,
		"aircraft", rec.AircraftName,
		"departure", rec.Departure,
		"arrival", rec.Arrival,
		"touchAndGos", rec.TouchAndGoCount,
		"airborneSeconds", rec.AirborneDuration,
		"incomplete", f.Incomplete)
	return nil
}

func (in *Ingestor) onTransition(from, to FlightPhase, s TelemetrySample) {
	in.metrics.TransitionsTotal.WithLabelValues(to.String()).Inc()
	slog.Info("phase changed",
		"from", from.String(),
		"to", to.String(),
		"lat", s.Latitude,
		"lon", s.Longitude,
		"alt", s.Altitude,
		"gs", s.GroundSpeed)
}

func (in *Ingestor) onDiscontinuity(prev, cur TelemetrySample) {
	in.metrics.DiscontinuityTotal.Inc()
	slog.Info("telemetry discontinuity, not counting time across it",
		"gap", cur.Timestamp.Sub(prev.Timestamp),
		"jumpNM", prev.Position().DistanceNM(cur.Position()))
}

func (in *Ingestor) onDiscard(f *Flight, reason string) {
	in.metrics.FlightsTotal.WithLabelValues("discarded").Inc()
	slog.Info("flight discarded", "id", f.ID, "reason", reason)
}

func (in *Ingestor) onTouchAndGo(f *Flight, tg TouchAndGo) {
	in.metrics.TouchAndGosTotal.Inc()
	slog.Info("touch-and-go", "id", f.ID, "count", len(f.TouchAndGos), "lat", tg.Position.Latitude, "lon", tg.Position.Longitude)
}
