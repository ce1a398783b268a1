package main

import (
	"strconv"
	"strings"
	"time"
)

// AirportResolver maps a position to the identifier of the nearest known
// airport.
type AirportResolver interface {
	NearestAirport(lat, lon float64) (string, bool)
}

// FlightRecord is a finalized flight formatted for the logbook.
type FlightRecord struct {
	ID               string
	AircraftName     string
	AircraftICAO     string
	Registration     string
	StartTime        string
	EndTime          string
	Departure        string
	DepartureTime    string
	Arrival          string
	ArrivalTime      string
	TotalDuration    string
	AirborneDuration string
	TouchAndGoCount  string
	TouchAndGoTimes  string
	MaxAltitude      string
	MaxGroundSpeed   string
	Incomplete       string
}

var logbookHeader = []string{
	"Flight ID",
	"Aircraft Name",
	"Aircraft ICAO",
	"Registration",
	"Start Time",
	"End Time",
	"Departure",
	"Departure Time",
	"Arrival",
	"Arrival Time",
	"Total Duration (s)",
	"Airborne Duration (s)",
	"Touch-and-Go Count",
	"Touch-and-Go Times",
	"Max Altitude (ft)",
	"Max Ground Speed (kt)",
	"Incomplete",
}

// Row returns the record's fields in logbookHeader order.
func (r FlightRecord) Row() []string {
	return []string{
		r.ID,
		r.AircraftName,
		r.AircraftICAO,
		r.Registration,
		r.StartTime,
		r.EndTime,
		r.Departure,
		r.DepartureTime,
		r.Arrival,
		r.ArrivalTime,
		r.TotalDuration,
		r.AirborneDuration,
		r.TouchAndGoCount,
		r.TouchAndGoTimes,
		r.MaxAltitude,
		r.MaxGroundSpeed,
		r.Incomplete,
	}
}

// AssembleRecord formats f for export. Departure and arrival are resolved to
// airport identifiers when resolver knows them and fall back to raw
// coordinates otherwise; resolver may be nil. The result depends only on
// its inputs.
func AssembleRecord(f *Flight, resolver AirportResolver) FlightRecord {
	times := make([]string, len(f.TouchAndGos))
	for i, tg := range f.TouchAndGos {
		times[i] = formatTime(tg.Time)
	}

	return FlightRecord{
		ID:               f.ID,
		AircraftName:     f.Aircraft.Title,
		AircraftICAO:     f.Aircraft.ICAO,
		Registration:     f.Aircraft.Registration,
		StartTime:        formatTime(f.Start.Time),
		EndTime:          formatTime(f.End),
		Departure:        resolvePlace(f.Departure, resolver),
		DepartureTime:    formatTime(f.Departure.Time),
		Arrival:          resolvePlace(f.Arrival, resolver),
		ArrivalTime:      formatTime(f.Arrival.Time),
		TotalDuration:    formatSeconds(f.End.Sub(f.Start.Time)),
		AirborneDuration: formatSeconds(f.AirborneDuration),
		TouchAndGoCount:  strconv.Itoa(len(f.TouchAndGos)),
		TouchAndGoTimes:  strings.Join(times, ";"),
		MaxAltitude:      strconv.FormatFloat(f.MaxAltitude, 'f', 0, 64),
		MaxGroundSpeed:   strconv.FormatFloat(f.MaxGroundSpeed, 'f', 0, 64),
		Incomplete:       strconv.FormatBool(f.Incomplete),
	}
}

func resolvePlace(w Waypoint, resolver AirportResolver) string {
	if w.IsZero() {
		return ""
	}
	if resolver != nil {
		if ident, ok := resolver.NearestAirport(w.Position.Latitude, w.Position.Longitude); ok {
			return ident
		}
	}
	return w.Position.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatInt(int64(d.Round(time.Second)/time.Second), 10)
}
