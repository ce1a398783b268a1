package main

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const metersPerNM = 1852

// Position is a latitude/longitude pair in degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String formats the position the way it is written to the logbook when no
// airport can be resolved.
func (p Position) String() string {
	return fmt.Sprintf("%.5f %.5f", p.Latitude, p.Longitude)
}

// Point converts p to an orb point, which is ordered longitude first.
func (p Position) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// DistanceNM returns the great-circle distance to o in nautical miles.
func (p Position) DistanceNM(o Position) float64 {
	return geo.DistanceHaversine(p.Point(), o.Point()) / metersPerNM
}

// Waypoint is a timestamped position on a flight. The zero value means the
// event has not happened.
type Waypoint struct {
	Time     time.Time `json:"time"`
	Position Position  `json:"position"`
}

func (w Waypoint) IsZero() bool {
	return w.Time.IsZero()
}

func waypointOf(s TelemetrySample) Waypoint {
	return Waypoint{Time: s.Timestamp, Position: s.Position()}
}
