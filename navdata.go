package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

const (
	defaultNavdataCacheSize = 256
	// Airports without a bounding box hit are still matched when their
	// reference point is this close.
	navdataFallbackNM = 3.0
)

type airportMatch struct {
	ident string
	found bool
}

// Navdata resolves positions to airport identifiers using a Little Navmap
// style SQLite database (table airport with ident, laty, lonx and a bounding
// box per airport).
type Navdata struct {
	db    *sql.DB
	rtree bool
	cache *lru.Cache[Position, airportMatch]
}

// OpenNavdata opens the navdata database at path and makes sure the spatial
// index exists.
func OpenNavdata(path string) (*Navdata, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("navdata: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open navdata: %w", err)
	}

	var n int
	err = db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'airport'`).Scan(&n)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("inspect navdata: %w", err)
	}
	if n == 0 {
		db.Close()
		return nil, fmt.Errorf("navdata %s has no airport table", path)
	}

	cache, err := lru.New[Position, airportMatch](defaultNavdataCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create navdata cache: %w", err)
	}

	nd := &Navdata{db: db, cache: cache}
	if err := nd.buildIndex(); err != nil {
		slog.Warn("navdata spatial index unavailable, using table scan", "error", err)
	} else {
		nd.rtree = true
	}
	return nd, nil
}

func (n *Navdata) buildIndex() error {
	_, err := n.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS airport_coords USING rtree(
		airport_id, left_lonx, right_lonx, bottom_laty, top_laty
	)`)
	if err != nil {
		return fmt.Errorf("create airport_coords: %w", err)
	}
	_, err = n.db.Exec(`INSERT OR IGNORE INTO airport_coords
		SELECT airport_id, left_lonx, right_lonx, bottom_laty, top_laty FROM airport`)
	if err != nil {
		return fmt.Errorf("fill airport_coords: %w", err)
	}
	return nil
}

func (n *Navdata) Close() error {
	return n.db.Close()
}

// NearestAirport returns the identifier of the airport whose boundary
// contains the position, preferring the closest reference point when
// several overlap. Lookup failures are logged and reported as not found.
func (n *Navdata) NearestAirport(lat, lon float64) (string, bool) {
	key := Position{Latitude: lat, Longitude: lon}
	if m, ok := n.cache.Get(key); ok {
		return m.ident, m.found
	}

	m, err := n.lookup(key)
	if err != nil {
		slog.Warn("navdata lookup failed", "lat", lat, "lon", lon, "error", err)
		return "", false
	}
	n.cache.Add(key, m)
	return m.ident, m.found
}

func (n *Navdata) lookup(p Position) (airportMatch, error) {
	within := `SELECT ident, laty, lonx FROM airport
		WHERE left_lonx <= ? AND right_lonx >= ? AND bottom_laty <= ? AND top_laty >= ?`
	if n.rtree {
		within = `SELECT a.ident, a.laty, a.lonx FROM airport a
			JOIN airport_coords c ON c.airport_id = a.airport_id
			WHERE c.left_lonx <= ? AND c.right_lonx >= ? AND c.bottom_laty <= ? AND c.top_laty >= ?`
	}
	m, err := n.nearest(p, math.Inf(1), within, p.Longitude, p.Longitude, p.Latitude, p.Latitude)
	if err != nil || m.found {
		return m, err
	}

	dlat := navdataFallbackNM / 60
	dlon := dlat / math.Max(math.Cos(p.Latitude*math.Pi/180), 0.01)
	return n.nearest(p, navdataFallbackNM,
		`SELECT ident, laty, lonx FROM airport
			WHERE laty BETWEEN ? AND ? AND lonx BETWEEN ? AND ?`,
		p.Latitude-dlat, p.Latitude+dlat, p.Longitude-dlon, p.Longitude+dlon)
}

// nearest runs query and returns the closest candidate within limitNM.
func (n *Navdata) nearest(p Position, limitNM float64, query string, args ...any) (airportMatch, error) {
	rows, err := n.db.Query(query, args...)
	if err != nil {
		return airportMatch{}, fmt.Errorf("query airports: %w", err)
	}
	defer rows.Close()

	best := airportMatch{}
	bestDist := limitNM
	for rows.Next() {
		var ident string
		var ref Position
		if err := rows.Scan(&ident, &ref.Latitude, &ref.Longitude); err != nil {
			return airportMatch{}, fmt.Errorf("scan airport: %w", err)
		}
		d := p.DistanceNM(ref)
		if d < bestDist || (d == bestDist && best.found && ident < best.ident) {
			best = airportMatch{ident: ident, found: true}
			bestDist = d
		}
	}
	if err := rows.Err(); err != nil {
		return airportMatch{}, fmt.Errorf("read airports: %w", err)
	}
	return best, nil
}
