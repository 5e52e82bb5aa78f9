// Package airports holds the airport reference list used by the map and the
// nearest-airport lookup.
package airports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mmcloughlin/geohash"

	"github.com/yegors/adsb-tracker/internal/geo"
)

const (
	cachePrecision = 6 // ~1.2 km cells
	cacheSize      = 4096
	cacheTTL       = 10 * time.Minute
)

// ErrNoAirports is returned by Nearest when the directory is empty
var ErrNoAirports = errors.New("no airports loaded")

// Airport is one reference airport
type Airport struct {
	ICAO      string  `json:"icao"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Elevation int     `json:"elevation"` // Feet
	Type      string  `json:"type"`
}

// Nearest is an airport together with its distance from a query point
type Nearest struct {
	Airport
	DistanceKm float64 `json:"distance_km"`
}

// Directory is an immutable airport list with a cached nearest lookup
type Directory struct {
	airports []Airport
	cache    *expirable.LRU[string, []int] // Candidate indexes per geohash cell
}

// New builds a directory from airports
func New(airports []Airport) *Directory {
	return &Directory{
		airports: airports,
		cache:    expirable.NewLRU[string, []int](cacheSize, nil, cacheTTL),
	}
}

// Load reads an OurAirports-format CSV and keeps the rows whose type is in
// types. An empty path yields the built-in list.
func Load(path string, types []string) (*Directory, error) {
	if path == "" {
		return New(builtin), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open airports database: %w", err)
	}
	defer file.Close()

	airports, err := parseCSV(file, types)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return New(airports), nil
}

func parseCSV(r io.Reader, types []string) ([]Airport, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"ident", "type", "name", "latitude_deg", "longitude_deg"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var airports []Airport
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		kind := field(record, "type")
		if len(types) > 0 && !slices.Contains(types, kind) {
			continue
		}

		lat, err := strconv.ParseFloat(field(record, "latitude_deg"), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(field(record, "longitude_deg"), 64)
		if err != nil {
			continue
		}

		// Elevation might be empty
		elevation := 0
		if v, err := strconv.ParseFloat(field(record, "elevation_ft"), 64); err == nil {
			elevation = int(v)
		}

		icao := field(record, "icao_code")
		if icao == "" {
			icao = field(record, "ident")
		}

		airports = append(airports, Airport{
			ICAO:      icao,
			Name:      field(record, "name"),
			City:      field(record, "municipality"),
			Lat:       lat,
			Lon:       lon,
			Elevation: elevation,
			Type:      kind,
		})
	}

	return airports, nil
}

// Len returns the number of airports
func (d *Directory) Len() int {
	return len(d.airports)
}

// Nearest returns the airport closest to (lat, lon). Each geohash cell
// caches the airports that can be nearest to some point inside it, so the
// answer is exact anywhere in the cell.
func (d *Directory) Nearest(lat, lon float64) (Nearest, error) {
	if len(d.airports) == 0 {
		return Nearest{}, ErrNoAirports
	}

	cell := geohash.EncodeWithPrecision(lat, lon, cachePrecision)
	candidates, ok := d.cache.Get(cell)
	if !ok {
		candidates = d.candidates(cell)
		d.cache.Add(cell, candidates)
	}

	best, bestDist := 0, math.Inf(1)
	for _, i := range candidates {
		a := d.airports[i]
		if dist := geo.DistanceKm(lat, lon, a.Lat, a.Lon); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return Nearest{Airport: d.airports[best], DistanceKm: bestDist}, nil
}

// candidates returns every airport within 2r of the nearest distance from
// the cell centre, r being the centre-to-corner distance. By the triangle
// inequality the nearest airport of any point in the cell is among them.
func (d *Directory) candidates(cell string) []int {
	box := geohash.BoundingBox(cell)
	cLat, cLon := box.Center()

	var radius float64
	for _, corner := range [][2]float64{
		{box.MinLat, box.MinLng}, {box.MinLat, box.MaxLng},
		{box.MaxLat, box.MinLng}, {box.MaxLat, box.MaxLng},
	} {
		radius = math.Max(radius, geo.DistanceKm(cLat, cLon, corner[0], corner[1]))
	}

	dists := make([]float64, len(d.airports))
	nearest := math.Inf(1)
	for i, a := range d.airports {
		dists[i] = geo.DistanceKm(cLat, cLon, a.Lat, a.Lon)
		nearest = math.Min(nearest, dists[i])
	}

	limit := nearest + 2*radius + 1e-9
	var out []int
	for i, dist := range dists {
		if dist <= limit {
			out = append(out, i)
		}
	}
	return out
}

// Feature is a GeoJSON point feature
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   Geometry       `json:"geometry"`
}

// Geometry is a GeoJSON point geometry
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // lon, lat
}

// FeatureCollection is a GeoJSON feature collection
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// GeoJSON renders the directory as a FeatureCollection for map layers
func (d *Directory) GeoJSON() FeatureCollection {
	features := make([]Feature, 0, len(d.airports))
	for _, a := range d.airports {
		features = append(features, Feature{
			Type: "Feature",
			Properties: map[string]any{
				"icao":      a.ICAO,
				"name":      a.Name,
				"city":      a.City,
				"elevation": a.Elevation,
				"type":      a.Type,
			},
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: [2]float64{a.Lon, a.Lat},
			},
		})
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}
