package physics

import (
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mmcloughlin/geohash"
	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// FeetToMeters converts barometric altitude for the field model
const FeetToMeters = 0.3048

// CalculateMagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func CalculateMagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	// Convert altitude to meters for WMM
	altM := altFt * FeetToMeters

	// Create location from Geodetic coordinates
	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	// Calculate magnetic field
	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Return 0 for safety if calculation fails
		return 0.0
	}

	return mag.D() // Declination
}

// TrueToMagnetic converts a true track to a magnetic track given the declination (+East)
func TrueToMagnetic(trueDeg, declinationDeg float64) float64 {
	m := math.Mod(trueDeg-declinationDeg, 360)
	if m < 0 {
		m += 360
	}
	if m >= 360 {
		m -= 360
	}
	return m
}

// Declination caches magnetic variation per geohash cell. The field changes
// slowly, so a cell of a few tens of kilometres shares one value.
type Declination struct {
	precision uint
	cache     *expirable.LRU[string, float64]
	now       func() time.Time
}

// NewDeclination creates a cache holding up to size cells for ttl
func NewDeclination(size int, ttl time.Duration, precision uint) *Declination {
	if precision == 0 {
		precision = 4
	}
	return &Declination{
		precision: precision,
		cache:     expirable.NewLRU[string, float64](size, nil, ttl),
		now:       time.Now,
	}
}

// At returns the declination at the given position, computing it on a cache
// miss. Altitude is ignored.
func (d *Declination) At(lat, lon float64) float64 {
	cell := geohash.EncodeWithPrecision(lat, lon, d.precision)
	date := d.now().UTC()
	key := fmt.Sprintf("%s/%d", cell, date.Year())

	if v, ok := d.cache.Get(key); ok {
		return v
	}

	clat, clon := geohash.DecodeCenter(cell)
	v := CalculateMagneticVariation(clat, clon, 0, date)
	d.cache.Add(key, v)
	return v
}

// MagneticTrack converts a true track at the given position to magnetic
func (d *Declination) MagneticTrack(trueDeg, lat, lon float64) float64 {
	return TrueToMagnetic(trueDeg, d.At(lat, lon))
}

// Len returns the number of cached cells
func (d *Declination) Len() int {
	return d.cache.Len()
}
