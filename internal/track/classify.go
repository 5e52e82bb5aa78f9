package track

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/yegors/adsb-tracker/internal/geo"
)

// patternWindow is the number of recent accepted samples averaged by the pattern check
const patternWindow = 3

// classify runs the outlier checks in order against the newest accepted sample
// and stops at the first failure. It does not mutate the track.
func (t *Track) classify(s PositionSample) (bool, string) {
	prev := t.history.FromEnd(0)
	dt := s.Timestamp - prev.Timestamp

	if dt <= 0 {
		return false, ReasonBackwardsTime
	}

	if dt < t.cfg.MinTimeDiffSecs {
		return false, ReasonTooFrequent
	}

	distance := geo.DistanceKm(prev.Lat, prev.Lon, s.Lat, s.Lon)
	if distance > t.cfg.MaxJumpKm {
		return false, fmt.Sprintf("big_jump_%.1fkm", distance)
	}

	speed := geo.ImpliedSpeedKts(prev.Lat, prev.Lon, prev.Timestamp, s.Lat, s.Lon, s.Timestamp)
	if speed > t.cfg.MaxSpeedKts {
		return false, fmt.Sprintf("overspeed_%.0fkts", speed)
	}

	// Needs a speed to scale the allowed deviation
	if t.history.Len() >= patternWindow && t.lastValidSpeed != nil {
		lat, lon := t.centroid(patternWindow)
		deviation := geo.DistanceKm(lat, lon, s.Lat, s.Lon)

		expected := geo.KnotsToKm(*t.lastValidSpeed, dt) * t.cfg.OutlierSpeedMultiplier
		if deviation > math.Max(t.cfg.OutlierDistanceKm, expected) {
			return false, fmt.Sprintf("pattern_outlier_%.1fkm", deviation)
		}
	}

	return true, ReasonValid
}

// centroid returns the mean position of the newest n accepted samples
func (t *Track) centroid(n int) (float64, float64) {
	lats := make([]float64, n)
	lons := make([]float64, n)
	for i := 0; i < n; i++ {
		p := t.history.FromEnd(i)
		lats[i] = p.Lat
		lons[i] = p.Lon
	}
	return stat.Mean(lats, nil), stat.Mean(lons, nil)
}
