package track

import (
	"github.com/yegors/adsb-tracker/internal/geo"
)

// correct produces the position displayed in place of a rejected sample.
// With a known speed and bearing the last accepted position is extrapolated
// to the rejected sample's time; otherwise the last accepted position is held.
func (t *Track) correct(rejected PositionSample) PositionSample {
	hold := *t.lastValid
	hold.Timestamp = rejected.Timestamp

	if t.history.Len() < 2 || t.lastValidSpeed == nil {
		return hold
	}

	p1 := t.history.FromEnd(1)
	p2 := t.history.FromEnd(0)

	bearing, ok := geo.BearingDeg(p1.Lat, p1.Lon, p2.Lat, p2.Lon)
	if !ok {
		return hold
	}

	reach := geo.KnotsToKm(*t.lastValidSpeed, rejected.Timestamp-p2.Timestamp)
	lat, lon := geo.Offset(p2.Lat, p2.Lon, bearing, reach)

	return PositionSample{
		Lat:       lat,
		Lon:       lon,
		Timestamp: rejected.Timestamp,
		Track:     copyPtr(t.lastValidTrack),
		Speed:     copyPtr(t.lastValidSpeed),
	}
}
