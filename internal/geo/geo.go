package geo

import (
	"math"
)

// Constants
const (
	EarthRadiusKm = 6371.0   // Mean earth radius used by the haversine formula
	KmPerNM       = 1.852    // Kilometres per nautical mile
	KnotsToMs     = 0.514444 // Conversion factor from knots to m/s
	KmPerDegree   = 111.32   // Length of one degree of latitude (equirectangular approximation)
)

// DistanceKm returns the great-circle distance between two points in kilometres.
// Bit-identical coordinates return exactly zero.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0.0
	}

	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)

	// Floating point can push a slightly outside [0,1] near identical or antipodal points
	a = math.Max(0, math.Min(1, a))

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// BearingDeg returns the initial bearing from the first point to the second in [0,360).
// ok is false when the points are identical and no bearing exists.
func BearingDeg(lat1, lon1, lat2, lon2 float64) (bearing float64, ok bool) {
	if lat1 == lat2 && lon1 == lon2 {
		return 0, false
	}

	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	dLon := toRadians(lon2 - lon1)

	y := math.Sin(dLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)

	return NormalizeAngle(toDegrees(math.Atan2(y, x))), true
}

// NormalizeAngle maps any angle to [0,360)
func NormalizeAngle(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	// -1e-15 + 360 rounds to 360
	if a >= 360 {
		a -= 360
	}
	return a
}

// AngleDiff returns the signed shortest rotation from a1 to a2, in (-180,180]
func AngleDiff(a1, a2 float64) float64 {
	diff := NormalizeAngle(a2) - NormalizeAngle(a1)
	if diff > 180 {
		diff -= 360
	} else if diff <= -180 {
		diff += 360
	}
	return diff
}

// SmoothAngle moves current toward target by alpha of the shortest difference.
// Differences smaller than deadband leave current unchanged. A nil input yields the other input.
func SmoothAngle(current, target *float64, alpha, deadband float64) *float64 {
	if current == nil {
		return target
	}
	if target == nil {
		return current
	}

	diff := AngleDiff(*current, *target)
	if math.Abs(diff) < deadband {
		c := *current
		return &c
	}

	smoothed := NormalizeAngle(*current + diff*alpha)
	return &smoothed
}

// ImpliedSpeedKts returns the average ground speed in knots needed to travel between
// two timestamped points. A non-positive time delta yields +Inf, which fails any threshold.
func ImpliedSpeedKts(lat1, lon1, ts1, lat2, lon2, ts2 float64) float64 {
	dt := ts2 - ts1
	if dt <= 0 {
		return math.Inf(1)
	}

	kmh := DistanceKm(lat1, lon1, lat2, lon2) * 3600.0 / dt
	return kmh / KmPerNM
}

// KnotsToKm returns the distance in kilometres covered at speedKts over the given seconds
func KnotsToKm(speedKts, seconds float64) float64 {
	return speedKts * KnotsToMs * seconds / 1000
}

// Offset projects a point distanceKm along bearingDeg using an equirectangular
// approximation. Accurate only for short distances away from the poles.
func Offset(lat, lon, bearingDeg, distanceKm float64) (float64, float64) {
	bearingRad := toRadians(bearingDeg)
	dLat := distanceKm / KmPerDegree * math.Cos(bearingRad)
	dLon := distanceKm / (KmPerDegree * math.Cos(toRadians(lat))) * math.Sin(bearingRad)
	return lat + dLat, lon + dLon
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
