package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		delta                  float64
	}{
		{"identical points", 41.0, 29.0, 41.0, 29.0, 0, 0},
		{"one degree of latitude", 41.0, 29.0, 42.0, 29.0, 111.19, 0.05},
		{"istanbul to ankara", 41.2619, 28.7419, 40.1281, 32.9951, 380.04, 0.1},
		{"across the antimeridian", 0, 179.5, 0, -179.5, 111.19, 0.05},
		{"antipodal points", 0, 0, 0, 180, math.Pi * EarthRadiusKm, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.delta)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestDistanceKm_IdenticalIsExactlyZero(t *testing.T) {
	assert.Equal(t, 0.0, DistanceKm(12.345678, -98.7654321, 12.345678, -98.7654321))
}

func TestBearingDeg(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"due north", 41.0, 29.0, 42.0, 29.0, 0},
		{"due south", 42.0, 29.0, 41.0, 29.0, 180},
		{"due east on equator", 0, 10, 0, 11, 90},
		{"due west on equator", 0, 11, 0, 10, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BearingDeg(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-6)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}

	t.Run("identical points have no bearing", func(t *testing.T) {
		_, ok := BearingDeg(41.0, 29.0, 41.0, 29.0)
		assert.False(t, ok)
	})
}

func TestNormalizeAngle(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		360:  0,
		720:  0,
		-90:  270,
		450:  90,
		-720: 0,
		359:  359,
	}
	for in, want := range cases {
		assert.InDelta(t, want, NormalizeAngle(in), 1e-9, "NormalizeAngle(%v)", in)
	}
	assert.Less(t, NormalizeAngle(-1e-15), 360.0)
}

func TestAngleDiff(t *testing.T) {
	tests := []struct {
		a1, a2, want float64
	}{
		{10, 20, 10},
		{20, 10, -10},
		{350, 10, 20},
		{10, 350, -20},
		{0, 180, 180},
		{180, 0, 180},
		{90, 270, 180},
		{-90, 90, 180},
	}
	for _, tt := range tests {
		got := AngleDiff(tt.a1, tt.a2)
		assert.InDelta(t, tt.want, got, 1e-9, "AngleDiff(%v, %v)", tt.a1, tt.a2)
		assert.Greater(t, got, -180.0)
		assert.LessOrEqual(t, got, 180.0)
	}
}

func TestSmoothAngle(t *testing.T) {
	t.Run("nil current returns target", func(t *testing.T) {
		got := SmoothAngle(nil, ptr(90), 0.5, 0)
		require.NotNil(t, got)
		assert.Equal(t, 90.0, *got)
	})

	t.Run("nil target returns current", func(t *testing.T) {
		got := SmoothAngle(ptr(45), nil, 0.5, 0)
		require.NotNil(t, got)
		assert.Equal(t, 45.0, *got)
	})

	t.Run("both nil", func(t *testing.T) {
		assert.Nil(t, SmoothAngle(nil, nil, 0.5, 0))
	})

	t.Run("inside deadband holds current", func(t *testing.T) {
		got := SmoothAngle(ptr(100), ptr(104), 0.4, 5)
		require.NotNil(t, got)
		assert.Equal(t, 100.0, *got)
	})

	t.Run("outside deadband blends", func(t *testing.T) {
		got := SmoothAngle(ptr(100), ptr(120), 0.5, 5)
		require.NotNil(t, got)
		assert.InDelta(t, 110.0, *got, 1e-9)
	})

	t.Run("wraps through north", func(t *testing.T) {
		got := SmoothAngle(ptr(350), ptr(10), 0.5, 0)
		require.NotNil(t, got)
		assert.InDelta(t, 0.0, *got, 1e-9)
	})

	t.Run("does not alias current", func(t *testing.T) {
		current := ptr(100)
		got := SmoothAngle(current, ptr(101), 0.4, 5)
		*got = 0
		assert.Equal(t, 100.0, *current)
	})
}

func TestImpliedSpeedKts(t *testing.T) {
	t.Run("non-positive delta is infinite", func(t *testing.T) {
		assert.True(t, math.IsInf(ImpliedSpeedKts(41, 29, 100, 41.1, 29, 100), 1))
		assert.True(t, math.IsInf(ImpliedSpeedKts(41, 29, 100, 41.1, 29, 99), 1))
	})

	t.Run("one degree of latitude in one hour", func(t *testing.T) {
		got := ImpliedSpeedKts(41, 29, 0, 42, 29, 3600)
		assert.InDelta(t, 111.19/KmPerNM, got, 0.1)
	})

	t.Run("stationary", func(t *testing.T) {
		assert.Equal(t, 0.0, ImpliedSpeedKts(41, 29, 0, 41, 29, 10))
	})
}

func TestOffset(t *testing.T) {
	lat, lon := Offset(41.0, 29.0, 90, 10)
	assert.InDelta(t, 41.0, lat, 1e-9)
	assert.Greater(t, lon, 29.0)
	assert.InDelta(t, 10, DistanceKm(41.0, 29.0, lat, lon), 0.1)

	lat, lon = Offset(41.0, 29.0, 0, KmPerDegree)
	assert.InDelta(t, 42.0, lat, 1e-9)
	assert.InDelta(t, 29.0, lon, 1e-9)
}

func TestKnotsToKm(t *testing.T) {
	assert.InDelta(t, 2.0578, KnotsToKm(400, 10), 1e-4)
}
