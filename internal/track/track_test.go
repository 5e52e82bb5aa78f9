package track

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/adsb-tracker/internal/config"
	"github.com/yegors/adsb-tracker/internal/geo"
)

// One 400 kt step over 10 s, in degrees of latitude
const step400kts10s = 0.0185

func sample(lat, lon, ts float64) PositionSample {
	return PositionSample{Lat: lat, Lon: lon, Timestamp: ts}
}

func withSpeed(s PositionSample, kts float64) PositionSample {
	s.Speed = floatPtr(kts)
	return s
}

func withTrack(s PositionSample, deg float64) PositionSample {
	s.Track = floatPtr(deg)
	return s
}

func TestTrack_FirstSample(t *testing.T) {
	tr := NewTrack("4ba9c1", config.DefaultTrackingConfig())

	pos, rejected, reason := tr.AddSample(sample(41.0, 29.0, 100))

	assert.False(t, rejected)
	assert.Equal(t, ReasonFirstPosition, reason)
	assert.Equal(t, 41.0, pos.Lat)
	require.NotNil(t, tr.FirstSeen())
	require.NotNil(t, tr.LastSeen())
	assert.Equal(t, 100.0, *tr.FirstSeen())
	assert.Equal(t, 100.0, *tr.LastSeen())
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, uint64(1), tr.TotalUpdates())
	assert.Equal(t, uint64(0), tr.OutlierCount())
	assert.Nil(t, tr.MovementHeading())
}

func TestTrack_FirstSampleIsNeverClassified(t *testing.T) {
	cfg := config.DefaultTrackingConfig()
	// A position that would fail every check against anything
	for _, s := range []PositionSample{
		sample(89.9, 179.9, -5),
		sample(-60, -170, 0),
	} {
		tr := NewTrack("abc", cfg)
		_, rejected, reason := tr.AddSample(s)
		assert.False(t, rejected)
		assert.Equal(t, ReasonFirstPosition, reason)
	}
}

func TestTrack_AcceptsNormalProgress(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(withSpeed(sample(41.0, 29.0, 0), 400))

	pos, rejected, reason := tr.AddSample(withSpeed(withTrack(sample(41.0+step400kts10s, 29.0, 10), 0), 400))

	assert.False(t, rejected)
	assert.Equal(t, ReasonValid, reason)
	assert.Equal(t, 41.0+step400kts10s, pos.Lat)
	assert.Equal(t, 2, tr.Len())
	require.NotNil(t, tr.LastValidTrack())
	assert.Equal(t, 0.0, *tr.LastValidTrack())
	require.NotNil(t, tr.LastValidSpeed())
	assert.Equal(t, 400.0, *tr.LastValidSpeed())
}

func TestTrack_BackwardsTime(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(sample(41.0, 29.0, 100))

	pos, rejected, reason := tr.AddSample(sample(41.001, 29.0, 99))

	assert.True(t, rejected)
	assert.Equal(t, ReasonBackwardsTime, reason)
	last, ok := tr.LastValid()
	require.True(t, ok)
	assert.Equal(t, 100.0, last.Timestamp)
	assert.Equal(t, 41.0, last.Lat)

	// Held at the last accepted position, stamped with the rejected time
	assert.Equal(t, 41.0, pos.Lat)
	assert.Equal(t, 99.0, pos.Timestamp)

	_, rejected, reason = tr.AddSample(sample(41.001, 29.0, 100))
	assert.True(t, rejected)
	assert.Equal(t, ReasonBackwardsTime, reason, "equal timestamps are not progress")
}

func TestTrack_TooFrequent(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(sample(41.0, 29.0, 100))

	_, rejected, reason := tr.AddSample(sample(41.0001, 29.0, 100.2))

	assert.True(t, rejected)
	assert.Equal(t, ReasonTooFrequent, reason)
	assert.Equal(t, 1, tr.Len())
}

func TestTrack_BigJump(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(sample(41.0, 29.0, 0))

	pos, rejected, reason := tr.AddSample(sample(42.0, 29.0, 5))

	assert.True(t, rejected)
	assert.True(t, strings.HasPrefix(reason, "big_jump_"), reason)
	assert.Equal(t, "big_jump_111.2km", reason)
	assert.False(t, pos.Lat == 42.0 && pos.Lon == 29.0)
	assert.Equal(t, 5.0, pos.Timestamp)
	assert.Equal(t, uint64(1), tr.OutlierCount())
	assert.Equal(t, uint64(2), tr.TotalUpdates())
	require.NotNil(t, tr.LastSeen())
	assert.Equal(t, 5.0, *tr.LastSeen())
}

func TestTrack_Overspeed(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(sample(41.0, 29.0, 0))

	// ~11 km in 10 s
	_, rejected, reason := tr.AddSample(sample(41.1, 29.0, 10))

	assert.True(t, rejected)
	assert.True(t, strings.HasPrefix(reason, "overspeed_"), reason)
	assert.True(t, strings.HasSuffix(reason, "kts"), reason)
}

func patternConfig() config.TrackingConfig {
	cfg := config.DefaultTrackingConfig()
	cfg.MaxJumpKm = 50
	cfg.MaxSpeedKts = 2000
	cfg.OutlierDistanceKm = 3
	return cfg
}

func TestTrack_PatternOutlier(t *testing.T) {
	tr := NewTrack("abc", patternConfig())
	for i := 0; i < 3; i++ {
		_, rejected, _ := tr.AddSample(withSpeed(sample(41.0+float64(i)*step400kts10s, 29.0, float64(i)*10), 400))
		require.False(t, rejected)
	}

	// 8 km east of the newest point: passes jump and speed, but not the pattern
	east := 8.0 / (geo.KmPerDegree * 0.7547)
	pos, rejected, reason := tr.AddSample(sample(41.0+2*step400kts10s, 29.0+east, 30))

	require.True(t, rejected)
	assert.True(t, strings.HasPrefix(reason, "pattern_outlier_"), reason)

	// Dead reckoned north from the newest accepted point
	assert.Greater(t, pos.Lat, 41.0+2*step400kts10s)
	assert.InDelta(t, 29.0, pos.Lon, 1e-9)
}

func TestTrack_PatternCheckNeedsSpeed(t *testing.T) {
	tr := NewTrack("abc", patternConfig())
	for i := 0; i < 3; i++ {
		tr.AddSample(sample(41.0+float64(i)*step400kts10s, 29.0, float64(i)*10))
	}

	east := 8.0 / (geo.KmPerDegree * 0.7547)
	_, rejected, reason := tr.AddSample(sample(41.0+2*step400kts10s, 29.0+east, 30))

	assert.False(t, rejected)
	assert.Equal(t, ReasonValid, reason)
}

func TestTrack_DeadReckoning(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())

	// 400 kts for one minute due north
	leg := geo.KnotsToKm(400, 60) / 111.195
	tr.AddSample(withTrack(withSpeed(sample(41.0, 29.0, 0), 400), 0))
	_, rejected, _ := tr.AddSample(withTrack(withSpeed(sample(41.0+leg, 29.0, 60), 400), 0))
	require.False(t, rejected)

	pos, rejected, reason := tr.AddSample(sample(43.0, 29.0, 70))
	require.True(t, rejected)
	assert.True(t, strings.HasPrefix(reason, "big_jump_"), reason)

	want := 400 * 0.514444 * 10 / 1000
	got := geo.DistanceKm(41.0+leg, 29.0, pos.Lat, pos.Lon)
	assert.InDelta(t, want, got, want*0.05)

	bearing, ok := geo.BearingDeg(41.0+leg, 29.0, pos.Lat, pos.Lon)
	require.True(t, ok)
	assert.InDelta(t, 0.0, bearing, 1e-6)

	assert.Equal(t, 70.0, pos.Timestamp)
	require.NotNil(t, pos.Speed)
	assert.Equal(t, 400.0, *pos.Speed)
	require.NotNil(t, pos.Track)
	assert.Equal(t, 0.0, *pos.Track)
}

func TestTrack_CorrectionHoldsWithoutSpeed(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(sample(41.0, 29.0, 0))
	tr.AddSample(sample(41.01, 29.0, 10))

	pos, rejected, _ := tr.AddSample(sample(45.0, 29.0, 20))

	require.True(t, rejected)
	assert.Equal(t, 41.01, pos.Lat)
	assert.Equal(t, 29.0, pos.Lon)
	assert.Equal(t, 20.0, pos.Timestamp)
}

func TestTrack_CorrectionHoldsWithoutBearing(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(withSpeed(sample(41.0, 29.0, 0), 0))
	tr.AddSample(withSpeed(sample(41.0, 29.0, 10), 0))

	pos, rejected, _ := tr.AddSample(sample(45.0, 29.0, 20))

	require.True(t, rejected)
	assert.Equal(t, 41.0, pos.Lat)
	assert.Equal(t, 20.0, pos.Timestamp)
}

func TestTrack_HistoryIsBoundedAndMonotonic(t *testing.T) {
	cfg := config.DefaultTrackingConfig()
	cfg.HistoryCapacity = 5
	tr := NewTrack("abc", cfg)

	ts := 0.0
	for i := 0; i < 40; i++ {
		// Every fourth sample goes back in time and must be rejected
		if i%4 == 3 {
			tr.AddSample(sample(41.0, 29.0, ts-1))
			continue
		}
		ts += 5
		tr.AddSample(sample(41.0+float64(i)*0.001, 29.0, ts))
	}

	hist := tr.History()
	assert.Len(t, hist, 5)
	for i := 1; i < len(hist); i++ {
		assert.Less(t, hist[i-1].Timestamp, hist[i].Timestamp)
	}

	last, ok := tr.LastValid()
	require.True(t, ok)
	assert.Equal(t, hist[len(hist)-1], last)
	assert.LessOrEqual(t, tr.OutlierCount(), tr.TotalUpdates())
	assert.Equal(t, uint64(40), tr.TotalUpdates())
	assert.Equal(t, uint64(10), tr.OutlierCount())
}

func TestTrack_LastValidIgnoresRejectedFields(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(withTrack(withSpeed(sample(41.0, 29.0, 0), 300), 10))

	tr.AddSample(withTrack(withSpeed(sample(42.0, 29.0, 5), 900), 200))

	require.NotNil(t, tr.LastValidTrack())
	assert.Equal(t, 10.0, *tr.LastValidTrack())
	require.NotNil(t, tr.LastValidSpeed())
	assert.Equal(t, 300.0, *tr.LastValidSpeed())
}

func TestTrack_MissingTrackKeepsPrevious(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	tr.AddSample(withTrack(sample(41.0, 29.0, 0), 45))
	tr.AddSample(sample(41.001, 29.0, 10))

	require.NotNil(t, tr.LastValidTrack())
	assert.Equal(t, 45.0, *tr.LastValidTrack())
	assert.Nil(t, tr.LastValidSpeed())
}

func TestTrack_MovementHeading(t *testing.T) {
	t.Run("FromDisplacement", func(t *testing.T) {
		tr := NewTrack("abc", config.DefaultTrackingConfig())
		tr.AddSample(withTrack(sample(0, 10, 0), 300))
		tr.AddSample(sample(0, 10.01, 10))

		mh := tr.MovementHeading()
		require.NotNil(t, mh)
		assert.InDelta(t, 90.0, *mh, 1e-6)
	})

	t.Run("BelowConfidenceUsesLastTrack", func(t *testing.T) {
		tr := NewTrack("abc", config.DefaultTrackingConfig())
		tr.AddSample(withTrack(sample(41.0, 29.0, 0), 275))
		tr.AddSample(sample(41.0001, 29.0, 10)) // ~11 m

		mh := tr.MovementHeading()
		require.NotNil(t, mh)
		assert.Equal(t, 275.0, *mh)
	})

	t.Run("BelowConfidenceWithoutTrack", func(t *testing.T) {
		tr := NewTrack("abc", config.DefaultTrackingConfig())
		tr.AddSample(sample(41.0, 29.0, 0))
		tr.AddSample(sample(41.0001, 29.0, 10))

		assert.Nil(t, tr.MovementHeading())
	})
}

func TestTrack_DistanceAndDuration(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	assert.Equal(t, 0.0, tr.TotalDistance())
	assert.Equal(t, 0.0, tr.TrackedDuration())

	tr.AddSample(sample(41.00, 29.0, 100))
	tr.AddSample(sample(41.01, 29.0, 110))
	tr.AddSample(sample(41.02, 29.0, 120))
	tr.AddSample(sample(50.00, 29.0, 130)) // rejected, still counts toward duration

	assert.InDelta(t, geo.DistanceKm(41.0, 29.0, 41.02, 29.0), tr.TotalDistance(), 1e-6)
	assert.Equal(t, 30.0, tr.TrackedDuration())
	assert.InDelta(t, 0.25, tr.OutlierRate(), 1e-9)

	snap := tr.Snapshot()
	assert.Equal(t, 3, snap.PositionCount)
	assert.Equal(t, uint64(1), snap.OutlierCount)
	require.NotNil(t, snap.LastPosition)
	assert.Equal(t, 120.0, snap.LastPosition.Timestamp)
}

func TestTrack_InputPointersAreNotRetained(t *testing.T) {
	tr := NewTrack("abc", config.DefaultTrackingConfig())
	speed := 250.0
	tr.AddSample(PositionSample{Lat: 41, Lon: 29, Timestamp: 0, Speed: &speed})
	speed = 999

	require.NotNil(t, tr.LastValidSpeed())
	assert.Equal(t, 250.0, *tr.LastValidSpeed())
}
