package track

import (
	"gonum.org/v1/gonum/floats"

	"github.com/yegors/adsb-tracker/internal/config"
	"github.com/yegors/adsb-tracker/internal/geo"
)

// Reasons returned by AddSample for accepted samples. Rejections carry the
// name of the failing check, see classify.
const (
	ReasonFirstPosition = "first_position"
	ReasonValid         = "valid"
	ReasonBackwardsTime = "backwards_time"
	ReasonTooFrequent   = "too_frequent"
)

// Track holds the validated position history of one aircraft.
// It is not safe for concurrent use; the Processor serializes access.
type Track struct {
	hex string
	cfg config.TrackingConfig

	history        *history
	lastValid      *PositionSample
	lastValidTrack *float64
	lastValidSpeed *float64

	outlierCount uint64
	totalUpdates uint64
	firstSeen    *float64
	lastSeen     *float64
}

// NewTrack creates an empty track for the given identifier
func NewTrack(hex string, cfg config.TrackingConfig) *Track {
	return &Track{
		hex:     hex,
		cfg:     cfg,
		history: newHistory(cfg.HistoryCapacity),
	}
}

// AddSample validates a new position. Accepted samples enter the history and
// are returned unchanged; rejected samples are replaced by a corrected position.
// The returned bool reports whether the sample was rejected.
func (t *Track) AddSample(s PositionSample) (PositionSample, bool, string) {
	s.Track = copyPtr(s.Track)
	s.Speed = copyPtr(s.Speed)

	t.totalUpdates++
	t.lastSeen = floatPtr(s.Timestamp)

	if t.lastValid == nil {
		t.firstSeen = floatPtr(s.Timestamp)
		t.accept(s)
		return s, false, ReasonFirstPosition
	}

	if ok, reason := t.classify(s); !ok {
		t.outlierCount++
		return t.correct(s), true, reason
	}

	t.accept(s)
	return s, false, ReasonValid
}

func (t *Track) accept(s PositionSample) {
	t.history.Push(s)
	last := s
	t.lastValid = &last
	if s.Track != nil {
		t.lastValidTrack = copyPtr(s.Track)
	}
	if s.Speed != nil {
		t.lastValidSpeed = copyPtr(s.Speed)
	}
}

// Hex returns the aircraft identifier
func (t *Track) Hex() string {
	return t.hex
}

// History returns a copy of the accepted samples, oldest first
func (t *Track) History() []PositionSample {
	return t.history.Slice()
}

// Len returns the number of accepted samples held
func (t *Track) Len() int {
	return t.history.Len()
}

// LastValid returns the most recently accepted sample
func (t *Track) LastValid() (PositionSample, bool) {
	if t.lastValid == nil {
		return PositionSample{}, false
	}
	return *t.lastValid, true
}

func (t *Track) LastValidTrack() *float64 { return copyPtr(t.lastValidTrack) }
func (t *Track) LastValidSpeed() *float64 { return copyPtr(t.lastValidSpeed) }
func (t *Track) OutlierCount() uint64 { return t.outlierCount }
func (t *Track) TotalUpdates() uint64 { return t.totalUpdates }

// FirstSeen and LastSeen return nil before the first sample
func (t *Track) FirstSeen() *float64 { return copyPtr(t.firstSeen) }
func (t *Track) LastSeen() *float64 { return copyPtr(t.lastSeen) }

// OutlierRate is the share of updates that were rejected
func (t *Track) OutlierRate() float64 {
	if t.totalUpdates == 0 {
		return 0
	}
	return float64(t.outlierCount) / float64(t.totalUpdates)
}

// MovementHeading derives a heading from the two most recent accepted samples.
// When they are too close together to trust, the last reported track is used.
func (t *Track) MovementHeading() *float64 {
	if t.history.Len() < 2 {
		return nil
	}

	p1 := t.history.FromEnd(1)
	p2 := t.history.FromEnd(0)

	if geo.DistanceKm(p1.Lat, p1.Lon, p2.Lat, p2.Lon) >= t.cfg.HeadingConfidenceThresholdKm {
		if bearing, ok := geo.BearingDeg(p1.Lat, p1.Lon, p2.Lat, p2.Lon); ok {
			return &bearing
		}
	}

	return copyPtr(t.lastValidTrack)
}

// TotalDistance is the path length over the held history in km
func (t *Track) TotalDistance() float64 {
	n := t.history.Len()
	if n < 2 {
		return 0
	}

	legs := make([]float64, 0, n-1)
	prev := t.history.At(0)
	for i := 1; i < n; i++ {
		cur := t.history.At(i)
		legs = append(legs, geo.DistanceKm(prev.Lat, prev.Lon, cur.Lat, cur.Lon))
		prev = cur
	}

	return floats.Sum(legs)
}

// TrackedDuration is the time between the first and latest update in seconds
func (t *Track) TrackedDuration() float64 {
	if t.firstSeen == nil || t.lastSeen == nil {
		return 0
	}
	return *t.lastSeen - *t.firstSeen
}

// Snapshot returns a diagnostic view of the track
func (t *Track) Snapshot() Snapshot {
	snap := Snapshot{
		Hex:                 t.hex,
		PositionCount:       t.history.Len(),
		OutlierCount:        t.outlierCount,
		TotalUpdates:        t.totalUpdates,
		OutlierRate:         t.OutlierRate(),
		LastTrack:           copyPtr(t.lastValidTrack),
		MovementHeading:     t.MovementHeading(),
		TotalDistanceKm:     t.TotalDistance(),
		TrackedDurationSecs: t.TrackedDuration(),
	}
	if last, ok := t.LastValid(); ok {
		snap.LastPosition = &last
	}
	return snap
}
