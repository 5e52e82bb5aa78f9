package track

// PositionSample is one timestamped position. Track and Speed are nil when unknown.
type PositionSample struct {
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Timestamp float64  `json:"timestamp"` // Unix seconds
	Track     *float64 `json:"track,omitempty"`
	Speed     *float64 `json:"speed,omitempty"` // Knots
}

// Report is a single aircraft position as delivered by the feed
type Report struct {
	Hex         string   `json:"hex"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	PositionAge float64  `json:"position_age"` // Seconds between the fix and the snapshot time
	Track       *float64 `json:"track,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`

	// Pass-through metadata, not used by validation
	Flight       string   `json:"flight,omitempty"`
	Registration string   `json:"registration,omitempty"`
	AircraftType string   `json:"aircraft_type,omitempty"`
	Squawk       string   `json:"squawk,omitempty"`
	Category     string   `json:"category,omitempty"`
	Altitude     *float64 `json:"altitude,omitempty"`
}

// TrailPoint is one point of a rendering trail
type TrailPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Record is the processed state of one aircraft for a cycle
type Record struct {
	Hex              string       `json:"hex"`
	Lat              float64      `json:"lat"`
	Lon              float64      `json:"lon"`
	Track            *float64     `json:"track"`
	Speed            *float64     `json:"speed"`
	Corrected        bool         `json:"position_corrected"`
	CorrectionReason string       `json:"correction_reason"`
	MovementHeading  *float64     `json:"movement_heading"`
	Trail            []TrailPoint `json:"trail,omitempty"`
	Timestamp        float64      `json:"timestamp"`

	Flight       string   `json:"flight,omitempty"`
	Registration string   `json:"registration,omitempty"`
	AircraftType string   `json:"aircraft_type,omitempty"`
	Squawk       string   `json:"squawk,omitempty"`
	Category     string   `json:"category,omitempty"`
	Altitude     *float64 `json:"altitude,omitempty"`
}

// CycleStats summarizes one processed cycle
type CycleStats struct {
	Total               int    `json:"total"`     // Reports received
	InRegion            int    `json:"in_region"` // Reports inside the region filter (equals Total when disabled)
	Displayed           int    `json:"displayed"` // Records produced
	PositionCorrections int    `json:"position_corrections"`
	HeadingCorrections  int    `json:"heading_corrections"`
	Evicted             int    `json:"evicted"`
	ActiveTracks        int    `json:"active_tracks"`
	OutliersDetected    uint64 `json:"outliers_detected"` // Sum of outlier counts across live tracks
}

// CycleResult is the output of one ProcessCycle call
type CycleResult struct {
	Now     float64    `json:"now"`
	Records []Record   `json:"aircraft"`
	Stats   CycleStats `json:"stats"`
}

// Snapshot is a read-only view of a track for diagnostics
type Snapshot struct {
	Hex                 string          `json:"hex"`
	PositionCount       int             `json:"position_count"`
	OutlierCount        uint64          `json:"outlier_count"`
	TotalUpdates        uint64          `json:"total_updates"`
	OutlierRate         float64         `json:"outlier_rate"`
	LastPosition        *PositionSample `json:"last_position,omitempty"`
	LastTrack           *float64        `json:"last_track"`
	MovementHeading     *float64        `json:"movement_heading"`
	TotalDistanceKm     float64         `json:"total_distance_km"`
	TrackedDurationSecs float64         `json:"tracked_duration_seconds"`
}

func floatPtr(v float64) *float64 {
	return &v
}

func copyPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
