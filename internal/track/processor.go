package track

import (
	"math"
	"sort"
	"sync"

	"github.com/yegors/adsb-tracker/internal/config"
	"github.com/yegors/adsb-tracker/internal/geo"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

// entry is the registry slot for one aircraft
type entry struct {
	track    *Track
	resolved *float64 // Track displayed on the previous cycle
}

// Processor runs report batches through validation, heading resolution and
// trail sampling. It owns the identifier to track registry.
type Processor struct {
	cfg      config.TrackingConfig
	resolver *HeadingResolver
	logger   *logger.Logger

	mu       sync.RWMutex
	registry map[string]*entry
	last     CycleStats
}

// NewProcessor creates a processor with an empty registry
func NewProcessor(cfg config.TrackingConfig, log *logger.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		resolver: NewHeadingResolver(cfg),
		logger:   log.Named("track"),
		registry: make(map[string]*entry),
	}
}

// ProcessCycle processes one snapshot of reports taken at now (Unix seconds).
// The registry is locked for the whole cycle so readers never observe a
// partially processed snapshot.
func (p *Processor) ProcessCycle(now float64, reports []Report) CycleResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := CycleStats{Total: len(reports)}

	selected := p.selectReports(reports)
	stats.InRegion = len(selected)
	if len(selected) > p.cfg.MaxDisplayedCount {
		selected = selected[:p.cfg.MaxDisplayedCount]
	}

	records := make([]Record, 0, len(selected))
	for _, r := range selected {
		if r.Hex == "" || !validCoordinates(r.Lat, r.Lon) {
			continue
		}

		rec, posCorrected, headingCorrected := p.processReport(now, r)
		if posCorrected {
			stats.PositionCorrections++
		}
		if headingCorrected {
			stats.HeadingCorrections++
		}
		records = append(records, rec)
	}

	stats.Displayed = len(records)
	stats.Evicted = p.evictStale(now)
	stats.ActiveTracks = len(p.registry)
	for _, e := range p.registry {
		stats.OutliersDetected += e.track.OutlierCount()
	}

	if stats.PositionCorrections > 0 || stats.HeadingCorrections > 0 {
		p.logger.Debug("Cycle corrections",
			logger.Int("displayed", stats.Displayed),
			logger.Int("position_corrections", stats.PositionCorrections),
			logger.Int("heading_corrections", stats.HeadingCorrections))
	}

	p.last = stats
	return CycleResult{Now: now, Records: records, Stats: stats}
}

// selectReports applies the region filter. Reports inside the region are
// returned nearest first; without a filter the input order is kept.
func (p *Processor) selectReports(reports []Report) []Report {
	region := p.cfg.RegionFilter
	if !region.Enabled {
		return reports
	}

	type ranked struct {
		report   Report
		distance float64
	}

	inside := make([]ranked, 0, len(reports))
	for _, r := range reports {
		if !validCoordinates(r.Lat, r.Lon) {
			continue
		}
		d := geo.DistanceKm(region.CenterLat, region.CenterLon, r.Lat, r.Lon)
		if d <= region.RadiusKm {
			inside = append(inside, ranked{report: r, distance: d})
		}
	}

	sort.SliceStable(inside, func(i, j int) bool {
		return inside[i].distance < inside[j].distance
	})

	out := make([]Report, len(inside))
	for i, r := range inside {
		out[i] = r.report
	}
	return out
}

func (p *Processor) processReport(now float64, r Report) (Record, bool, bool) {
	e, ok := p.registry[r.Hex]
	if !ok {
		e = &entry{track: NewTrack(r.Hex, p.cfg)}
		p.registry[r.Hex] = e
		p.logger.Debug("New track", logger.String("hex", r.Hex))
	}

	ts := now - r.PositionAge
	pos, rejected, reason := e.track.AddSample(PositionSample{
		Lat:       r.Lat,
		Lon:       r.Lon,
		Timestamp: ts,
		Track:     r.Track,
		Speed:     r.Speed,
	})
	if rejected {
		p.logger.Debug("Position corrected",
			logger.String("hex", r.Hex),
			logger.String("reason", reason))
	}

	movement := e.track.MovementHeading()
	resolved, headingCorrected := p.resolver.Resolve(movement, r.Track, e.resolved)
	if headingCorrected {
		p.logger.Debug("Heading mismatch overridden",
			logger.String("hex", r.Hex),
			logger.Float64("movement_heading", *movement),
			logger.Float64("reported_track", *r.Track))
	}
	e.resolved = copyPtr(resolved)

	var trail []TrailPoint
	if p.cfg.Trail.Enabled && e.track.Len() > 1 {
		trail = TrailPoints(SampleTrail(e.track.History(), p.cfg.Trail.MaxPoints))
	}

	rec := Record{
		Hex:              r.Hex,
		Lat:              pos.Lat,
		Lon:              pos.Lon,
		Track:            resolved,
		Speed:            copyPtr(r.Speed),
		Corrected:        rejected,
		CorrectionReason: reason,
		MovementHeading:  movement,
		Trail:            trail,
		Timestamp:        ts,
		Flight:           r.Flight,
		Registration:     r.Registration,
		AircraftType:     r.AircraftType,
		Squawk:           r.Squawk,
		Category:         r.Category,
		Altitude:         copyPtr(r.Altitude),
	}

	return rec, rejected, headingCorrected
}

// evictStale drops every track whose newest accepted sample is older than the
// staleness window. Caller must hold the write lock.
func (p *Processor) evictStale(now float64) int {
	cutoff := now - p.cfg.StalenessWindowSecs
	evicted := 0
	for hex, e := range p.registry {
		last, ok := e.track.LastValid()
		if !ok || last.Timestamp < cutoff {
			delete(p.registry, hex)
			evicted++
			p.logger.Debug("Evicted stale track", logger.String("hex", hex))
		}
	}
	return evicted
}

// Stats returns the statistics of the most recent cycle
func (p *Processor) Stats() CycleStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// ActiveTracks returns the number of tracks in the registry
func (p *Processor) ActiveTracks() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.registry)
}

// Snapshots returns a diagnostic view of every live track, ordered by identifier
func (p *Processor) Snapshots() []Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(p.registry))
	for _, e := range p.registry {
		snaps = append(snaps, e.track.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Hex < snaps[j].Hex })
	return snaps
}

// TrackSnapshot returns the diagnostic view of a single track
func (p *Processor) TrackSnapshot(hex string) (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.registry[hex]
	if !ok {
		return Snapshot{}, false
	}
	return e.track.Snapshot(), true
}

// LastPosition returns the newest accepted sample of a track
func (p *Processor) LastPosition(hex string) (PositionSample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.registry[hex]
	if !ok {
		return PositionSample{}, false
	}
	return e.track.LastValid()
}

// Reset drops every track
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry = make(map[string]*entry)
	p.last = CycleStats{}
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
