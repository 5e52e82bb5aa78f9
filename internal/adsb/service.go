package adsb

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yegors/adsb-tracker/internal/config"
	"github.com/yegors/adsb-tracker/internal/metrics"
	"github.com/yegors/adsb-tracker/internal/physics"
	"github.com/yegors/adsb-tracker/internal/storage/sqlite"
	"github.com/yegors/adsb-tracker/internal/track"
	"github.com/yegors/adsb-tracker/internal/websocket"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

// ErrResetUnsupported is returned by Reset when the source cannot rewind
var ErrResetUnsupported = errors.New("reset is only available in playback mode")

// Source delivers raw aircraft snapshots
type Source interface {
	Name() string
	FetchData(ctx context.Context) (*RawAircraftData, error)
}

// Rewinder is implemented by sources that replay recorded data
type Rewinder interface {
	Progress() Progress
	Reset()
}

// WebSocketServer defines the interface for broadcasting cycle updates
type WebSocketServer interface {
	Broadcast(message *websocket.Message)
	ClientCount() int
}

// TrailStore persists displayed positions
type TrailStore interface {
	SaveTrailPoint(ctx context.Context, p sqlite.TrailPoint) error
	CleanupOldTrails(ctx context.Context, hours int) (int64, int64, error)
}

// AircraftUpdate is a processed record as published to clients
type AircraftUpdate struct {
	track.Record
	MagneticTrack *float64 `json:"magnetic_track,omitempty"`
}

// Stats are the running totals exposed to clients and the API
type Stats struct {
	TotalUpdates        int       `json:"total_updates"` // Reports in the most recent snapshot
	PositionCorrections uint64    `json:"position_corrections"`
	HeadingCorrections  uint64    `json:"heading_corrections"`
	OutliersDetected    uint64    `json:"outliers_detected"`
	ActiveAircraft      int       `json:"active_aircraft"`
	DataSource          string    `json:"data_source"`
	LastUpdate          float64   `json:"last_update"`
	Progress            *Progress `json:"progress,omitempty"`
}

// Service drives the processing cycle: fetch, normalize, validate, publish
type Service struct {
	source      Source
	processor   *track.Processor
	store       TrailStore
	wsServer    WebSocketServer
	declination *physics.Declination
	feedCfg     config.FeedConfig
	storageCfg  config.StorageConfig
	limiter     *rate.Limiter
	logger      *logger.Logger

	cycleMu sync.Mutex // Serializes cycles with Reset

	mu              sync.RWMutex
	stats           Stats
	lastFetchTime   time.Time
	lastFetchStatus bool

	trailQueue chan sqlite.TrailPoint
	now        func() time.Time
	lastNow    float64 // Snapshot clock of the previous cycle, guarded by cycleMu
}

// NewService creates a new ADS-B service. store, wsServer and declination
// may be nil.
func NewService(
	source Source,
	processor *track.Processor,
	store TrailStore,
	wsServer WebSocketServer,
	declination *physics.Declination,
	feedCfg config.FeedConfig,
	storageCfg config.StorageConfig,
	log *logger.Logger,
) *Service {
	s := &Service{
		source:      source,
		processor:   processor,
		store:       store,
		wsServer:    wsServer,
		declination: declination,
		feedCfg:     feedCfg,
		storageCfg:  storageCfg,
		limiter:     rate.NewLimiter(rate.Every(feedCfg.CycleInterval()), 1),
		logger:      log.Named("adsb"),
		stats:       Stats{DataSource: source.Name()},
		now:         time.Now,
	}

	if store != nil {
		queueSize := storageCfg.QueueSize
		if queueSize <= 0 {
			queueSize = 1024
		}
		s.trailQueue = make(chan sqlite.TrailPoint, queueSize)
	}

	return s
}

// Run processes cycles until ctx is cancelled. When playback finishes and
// auto exit is enabled it returns ErrPlaybackComplete; without auto exit the
// loop idles until Reset rewinds the reader.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Starting ADS-B service",
		logger.String("source", s.source.Name()),
		logger.Duration("cycle_interval", s.feedCfg.CycleInterval()),
	)

	var wg sync.WaitGroup
	if s.store != nil {
		// Queued points are still written after ctx is cancelled
		workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
		cleanupCtx, stopCleanup := context.WithCancel(ctx)
		defer func() {
			stopCleanup()
			close(s.trailQueue)
			wg.Wait()
			stopWorker()
		}()

		wg.Add(2)
		go s.persistWorker(workerCtx, &wg)
		go s.cleanupLoop(cleanupCtx, &wg)
	}

	err := s.fetchLoop(ctx)
	s.logger.Info("ADS-B service stopped")

	switch {
	case errors.Is(err, ErrPlaybackComplete):
		s.logger.Info("Playback complete, exiting")
		return err
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// fetchLoop paces cycles with the limiter and backs off after repeated errors
func (s *Service) fetchLoop(ctx context.Context) error {
	consecutiveErrors := 0
	backoff := time.Duration(s.feedCfg.ErrorBackoffSecs) * time.Second
	idle := false

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		err := s.fetchAndProcess(ctx)
		if err == nil {
			consecutiveErrors = 0
			idle = false
			s.setFetchStatus(true)
			continue
		}
		if errors.Is(err, ErrPlaybackComplete) {
			if s.feedCfg.PlaybackAutoExit {
				return err
			}
			if !idle {
				s.logger.Info("Playback complete, waiting for reset")
				idle = true
			}
			continue
		}
		if ctx.Err() != nil {
			return err
		}

		s.setFetchStatus(false)
		consecutiveErrors++
		s.logger.Error("Failed to fetch ADS-B data",
			logger.Error(err),
			logger.Int("consecutive_errors", consecutiveErrors))

		if s.feedCfg.MaxConsecutiveErrs > 0 && consecutiveErrors >= s.feedCfg.MaxConsecutiveErrs {
			s.logger.Warn("Too many consecutive errors, backing off",
				logger.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			consecutiveErrors = 0
		}
	}
}

// fetchAndProcess runs one full cycle
func (s *Service) fetchAndProcess(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	raw, err := s.source.FetchData(ctx)
	if err != nil {
		return err
	}

	now := raw.Now
	if now <= 0 {
		now = float64(s.now().UnixNano()) / 1e9
	}
	if s.lastNow > 0 && now < s.lastNow {
		// Looping playback or a restarted receiver
		s.logger.Info("Feed clock went backwards, clearing tracks",
			logger.Float64("previous", s.lastNow),
			logger.Float64("now", now))
		s.processor.Reset()
	}
	s.lastNow = now

	reports := Normalize(raw)
	metrics.FeedReportsReceived.Add(float64(len(reports)))

	start := time.Now()
	result := s.processor.ProcessCycle(now, reports)
	metrics.RecordCycle(
		result.Stats.Displayed,
		result.Stats.ActiveTracks,
		result.Stats.PositionCorrections,
		result.Stats.HeadingCorrections,
		result.Stats.Evicted,
		time.Since(start).Seconds(),
	)

	stats := s.recordStats(now, result.Stats)

	s.logger.Debug("Processed cycle",
		logger.Int("reports", result.Stats.Total),
		logger.Int("displayed", result.Stats.Displayed),
		logger.Int("position_corrections", result.Stats.PositionCorrections),
		logger.Int("heading_corrections", result.Stats.HeadingCorrections),
		logger.Int("evicted", result.Stats.Evicted))

	s.persist(result.Records)
	s.broadcast(result, stats)
	return nil
}

func (s *Service) recordStats(now float64, cycle track.CycleStats) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalUpdates = cycle.Total
	s.stats.PositionCorrections += uint64(cycle.PositionCorrections)
	s.stats.HeadingCorrections += uint64(cycle.HeadingCorrections)
	s.stats.OutliersDetected = cycle.OutliersDetected
	s.stats.ActiveAircraft = cycle.ActiveTracks
	s.stats.LastUpdate = now
	s.lastFetchTime = s.now()

	return s.statsLocked()
}

// broadcast publishes the cycle when anyone is listening and there is
// something to show
func (s *Service) broadcast(result track.CycleResult, stats Stats) {
	if s.wsServer == nil || len(result.Records) == 0 || s.wsServer.ClientCount() == 0 {
		return
	}

	s.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeUpdate,
		Data: map[string]any{
			"now":      result.Now,
			"aircraft": s.updates(result.Records),
			"stats":    stats,
		},
	})
}

// updates adds the magnetic track to each record
func (s *Service) updates(records []track.Record) []AircraftUpdate {
	out := make([]AircraftUpdate, len(records))
	for i, rec := range records {
		out[i] = AircraftUpdate{Record: rec}
		if s.declination != nil && rec.Track != nil {
			mag := s.declination.MagneticTrack(*rec.Track, rec.Lat, rec.Lon)
			out[i].MagneticTrack = &mag
		}
	}
	return out
}

// persist queues displayed positions that carry a trail. The cycle loop
// never waits on the database; points are dropped when the queue is full.
func (s *Service) persist(records []track.Record) {
	if s.trailQueue == nil {
		return
	}

	for _, rec := range records {
		if len(rec.Trail) == 0 {
			continue
		}
		point := sqlite.TrailPoint{
			Hex:          rec.Hex,
			Lat:          rec.Lat,
			Lon:          rec.Lon,
			Altitude:     rec.Altitude,
			Speed:        rec.Speed,
			Track:        rec.Track,
			Timestamp:    rec.Timestamp,
			Flight:       rec.Flight,
			AircraftType: rec.AircraftType,
			Registration: rec.Registration,
		}
		select {
		case s.trailQueue <- point:
		default:
			metrics.TrailQueueDropped.Inc()
		}
	}
}

func (s *Service) persistWorker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for point := range s.trailQueue {
		if err := s.store.SaveTrailPoint(ctx, point); err != nil {
			metrics.TrailWritesTotal.WithLabelValues("error").Inc()
			s.logger.Error("Failed to save trail point",
				logger.String("hex", point.Hex),
				logger.Error(err))
			continue
		}
		metrics.TrailWritesTotal.WithLabelValues("ok").Inc()
	}
}

// cleanupLoop removes trails past the retention window
func (s *Service) cleanupLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := time.Duration(s.storageCfg.CleanupSecs) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, _, err := s.store.CleanupOldTrails(ctx, s.storageCfg.RetentionHours); err != nil {
				s.logger.Error("Failed to clean up old trails", logger.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Reset rewinds playback, drops every track and zeroes the correction
// counters
func (s *Service) Reset() error {
	rw, ok := s.source.(Rewinder)
	if !ok {
		return ErrResetUnsupported
	}

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	rw.Reset()
	s.processor.Reset()
	s.lastNow = 0

	s.mu.Lock()
	s.stats.PositionCorrections = 0
	s.stats.HeadingCorrections = 0
	s.stats.OutliersDetected = 0
	s.stats.ActiveAircraft = 0
	s.mu.Unlock()

	s.logger.Info("Service reset")
	return nil
}

// Stats returns the running totals
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *Service) statsLocked() Stats {
	stats := s.stats
	if rw, ok := s.source.(Rewinder); ok {
		p := rw.Progress()
		stats.Progress = &p
	}
	return stats
}

// Progress returns playback progress, or nil for live sources
func (s *Service) Progress() *Progress {
	rw, ok := s.source.(Rewinder)
	if !ok {
		return nil
	}
	p := rw.Progress()
	return &p
}

// DataSource returns the name of the configured source
func (s *Service) DataSource() string {
	return s.source.Name()
}

// Snapshots returns the per-aircraft diagnostic view
func (s *Service) Snapshots() []track.Snapshot {
	return s.processor.Snapshots()
}

// LastPosition returns the newest accepted position of an aircraft
func (s *Service) LastPosition(hex string) (track.PositionSample, bool) {
	return s.processor.LastPosition(hex)
}

// ActiveAircraft returns the number of tracked aircraft
func (s *Service) ActiveAircraft() int {
	return s.processor.ActiveTracks()
}

// GetStatus returns the time of the last cycle and whether the last fetch
// succeeded
func (s *Service) GetStatus() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetchTime, s.lastFetchStatus
}

func (s *Service) setFetchStatus(status bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFetchStatus = status
}
