package adsb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/adsb-tracker/internal/config"
	"github.com/yegors/adsb-tracker/internal/physics"
	"github.com/yegors/adsb-tracker/internal/storage/sqlite"
	"github.com/yegors/adsb-tracker/internal/track"
	"github.com/yegors/adsb-tracker/internal/websocket"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

// scriptedSource replays a fixed list of snapshots, then reports completion
type scriptedSource struct {
	mu        sync.Mutex
	snapshots []*RawAircraftData
	index     int
	resets    int
}

func (s *scriptedSource) Name() string { return SourcePlayback }

func (s *scriptedSource) FetchData(ctx context.Context) (*RawAircraftData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.snapshots) {
		return nil, ErrPlaybackComplete
	}
	data := s.snapshots[s.index]
	s.index++
	return data, nil
}

func (s *scriptedSource) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{Current: s.index, Total: len(s.snapshots)}
}

func (s *scriptedSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
	s.resets++
}

// failingSource is a live source that never succeeds
type failingSource struct {
	calls int
	mu    sync.Mutex
}

func (s *failingSource) Name() string { return SourceLocal }

func (s *failingSource) FetchData(ctx context.Context) (*RawAircraftData, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return nil, errors.New("connection refused")
}

type fakeHub struct {
	mu       sync.Mutex
	clients  int
	messages []*websocket.Message
}

func (h *fakeHub) Broadcast(m *websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
}

func (h *fakeHub) ClientCount() int { return h.clients }

type fakeStore struct {
	mu     sync.Mutex
	points []sqlite.TrailPoint
}

func (s *fakeStore) SaveTrailPoint(ctx context.Context, p sqlite.TrailPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
	return nil
}

func (s *fakeStore) CleanupOldTrails(ctx context.Context, hours int) (int64, int64, error) {
	return 0, 0, nil
}

func snapshot(now, lat float64) *RawAircraftData {
	return &RawAircraftData{
		Now: now,
		Aircraft: []ADSBTarget{
			{Hex: "ABC123", Lat: f(lat), Lon: f(29.0), Track: f(0), GS: f(200), SeenPos: f(0), Flight: "PGT1 "},
			{Hex: "nopos"},
		},
	}
}

func playbackFeed(autoExit bool) config.FeedConfig {
	feed := config.Default().Feed
	feed.SourceType = "playback"
	feed.PlaybackIntervalSec = 0.001
	feed.PlaybackSpeed = 1
	feed.PlaybackAutoExit = autoExit
	return feed
}

func newTestService(source Source, hub *fakeHub, store *fakeStore, feed config.FeedConfig) *Service {
	processor := track.NewProcessor(config.DefaultTrackingConfig(), logger.NewNop())
	var trailStore TrailStore
	if store != nil {
		trailStore = store
	}
	return NewService(source, processor, trailStore, hub, physics.NewDeclination(64, time.Hour, 4),
		feed, config.Default().Storage, logger.NewNop())
}

func TestService_PlaybackRun(t *testing.T) {
	source := &scriptedSource{snapshots: []*RawAircraftData{
		snapshot(1000, 40.00),
		snapshot(1010, 40.01),
		snapshot(1020, 40.02),
	}}
	hub := &fakeHub{clients: 1}
	store := &fakeStore{}
	svc := newTestService(source, hub, store, playbackFeed(true))

	err := svc.Run(context.Background())
	require.ErrorIs(t, err, ErrPlaybackComplete)

	// A trail exists from the second cycle on
	require.Len(t, store.points, 2)
	assert.Equal(t, "abc123", store.points[0].Hex)
	assert.Equal(t, "PGT1", store.points[0].Flight)
	assert.Equal(t, 1010.0, store.points[0].Timestamp)

	require.Len(t, hub.messages, 3)
	msg := hub.messages[2]
	assert.Equal(t, websocket.MessageTypeUpdate, msg.Type)
	assert.Equal(t, 1020.0, msg.Data["now"])

	updates, ok := msg.Data["aircraft"].([]AircraftUpdate)
	require.True(t, ok)
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].Track)
	require.NotNil(t, updates[0].MagneticTrack)
	assert.NotEqual(t, *updates[0].Track, *updates[0].MagneticTrack)

	stats := svc.Stats()
	assert.Equal(t, 1, stats.TotalUpdates, "entries without a position are not counted")
	assert.Equal(t, 1, stats.ActiveAircraft)
	assert.Equal(t, SourcePlayback, stats.DataSource)
	require.NotNil(t, stats.Progress)
	assert.Equal(t, 3, stats.Progress.Current)

	last, ok := svc.LastPosition("abc123")
	require.True(t, ok)
	assert.Equal(t, 40.02, last.Lat)
}

func TestService_PlaybackWithoutAutoExitWaitsForReset(t *testing.T) {
	source := &scriptedSource{snapshots: []*RawAircraftData{snapshot(1000, 40.0)}}
	svc := newTestService(source, &fakeHub{}, nil, playbackFeed(false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.ActiveAircraft() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Reset())
	require.Eventually(t, func() bool { return svc.ActiveAircraft() == 1 }, 2*time.Second, 5*time.Millisecond)

	source.mu.Lock()
	assert.Equal(t, 1, source.resets)
	source.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestService_LoopingPlaybackStartsFresh(t *testing.T) {
	dir := t.TempDir()
	for i, lat := range []float64{40.00, 40.01, 40.02} {
		body := fmt.Sprintf(`{"now": %d, "aircraft": [{"hex": "abc123", "lat": %.2f, "lon": 29.0, "track": 0, "gs": 200, "seen_pos": 0}]}`,
			1000+10*i, lat)
		path := filepath.Join(dir, fmt.Sprintf("adsb_data_%d.json", i+1))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	reader, err := NewPlaybackReader(dir, true, logger.NewNop())
	require.NoError(t, err)
	hub := &fakeHub{clients: 1}
	svc := newTestService(reader, hub, nil, playbackFeed(false))

	for range 6 {
		require.NoError(t, svc.fetchAndProcess(context.Background()))
	}

	require.Len(t, hub.messages, 6)
	for cycle, msg := range hub.messages {
		updates := msg.Data["aircraft"].([]AircraftUpdate)
		require.Len(t, updates, 1, "cycle %d", cycle)
		assert.False(t, updates[0].Corrected, "cycle %d", cycle)
	}

	second := hub.messages[3].Data["aircraft"].([]AircraftUpdate)[0]
	assert.Equal(t, track.ReasonFirstPosition, second.CorrectionReason)
	assert.Equal(t, 40.0, second.Lat)
	assert.Zero(t, svc.Stats().PositionCorrections)
	assert.Equal(t, 1, svc.ActiveAircraft())
}

func TestService_NoBroadcastWithoutClients(t *testing.T) {
	source := &scriptedSource{snapshots: []*RawAircraftData{snapshot(1000, 40.0)}}
	hub := &fakeHub{}
	svc := newTestService(source, hub, nil, playbackFeed(true))

	require.ErrorIs(t, svc.Run(context.Background()), ErrPlaybackComplete)
	assert.Empty(t, hub.messages)
}

func TestService_Reset(t *testing.T) {
	t.Run("Playback", func(t *testing.T) {
		source := &scriptedSource{snapshots: []*RawAircraftData{
			snapshot(1000, 40.00),
			snapshot(1010, 40.01),
		}}
		svc := newTestService(source, &fakeHub{}, nil, playbackFeed(true))
		require.ErrorIs(t, svc.Run(context.Background()), ErrPlaybackComplete)
		require.Equal(t, 1, svc.ActiveAircraft())

		require.NoError(t, svc.Reset())
		assert.Equal(t, 1, source.resets)
		assert.Equal(t, 0, svc.ActiveAircraft())
		assert.Zero(t, svc.Stats().PositionCorrections)
		assert.Zero(t, svc.Stats().HeadingCorrections)
	})

	t.Run("Live", func(t *testing.T) {
		svc := newTestService(&failingSource{}, &fakeHub{}, nil, config.Default().Feed)
		assert.ErrorIs(t, svc.Reset(), ErrResetUnsupported)
		assert.Nil(t, svc.Progress())
	})
}

func TestService_LiveErrorsKeepRetrying(t *testing.T) {
	feed := config.Default().Feed
	feed.PollIntervalSecs = 0.001
	feed.MaxConsecutiveErrs = 2
	feed.ErrorBackoffSecs = 0

	source := &failingSource{}
	svc := newTestService(source, &fakeHub{}, nil, feed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.calls >= 5
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	_, ok := svc.GetStatus()
	assert.False(t, ok)
}
