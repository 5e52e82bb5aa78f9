package adsb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yegors/adsb-tracker/internal/metrics"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

// ErrPlaybackComplete is returned once every recorded snapshot has been
// delivered and looping is disabled
var ErrPlaybackComplete = errors.New("playback complete")

const playbackPattern = "adsb_data_*.json"

// Progress reports how far playback has advanced
type Progress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// PlaybackReader replays recorded aircraft.json snapshots from a directory
type PlaybackReader struct {
	dir    string
	loop   bool
	logger *logger.Logger

	mu    sync.Mutex
	files []string
	index int
}

// NewPlaybackReader lists the snapshots in dir, ordered by the number in
// their file name
func NewPlaybackReader(dir string, loop bool, loggerObj *logger.Logger) (*PlaybackReader, error) {
	files, err := filepath.Glob(filepath.Join(dir, playbackPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list playback files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", playbackPattern, dir)
	}

	slices.SortStableFunc(files, func(a, b string) int {
		return snapshotNumber(a) - snapshotNumber(b)
	})

	r := &PlaybackReader{
		dir:    dir,
		loop:   loop,
		files:  files,
		logger: loggerObj.Named("playback"),
	}
	r.logger.Info("Loaded playback files",
		logger.String("dir", dir),
		logger.Int("count", len(files)),
		logger.String("first", filepath.Base(files[0])),
		logger.Bool("loop", loop))

	return r, nil
}

// snapshotNumber extracts N from adsb_data_N.json, or 0 when absent
func snapshotNumber(path string) int {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	n, err := strconv.Atoi(name[strings.LastIndex(name, "_")+1:])
	if err != nil {
		return 0
	}
	return n
}

// Name returns the data source name
func (r *PlaybackReader) Name() string {
	return SourcePlayback
}

// FetchData returns the next snapshot. Files that cannot be read or decoded
// are skipped. Without looping, ErrPlaybackComplete follows the last file.
func (r *PlaybackReader) FetchData(ctx context.Context) (*RawAircraftData, error) {
	start := time.Now()
	defer func() {
		metrics.FeedFetchDuration.WithLabelValues(SourcePlayback).Observe(time.Since(start).Seconds())
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	for skipped := 0; skipped <= len(r.files); skipped++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if r.index >= len(r.files) {
			if !r.loop {
				return nil, ErrPlaybackComplete
			}
			r.logger.Info("Playback rewound to the first file")
			r.index = 0
		}

		path := r.files[r.index]
		r.index++

		data, err := readSnapshot(path)
		if err != nil {
			metrics.FeedFetchesTotal.WithLabelValues(SourcePlayback, "error").Inc()
			r.logger.Warn("Skipping unreadable playback file",
				logger.String("file", filepath.Base(path)),
				logger.Error(err))
			continue
		}

		metrics.FeedFetchesTotal.WithLabelValues(SourcePlayback, "ok").Inc()
		r.logger.Debug("Read playback file",
			logger.String("file", filepath.Base(path)),
			logger.Int("aircraft_count", len(data.Aircraft)))
		return data, nil
	}

	return nil, fmt.Errorf("no readable playback files in %s", r.dir)
}

func readSnapshot(path string) (*RawAircraftData, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var data RawAircraftData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &data, nil
}

// Progress returns the number of files consumed so far
func (r *PlaybackReader) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := Progress{Current: r.index, Total: len(r.files)}
	if p.Total > 0 {
		p.Percent = float64(p.Current) / float64(p.Total) * 100
	}
	return p
}

// Reset rewinds playback to the first file
func (r *PlaybackReader) Reset() {
	r.mu.Lock()
	r.index = 0
	r.mu.Unlock()
	r.logger.Info("Playback reset")
}
