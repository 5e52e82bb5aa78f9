package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/adsb-tracker/internal/adsb"
	"github.com/yegors/adsb-tracker/internal/airports"
	"github.com/yegors/adsb-tracker/internal/config"
	"github.com/yegors/adsb-tracker/internal/storage/sqlite"
	"github.com/yegors/adsb-tracker/internal/track"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

// TrackingService is the part of adsb.Service the API reads from
type TrackingService interface {
	Stats() adsb.Stats
	Snapshots() []track.Snapshot
	LastPosition(hex string) (track.PositionSample, bool)
	ActiveAircraft() int
	DataSource() string
	Progress() *adsb.Progress
	Reset() error
	GetStatus() (time.Time, bool)
}

// TrailReader reads persisted trails
type TrailReader interface {
	GetTrail(ctx context.Context, hex string, limit int) ([]sqlite.TrailPoint, error)
	GetTrailMetadata(ctx context.Context, hex string) (*sqlite.TrailMetadata, error)
	GetAllActiveTrails(ctx context.Context, hours, limit int) (map[string][]sqlite.TrailPoint, error)
	GetStatistics(ctx context.Context) (*sqlite.Statistics, error)
}

// ClientCounter reports connected WebSocket clients
type ClientCounter interface {
	ClientCount() int
}

// Handler contains the API handlers
type Handler struct {
	service  TrackingService
	trails   TrailReader
	airports *airports.Directory
	clients  ClientCounter
	config   *config.Config
	logger   *logger.Logger
	now      func() time.Time
}

// NewHandler creates a new API handler. trails is nil when persistence is
// disabled.
func NewHandler(service TrackingService, trails TrailReader, airportDir *airports.Directory, clients ClientCounter, config *config.Config, logger *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		trails:   trails,
		airports: airportDir,
		clients:  clients,
		config:   config,
		logger:   logger.Named("api-handler"),
		now:      time.Now,
	}
}

// aircraftDebug is the per-aircraft diagnostic entry of /api/stats
type aircraftDebug struct {
	PositionCount         int           `json:"position_count"`
	OutlierCount          uint64        `json:"outlier_count"`
	OutlierRate           float64       `json:"outlier_rate"` // Percent
	LastPosition          *lastPosition `json:"last_position,omitempty"`
	LastTrack             *float64      `json:"last_track"`
	MovementHeading       *float64      `json:"movement_heading"`
	TotalDistanceKm       float64       `json:"total_distance_km"`
	FlightDurationSeconds int           `json:"flight_duration_seconds"`
}

type lastPosition struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	AgeSeconds float64 `json:"age_seconds"`
}

// GetStats returns running totals, per-aircraft diagnostics and database statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	nowSecs := float64(now.UnixNano()) / 1e9

	debug := make(map[string]aircraftDebug)
	for _, snap := range h.service.Snapshots() {
		if snap.PositionCount == 0 {
			continue
		}
		entry := aircraftDebug{
			PositionCount:         snap.PositionCount,
			OutlierCount:          snap.OutlierCount,
			OutlierRate:           round(snap.OutlierRate*100, 1),
			LastTrack:             snap.LastTrack,
			MovementHeading:       snap.MovementHeading,
			TotalDistanceKm:       round(snap.TotalDistanceKm, 2),
			FlightDurationSeconds: int(snap.TrackedDurationSecs),
		}
		if p := snap.LastPosition; p != nil {
			entry.LastPosition = &lastPosition{
				Lat:        round(p.Lat, 6),
				Lon:        round(p.Lon, 6),
				AgeSeconds: round(nowSecs-p.Timestamp, 1),
			}
		}
		debug[snap.Hex] = entry
	}

	var database *sqlite.Statistics
	if h.trails != nil {
		stats, err := h.trails.GetStatistics(r.Context())
		if err != nil {
			h.logger.Error("Failed to read database statistics", logger.Error(err))
		} else {
			database = stats
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"stats":             h.service.Stats(),
		"aircraft":          debug,
		"connected_clients": h.clients.ClientCount(),
		"progress":          h.service.Progress(),
		"database":          database,
		"config": map[string]any{
			"data_source":            h.service.DataSource(),
			"max_speed_kts":          h.config.Tracking.MaxSpeedKts,
			"max_jump_km":            h.config.Tracking.MaxJumpKm,
			"use_movement_heading":   h.config.Tracking.UseMovementHeading,
			"use_sqlite":             h.config.Storage.Enabled,
			"max_displayed_aircraft": h.config.Tracking.MaxDisplayedCount,
		},
		"timestamp": now.Format(time.RFC3339),
	})
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	lastCycle, feedOK := h.service.GetStatus()
	var last *time.Time
	if !lastCycle.IsZero() {
		last = &lastCycle
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"feed_ok":           feedOK,
		"last_cycle":        last,
		"timestamp":         h.now().Format(time.RFC3339),
		"active_aircraft":   h.service.ActiveAircraft(),
		"connected_clients": h.clients.ClientCount(),
		"data_source":       h.service.DataSource(),
	})
}

// ResetPlayback rewinds playback and clears tracking state
func (h *Handler) ResetPlayback(w http.ResponseWriter, r *http.Request) {
	err := h.service.Reset()
	switch {
	case errors.Is(err, adsb.ErrResetUnsupported):
		WriteJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "Reset is only available in playback mode",
		})
	case err != nil:
		h.logger.Error("Failed to reset playback", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": err.Error(),
		})
	default:
		WriteJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Playback rewound",
		})
	}
}

// GetTrail returns the persisted trail and metadata of one aircraft
func (h *Handler) GetTrail(w http.ResponseWriter, r *http.Request) {
	hex := chi.URLParam(r, "hex")

	if h.trails == nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"message": "Trail storage is disabled",
		})
		return
	}

	id := strings.ToLower(hex)
	trail, err := h.trails.GetTrail(r.Context(), id, h.config.Storage.TrailAPILimit)
	if err != nil {
		h.logger.Error("Failed to read trail", logger.String("hex", id), logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
		return
	}

	metadata, err := h.trails.GetTrailMetadata(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to read trail metadata", logger.String("hex", id), logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"hex_id":   hex,
		"trail":    trail,
		"metadata": metadata,
	})
}

// GetActiveTrails returns the stored trails of every aircraft seen in the
// last ?hours= hours (default 1)
func (h *Handler) GetActiveTrails(w http.ResponseWriter, r *http.Request) {
	if h.trails == nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"message": "Trail storage is disabled",
		})
		return
	}

	hours := 1
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "hours must be a positive integer",
			})
			return
		}
		hours = min(n, h.config.Storage.RetentionHours)
	}

	trails, err := h.trails.GetAllActiveTrails(r.Context(), hours, h.config.Storage.TrailAPILimit)
	if err != nil {
		h.logger.Error("Failed to read active trails", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"hours":    hours,
		"aircraft": len(trails),
		"trails":   trails,
	})
}

// GetAirports returns the airport list as GeoJSON
func (h *Handler) GetAirports(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.airports.GeoJSON())
}

// GetNearestAirport returns the airport closest to an aircraft's last valid position
func (h *Handler) GetNearestAirport(w http.ResponseWriter, r *http.Request) {
	hex := strings.ToLower(chi.URLParam(r, "hex"))

	pos, ok := h.service.LastPosition(hex)
	if !ok {
		WriteJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Aircraft not found or has no position",
		})
		return
	}

	nearest, err := h.airports.Nearest(pos.Lat, pos.Lon)
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"nearest_airport": nearest,
	})
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
