package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Feed     FeedConfig     `toml:"feed"`     // Aircraft position source settings
	Tracking TrackingConfig `toml:"tracking"` // Position validation and heading settings
	Storage  StorageConfig  `toml:"storage"`  // Trail persistence settings
	Airports AirportsConfig `toml:"airports"` // Airport reference data
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
	Metrics  MetricsConfig  `toml:"metrics"`  // Prometheus metrics settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir   string `toml:"static_files_dir"`      // Directory to serve static files from (empty = disabled)
}

// FeedConfig contains the aircraft data source configuration
type FeedConfig struct {
	// Source selection
	// Allowed values:
	// - "local": poll a dump1090 / tar1090 aircraft.json URL
	// - "playback": replay adsb_data_<N>.json snapshots from a directory
	SourceType string `toml:"source_type"`

	// Live polling and playback settings
	LocalSourceURL      string  `toml:"local_source_url"`          // e.g. http://localhost:8080/data/aircraft.json
	PollIntervalSecs    float64 `toml:"poll_interval_seconds"`     // Delay between polls
	RequestTimeoutSecs  int     `toml:"request_timeout_seconds"`   // HTTP timeout per poll
	MaxConsecutiveErrs  int     `toml:"max_consecutive_errors"`    // Errors before backing off
	ErrorBackoffSecs    int     `toml:"error_backoff_seconds"`     // Backoff after too many errors
	PlaybackDir         string  `toml:"playback_dir"`              // Directory holding adsb_data_<N>.json files
	PlaybackSpeed       float64 `toml:"playback_speed"`            // 1.0 = real time, 2.0 = twice as fast
	PlaybackIntervalSec float64 `toml:"playback_interval_seconds"` // Real-time spacing of recorded snapshots
	PlaybackLoop        bool    `toml:"playback_loop"`             // Rewind when all files are consumed
	PlaybackAutoExit    bool    `toml:"playback_auto_exit"`        // Stop the feed loop when playback completes
}

// CycleInterval returns the spacing between processing cycles for the
// selected source
func (f FeedConfig) CycleInterval() time.Duration {
	if f.SourceType == "playback" {
		return time.Duration(f.PlaybackIntervalSec / f.PlaybackSpeed * float64(time.Second))
	}
	return time.Duration(f.PollIntervalSecs * float64(time.Second))
}

// TrackingConfig contains the position validation, heading and trail settings
type TrackingConfig struct {
	MaxJumpKm              float64 `toml:"max_jump_km"`              // Largest single-step displacement accepted
	MaxSpeedKts            float64 `toml:"max_speed_kts"`            // Largest implied ground speed accepted
	MinTimeDiffSecs        float64 `toml:"min_time_diff"`            // Minimum spacing between accepted samples
	HistoryCapacity        int     `toml:"history_capacity"`         // Accepted samples kept per aircraft
	OutlierDistanceKm      float64 `toml:"outlier_distance_km"`      // Fixed floor for the pattern check
	OutlierSpeedMultiplier float64 `toml:"outlier_speed_multiplier"` // Slack applied to the speed-derived reach

	TrackSmoothAlpha             float64 `toml:"track_smooth_alpha"`              // Blend factor against the previously displayed track
	MinTrackChange               float64 `toml:"min_track_change"`                // Deadband in degrees for the final smoothing pass
	UseMovementHeading           bool    `toml:"use_movement_heading"`            // Reconcile reported track with movement-derived heading
	HeadingConfidenceThresholdKm float64 `toml:"heading_confidence_threshold_km"` // Minimum displacement to trust a derived bearing

	StalenessWindowSecs float64 `toml:"staleness_window_seconds"` // Tracks with no accepted sample for this long are discarded
	MaxDisplayedCount   int     `toml:"max_displayed_count"`      // Cap on reports processed per cycle

	RegionFilter RegionFilterConfig `toml:"region_filter"`
	Trail        TrailConfig        `toml:"trail"`
}

// RegionFilterConfig restricts processing to a circle around a center point
type RegionFilterConfig struct {
	Enabled   bool    `toml:"enabled"`
	CenterLat float64 `toml:"center_lat"`
	CenterLon float64 `toml:"center_lon"`
	RadiusKm  float64 `toml:"radius_km"`
}

// TrailConfig contains rendering trail settings
type TrailConfig struct {
	Enabled   bool `toml:"enabled"`
	MaxPoints int  `toml:"max_points"` // Maximum trail points sent per aircraft
}

// StorageConfig contains trail persistence configuration
type StorageConfig struct {
	Enabled        bool   `toml:"enabled"`         // Persist displayed positions
	SQLitePath     string `toml:"sqlite_path"`     // Database file
	RetentionHours int    `toml:"retention_hours"` // Trail points older than this are removed
	CleanupSecs    int    `toml:"cleanup_interval_seconds"`
	QueueSize      int    `toml:"queue_size"` // Buffered positions awaiting persistence
	TrailAPILimit  int    `toml:"trail_api_limit"`
}

// AirportsConfig contains airport reference data settings
type AirportsConfig struct {
	DBPath string   `toml:"db_path"` // Path to airport database CSV file (OurAirports format)
	Types  []string `toml:"types"`   // Airport types to load (e.g., large_airport, medium_airport)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
	File       string `toml:"file"`   // Optional rotating log file
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used for any key the file leaves out
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             5000,
			Host:             "0.0.0.0",
			ReadTimeoutSecs:  10,
			WriteTimeoutSecs: 0,
			IdleTimeoutSecs:  60,
		},
		Feed: FeedConfig{
			SourceType:          "local",
			LocalSourceURL:      "http://localhost:8080/data/aircraft.json",
			PollIntervalSecs:    1.0,
			RequestTimeoutSecs:  8,
			MaxConsecutiveErrs:  5,
			ErrorBackoffSecs:    30,
			PlaybackDir:         "json_files",
			PlaybackSpeed:       1.0,
			PlaybackIntervalSec: 5.0,
			PlaybackAutoExit:    true,
		},
		Tracking: DefaultTrackingConfig(),
		Storage: StorageConfig{
			SQLitePath:     "flight_history.db",
			RetentionHours: 24,
			CleanupSecs:    3600,
			QueueSize:      1024,
			TrailAPILimit:  100,
		},
		Airports: AirportsConfig{
			Types: []string{"large_airport", "medium_airport"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  64,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// DefaultTrackingConfig returns the tracking defaults tuned for commercial jet traffic
func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		MaxJumpKm:                    15.0,
		MaxSpeedKts:                  750.0,
		MinTimeDiffSecs:              0.3,
		HistoryCapacity:              200,
		OutlierDistanceKm:            8.0,
		OutlierSpeedMultiplier:       2.5,
		TrackSmoothAlpha:             0.4,
		MinTrackChange:               5.0,
		UseMovementHeading:           true,
		HeadingConfidenceThresholdKm: 0.1,
		StalenessWindowSecs:          600,
		MaxDisplayedCount:            300,
		RegionFilter: RegionFilterConfig{
			Enabled:   true,
			CenterLat: 40.0,
			CenterLon: 29.0,
			RadiusKm:  400,
		},
		Trail: TrailConfig{
			Enabled:   true,
			MaxPoints: 50,
		},
	}
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Keys present in the file override the defaults
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}

	if err := c.ValidateFeed(); err != nil {
		return err
	}

	if err := c.Tracking.Validate(); err != nil {
		return err
	}

	// Validate storage config
	if c.Storage.Enabled {
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required when storage is enabled")
		}
		if c.Storage.RetentionHours <= 0 {
			return fmt.Errorf("invalid retention_hours: %d (must be > 0)", c.Storage.RetentionHours)
		}
		if c.Storage.CleanupSecs <= 0 {
			c.Storage.CleanupSecs = 3600
		}
		if c.Storage.QueueSize <= 0 {
			c.Storage.QueueSize = 1024
		}
	}
	if c.Storage.TrailAPILimit <= 0 {
		c.Storage.TrailAPILimit = 100
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	return nil
}

// ValidateFeed validates the feed configuration
func (c *Config) ValidateFeed() error {
	if c.Feed.SourceType == "" {
		c.Feed.SourceType = "local" // Default to local if not specified
	}

	switch c.Feed.SourceType {
	case "local":
		if c.Feed.LocalSourceURL == "" {
			return fmt.Errorf("local_source_url is required when source_type is local")
		}
		if c.Feed.PollIntervalSecs <= 0 {
			return fmt.Errorf("invalid poll interval: %f", c.Feed.PollIntervalSecs)
		}
		if c.Feed.RequestTimeoutSecs <= 0 {
			c.Feed.RequestTimeoutSecs = 8
		}
		if c.Feed.MaxConsecutiveErrs <= 0 {
			c.Feed.MaxConsecutiveErrs = 5
		}
		if c.Feed.ErrorBackoffSecs < 0 {
			return fmt.Errorf("invalid error_backoff_seconds: %d (must be >= 0)", c.Feed.ErrorBackoffSecs)
		}
	case "playback":
		if c.Feed.PlaybackDir == "" {
			return fmt.Errorf("playback_dir is required when source_type is playback")
		}
		if c.Feed.PlaybackSpeed <= 0 {
			return fmt.Errorf("playback_speed must be positive: %f", c.Feed.PlaybackSpeed)
		}
		if c.Feed.PlaybackIntervalSec <= 0 {
			return fmt.Errorf("playback_interval_seconds must be positive: %f", c.Feed.PlaybackIntervalSec)
		}
	default:
		return fmt.Errorf("invalid feed source type: %s (must be 'local' or 'playback')", c.Feed.SourceType)
	}

	return nil
}

// Validate validates the tracking configuration
func (t *TrackingConfig) Validate() error {
	if t.MaxJumpKm <= 0 {
		return fmt.Errorf("max_jump_km must be positive: %f", t.MaxJumpKm)
	}
	if t.MaxSpeedKts <= 0 {
		return fmt.Errorf("max_speed_kts must be positive: %f", t.MaxSpeedKts)
	}
	if t.MinTimeDiffSecs < 0 {
		return fmt.Errorf("min_time_diff must be >= 0: %f", t.MinTimeDiffSecs)
	}
	if t.HistoryCapacity < 2 {
		return fmt.Errorf("history_capacity must be at least 2: %d", t.HistoryCapacity)
	}
	if t.OutlierDistanceKm <= 0 {
		return fmt.Errorf("outlier_distance_km must be positive: %f", t.OutlierDistanceKm)
	}
	if t.OutlierSpeedMultiplier <= 0 {
		return fmt.Errorf("outlier_speed_multiplier must be positive: %f", t.OutlierSpeedMultiplier)
	}
	if t.TrackSmoothAlpha <= 0 || t.TrackSmoothAlpha > 1 {
		return fmt.Errorf("track_smooth_alpha must be in (0,1]: %f", t.TrackSmoothAlpha)
	}
	if t.MinTrackChange < 0 || t.MinTrackChange >= 180 {
		return fmt.Errorf("min_track_change must be in [0,180): %f", t.MinTrackChange)
	}
	if t.HeadingConfidenceThresholdKm < 0 {
		return fmt.Errorf("heading_confidence_threshold_km must be >= 0: %f", t.HeadingConfidenceThresholdKm)
	}
	if t.StalenessWindowSecs <= 0 {
		return fmt.Errorf("staleness_window_seconds must be positive: %f", t.StalenessWindowSecs)
	}
	if t.MaxDisplayedCount <= 0 {
		return fmt.Errorf("max_displayed_count must be positive: %d", t.MaxDisplayedCount)
	}

	if t.RegionFilter.Enabled {
		if t.RegionFilter.CenterLat < -90 || t.RegionFilter.CenterLat > 90 {
			return fmt.Errorf("invalid region center latitude: %f", t.RegionFilter.CenterLat)
		}
		if t.RegionFilter.CenterLon < -180 || t.RegionFilter.CenterLon > 180 {
			return fmt.Errorf("invalid region center longitude: %f", t.RegionFilter.CenterLon)
		}
		if t.RegionFilter.RadiusKm <= 0 {
			return fmt.Errorf("region radius_km must be positive: %f", t.RegionFilter.RadiusKm)
		}
	}

	if t.Trail.Enabled && t.Trail.MaxPoints <= 0 {
		return fmt.Errorf("trail max_points must be positive when trails are enabled: %d", t.Trail.MaxPoints)
	}

	return nil
}
