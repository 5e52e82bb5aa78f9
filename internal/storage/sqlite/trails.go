package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/yegors/adsb-tracker/pkg/logger"
	_ "modernc.org/sqlite"
)

// DefaultTrailLimit bounds GetTrail when no positive limit is given
const DefaultTrailLimit = 100

// TrailPoint is one persisted position of an aircraft
type TrailPoint struct {
	Hex          string   `json:"hex"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	Altitude     *float64 `json:"altitude"`
	Speed        *float64 `json:"speed"`
	Track        *float64 `json:"track"`
	Timestamp    float64  `json:"timestamp"`
	Flight       string   `json:"-"`
	AircraftType string   `json:"-"`
	Registration string   `json:"-"`
}

// TrailMetadata summarizes everything stored for one aircraft
type TrailMetadata struct {
	Hex          string    `json:"hex"`
	Flight       string    `json:"flight_code"`
	AircraftType string    `json:"aircraft_type"`
	Registration string    `json:"registration"`
	PointCount   int       `json:"point_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MaxAltitude  float64   `json:"max_altitude"`
	AvgSpeed     float64   `json:"avg_speed"`
}

// LongestTrail identifies the aircraft with the most stored points
type LongestTrail struct {
	Hex        string `json:"hex_id,omitempty"`
	PointCount int    `json:"point_count"`
	Flight     string `json:"flight_code,omitempty"`
}

// Statistics describes the contents of the trail database
type Statistics struct {
	TotalPoints   int          `json:"total_points"`
	TotalAircraft int          `json:"total_aircraft"`
	LongestTrail  LongestTrail `json:"longest_trail"`
	SizeMB        float64      `json:"db_size_mb"`
}

// TrailStorage is a SQLite-based store for aircraft trails
type TrailStorage struct {
	db     *sql.DB
	path   string
	logger *logger.Logger
	now    func() time.Time
}

// NewTrailStorage opens (creating if needed) the trail database at dbPath
func NewTrailStorage(dbPath string, log *logger.Logger) (*TrailStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite trail storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &TrailStorage{
		db:     db,
		path:   dbPath,
		logger: storageLogger,
		now:    time.Now,
	}, nil
}

// Close closes the database connection
func (s *TrailStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trail_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hex_id TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			altitude REAL,
			speed REAL,
			track REAL,
			timestamp REAL NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trail_points table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_trail_points_hex_timestamp ON trail_points(hex_id, timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to create trail_points index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_trail_points_created_at ON trail_points(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trail_metadata (
			hex_id TEXT PRIMARY KEY,
			flight_code TEXT,
			aircraft_type TEXT,
			registration TEXT,
			point_count INTEGER NOT NULL DEFAULT 0,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			max_altitude REAL NOT NULL DEFAULT 0,
			avg_speed REAL NOT NULL DEFAULT 0,
			speed_samples INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trail_metadata table: %w", err)
	}

	// Databases created before speed_samples existed
	var hasSamples int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('trail_metadata') WHERE name = 'speed_samples'`).Scan(&hasSamples)
	if err != nil {
		return fmt.Errorf("failed to inspect trail_metadata: %w", err)
	}
	if hasSamples == 0 {
		log.Info("Adding speed_samples column to trail_metadata")
		_, err = db.Exec(`ALTER TABLE trail_metadata ADD COLUMN speed_samples INTEGER NOT NULL DEFAULT 0`)
		if err != nil {
			return fmt.Errorf("failed to add speed_samples column: %w", err)
		}
		_, err = db.Exec(`UPDATE trail_metadata SET speed_samples = point_count`)
		if err != nil {
			return fmt.Errorf("failed to backfill speed_samples: %w", err)
		}
	}

	return nil
}

// SaveTrailPoint appends a point and folds it into the aircraft's metadata
func (s *TrailStorage) SaveTrailPoint(ctx context.Context, p TrailPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := s.now().Unix()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trail_points (hex_id, lat, lon, altitude, speed, track, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Hex, p.Lat, p.Lon, nullFloat(p.Altitude), nullFloat(p.Speed), nullFloat(p.Track), p.Timestamp, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert trail point: %w", err)
	}

	// avg_speed only averages points that reported a speed
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trail_metadata
			(hex_id, flight_code, aircraft_type, registration, point_count, first_seen, last_seen, max_altitude, avg_speed, speed_samples)
		VALUES (?1, ?2, ?3, ?4, 1, ?5, ?5, ?6, COALESCE(?7, 0), ?7 IS NOT NULL)
		ON CONFLICT(hex_id) DO UPDATE SET
			flight_code = COALESCE(NULLIF(excluded.flight_code, ''), flight_code),
			aircraft_type = COALESCE(NULLIF(excluded.aircraft_type, ''), aircraft_type),
			registration = COALESCE(NULLIF(excluded.registration, ''), registration),
			point_count = point_count + 1,
			last_seen = excluded.last_seen,
			max_altitude = MAX(max_altitude, excluded.max_altitude),
			avg_speed = CASE
				WHEN excluded.speed_samples = 0 THEN avg_speed
				ELSE (avg_speed * speed_samples + excluded.avg_speed) / (speed_samples + 1)
			END,
			speed_samples = speed_samples + excluded.speed_samples
	`, p.Hex, p.Flight, p.AircraftType, p.Registration, createdAt, valueOrZero(p.Altitude), nullFloat(p.Speed))
	if err != nil {
		return fmt.Errorf("failed to update trail metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trail point: %w", err)
	}
	return nil
}

// GetTrail returns up to limit of the most recent points for hex, oldest first
func (s *TrailStorage) GetTrail(ctx context.Context, hex string, limit int) ([]TrailPoint, error) {
	if limit <= 0 {
		limit = DefaultTrailLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lat, lon, altitude, speed, track, timestamp
		FROM trail_points
		WHERE hex_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, hex, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trail: %w", err)
	}
	defer rows.Close()

	points := make([]TrailPoint, 0, limit)
	for rows.Next() {
		var p TrailPoint
		var altitude, speed, track sql.NullFloat64
		if err := rows.Scan(&p.Lat, &p.Lon, &altitude, &speed, &track, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trail point: %w", err)
		}
		p.Hex = hex
		p.Altitude = floatFromNull(altitude)
		p.Speed = floatFromNull(speed)
		p.Track = floatFromNull(track)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trail: %w", err)
	}

	slices.Reverse(points)
	return points, nil
}

// GetTrailMetadata returns the summary for hex, or nil when nothing is stored
func (s *TrailStorage) GetTrailMetadata(ctx context.Context, hex string) (*TrailMetadata, error) {
	var meta TrailMetadata
	var flight, aircraftType, registration sql.NullString
	var firstSeen, lastSeen int64
	err := s.db.QueryRowContext(ctx, `
		SELECT flight_code, aircraft_type, registration, point_count, first_seen, last_seen, max_altitude, avg_speed
		FROM trail_metadata
		WHERE hex_id = ?
	`, hex).Scan(&flight, &aircraftType, &registration, &meta.PointCount, &firstSeen, &lastSeen, &meta.MaxAltitude, &meta.AvgSpeed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trail metadata: %w", err)
	}

	meta.Hex = hex
	meta.Flight = flight.String
	meta.AircraftType = aircraftType.String
	meta.Registration = registration.String
	meta.FirstSeen = time.Unix(firstSeen, 0).UTC()
	meta.LastSeen = time.Unix(lastSeen, 0).UTC()
	return &meta, nil
}

// CleanupOldTrails deletes points stored more than hours ago, recounts the
// surviving trails and drops metadata that no longer has any points. It
// returns the number of deleted points and aircraft.
func (s *TrailStorage) CleanupOldTrails(ctx context.Context, hours int) (int64, int64, error) {
	cutoff := s.now().Add(-time.Duration(hours) * time.Hour).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM trail_points WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete old trail points: %w", err)
	}
	points, _ := res.RowsAffected()

	if points > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE trail_metadata
			SET point_count = (SELECT COUNT(*) FROM trail_points WHERE trail_points.hex_id = trail_metadata.hex_id)
		`)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to recount trail points: %w", err)
		}
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM trail_metadata
		WHERE hex_id NOT IN (SELECT DISTINCT hex_id FROM trail_points)
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete orphan metadata: %w", err)
	}
	aircraft, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	s.logger.Info("Cleaned up old trails",
		logger.Int64("deleted_points", points),
		logger.Int64("deleted_aircraft", aircraft),
		logger.Int("retention_hours", hours))

	return points, aircraft, nil
}

// GetAllActiveTrails returns the trails of every aircraft that stored a point
// within the last hours
func (s *TrailStorage) GetAllActiveTrails(ctx context.Context, hours, limit int) (map[string][]TrailPoint, error) {
	cutoff := s.now().Add(-time.Duration(hours) * time.Hour).Unix()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT hex_id FROM trail_points WHERE created_at > ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query active aircraft: %w", err)
	}

	var hexes []string
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan hex: %w", err)
		}
		hexes = append(hexes, hex)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active aircraft: %w", err)
	}

	trails := make(map[string][]TrailPoint, len(hexes))
	for _, hex := range hexes {
		trail, err := s.GetTrail(ctx, hex, limit)
		if err != nil {
			return nil, err
		}
		trails[hex] = trail
	}
	return trails, nil
}

// GetStatistics summarizes the database contents
func (s *TrailStorage) GetStatistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trail_points`).Scan(&stats.TotalPoints); err != nil {
		return nil, fmt.Errorf("failed to count trail points: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trail_metadata`).Scan(&stats.TotalAircraft); err != nil {
		return nil, fmt.Errorf("failed to count aircraft: %w", err)
	}

	var flight sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT hex_id, point_count, flight_code
		FROM trail_metadata
		ORDER BY point_count DESC
		LIMIT 1
	`).Scan(&stats.LongestTrail.Hex, &stats.LongestTrail.PointCount, &flight)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query longest trail: %w", err)
	}
	stats.LongestTrail.Flight = flight.String

	if info, err := os.Stat(s.path); err == nil {
		stats.SizeMB = float64(int(float64(info.Size())/(1024*1024)*100)) / 100
	}

	return &stats, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func floatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
