package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gfbeer/venue-finder/internal/analytics"
	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/results"

	_ "modernc.org/sqlite"
)

var errNotInitialized = errors.New("store not initialized")

// Store wraps the SQLite database connection and schema lifecycle.
type Store struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNotInitialized
	}
	return s.db.PingContext(ctx)
}

// InitSchema ensures baseline tables exist.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS search_episodes (
			owner TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			descriptor TEXT NOT NULL,
			page TEXT NOT NULL,
			title TEXT NOT NULL,
			stored_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS location_readings (
			owner TEXT PRIMARY KEY,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			accuracy_m REAL NOT NULL,
			acquired_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS geocode_cache (
			cache_key TEXT PRIMARY KEY,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			category TEXT NOT NULL,
			label TEXT,
			count INTEGER,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_events_time ON analytics_events(recorded_at);`,
		`CREATE TABLE IF NOT EXISTS app_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t, _ = time.Parse("2006-01-02T15:04:05Z07:00", raw)
	}
	return t
}

// Scoped is the per-owner view of the store. An owner is a session id, or a fixed name for
// single-user front-ends.
type Scoped struct {
	s     *Store
	owner string
}

// Scope returns the view for owner.
func (s *Store) Scope(owner string) Scoped {
	return Scoped{s: s, owner: owner}
}

// SaveEpisode replaces the owner's stored search episode.
func (sc Scoped) SaveEpisode(ctx context.Context, e results.Entry) error {
	if sc.s.db == nil {
		return errNotInitialized
	}

	desc, err := json.Marshal(e.Descriptor)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	page, err := json.Marshal(e.Page)
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}

	_, err = sc.s.db.ExecContext(
		ctx,
		`INSERT INTO search_episodes (owner, mode, descriptor, page, title, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner)
		 DO UPDATE SET mode = excluded.mode,
				 descriptor = excluded.descriptor,
				 page = excluded.page,
				 title = excluded.title,
				 stored_at = excluded.stored_at;`,
		sc.owner,
		string(e.Descriptor.Mode),
		string(desc),
		string(page),
		e.Title,
		formatTime(e.StoredAt),
	)
	if err != nil {
		return fmt.Errorf("save search episode: %w", err)
	}
	return nil
}

// LoadEpisode returns the owner's stored episode, or nil.
func (sc Scoped) LoadEpisode(ctx context.Context) (*results.Entry, error) {
	if sc.s.db == nil {
		return nil, errNotInitialized
	}

	var descRaw, pageRaw, title, storedAt string
	err := sc.s.db.QueryRowContext(ctx,
		`SELECT descriptor, page, title, stored_at FROM search_episodes WHERE owner = ?;`,
		sc.owner,
	).Scan(&descRaw, &pageRaw, &title, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load search episode: %w", err)
	}

	e := &results.Entry{Title: title, StoredAt: parseTime(storedAt)}
	if err := json.Unmarshal([]byte(descRaw), &e.Descriptor); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if err := json.Unmarshal([]byte(pageRaw), &e.Page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return e, nil
}

// ClearEpisode forgets the owner's episode.
func (sc Scoped) ClearEpisode(ctx context.Context) error {
	if sc.s.db == nil {
		return errNotInitialized
	}
	if _, err := sc.s.db.ExecContext(ctx, `DELETE FROM search_episodes WHERE owner = ?;`, sc.owner); err != nil {
		return fmt.Errorf("clear search episode: %w", err)
	}
	return nil
}

// SaveLocation replaces the owner's cached reading.
func (sc Scoped) SaveLocation(ctx context.Context, r model.LocationReading) error {
	if sc.s.db == nil {
		return errNotInitialized
	}

	_, err := sc.s.db.ExecContext(
		ctx,
		`INSERT INTO location_readings (owner, latitude, longitude, accuracy_m, acquired_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner)
		 DO UPDATE SET latitude = excluded.latitude,
				 longitude = excluded.longitude,
				 accuracy_m = excluded.accuracy_m,
				 acquired_at = excluded.acquired_at;`,
		sc.owner,
		r.Latitude,
		r.Longitude,
		r.AccuracyMeters,
		formatTime(r.AcquiredAt),
	)
	if err != nil {
		return fmt.Errorf("save location: %w", err)
	}
	return nil
}

// LoadLocation returns the owner's cached reading, or nil. Expiry is the caller's concern.
func (sc Scoped) LoadLocation(ctx context.Context) (*model.LocationReading, error) {
	if sc.s.db == nil {
		return nil, errNotInitialized
	}

	var (
		r        model.LocationReading
		acquired string
	)
	err := sc.s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude, accuracy_m, acquired_at FROM location_readings WHERE owner = ?;`,
		sc.owner,
	).Scan(&r.Latitude, &r.Longitude, &r.AccuracyMeters, &acquired)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load location: %w", err)
	}
	r.AcquiredAt = parseTime(acquired)
	return &r, nil
}

// DeleteOwner removes everything stored for owner.
func (s *Store) DeleteOwner(ctx context.Context, owner string) error {
	if s.db == nil {
		return errNotInitialized
	}

	stmts := []string{
		`DELETE FROM search_episodes WHERE owner = ?;`,
		`DELETE FROM location_readings WHERE owner = ?;`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt, owner); err != nil {
			return fmt.Errorf("delete owner: %w", err)
		}
	}
	return nil
}

// CachedGeocode returns an unexpired cached point for key.
func (s *Store) CachedGeocode(ctx context.Context, key string, now time.Time) (model.GeoPoint, bool, error) {
	if s.db == nil {
		return model.GeoPoint{}, false, errNotInitialized
	}

	var (
		p       model.GeoPoint
		expires string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude, expires_at FROM geocode_cache WHERE cache_key = ?;`,
		key,
	).Scan(&p.Lat, &p.Lng, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GeoPoint{}, false, nil
	}
	if err != nil {
		return model.GeoPoint{}, false, fmt.Errorf("read geocode cache: %w", err)
	}
	if !parseTime(expires).After(now) {
		return model.GeoPoint{}, false, nil
	}
	return p, true, nil
}

// SaveGeocode stores p under key until expires.
func (s *Store) SaveGeocode(ctx context.Context, key string, p model.GeoPoint, expires time.Time) error {
	if s.db == nil {
		return errNotInitialized
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO geocode_cache (cache_key, latitude, longitude, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET latitude = excluded.latitude,
				 longitude = excluded.longitude,
				 expires_at = excluded.expires_at;`,
		key,
		p.Lat,
		p.Lng,
		formatTime(expires),
	)
	if err != nil {
		return fmt.Errorf("write geocode cache: %w", err)
	}
	return nil
}

// PurgeExpiredGeocodes deletes cache rows that expired before now.
func (s *Store) PurgeExpiredGeocodes(ctx context.Context, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNotInitialized
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE expires_at <= ?;`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge geocode cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertEvent appends an analytics event to the journal.
func (s *Store) InsertEvent(ctx context.Context, e analytics.Event) error {
	if s.db == nil {
		return errNotInitialized
	}

	recordedAt := e.At
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var count sql.NullInt64
	if e.Count != nil {
		count = sql.NullInt64{Int64: int64(*e.Count), Valid: true}
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO analytics_events (event, category, label, count, recorded_at) VALUES (?, ?, ?, ?, ?);`,
		e.Name,
		e.Category,
		e.Label,
		count,
		formatTime(recordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// RecentEvents returns journal entries newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int, since *time.Time) ([]analytics.Event, error) {
	if s.db == nil {
		return nil, errNotInitialized
	}

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT event, category, label, count, recorded_at FROM analytics_events`
	var args []interface{}
	if since != nil {
		query += ` WHERE recorded_at > ?`
		args = append(args, formatTime(*since))
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics events: %w", err)
	}
	defer rows.Close()

	events := make([]analytics.Event, 0, limit)
	for rows.Next() {
		var (
			e          analytics.Event
			label      sql.NullString
			count      sql.NullInt64
			recordedAt string
		)
		if err := rows.Scan(&e.Name, &e.Category, &label, &count, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan analytics event: %w", err)
		}
		e.Label = label.String
		if count.Valid {
			n := int(count.Int64)
			e.Count = &n
		}
		e.At = parseTime(recordedAt)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics events: %w", err)
	}

	return events, nil
}

// UpsertAppConfig stores or updates a configuration key/value pair.
func (s *Store) UpsertAppConfig(ctx context.Context, key, value string) error {
	if s.db == nil {
		return errNotInitialized
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO app_config (key, value, updated_at) VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		key,
		value,
	)
	if err != nil {
		return fmt.Errorf("upsert app config: %w", err)
	}
	return nil
}

// AppConfig returns all configuration entries as a map.
func (s *Store) AppConfig(ctx context.Context) (map[string]string, error) {
	if s.db == nil {
		return nil, errNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_config;`)
	if err != nil {
		return nil, fmt.Errorf("query app config: %w", err)
	}
	defer rows.Close()

	config := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan app config: %w", err)
		}
		config[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app config: %w", err)
	}

	return config, nil
}

// WipeData removes episodes, cached locations, geocodes and the analytics journal while
// preserving configuration.
func (s *Store) WipeData(ctx context.Context) error {
	if s.db == nil {
		return errNotInitialized
	}

	stmts := []string{
		`DELETE FROM search_episodes;`,
		`DELETE FROM location_readings;`,
		`DELETE FROM geocode_cache;`,
		`DELETE FROM analytics_events;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("wipe data: %w", err)
		}
	}

	return nil
}
