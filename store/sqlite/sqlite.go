/*
Package sqlite provides the SQLite-backed persistence for the carnival agenda.

PURPOSE:
  Stores the four content tables fed by the upstream carnival feed
  (neighborhoods, service_types, services, parades) plus the feed_state
  table that gates re-ingestion. The same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

WRITE MODEL:
  All content rows are keyed by the feed-supplied integer id and written
  with INSERT ... ON CONFLICT(id) DO UPDATE (replace semantics). The only
  write path is the feed reconciliation pass, which runs inside a single
  transaction via WithTx: either every upsert and the feed_state update
  from one sync apply, or none do.

KEY TABLES:
  neighborhoods: Referenced by services and parades (SET NULL on delete)
  service_types: Referenced by services (SET NULL on delete)
  services:      City services published alongside the parades
  parades:       Street parades with localized start/end timestamps
  feed_state:    One row per source URL: etag marker + last synced time

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/agenda.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - feed/sync.go: The reconciliation pass that drives all writes
  - api/handlers.go: Read-side consumers of the list/get queries
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database used by the agenda service.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS neighborhoods (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS service_types (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS services (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		address TEXT,
		latitude REAL,
		longitude REAL,
		neighborhood_id INTEGER REFERENCES neighborhoods(id) ON DELETE SET NULL,
		service_type_id INTEGER REFERENCES service_types(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_services_neighborhood
		ON services(neighborhood_id);
	CREATE INDEX IF NOT EXISTS idx_services_service_type
		ON services(service_type_id);

	CREATE TABLE IF NOT EXISTS parades (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		location TEXT,
		start_at TEXT,
		end_at TEXT,
		latitude REAL,
		longitude REAL,
		foundation_year INTEGER,
		neighborhood_id INTEGER REFERENCES neighborhoods(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path for the agenda listing (date-range queries)
	CREATE INDEX IF NOT EXISTS idx_parades_start_at
		ON parades(start_at);
	CREATE INDEX IF NOT EXISTS idx_parades_neighborhood
		ON parades(neighborhood_id);

	CREATE TABLE IF NOT EXISTS feed_state (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_url TEXT NOT NULL UNIQUE,
		last_synced_at TEXT,
		etag TEXT,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD TYPES
// =============================================================================

// Neighborhood is a stored neighborhood row.
type Neighborhood struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// ServiceType is a stored service type row.
type ServiceType struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Service is a stored service row. Optional fields are nil when the feed
// did not provide a usable value.
type Service struct {
	ID             int64
	Name           string
	Description    *string
	Address        *string
	Latitude       *float64
	Longitude      *float64
	NeighborhoodID *int64
	ServiceTypeID  *int64
	CreatedAt      time.Time
}

// Parade is a stored parade row. StartAt/EndAt are timezone-aware and
// already localized by the normalizer.
type Parade struct {
	ID             int64
	Name           string
	Description    *string
	Location       *string
	StartAt        *time.Time
	EndAt          *time.Time
	Latitude       *float64
	Longitude      *float64
	FoundationYear *int64
	NeighborhoodID *int64
	CreatedAt      time.Time
}

// FeedState is the per-source sync bookkeeping row. ETag holds the feed's
// opaque change marker ("" when the feed supplied none).
type FeedState struct {
	ID           int64
	SourceURL    string
	LastSyncedAt *time.Time
	ETag         string
	UpdatedAt    time.Time
}

// =============================================================================
// TRANSACTIONAL WRITES
// =============================================================================

// Tx exposes the write operations available inside a reconciliation
// transaction. All writes from one sync go through a single Tx.
type Tx struct {
	tx *sql.Tx
}

// WithTx executes fn within a database transaction. If fn returns an
// error the transaction is rolled back and nothing is persisted.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// UpsertNeighborhood inserts or replaces a neighborhood by id.
func (t *Tx) UpsertNeighborhood(ctx context.Context, n Neighborhood) error {
	query := `
		INSERT INTO neighborhoods (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
	`

	_, err := t.tx.ExecContext(ctx, query,
		n.ID, n.Name, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert neighborhood %d: %w", n.ID, err)
	}
	return nil
}

// UpsertServiceType inserts or replaces a service type by id.
func (t *Tx) UpsertServiceType(ctx context.Context, st ServiceType) error {
	query := `
		INSERT INTO service_types (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
	`

	_, err := t.tx.ExecContext(ctx, query,
		st.ID, st.Name, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert service type %d: %w", st.ID, err)
	}
	return nil
}

// UpsertService inserts or replaces a service by id. All mutable fields
// are overwritten from the incoming record.
func (t *Tx) UpsertService(ctx context.Context, svc Service) error {
	query := `
		INSERT INTO services
		(id, name, description, address, latitude, longitude, neighborhood_id, service_type_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			neighborhood_id = excluded.neighborhood_id,
			service_type_id = excluded.service_type_id
	`

	_, err := t.tx.ExecContext(ctx, query,
		svc.ID, svc.Name, svc.Description, svc.Address,
		svc.Latitude, svc.Longitude, svc.NeighborhoodID, svc.ServiceTypeID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert service %d: %w", svc.ID, err)
	}
	return nil
}

// UpsertParade inserts or replaces a parade by id. All mutable fields
// are overwritten from the incoming record.
func (t *Tx) UpsertParade(ctx context.Context, p Parade) error {
	query := `
		INSERT INTO parades
		(id, name, description, location, start_at, end_at, latitude, longitude, foundation_year, neighborhood_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			location = excluded.location,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			foundation_year = excluded.foundation_year,
			neighborhood_id = excluded.neighborhood_id
	`

	_, err := t.tx.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Location,
		nullTime(p.StartAt), nullTime(p.EndAt),
		p.Latitude, p.Longitude, p.FoundationYear, p.NeighborhoodID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert parade %d: %w", p.ID, err)
	}
	return nil
}

// NeighborhoodExists reports whether a neighborhood row with the given id
// is visible inside this transaction (batch rows included, since the
// reconciler upserts neighborhoods first).
func (t *Tx) NeighborhoodExists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM neighborhoods WHERE id = ?", id,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveFeedState creates the feed_state row for a source URL on first sync
// and mutates it in place on every subsequent sync.
func (t *Tx) SaveFeedState(ctx context.Context, state FeedState) error {
	query := `
		INSERT INTO feed_state (source_url, last_synced_at, etag, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_url) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			etag = excluded.etag,
			updated_at = excluded.updated_at
	`

	_, err := t.tx.ExecContext(ctx, query,
		state.SourceURL,
		nullTime(state.LastSyncedAt),
		nullString(state.ETag),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save feed state for %s: %w", state.SourceURL, err)
	}
	return nil
}

// =============================================================================
// FEED STATE READS
// =============================================================================

// GetFeedState returns the feed state for a source URL, or nil if the
// source has never been synced.
func (s *Store) GetFeedState(ctx context.Context, sourceURL string) (*FeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var state FeedState
	var lastSyncedAt, etag sql.NullString
	var updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, source_url, last_synced_at, etag, updated_at FROM feed_state WHERE source_url = ?",
		sourceURL,
	).Scan(&state.ID, &state.SourceURL, &lastSyncedAt, &etag, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state.ETag = etag.String
	state.LastSyncedAt = parseNullTime(lastSyncedAt)
	state.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &state, nil
}

// CountFeedStates returns the number of feed_state rows (one per source URL).
func (s *Store) CountFeedStates(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_state").Scan(&count)
	return count, err
}

// =============================================================================
// READ QUERIES
// =============================================================================

// ParadeFilter narrows ListParades. Zero values mean "no filter";
// Page/PerPage of zero fall back to the first page with a default size.
type ParadeFilter struct {
	From           *time.Time
	To             *time.Time
	NeighborhoodID *int64
	Query          string
	Page           int
	PerPage        int
}

// ServiceFilter narrows ListServices.
type ServiceFilter struct {
	ServiceTypeID  *int64
	NeighborhoodID *int64
	Query          string
}

const defaultPerPage = 50

// ListParades returns parades matching the filter ordered by start time,
// plus the total match count before pagination.
func (s *Store) ListParades(ctx context.Context, f ParadeFilter) ([]Parade, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"1=1"}
	var args []any

	if f.From != nil {
		where = append(where, "start_at >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		where = append(where, "start_at <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}
	if f.NeighborhoodID != nil {
		where = append(where, "neighborhood_id = ?")
		args = append(args, *f.NeighborhoodID)
	}
	if f.Query != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+f.Query+"%")
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM parades WHERE "+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	query := `
		SELECT id, name, description, location, start_at, end_at,
		       latitude, longitude, foundation_year, neighborhood_id, created_at
		FROM parades
		WHERE ` + cond + `
		ORDER BY start_at ASC, id ASC
		LIMIT ? OFFSET ?
	`
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query parades: %w", err)
	}
	defer rows.Close()

	var parades []Parade
	for rows.Next() {
		p, err := scanParade(rows)
		if err != nil {
			return nil, 0, err
		}
		parades = append(parades, p)
	}
	return parades, total, rows.Err()
}

// GetParade returns a single parade by id, or nil if not found.
func (s *Store) GetParade(ctx context.Context, id int64) (*Parade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, description, location, start_at, end_at,
		       latitude, longitude, foundation_year, neighborhood_id, created_at
		FROM parades
		WHERE id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanParade(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListServices returns services matching the filter ordered by name.
func (s *Store) ListServices(ctx context.Context, f ServiceFilter) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"1=1"}
	var args []any

	if f.ServiceTypeID != nil {
		where = append(where, "service_type_id = ?")
		args = append(args, *f.ServiceTypeID)
	}
	if f.NeighborhoodID != nil {
		where = append(where, "neighborhood_id = ?")
		args = append(args, *f.NeighborhoodID)
	}
	if f.Query != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+f.Query+"%")
	}

	query := `
		SELECT id, name, description, address, latitude, longitude,
		       neighborhood_id, service_type_id, created_at
		FROM services
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY name ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var svc Service
		var description, address sql.NullString
		var latitude, longitude sql.NullFloat64
		var neighborhoodID, serviceTypeID sql.NullInt64
		var createdAt string

		if err := rows.Scan(
			&svc.ID, &svc.Name, &description, &address, &latitude, &longitude,
			&neighborhoodID, &serviceTypeID, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}

		svc.Description = nullStringPtr(description)
		svc.Address = nullStringPtr(address)
		svc.Latitude = nullFloatPtr(latitude)
		svc.Longitude = nullFloatPtr(longitude)
		svc.NeighborhoodID = nullIntPtr(neighborhoodID)
		svc.ServiceTypeID = nullIntPtr(serviceTypeID)
		svc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		services = append(services, svc)
	}
	return services, rows.Err()
}

// ListServiceTypes returns all service types ordered by name.
func (s *Store) ListServiceTypes(ctx context.Context) ([]ServiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM service_types ORDER BY name ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []ServiceType
	for rows.Next() {
		var st ServiceType
		var createdAt string
		if err := rows.Scan(&st.ID, &st.Name, &createdAt); err != nil {
			return nil, err
		}
		st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		types = append(types, st)
	}
	return types, rows.Err()
}

// ListNeighborhoods returns all neighborhoods ordered by name.
func (s *Store) ListNeighborhoods(ctx context.Context) ([]Neighborhood, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM neighborhoods ORDER BY name ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var neighborhoods []Neighborhood
	for rows.Next() {
		var n Neighborhood
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Name, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		neighborhoods = append(neighborhoods, n)
	}
	return neighborhoods, rows.Err()
}

func scanParade(rows *sql.Rows) (Parade, error) {
	var p Parade
	var description, location, startAt, endAt sql.NullString
	var latitude, longitude sql.NullFloat64
	var foundationYear, neighborhoodID sql.NullInt64
	var createdAt string

	if err := rows.Scan(
		&p.ID, &p.Name, &description, &location, &startAt, &endAt,
		&latitude, &longitude, &foundationYear, &neighborhoodID, &createdAt,
	); err != nil {
		return p, fmt.Errorf("failed to scan parade: %w", err)
	}

	p.Description = nullStringPtr(description)
	p.Location = nullStringPtr(location)
	p.StartAt = parseNullTime(startAt)
	p.EndAt = parseNullTime(endAt)
	p.Latitude = nullFloatPtr(latitude)
	p.Longitude = nullFloatPtr(longitude)
	p.FoundationYear = nullIntPtr(foundationYear)
	p.NeighborhoodID = nullIntPtr(neighborhoodID)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return p, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullFloatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func nullIntPtr(i sql.NullInt64) *int64 {
	if !i.Valid {
		return nil
	}
	return &i.Int64
}
