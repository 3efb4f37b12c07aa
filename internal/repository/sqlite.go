package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"swipe-match-backend/internal/models"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository stores sessions in a local SQLite file. It holds a single
// connection, so transactions are serialized by the pool itself.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database at the given path and runs migrations
func OpenSQLite(dbPath string) (*SQLiteRepository, error) {
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(db, "sqlite3", "migrations/sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// CreateSession creates a new session
func (r *SQLiteRepository) CreateSession(ctx context.Context, s *models.Session) error {
	blobs, err := encodeSessionBlobs(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, created_at, created_by, partner_id, status, filters, candidate_ids,
			candidates, swipe_budget, creator_swipe_count, partner_swipe_count,
			creator_completed, partner_completed, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, formatTime(s.CreatedAt), s.CreatedBy, nullableString(s.PartnerID), string(s.Status),
		string(blobs.filters), string(blobs.candidateIDs), string(blobs.candidates), s.SwipeBudget,
		s.CreatorSwipeCount, s.PartnerSwipeCount, s.CreatorCompleted, s.PartnerCompleted, s.Version,
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return fmt.Errorf("failed to create session: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	return scanSQLiteSession(r.db.QueryRowContext(ctx, query, id))
}

// ListSwipes retrieves every swipe entry of a session
func (r *SQLiteRepository) ListSwipes(ctx context.Context, sessionID string) ([]*models.SwipeEntry, error) {
	query := `
		SELECT session_id, candidate_id, creator_swipe, partner_swipe, is_match, updated_at
		FROM swipes
		WHERE session_id = ?
		ORDER BY candidate_id
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get swipes: %w", err)
	}
	defer rows.Close()

	var entries []*models.SwipeEntry
	for rows.Next() {
		entry, err := scanSQLiteSwipe(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating swipes: %w", err)
	}
	return entries, nil
}

// RunInTx runs fn inside a single database transaction
func (r *SQLiteRepository) RunInTx(ctx context.Context, fn TxFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteBusy(err) {
			return fmt.Errorf("failed to commit transaction: %w", ErrVersionConflict)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateDevice creates a new device
func (r *SQLiteRepository) CreateDevice(ctx context.Context, device *models.Device) error {
	query := `INSERT INTO devices (id, push_token, created_at) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, device.ID, device.PushToken, formatTime(device.CreatedAt))
	if err != nil {
		if isSQLiteConstraint(err) {
			return fmt.Errorf("failed to create device: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by ID
func (r *SQLiteRepository) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	query := `SELECT id, push_token, created_at FROM devices WHERE id = ?`
	var device models.Device
	var pushToken sql.NullString
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&device.ID, &pushToken, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if pushToken.Valid {
		device.PushToken = &pushToken.String
	}
	if device.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &device, nil
}

// UpdatePushToken updates the push token for a device
func (r *SQLiteRepository) UpdatePushToken(ctx context.Context, deviceID string, pushToken *string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE devices SET push_token = ? WHERE id = ?`, pushToken, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("device not found: %w", ErrNotFound)
	}
	return nil
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	return scanSQLiteSession(t.tx.QueryRowContext(ctx, query, id))
}

func (t *sqliteTx) GetSwipe(ctx context.Context, sessionID, candidateID string) (*models.SwipeEntry, error) {
	query := `
		SELECT session_id, candidate_id, creator_swipe, partner_swipe, is_match, updated_at
		FROM swipes
		WHERE session_id = ? AND candidate_id = ?
	`
	entry, err := scanSQLiteSwipe(t.tx.QueryRowContext(ctx, query, sessionID, candidateID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("swipe not found: %w", ErrNotFound)
		}
		return nil, err
	}
	return entry, nil
}

func (t *sqliteTx) PutSession(ctx context.Context, s *models.Session) error {
	query := `
		UPDATE sessions
		SET partner_id = ?, status = ?, creator_swipe_count = ?, partner_swipe_count = ?,
			creator_completed = ?, partner_completed = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := t.tx.ExecContext(ctx, query,
		nullableString(s.PartnerID), string(s.Status), s.CreatorSwipeCount, s.PartnerSwipeCount,
		s.CreatorCompleted, s.PartnerCompleted, s.ID, s.Version,
	)
	if err != nil {
		if isSQLiteBusy(err) {
			return fmt.Errorf("failed to update session: %w", ErrVersionConflict)
		}
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s changed since version %d: %w", s.ID, s.Version, ErrVersionConflict)
	}
	s.Version++
	return nil
}

func (t *sqliteTx) PutSwipe(ctx context.Context, e *models.SwipeEntry) error {
	query := `
		INSERT INTO swipes (session_id, candidate_id, creator_swipe, partner_swipe, is_match, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, candidate_id) DO UPDATE
		SET creator_swipe = excluded.creator_swipe,
			partner_swipe = excluded.partner_swipe,
			is_match = excluded.is_match,
			updated_at = excluded.updated_at
	`
	_, err := t.tx.ExecContext(ctx, query,
		e.SessionID, e.CandidateID, nullableDirection(e.CreatorSwipe), nullableDirection(e.PartnerSwipe),
		e.IsMatch, formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put swipe: %w", err)
	}
	return nil
}

func scanSQLiteSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var partnerID sql.NullString
	var createdAt, status string
	var filters, candidateIDs, candidates string

	err := row.Scan(
		&s.ID, &createdAt, &s.CreatedBy, &partnerID, &status,
		&filters, &candidateIDs, &candidates, &s.SwipeBudget,
		&s.CreatorSwipeCount, &s.PartnerSwipeCount, &s.CreatorCompleted, &s.PartnerCompleted, &s.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.PartnerID = partnerID.String
	s.Status = models.Status(status)
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	blobs := sessionBlobs{filters: []byte(filters), candidateIDs: []byte(candidateIDs), candidates: []byte(candidates)}
	if err := blobs.decodeInto(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSQLiteSwipe(row rowScanner) (*models.SwipeEntry, error) {
	var e models.SwipeEntry
	var creatorSwipe, partnerSwipe sql.NullString
	var updatedAt string
	if err := row.Scan(&e.SessionID, &e.CandidateID, &creatorSwipe, &partnerSwipe, &e.IsMatch, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan swipe: %w", err)
	}
	e.CreatorSwipe = models.Direction(creatorSwipe.String)
	e.PartnerSwipe = models.Direction(partnerSwipe.String)
	var err error
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func isSQLiteBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY
}
