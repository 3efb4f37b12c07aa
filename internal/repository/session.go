package repository

import (
	"context"
	"errors"
	"fmt"

	"swipe-match-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// CreateSession creates a new session
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	blobs, err := encodeSessionBlobs(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, created_at, created_by, partner_id, status, filters, candidate_ids,
			candidates, swipe_budget, creator_swipe_count, partner_swipe_count,
			creator_completed, partner_completed, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.Exec(ctx, query,
		s.ID, s.CreatedAt, s.CreatedBy, nullableString(s.PartnerID), string(s.Status),
		blobs.filters, blobs.candidateIDs, blobs.candidates, s.SwipeBudget,
		s.CreatorSwipeCount, s.PartnerSwipeCount, s.CreatorCompleted, s.PartnerCompleted, s.Version,
	)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("failed to create session: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanPgSession(r.db.QueryRow(ctx, query, id))
}

func (t *pgTx) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s, err := scanPgSession(t.tx.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, conflictOr(err, "failed to read session in transaction")
	}
	return s, err
}

// PutSession writes the mutable fields of a session if its version is unchanged
func (t *pgTx) PutSession(ctx context.Context, s *models.Session) error {
	query := `
		UPDATE sessions
		SET partner_id = $2, status = $3, creator_swipe_count = $4, partner_swipe_count = $5,
			creator_completed = $6, partner_completed = $7, version = version + 1
		WHERE id = $1 AND version = $8
	`
	result, err := t.tx.Exec(ctx, query,
		s.ID, nullableString(s.PartnerID), string(s.Status), s.CreatorSwipeCount, s.PartnerSwipeCount,
		s.CreatorCompleted, s.PartnerCompleted, s.Version,
	)
	if err != nil {
		return conflictOr(err, "failed to update session")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s changed since version %d: %w", s.ID, s.Version, ErrVersionConflict)
	}
	s.Version++
	return nil
}

func scanPgSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var partnerID *string
	var status string
	var blobs sessionBlobs

	err := row.Scan(
		&s.ID, &s.CreatedAt, &s.CreatedBy, &partnerID, &status,
		&blobs.filters, &blobs.candidateIDs, &blobs.candidates, &s.SwipeBudget,
		&s.CreatorSwipeCount, &s.PartnerSwipeCount, &s.CreatorCompleted, &s.PartnerCompleted, &s.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.PartnerID = derefString(partnerID)
	s.Status = models.Status(status)
	if err := blobs.decodeInto(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
