package repository

import (
	"context"
	"errors"
	"fmt"

	"swipe-match-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// ListSwipes retrieves every swipe entry of a session
func (r *PostgresRepository) ListSwipes(ctx context.Context, sessionID string) ([]*models.SwipeEntry, error) {
	query := `
		SELECT session_id, candidate_id, creator_swipe, partner_swipe, is_match, updated_at
		FROM swipes
		WHERE session_id = $1
		ORDER BY candidate_id
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get swipes: %w", err)
	}
	defer rows.Close()

	var entries []*models.SwipeEntry
	for rows.Next() {
		entry, err := scanPgSwipe(rows)
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

func (t *pgTx) GetSwipe(ctx context.Context, sessionID, candidateID string) (*models.SwipeEntry, error) {
	query := `
		SELECT session_id, candidate_id, creator_swipe, partner_swipe, is_match, updated_at
		FROM swipes
		WHERE session_id = $1 AND candidate_id = $2
	`
	entry, err := scanPgSwipe(t.tx.QueryRow(ctx, query, sessionID, candidateID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("swipe not found: %w", ErrNotFound)
		}
		return nil, conflictOr(err, "failed to get swipe")
	}
	return entry, nil
}

// PutSwipe inserts or replaces the swipe entry for a candidate
func (t *pgTx) PutSwipe(ctx context.Context, e *models.SwipeEntry) error {
	query := `
		INSERT INTO swipes (session_id, candidate_id, creator_swipe, partner_swipe, is_match, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, candidate_id) DO UPDATE
		SET creator_swipe = EXCLUDED.creator_swipe,
			partner_swipe = EXCLUDED.partner_swipe,
			is_match = EXCLUDED.is_match,
			updated_at = EXCLUDED.updated_at
	`
	_, err := t.tx.Exec(ctx, query,
		e.SessionID, e.CandidateID, nullableDirection(e.CreatorSwipe), nullableDirection(e.PartnerSwipe),
		e.IsMatch, e.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, "failed to put swipe")
	}
	return nil
}

func scanPgSwipe(row rowScanner) (*models.SwipeEntry, error) {
	var e models.SwipeEntry
	var creatorSwipe, partnerSwipe *string
	if err := row.Scan(&e.SessionID, &e.CandidateID, &creatorSwipe, &partnerSwipe, &e.IsMatch, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan swipe: %w", err)
	}
	e.CreatorSwipe = toDirection(creatorSwipe)
	e.PartnerSwipe = toDirection(partnerSwipe)
	return &e, nil
}
