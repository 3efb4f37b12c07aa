package repository

import (
	"encoding/json"
	"fmt"

	"swipe-match-backend/internal/models"
)

// sessionColumns is the select list shared by the SQL backends
const sessionColumns = `id, created_at, created_by, partner_id, status, filters, candidate_ids,
	candidates, swipe_budget, creator_swipe_count, partner_swipe_count,
	creator_completed, partner_completed, version`

// sessionBlobs holds the JSON-encoded columns of a session row
type sessionBlobs struct {
	filters      []byte
	candidateIDs []byte
	candidates   []byte
}

func encodeSessionBlobs(s *models.Session) (*sessionBlobs, error) {
	filters, err := json.Marshal(s.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	ids := s.CandidateIDs
	if ids == nil {
		ids = []string{}
	}
	candidateIDs, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidate ids: %w", err)
	}
	candidates := s.Candidates
	if candidates == nil {
		candidates = []models.Candidate{}
	}
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates: %w", err)
	}
	return &sessionBlobs{filters: filters, candidateIDs: candidateIDs, candidates: candidatesJSON}, nil
}

func (b *sessionBlobs) decodeInto(s *models.Session) error {
	if err := json.Unmarshal(b.filters, &s.Filters); err != nil {
		return fmt.Errorf("failed to decode filters: %w", err)
	}
	if err := json.Unmarshal(b.candidateIDs, &s.CandidateIDs); err != nil {
		return fmt.Errorf("failed to decode candidate ids: %w", err)
	}
	if err := json.Unmarshal(b.candidates, &s.Candidates); err != nil {
		return fmt.Errorf("failed to decode candidates: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullableDirection(d models.Direction) *string {
	return nullableString(string(d))
}

func toDirection(s *string) models.Direction {
	return models.Direction(derefString(s))
}
