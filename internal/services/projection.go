package services

import (
	"swipe-match-backend/internal/models"
)

// Projection is one party's view of a session
type Projection struct {
	Role              models.Role   `json:"role"`
	Status            models.Status `json:"status"`
	SwipeCount        int           `json:"swipe_count"`
	MaxSwipes         int           `json:"max_swipes"`
	CanSwipe          bool          `json:"can_swipe"`
	IsUserComplete    bool          `json:"is_user_complete"`
	IsPartnerComplete bool          `json:"is_partner_complete"`
	BothComplete      bool          `json:"both_complete"`
	Matches           []string      `json:"matches"`
	NextCandidateID   string        `json:"next_candidate_id,omitempty"`
}

// RoleOf returns the role deviceID plays in the session
func RoleOf(s *models.Session, deviceID string) (models.Role, bool) {
	switch {
	case deviceID == "":
		return "", false
	case s.CreatedBy == deviceID:
		return models.RoleCreator, true
	case s.PartnerID == deviceID:
		return models.RolePartner, true
	default:
		return "", false
	}
}

// Project derives the view of the given role from the session record and its
// swipe ledger. Matches follow candidate order.
func Project(s *models.Session, swipes map[string]*models.SwipeEntry, role models.Role) Projection {
	p := Projection{
		Role:      role,
		Status:    s.Status,
		MaxSwipes: s.SwipeBudget,
		Matches:   []string{},
	}

	if role == models.RoleCreator {
		p.SwipeCount = s.CreatorSwipeCount
		p.IsUserComplete = s.CreatorCompleted
		p.IsPartnerComplete = s.PartnerCompleted
	} else {
		p.SwipeCount = s.PartnerSwipeCount
		p.IsUserComplete = s.PartnerCompleted
		p.IsPartnerComplete = s.CreatorCompleted
	}
	p.BothComplete = s.CreatorCompleted && s.PartnerCompleted
	p.CanSwipe = p.SwipeCount < s.SwipeBudget

	// Next is the first candidate without this role's vote. It is empty once
	// every candidate is voted on, even with budget left.
	offer := p.CanSwipe && s.Status == models.StatusActive
	for _, id := range s.CandidateIDs {
		entry := swipes[id]
		if entry != nil && models.ComputeMatch(entry.CreatorSwipe, entry.PartnerSwipe) {
			p.Matches = append(p.Matches, id)
		}
		if p.NextCandidateID == "" && offer && (entry == nil || entry.Vote(role) == models.DirectionUnset) {
			p.NextCandidateID = id
		}
	}

	return p
}

// SwipeMap indexes swipe entries by candidate id
func SwipeMap(entries []*models.SwipeEntry) map[string]*models.SwipeEntry {
	m := make(map[string]*models.SwipeEntry, len(entries))
	for _, e := range entries {
		m[e.CandidateID] = e
	}
	return m
}

// MatchedCandidates returns the candidate records for the given ids in session order
func MatchedCandidates(s *models.Session, ids []string) []models.Candidate {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]models.Candidate, 0, len(ids))
	for _, c := range s.Candidates {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
