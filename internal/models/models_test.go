package models

import "testing"

func TestComputeMatch(t *testing.T) {
	tests := []struct {
		creator, partner Direction
		want             bool
	}{
		{DirectionRight, DirectionRight, true},
		{DirectionRight, DirectionLeft, false},
		{DirectionLeft, DirectionRight, false},
		{DirectionRight, DirectionUnset, false},
		{DirectionUnset, DirectionUnset, false},
	}
	for _, tt := range tests {
		if got := ComputeMatch(tt.creator, tt.partner); got != tt.want {
			t.Errorf("ComputeMatch(%q, %q) = %v, want %v", tt.creator, tt.partner, got, tt.want)
		}
	}
}

func TestSwipeEntrySetVote(t *testing.T) {
	var e SwipeEntry
	e.SetVote(RolePartner, DirectionRight)
	if e.IsMatch || e.Vote(RolePartner) != DirectionRight || e.Vote(RoleCreator) != DirectionUnset {
		t.Fatalf("entry after partner vote = %+v", e)
	}
	e.SetVote(RoleCreator, DirectionRight)
	if !e.IsMatch {
		t.Error("expected match after both right votes")
	}
	e.SetVote(RoleCreator, DirectionLeft)
	if e.IsMatch {
		t.Error("expected match cleared after changing a vote")
	}
}

func TestDirectionValid(t *testing.T) {
	for d, want := range map[Direction]bool{
		DirectionLeft:  true,
		DirectionRight: true,
		DirectionUnset: false,
		"up":           false,
	} {
		if d.Valid() != want {
			t.Errorf("Direction(%q).Valid() = %v, want %v", d, !want, want)
		}
	}
}

func TestSessionClone(t *testing.T) {
	s := &Session{
		ID:           "s1",
		CandidateIDs: []string{"a", "b"},
		Candidates:   []Candidate{{ID: "a"}, {ID: "b"}},
		Filters:      Filters{Cuisines: []string{"thai"}, Location: &Location{Latitude: 1}},
	}
	c := s.Clone()
	c.CandidateIDs[0] = "z"
	c.Candidates[0].ID = "z"
	c.Filters.Cuisines[0] = "z"
	c.Filters.Location.Latitude = 2

	if s.CandidateIDs[0] != "a" || s.Candidates[0].ID != "a" || s.Filters.Cuisines[0] != "thai" || s.Filters.Location.Latitude != 1 {
		t.Errorf("clone shares state with original: %+v", s)
	}
	if !s.HasCandidate("b") || s.HasCandidate("z") {
		t.Error("HasCandidate mismatch")
	}
}
