package models

import "time"

// Status is the lifecycle state of a session
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Direction is a single vote on a candidate. The zero value means no vote yet.
type Direction string

const (
	DirectionUnset Direction = ""
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Valid reports whether d is a vote a party can cast
func (d Direction) Valid() bool {
	return d == DirectionLeft || d == DirectionRight
}

// Role is a party's position in a session
type Role string

const (
	RoleCreator Role = "creator"
	RolePartner Role = "partner"
)

// Device represents an anonymous device that takes part in sessions
type Device struct {
	ID        string    `json:"id"`
	Token     string    `json:"token,omitempty"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is the search centre for candidates
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Source    string  `json:"source,omitempty"` // gps or default
}

// Fulfillment types a candidate may support
const (
	FulfillmentAny      = "any"
	FulfillmentDelivery = "delivery"
	FulfillmentPickup   = "pickup"
)

// Filters narrows the candidate search for a session
type Filters struct {
	Cuisines        []string  `json:"cuisines"`
	PriceRange      []int     `json:"price_range"` // 1..4 for $..$$$$
	FulfillmentType string    `json:"fulfillment_type,omitempty"`
	Location        *Location `json:"location,omitempty"`
}

// Category is a cuisine tag on a candidate
type Category struct {
	Alias string `json:"alias"`
	Title string `json:"title"`
}

// Candidate is a restaurant that can be swiped on
type Candidate struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	ImageURL    string     `json:"image_url"`
	Rating      float64    `json:"rating"`
	ReviewCount int        `json:"review_count"`
	PriceTier   int        `json:"price_tier,omitempty"`
	Categories  []Category `json:"categories"`
	Address     string     `json:"address"`
	Phone       string     `json:"phone,omitempty"`
	Distance    float64    `json:"distance,omitempty"` // meters
	IsOpen      bool       `json:"is_open"`
	ExternalURL string     `json:"external_url"`
	Fulfillment []string   `json:"supported_fulfillment"`
}

// Session is the shared record two parties swipe against
type Session struct {
	ID                string      `json:"id"`
	CreatedAt         time.Time   `json:"created_at"`
	CreatedBy         string      `json:"created_by"`
	PartnerID         string      `json:"partner_id,omitempty"`
	Status            Status      `json:"status"`
	Filters           Filters     `json:"filters"`
	CandidateIDs      []string    `json:"candidate_ids"`
	Candidates        []Candidate `json:"candidates,omitempty"`
	SwipeBudget       int         `json:"swipe_budget"`
	CreatorSwipeCount int         `json:"creator_swipe_count"`
	PartnerSwipeCount int         `json:"partner_swipe_count"`
	CreatorCompleted  bool        `json:"creator_completed"`
	PartnerCompleted  bool        `json:"partner_completed"`
	Version           int64       `json:"version"`
}

// HasCandidate reports whether id is part of the session's candidate set
func (s *Session) HasCandidate(id string) bool {
	for _, c := range s.CandidateIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate it freely
func (s *Session) Clone() *Session {
	c := *s
	c.CandidateIDs = append([]string(nil), s.CandidateIDs...)
	c.Candidates = append([]Candidate(nil), s.Candidates...)
	c.Filters.Cuisines = append([]string(nil), s.Filters.Cuisines...)
	c.Filters.PriceRange = append([]int(nil), s.Filters.PriceRange...)
	if s.Filters.Location != nil {
		loc := *s.Filters.Location
		c.Filters.Location = &loc
	}
	return &c
}

// SwipeEntry holds both parties' votes on one candidate of a session
type SwipeEntry struct {
	SessionID    string    `json:"session_id"`
	CandidateID  string    `json:"candidate_id"`
	CreatorSwipe Direction `json:"creator_swipe,omitempty"`
	PartnerSwipe Direction `json:"partner_swipe,omitempty"`
	IsMatch      bool      `json:"is_match"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ComputeMatch reports whether both votes are right swipes
func ComputeMatch(creator, partner Direction) bool {
	return creator == DirectionRight && partner == DirectionRight
}

// SetVote records a party's vote and recomputes the match flag
func (e *SwipeEntry) SetVote(role Role, d Direction) {
	if role == RoleCreator {
		e.CreatorSwipe = d
	} else {
		e.PartnerSwipe = d
	}
	e.IsMatch = ComputeMatch(e.CreatorSwipe, e.PartnerSwipe)
}

// Vote returns the vote the given party has cast
func (e *SwipeEntry) Vote(role Role) Direction {
	if role == RoleCreator {
		return e.CreatorSwipe
	}
	return e.PartnerSwipe
}
