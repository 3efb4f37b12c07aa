package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"swipe-match-backend/internal/middleware"
	"swipe-match-backend/internal/models"
	"swipe-match-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// CandidateSource produces the candidate set for new sessions
type CandidateSource interface {
	FetchCandidates(ctx context.Context, f models.Filters) ([]models.Candidate, error)
}

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	sessionService *services.SessionService
	candidates     CandidateSource
	inviteBaseURL  string
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *services.SessionService, candidates CandidateSource, inviteBaseURL string) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		candidates:     candidates,
		inviteBaseURL:  inviteBaseURL,
	}
}

// CreateSessionRequest represents the request body for creating a session
type CreateSessionRequest struct {
	Filters models.Filters `json:"filters"`
}

// SessionResponse is a session together with its invite link
type SessionResponse struct {
	Session    *models.Session `json:"session"`
	InviteLink string          `json:"invite_link"`
}

// SwipeRequest represents the request body for recording a swipe
type SwipeRequest struct {
	CandidateID string           `json:"candidate_id"`
	Direction   models.Direction `json:"direction"`
}

// StateResponse is the caller's view of a session
type StateResponse struct {
	Session *models.Session     `json:"session"`
	State   services.Projection `json:"state"`
}

// MatchesResponse lists the mutually liked candidates
type MatchesResponse struct {
	Matches []models.Candidate `json:"matches"`
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateFilters(req.Filters); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	candidates, err := h.candidates.FetchCandidates(ctx, req.Filters)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to fetch candidates")
		respondServiceError(w, err)
		return
	}

	session, err := h.sessionService.CreateSession(ctx, deviceID, req.Filters, candidates)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create session")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, SessionResponse{
		Session:    session,
		InviteLink: services.InviteLink(h.inviteBaseURL, session.ID),
	})
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.GetSession(r.Context(), sessionIDParam(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SessionResponse{
		Session:    session,
		InviteLink: services.InviteLink(h.inviteBaseURL, session.ID),
	})
}

// JoinSession handles POST /api/v1/sessions/{id}/join
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)
	sessionID := sessionIDParam(r)

	session, err := h.sessionService.JoinSession(ctx, sessionID, deviceID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("device_id", deviceID).Msg("Failed to join session")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SessionResponse{
		Session:    session,
		InviteLink: services.InviteLink(h.inviteBaseURL, session.ID),
	})
}

// RecordSwipe handles POST /api/v1/sessions/{id}/swipes
func (h *SessionHandler) RecordSwipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)

	session, ok := h.memberSession(w, r)
	if !ok {
		return
	}

	var req SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CandidateID == "" {
		respondError(w, "candidate_id is required", http.StatusBadRequest)
		return
	}
	if !req.Direction.Valid() {
		respondError(w, "direction must be left or right", http.StatusBadRequest)
		return
	}

	result, err := h.sessionService.RecordSwipe(ctx, session.ID, req.CandidateID, deviceID, req.Direction)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", session.ID).
			Str("device_id", deviceID).
			Str("candidate_id", req.CandidateID).
			Msg("Failed to record swipe")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// EndSession handles POST /api/v1/sessions/{id}/end
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.memberSession(w, r)
	if !ok {
		return
	}

	if err := h.sessionService.EndSession(r.Context(), session.ID); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetState handles GET /api/v1/sessions/{id}/state
func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.memberSession(w, r)
	if !ok {
		return
	}

	session, state, err := h.sessionService.State(r.Context(), session.ID, middleware.GetDeviceID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, StateResponse{Session: session, State: state})
}

// GetMatches handles GET /api/v1/sessions/{id}/matches
func (h *SessionHandler) GetMatches(w http.ResponseWriter, r *http.Request) {
	session, ok := h.memberSession(w, r)
	if !ok {
		return
	}

	session, state, err := h.sessionService.State(r.Context(), session.ID, middleware.GetDeviceID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, MatchesResponse{Matches: services.MatchedCandidates(session, state.Matches)})
}

// memberSession loads the session and rejects devices that are not part of it
func (h *SessionHandler) memberSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	session, err := h.sessionService.GetSession(r.Context(), sessionIDParam(r))
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	if _, ok := services.RoleOf(session, middleware.GetDeviceID(r.Context())); !ok {
		respondError(w, "Not a member of this session", http.StatusForbidden)
		return nil, false
	}
	return session, true
}

func validateFilters(f models.Filters) error {
	for _, p := range f.PriceRange {
		if p < 1 || p > 4 {
			return fmt.Errorf("price_range values must be between 1 and 4")
		}
	}
	switch f.FulfillmentType {
	case "", models.FulfillmentAny, models.FulfillmentDelivery, models.FulfillmentPickup:
	default:
		return fmt.Errorf("fulfillment_type must be any, delivery or pickup")
	}
	if loc := f.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return fmt.Errorf("location is out of range")
		}
	}
	return nil
}
