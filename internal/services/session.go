package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"swipe-match-backend/internal/models"
	"swipe-match-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxSwipes  = 10
	DefaultTxAttempts = 5
	DefaultTxBackoff  = 10 * time.Millisecond

	maxIDAttempts = 10
	maxTxBackoff  = 500 * time.Millisecond
)

// SessionOptions tunes the session coordinator
type SessionOptions struct {
	MaxSwipes  int
	TxAttempts int
	TxBackoff  time.Duration
}

// SwipeResult is the outcome of a committed swipe
type SwipeResult struct {
	IsMatch bool               `json:"is_match"`
	Role    models.Role        `json:"role"`
	Session *models.Session    `json:"session"`
	Entry   *models.SwipeEntry `json:"entry"`
}

// SessionService coordinates two parties swiping on a shared candidate set
type SessionService struct {
	repo     repository.Repository
	hub      *SessionHub
	notifier Notifier
	opts     SessionOptions
	now      func() time.Time
	newID    func() string
}

// NewSessionService creates a new session service. hub and notifier may be nil.
func NewSessionService(repo repository.Repository, hub *SessionHub, notifier Notifier, opts SessionOptions) *SessionService {
	if opts.MaxSwipes <= 0 {
		opts.MaxSwipes = DefaultMaxSwipes
	}
	if opts.TxAttempts <= 0 {
		opts.TxAttempts = DefaultTxAttempts
	}
	if opts.TxBackoff <= 0 {
		opts.TxBackoff = DefaultTxBackoff
	}
	if hub == nil {
		hub = NewSessionHub()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SessionService{
		repo:     repo,
		hub:      hub,
		notifier: notifier,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    generateSessionID,
	}
}

// generateSessionID returns a short shareable id
func generateSessionID() string {
	return strings.SplitN(uuid.New().String(), "-", 2)[0]
}

// CreateSession stores a new waiting session owned by creatorID
func (s *SessionService) CreateSession(ctx context.Context, creatorID string, filters models.Filters, candidates []models.Candidate) (*models.Session, error) {
	if creatorID == "" {
		return nil, invalid("creator id is required")
	}

	// Keep the first occurrence of each candidate id
	seen := make(map[string]bool, len(candidates))
	unique := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		unique = append(unique, c)
	}
	if len(unique) == 0 {
		return nil, invalid("candidate set is empty")
	}

	ids := make([]string, len(unique))
	for i, c := range unique {
		ids[i] = c.ID
	}

	session := &models.Session{
		CreatedAt:    s.now(),
		CreatedBy:    creatorID,
		Status:       models.StatusWaiting,
		Filters:      filters,
		CandidateIDs: ids,
		Candidates:   unique,
		SwipeBudget:  s.opts.MaxSwipes,
	}

	for i := 0; i < maxIDAttempts; i++ {
		session.ID = s.newID()
		err := s.repo.CreateSession(ctx, session)
		if errors.Is(err, repository.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, persistence("create session", err)
		}

		log.Info().
			Str("session_id", session.ID).
			Str("device_id", creatorID).
			Int("candidates", len(ids)).
			Int("swipe_budget", session.SwipeBudget).
			Msg("Session created")
		return session, nil
	}

	return nil, persistence("create session", fmt.Errorf("no unique id after %d attempts", maxIDAttempts))
}

// JoinSession attaches partnerID to the session. Joining again as the same
// partner succeeds without writing.
func (s *SessionService) JoinSession(ctx context.Context, sessionID, partnerID string) (*models.Session, error) {
	if partnerID == "" {
		return nil, invalid("partner id is required")
	}

	var result *models.Session
	var joined bool
	err := s.runTx(ctx, "join session", func(ctx context.Context, tx repository.Tx) error {
		joined = false

		session, err := getSessionTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		switch {
		case session.CreatedBy == partnerID:
			return invalid("cannot join your own session")
		case session.PartnerID == partnerID:
			result = session
			return nil
		case session.PartnerID != "":
			return fmt.Errorf("%w: session %s already has a partner", ErrConflict, sessionID)
		case session.Status == models.StatusCompleted:
			return invalid("session already ended")
		}

		session.PartnerID = partnerID
		session.Status = models.StatusActive
		if err := tx.PutSession(ctx, session); err != nil {
			return err
		}

		result = session
		joined = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if joined {
		log.Info().Str("session_id", sessionID).Str("device_id", partnerID).Msg("Partner joined session")
		s.hub.Publish(sessionID)
		s.notify(ctx, result.CreatedBy, "Partner joined", "Your partner joined the session. Start swiping!")
	}

	return result, nil
}

// RecordSwipe records one vote of deviceID on a candidate and reports whether
// it produced a match
func (s *SessionService) RecordSwipe(ctx context.Context, sessionID, candidateID, deviceID string, direction models.Direction) (*SwipeResult, error) {
	if !direction.Valid() {
		return nil, invalid("direction must be left or right, got %q", direction)
	}

	var result *SwipeResult
	var newMatch bool
	err := s.runTx(ctx, "record swipe", func(ctx context.Context, tx repository.Tx) error {
		newMatch = false

		session, err := getSessionTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		role, ok := RoleOf(session, deviceID)
		if !ok {
			return invalid("device is not a member of session %s", sessionID)
		}
		if !session.HasCandidate(candidateID) {
			return notFound("candidate %s in session %s", candidateID, sessionID)
		}

		count := session.CreatorSwipeCount
		if role == models.RolePartner {
			count = session.PartnerSwipeCount
		}
		if count >= session.SwipeBudget {
			return fmt.Errorf("%w: %d of %d swipes used", ErrBudgetExceeded, count, session.SwipeBudget)
		}

		switch session.Status {
		case models.StatusWaiting:
			return invalid("session is waiting for a partner")
		case models.StatusCompleted:
			return invalid("session already ended")
		}

		entry, err := tx.GetSwipe(ctx, sessionID, candidateID)
		if errors.Is(err, repository.ErrNotFound) {
			entry = &models.SwipeEntry{SessionID: sessionID, CandidateID: candidateID}
		} else if err != nil {
			return err
		}

		wasMatch := entry.IsMatch
		entry.SetVote(role, direction)
		entry.UpdatedAt = s.now()

		count++
		completed := count >= session.SwipeBudget
		if role == models.RoleCreator {
			session.CreatorSwipeCount = count
			session.CreatorCompleted = session.CreatorCompleted || completed
		} else {
			session.PartnerSwipeCount = count
			session.PartnerCompleted = session.PartnerCompleted || completed
		}
		if session.CreatorCompleted && session.PartnerCompleted {
			session.Status = models.StatusCompleted
		}

		// Session first so concurrent swipes serialize on the session row
		if err := tx.PutSession(ctx, session); err != nil {
			return err
		}
		if err := tx.PutSwipe(ctx, entry); err != nil {
			return err
		}

		newMatch = entry.IsMatch && !wasMatch
		result = &SwipeResult{
			IsMatch: entry.IsMatch,
			Role:    role,
			Session: session,
			Entry:   entry,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("device_id", deviceID).
		Str("candidate_id", candidateID).
		Str("direction", string(direction)).
		Bool("is_match", result.IsMatch).
		Msg("Swipe recorded")

	s.hub.Publish(sessionID)

	if newMatch {
		other := result.Session.PartnerID
		if result.Role == models.RolePartner {
			other = result.Session.CreatedBy
		}
		s.notify(ctx, other, "It's a match!", "You both liked "+candidateName(result.Session, candidateID))
	}
	if result.Session.Status == models.StatusCompleted {
		log.Info().Str("session_id", sessionID).Msg("Both parties finished swiping")
	}

	return result, nil
}

// EndSession marks the session completed. Ending an ended session is a no-op.
func (s *SessionService) EndSession(ctx context.Context, sessionID string) error {
	var changed bool
	err := s.runTx(ctx, "end session", func(ctx context.Context, tx repository.Tx) error {
		changed = false

		session, err := getSessionTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == models.StatusCompleted {
			return nil
		}

		session.Status = models.StatusCompleted
		if err := tx.PutSession(ctx, session); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		log.Info().Str("session_id", sessionID).Msg("Session ended")
		s.hub.Publish(sessionID)
	}
	return nil
}

// GetSession returns the current session record
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("session %s", sessionID)
	}
	if err != nil {
		return nil, persistence("get session", err)
	}
	return session, nil
}

// ListSwipes returns the swipe ledger of a session keyed by candidate id
func (s *SessionService) ListSwipes(ctx context.Context, sessionID string) (map[string]*models.SwipeEntry, error) {
	entries, err := s.repo.ListSwipes(ctx, sessionID)
	if err != nil {
		return nil, persistence("list swipes", err)
	}
	return SwipeMap(entries), nil
}

// State returns the session together with the projection for deviceID
func (s *SessionService) State(ctx context.Context, sessionID, deviceID string) (*models.Session, Projection, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, Projection{}, err
	}
	role, ok := RoleOf(session, deviceID)
	if !ok {
		return nil, Projection{}, invalid("device is not a member of session %s", sessionID)
	}
	swipes, err := s.ListSwipes(ctx, sessionID)
	if err != nil {
		return nil, Projection{}, err
	}
	return session, Project(session, swipes, role), nil
}

// SubscribeToSession calls fn with the current session and again after every
// committed change. Bursts of changes are coalesced into the latest snapshot.
func (s *SessionService) SubscribeToSession(ctx context.Context, sessionID string, fn func(*models.Session)) (func(), error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	return s.hub.Subscribe(ctx, sessionID, func(ctx context.Context) {
		session, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to load session snapshot")
			}
			return
		}
		fn(session)
	}), nil
}

// SubscribeToSwipes calls fn with the swipe ledger and again after every
// committed change
func (s *SessionService) SubscribeToSwipes(ctx context.Context, sessionID string, fn func(map[string]*models.SwipeEntry)) (func(), error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	return s.hub.Subscribe(ctx, sessionID, func(ctx context.Context) {
		entries, err := s.repo.ListSwipes(ctx, sessionID)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to load swipe snapshot")
			}
			return
		}
		fn(SwipeMap(entries))
	}), nil
}

// runTx runs fn in a store transaction, retrying lost version races with
// exponential backoff. Errors that are not domain errors become ErrPersistence.
func (s *SessionService) runTx(ctx context.Context, op string, fn repository.TxFunc) error {
	backoff := retry.NewExponential(s.opts.TxBackoff)
	backoff = retry.WithCappedDuration(maxTxBackoff, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(uint64(s.opts.TxAttempts-1), backoff)

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := s.repo.RunInTx(ctx, fn)
		if errors.Is(err, repository.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case isDomainError(err):
		return err
	case errors.Is(err, repository.ErrVersionConflict):
		log.Warn().Int("attempts", attempts).Msgf("Gave up on %s after repeated conflicts", op)
		return persistence(op, err)
	default:
		log.Error().Err(err).Msgf("Failed to %s", op)
		return persistence(op, err)
	}
}

func getSessionTx(ctx context.Context, tx repository.Tx, sessionID string) (*models.Session, error) {
	session, err := tx.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("session %s", sessionID)
	}
	return session, err
}

// notify pushes to a device if it registered a push token. Failures are only logged.
func (s *SessionService) notify(ctx context.Context, deviceID, title, body string) {
	if _, ok := s.notifier.(NopNotifier); ok || deviceID == "" {
		return
	}

	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to load device for notification")
		}
		return
	}
	if device.PushToken == nil || *device.PushToken == "" {
		return
	}

	if err := s.notifier.Send(ctx, *device.PushToken, title, body); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to send push notification")
	}
}

func candidateName(s *models.Session, candidateID string) string {
	for _, c := range s.Candidates {
		if c.ID == candidateID && c.DisplayName != "" {
			return c.DisplayName
		}
	}
	return "the same place"
}
