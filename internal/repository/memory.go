package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"swipe-match-backend/internal/models"
)

// MemoryRepository keeps everything in process memory. It is used by tests and
// by single-process development runs.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	swipes   map[string]map[string]*models.SwipeEntry
	devices  map[string]*models.Device
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*models.Session),
		swipes:   make(map[string]map[string]*models.SwipeEntry),
		devices:  make(map[string]*models.Device),
	}
}

// CreateSession stores a new session
func (r *MemoryRepository) CreateSession(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("failed to create session %s: %w", session.ID, ErrAlreadyExists)
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

// GetSession returns a copy of the stored session
func (r *MemoryRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

// ListSwipes returns copies of all swipe entries of a session ordered by candidate id
func (r *MemoryRepository) ListSwipes(ctx context.Context, sessionID string) ([]*models.SwipeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*models.SwipeEntry, 0, len(r.swipes[sessionID]))
	for _, e := range r.swipes[sessionID] {
		c := *e
		entries = append(entries, &c)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CandidateID < entries[j].CandidateID
	})
	return entries, nil
}

// RunInTx runs fn against snapshot reads and applies its staged writes atomically.
// The commit fails with ErrVersionConflict if any written session changed since it was read.
func (r *MemoryRepository) RunInTx(ctx context.Context, fn TxFunc) error {
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

// CreateDevice stores a new device
func (r *MemoryRepository) CreateDevice(ctx context.Context, device *models.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[device.ID]; exists {
		return fmt.Errorf("failed to create device %s: %w", device.ID, ErrAlreadyExists)
	}
	d := *device
	d.Token = ""
	r.devices[device.ID] = &d
	return nil
}

// GetDevice returns a stored device
func (r *MemoryRepository) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	c := *d
	return &c, nil
}

// UpdatePushToken sets or clears the push token of a device
func (r *MemoryRepository) UpdatePushToken(ctx context.Context, deviceID string, pushToken *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	d.PushToken = pushToken
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

type memoryTx struct {
	repo     *MemoryRepository
	sessions []*models.Session
	swipes   []*models.SwipeEntry
}

func (t *memoryTx) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return t.repo.GetSession(ctx, id)
}

func (t *memoryTx) GetSwipe(ctx context.Context, sessionID, candidateID string) (*models.SwipeEntry, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	e, ok := t.repo.swipes[sessionID][candidateID]
	if !ok {
		return nil, fmt.Errorf("swipe %s/%s: %w", sessionID, candidateID, ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (t *memoryTx) PutSession(ctx context.Context, session *models.Session) error {
	t.sessions = append(t.sessions, session)
	return nil
}

func (t *memoryTx) PutSwipe(ctx context.Context, entry *models.SwipeEntry) error {
	t.swipes = append(t.swipes, entry)
	return nil
}

func (t *memoryTx) commit() error {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range t.sessions {
		current, ok := r.sessions[s.ID]
		if !ok {
			return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
		}
		if current.Version != s.Version {
			return fmt.Errorf("session %s at version %d, read %d: %w", s.ID, current.Version, s.Version, ErrVersionConflict)
		}
	}

	for _, s := range t.sessions {
		s.Version++
		r.sessions[s.ID] = s.Clone()
	}
	for _, e := range t.swipes {
		if r.swipes[e.SessionID] == nil {
			r.swipes[e.SessionID] = make(map[string]*models.SwipeEntry)
		}
		c := *e
		r.swipes[e.SessionID][e.CandidateID] = &c
	}
	return nil
}
