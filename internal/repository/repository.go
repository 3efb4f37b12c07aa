package repository

import (
	"context"
	"errors"

	"swipe-match-backend/internal/models"
)

var (
	// ErrNotFound is returned when a session, swipe entry or device does not exist
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a record with the same key is already stored
	ErrAlreadyExists = errors.New("record already exists")
	// ErrVersionConflict is returned when a concurrent transaction committed a newer
	// version of a session between this transaction's read and its write
	ErrVersionConflict = errors.New("version conflict")
)

// Tx is a read-modify-write transaction over one session and its swipe entries.
//
// PutSession is a compare-and-set against the Version the session was read with.
// Swipe writes are isolated only against transactions that also write the owning
// session, so callers must PutSession in every transaction that calls PutSwipe.
type Tx interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetSwipe(ctx context.Context, sessionID, candidateID string) (*models.SwipeEntry, error)
	PutSession(ctx context.Context, session *models.Session) error
	PutSwipe(ctx context.Context, entry *models.SwipeEntry) error
}

// TxFunc is the body of a transaction. Returning an error rolls everything back.
type TxFunc func(ctx context.Context, tx Tx) error

// Repository is the persistence contract shared by the Postgres, SQLite and
// in-memory backends
type Repository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSwipes(ctx context.Context, sessionID string) ([]*models.SwipeEntry, error)
	RunInTx(ctx context.Context, fn TxFunc) error

	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	UpdatePushToken(ctx context.Context, deviceID string, pushToken *string) error

	Close() error
}
