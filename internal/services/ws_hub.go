package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type subscriber struct {
	signal chan struct{}
}

// SessionHub fans committed session changes out to in-process subscribers.
// Each subscriber owns a goroutine and a one-slot signal channel, so bursts of
// publishes collapse into a single redelivery of the latest state.
type SessionHub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewSessionHub creates an empty hub
func NewSessionHub() *SessionHub {
	return &SessionHub{
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe runs deliver once right away and again after every Publish for the
// session, until ctx is done or the returned function is called. A delivery
// already in progress when unsubscribing is allowed to finish.
func (h *SessionHub) Subscribe(ctx context.Context, sessionID string, deliver func(ctx context.Context)) func() {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{signal: make(chan struct{}, 1)}
	sub.signal <- struct{}{}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	log.Debug().Str("session_id", sessionID).Msg("Subscriber registered")

	go func() {
		defer h.remove(sessionID, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
				if ctx.Err() != nil {
					return
				}
				deliver(ctx)
			}
		}
	}()

	return cancel
}

// Publish wakes every subscriber of the session without blocking
func (h *SessionHub) Publish(sessionID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[sessionID] {
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscribers for a session
func (h *SessionHub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

func (h *SessionHub) remove(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[sessionID], sub)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
	log.Debug().Str("session_id", sessionID).Msg("Subscriber removed")
}
