package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"swipe-match-backend/internal/models"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		var zero T
		return zero
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeToSession(t *testing.T) {
	svc, _ := setupSessionService(t, 10)
	ctx := context.Background()
	s, err := svc.CreateSession(ctx, creator, models.Filters{}, testCandidates())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	snapshots := make(chan *models.Session, 8)
	unsubscribe, err := svc.SubscribeToSession(ctx, s.ID, func(s *models.Session) { snapshots <- s })
	if err != nil {
		t.Fatalf("SubscribeToSession() error = %v", err)
	}
	defer unsubscribe()

	if got := receive(t, snapshots); got.Status != models.StatusWaiting {
		t.Errorf("initial status = %q, want waiting", got.Status)
	}

	if _, err := svc.JoinSession(ctx, s.ID, partner); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := receive(t, snapshots); got.Status != models.StatusActive || got.PartnerID != partner {
		t.Errorf("snapshot after join = %+v", got)
	}
}

func TestSubscribeToSwipes(t *testing.T) {
	svc, _ := setupSessionService(t, 10)
	ctx := context.Background()
	s := setupActiveSession(t, svc)

	snapshots := make(chan map[string]*models.SwipeEntry, 8)
	unsubscribe, err := svc.SubscribeToSwipes(ctx, s.ID, func(m map[string]*models.SwipeEntry) { snapshots <- m })
	if err != nil {
		t.Fatalf("SubscribeToSwipes() error = %v", err)
	}
	defer unsubscribe()

	if got := receive(t, snapshots); len(got) != 0 {
		t.Errorf("initial ledger = %v, want empty", got)
	}

	mustSwipe(t, svc, s.ID, "B", creator, models.DirectionRight)
	got := receive(t, snapshots)
	if e := got["B"]; e == nil || e.CreatorSwipe != models.DirectionRight {
		t.Errorf("ledger after swipe = %+v", got)
	}
}

func TestSubscribeMissingSession(t *testing.T) {
	svc, _ := setupSessionService(t, 10)
	_, err := svc.SubscribeToSession(context.Background(), "nope", func(*models.Session) {})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSubscriptionCoalesces(t *testing.T) {
	svc, _ := setupSessionService(t, 10)
	ctx := context.Background()
	s := setupActiveSession(t, svc)

	snapshots := make(chan *models.Session)
	unsubscribe, err := svc.SubscribeToSession(ctx, s.ID, func(s *models.Session) { snapshots <- s })
	if err != nil {
		t.Fatalf("SubscribeToSession() error = %v", err)
	}
	defer unsubscribe()
	receive(t, snapshots)

	// The subscriber blocks on the unbuffered channel while these commit
	for _, id := range []string{"A", "B", "C"} {
		mustSwipe(t, svc, s.ID, id, creator, models.DirectionLeft)
	}

	var last *models.Session
	deliveries := 0
	for {
		select {
		case got := <-snapshots:
			last = got
			deliveries++
			continue
		case <-time.After(200 * time.Millisecond):
		}
		break
	}

	if deliveries == 0 || deliveries > 2 {
		t.Errorf("got %d deliveries for 3 changes, want 1 or 2", deliveries)
	}
	if last == nil || last.CreatorSwipeCount != 3 {
		t.Errorf("last snapshot = %+v, want the latest state", last)
	}
}

func TestUnsubscribe(t *testing.T) {
	svc, _ := setupSessionService(t, 10)
	ctx := context.Background()
	s := setupActiveSession(t, svc)

	snapshots := make(chan *models.Session, 8)
	unsubscribe, err := svc.SubscribeToSession(ctx, s.ID, func(s *models.Session) { snapshots <- s })
	if err != nil {
		t.Fatalf("SubscribeToSession() error = %v", err)
	}
	receive(t, snapshots)

	unsubscribe()
	waitFor(t, func() bool { return svc.hub.SubscriberCount(s.ID) == 0 })

	mustSwipe(t, svc, s.ID, "A", creator, models.DirectionRight)
	select {
	case got := <-snapshots:
		t.Errorf("unexpected delivery after unsubscribe: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	hub := NewSessionHub()
	ctx, cancel := context.WithCancel(context.Background())

	delivered := make(chan struct{}, 1)
	hub.Subscribe(ctx, "s1", func(context.Context) { delivered <- struct{}{} })
	receive(t, delivered)
	if hub.SubscriberCount("s1") != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", hub.SubscriberCount("s1"))
	}

	cancel()
	waitFor(t, func() bool { return hub.SubscriberCount("s1") == 0 })
}
