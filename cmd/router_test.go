package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"swipe-match-backend/internal/catalog"
	"swipe-match-backend/internal/handlers"
	"swipe-match-backend/internal/models"
	"swipe-match-backend/internal/repository"
	"swipe-match-backend/internal/services"

	"github.com/gorilla/websocket"
)

func setupTestServer(t *testing.T, maxSwipes int) *httptest.Server {
	t.Helper()
	repo := repository.NewMemoryRepository()
	devices := services.NewDeviceService(repo, "test-secret", time.Hour)
	sessions := services.NewSessionService(repo, services.NewSessionHub(), nil, services.SessionOptions{
		MaxSwipes: maxSwipes,
		TxBackoff: time.Millisecond,
	})
	candidates := catalog.NewService(nil, nil, catalog.DefaultFallback(), rand.New(rand.NewSource(1)))

	srv := httptest.NewServer(newRouter(routerDeps{
		devices:        devices,
		sessions:       sessions,
		candidates:     candidates,
		inviteBaseURL:  "https://example.com/invite",
		allowedOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func registerDevice(t *testing.T, srv *httptest.Server) models.Device {
	t.Helper()
	var d models.Device
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/devices", "", nil, &d); code != http.StatusCreated {
		t.Fatalf("register device status = %d", code)
	}
	return d
}

func createSession(t *testing.T, srv *httptest.Server, token string) handlers.SessionResponse {
	t.Helper()
	var resp handlers.SessionResponse
	body := handlers.CreateSessionRequest{Filters: models.Filters{Cuisines: []string{"italian"}}}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", token, body, &resp); code != http.StatusCreated {
		t.Fatalf("create session status = %d", code)
	}
	return resp
}

func TestSessionFlow(t *testing.T) {
	srv := setupTestServer(t, 2)
	creator := registerDevice(t, srv)
	partner := registerDevice(t, srv)
	stranger := registerDevice(t, srv)

	created := createSession(t, srv, creator.Token)
	s := created.Session
	if created.InviteLink != "https://example.com/invite/"+s.ID {
		t.Errorf("invite_link = %q", created.InviteLink)
	}
	if s.SwipeBudget != 2 || len(s.CandidateIDs) == 0 {
		t.Fatalf("session = %+v", s)
	}
	for _, c := range s.Candidates {
		if len(catalog.Filter([]models.Candidate{c}, s.Filters)) != 1 {
			t.Errorf("candidate %q does not match the session filters", c.ID)
		}
	}

	base := srv.URL + "/api/v1/sessions/" + s.ID
	first, second := s.CandidateIDs[0], s.CandidateIDs[1%len(s.CandidateIDs)]

	if code := doJSON(t, http.MethodGet, base+"/state", partner.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("state before join status = %d, want 403", code)
	}
	if code := doJSON(t, http.MethodGet, base, partner.Token, nil, nil); code != http.StatusOK {
		t.Errorf("get session status = %d, want 200", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/swipes", creator.Token, handlers.SwipeRequest{CandidateID: first, Direction: models.DirectionRight}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("swipe while waiting status = %d, want 422", code)
	}

	// Invite codes are accepted in any case
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/"+strings.ToUpper(s.ID)+"/join", partner.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("join status = %d", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/join", partner.Token, nil, nil); code != http.StatusOK {
		t.Errorf("repeated join status = %d, want 200", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/join", stranger.Token, nil, nil); code != http.StatusConflict {
		t.Errorf("third party join status = %d, want 409", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/join", creator.Token, nil, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("self join status = %d, want 422", code)
	}

	tests := []struct {
		name  string
		token string
		body  any
		want  int
	}{
		{"stranger", stranger.Token, handlers.SwipeRequest{CandidateID: first, Direction: models.DirectionRight}, http.StatusForbidden},
		{"bad direction", creator.Token, map[string]string{"candidate_id": first, "direction": "up"}, http.StatusBadRequest},
		{"missing candidate", creator.Token, map[string]string{"direction": "left"}, http.StatusBadRequest},
		{"unknown candidate", creator.Token, handlers.SwipeRequest{CandidateID: "nope", Direction: models.DirectionLeft}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := doJSON(t, http.MethodPost, base+"/swipes", tt.token, tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}

	swipe := func(token, candidateID string, d models.Direction) services.SwipeResult {
		t.Helper()
		var res services.SwipeResult
		if code := doJSON(t, http.MethodPost, base+"/swipes", token, handlers.SwipeRequest{CandidateID: candidateID, Direction: d}, &res); code != http.StatusOK {
			t.Fatalf("swipe %s status = %d", candidateID, code)
		}
		return res
	}

	swipe(creator.Token, first, models.DirectionRight)
	if res := swipe(partner.Token, first, models.DirectionRight); !res.IsMatch {
		t.Error("expected a match on the first candidate")
	}
	swipe(creator.Token, second, models.DirectionLeft)
	if code := doJSON(t, http.MethodPost, base+"/swipes", creator.Token, handlers.SwipeRequest{CandidateID: first, Direction: models.DirectionLeft}, nil); code != http.StatusTooManyRequests {
		t.Errorf("swipe over budget status = %d, want 429", code)
	}

	var state handlers.StateResponse
	if code := doJSON(t, http.MethodGet, base+"/state", partner.Token, nil, &state); code != http.StatusOK {
		t.Fatalf("state status = %d", code)
	}
	if state.State.Role != models.RolePartner || state.State.SwipeCount != 1 || !state.State.IsPartnerComplete || !state.State.CanSwipe {
		t.Errorf("partner state = %+v", state.State)
	}

	var matches handlers.MatchesResponse
	if code := doJSON(t, http.MethodGet, base+"/matches", creator.Token, nil, &matches); code != http.StatusOK {
		t.Fatalf("matches status = %d", code)
	}
	if len(matches.Matches) != 1 || matches.Matches[0].ID != first {
		t.Errorf("matches = %+v, want [%s]", matches.Matches, first)
	}

	if code := doJSON(t, http.MethodPost, base+"/end", stranger.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("stranger end status = %d, want 403", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/end", partner.Token, nil, nil); code != http.StatusNoContent {
		t.Errorf("end status = %d, want 204", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/swipes", partner.Token, handlers.SwipeRequest{CandidateID: second, Direction: models.DirectionLeft}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("swipe after end status = %d, want 422", code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := setupTestServer(t, 10)
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", "", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/abc", "forged", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestCreateSessionRejectsBadFilters(t *testing.T) {
	srv := setupTestServer(t, 10)
	d := registerDevice(t, srv)
	body := handlers.CreateSessionRequest{Filters: models.Filters{PriceRange: []int{5}}}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", d.Token, body, nil); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestPushTokenUpdate(t *testing.T) {
	srv := setupTestServer(t, 10)
	d := registerDevice(t, srv)
	url := srv.URL + "/api/v1/devices/push-token"
	if code := doJSON(t, http.MethodPut, url, d.Token, handlers.UpdatePushTokenRequest{PushToken: "apns"}, nil); code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", code)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(handlers.WSMessage) bool) handlers.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg handlers.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read websocket message: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocketStream(t *testing.T) {
	srv := setupTestServer(t, 10)
	creator := registerDevice(t, srv)
	partner := registerDevice(t, srv)
	s := createSession(t, srv, creator.Token).Session
	base := srv.URL + "/api/v1/sessions/" + s.ID
	if code := doJSON(t, http.MethodPost, base+"/join", partner.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("join status = %d", code)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + creator.Token + "&session_id=" + s.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, func(m handlers.WSMessage) bool { return m.Type == "session" })
	readUntil(t, conn, func(m handlers.WSMessage) bool { return m.Type == "state" })

	candidate := s.CandidateIDs[0]
	if code := doJSON(t, http.MethodPost, base+"/swipes", partner.Token, handlers.SwipeRequest{CandidateID: candidate, Direction: models.DirectionRight}, nil); code != http.StatusOK {
		t.Fatalf("partner swipe status = %d", code)
	}
	readUntil(t, conn, func(m handlers.WSMessage) bool {
		if m.Type != "swipes" {
			return false
		}
		ledger, _ := m.Data.(map[string]any)
		entry, _ := ledger[candidate].(map[string]any)
		return entry != nil && entry["partner_swipe"] == "right"
	})

	if err := conn.WriteJSON(handlers.WSMessage{Type: "swipe", CandidateID: candidate, Direction: models.DirectionRight}); err != nil {
		t.Fatalf("write swipe: %v", err)
	}
	result := readUntil(t, conn, func(m handlers.WSMessage) bool { return m.Type == "swipe_result" })
	data, _ := result.Data.(map[string]any)
	if data["is_match"] != true {
		t.Errorf("swipe_result = %+v, want a match", result.Data)
	}

	if err := conn.WriteJSON(handlers.WSMessage{Type: "swipe", CandidateID: "nope", Direction: models.DirectionLeft}); err != nil {
		t.Fatalf("write swipe: %v", err)
	}
	errMsg := readUntil(t, conn, func(m handlers.WSMessage) bool { return m.Type == "error" })
	if errMsg.Status != http.StatusNotFound {
		t.Errorf("error status = %d, want 404", errMsg.Status)
	}

	if err := conn.WriteJSON(handlers.WSMessage{Type: "end"}); err != nil {
		t.Fatalf("write end: %v", err)
	}
	readUntil(t, conn, func(m handlers.WSMessage) bool {
		if m.Type != "session" {
			return false
		}
		sess, _ := m.Data.(map[string]any)
		return sess["status"] == string(models.StatusCompleted)
	})
}

func TestWebSocketRejects(t *testing.T) {
	srv := setupTestServer(t, 10)
	creator := registerDevice(t, srv)
	stranger := registerDevice(t, srv)
	s := createSession(t, srv, creator.Token).Session
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"bad token", "?token=forged&session_id=" + s.ID, http.StatusUnauthorized},
		{"missing session id", "?token=" + creator.Token, http.StatusBadRequest},
		{"unknown session", "?token=" + creator.Token + "&session_id=nope", http.StatusNotFound},
		{"non member", "?token=" + stranger.Token + "&session_id=" + s.ID, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsBase+tt.query, nil)
			if err == nil {
				t.Fatal("expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Errorf("response = %v, want status %d", resp, tt.want)
			}
		})
	}
}
