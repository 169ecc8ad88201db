package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencontroller/backend/internal/db"
	"github.com/opencontroller/backend/internal/driver/drivertest"
	"github.com/opencontroller/backend/internal/model"
	"github.com/opencontroller/backend/internal/repository"
	"github.com/opencontroller/backend/internal/session"
	"github.com/opencontroller/backend/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T, shutdown func()) (*gin.Engine, *ws.Service, *repository.SessionRepository) {
	t.Helper()

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	repo := repository.NewSessionRepository(testDB)

	manager := session.NewManager(session.NewRegistry(drivertest.New()))
	svc := ws.NewService(manager, ws.Options{Store: repo, HistorySize: 8})
	t.Cleanup(svc.Close)

	r := gin.New()
	r.SetTrustedProxies(nil)
	NewStatusHandler(svc, shutdown).RegisterRoutes(r)
	api := r.Group("/api")
	NewSessionHandler(repo).RegisterRoutes(api)
	NewWebSocketHandler(svc.Handler()).RegisterRoutes(api)

	return r, svc, repo
}

func doRequest(r *gin.Engine, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _, _ := setupTestRouter(t, nil)

	w := doRequest(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestStatusReflectsConnectedClients(t *testing.T) {
	r, svc, _ := setupTestRouter(t, nil)

	for i := 0; i < 2; i++ {
		if err := svc.Attach(svc.NewClient(nil, ws.RoleController)); err != nil {
			t.Fatal(err)
		}
	}
	svc.Attach(svc.NewClient(nil, ws.RoleObserver))

	w := doRequest(r, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Clients     int               `json:"clients"`
		Observers   int               `json:"observers"`
		Controllers map[string]int    `json:"controllers"`
		LiveSlots   []int             `json:"live_slots"`
		Driver      string            `json:"driver"`
		Recent      []json.RawMessage `json:"recent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid status body: %v", err)
	}

	if body.Clients != 2 || body.Observers != 1 {
		t.Errorf("expected 2 clients and 1 observer, got %d and %d", body.Clients, body.Observers)
	}
	if body.Controllers["1"] != 1 || body.Controllers["2"] != 1 || len(body.Controllers) != model.MaxSlots {
		t.Errorf("unexpected controllers %v", body.Controllers)
	}
	if len(body.LiveSlots) != 2 {
		t.Errorf("expected 2 live slots, got %v", body.LiveSlots)
	}
	if body.Driver != "drivertest" {
		t.Errorf("unexpected driver %q", body.Driver)
	}
	if len(body.Recent) != 3 {
		t.Errorf("expected 3 recent entries, got %d", len(body.Recent))
	}
}

func TestShutdown(t *testing.T) {
	t.Run("rejects remote callers", func(t *testing.T) {
		called := make(chan struct{}, 1)
		r, _, _ := setupTestRouter(t, func() { called <- struct{}{} })

		w := doRequest(r, http.MethodPost, "/shutdown", "192.168.1.20:40000")
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
		var body ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &body)
		if body.Error.Code != "FORBIDDEN" {
			t.Errorf("unexpected error code %q", body.Error.Code)
		}
		select {
		case <-called:
			t.Error("shutdown must not run for a remote caller")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("accepts loopback once", func(t *testing.T) {
		called := make(chan struct{}, 2)
		r, _, _ := setupTestRouter(t, func() { called <- struct{}{} })

		for _, addr := range []string{"127.0.0.1:40000", "[::1]:40001"} {
			w := doRequest(r, http.MethodPost, "/shutdown", addr)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200 from %s, got %d", addr, w.Code)
			}
		}

		select {
		case <-called:
		case <-time.After(time.Second):
			t.Fatal("shutdown was not triggered")
		}
		select {
		case <-called:
			t.Error("shutdown should run only once")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestManifest(t *testing.T) {
	r, _, _ := setupTestRouter(t, nil)

	w := doRequest(r, http.MethodGet, "/manifest.json", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["short_name"] != "OController" || body["display"] != "fullscreen" || body["orientation"] != "landscape" {
		t.Errorf("unexpected manifest %v", body)
	}
}

func TestListSessions(t *testing.T) {
	r, svc, _ := setupTestRouter(t, nil)

	clients := make([]*ws.Client, 3)
	for i := range clients {
		clients[i] = svc.NewClient(nil, ws.RoleController)
		svc.Attach(clients[i])
		time.Sleep(5 * time.Millisecond)
	}
	svc.Detach(clients[0])

	w := doRequest(r, http.MethodGet, "/api/sessions?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Sessions []SessionResponse `json:"sessions"`
		Total    int               `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 2 || len(body.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", body.Total)
	}

	w = doRequest(r, http.MethodGet, "/api/sessions", "")
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Total != 3 {
		t.Fatalf("expected 3 sessions, got %d", body.Total)
	}
	disconnected := 0
	for _, s := range body.Sessions {
		if s.Status == string(model.SessionStatusDisconnected) {
			disconnected++
			if s.DisconnectedAt == "" {
				t.Error("disconnected session should carry disconnectedAt")
			}
		}
	}
	if disconnected != 1 {
		t.Errorf("expected 1 disconnected session, got %d", disconnected)
	}
}

func TestListSessionsInvalidLimit(t *testing.T) {
	r, _, _ := setupTestRouter(t, nil)

	for _, q := range []string{"abc", "0", "-3"} {
		w := doRequest(r, http.MethodGet, "/api/sessions?limit="+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestGetSession(t *testing.T) {
	r, _, repo := setupTestRouter(t, nil)

	now := time.Now()
	rec := &model.SessionRecord{
		ID:          "rec-1",
		ClientID:    "client-1",
		Slot:        3,
		Status:      model.SessionStatusConnected,
		DriverOK:    true,
		ConnectedAt: now,
		UpdatedAt:   now,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	w := doRequest(r, http.MethodGet, "/api/sessions/rec-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body SessionResponse
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Controller != 3 || body.ClientID != "client-1" || !body.DriverOK {
		t.Errorf("unexpected session %+v", body)
	}

	w = doRequest(r, http.MethodGet, "/api/sessions/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestWebSocketRouteRejectsPlainHTTP(t *testing.T) {
	r, svc, _ := setupTestRouter(t, nil)

	w := doRequest(r, http.MethodGet, "/api/ws", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-upgrade request, got %d", w.Code)
	}
	if svc.Manager().ClientCount() != 0 {
		t.Error("a failed upgrade must not create a session")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
		{1400 * time.Millisecond, "1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
