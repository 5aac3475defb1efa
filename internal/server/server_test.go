package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tideline/internal/app"
	"tideline/internal/config"
	"tideline/internal/db"
	"tideline/internal/domain"
	"tideline/internal/events"
	"tideline/internal/migrate"
	"tideline/internal/migration"
	"tideline/internal/repo"
	"tideline/internal/server"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("")
	cfg.Transitions.Auto = false
	a := app.New(repo.Repo{DB: conn}, events.Writer{DB: conn}, cfg, zerolog.Nop())
	handler, err := server.New(server.Config{
		App:      a,
		BasePath: "/v0",
		Auth: server.AuthConfig{
			JWTSecret:              testSecret,
			AllowLegacyActorHeader: true,
			EnableDevLogin:         true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			a.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeErr(t *testing.T, data []byte) errEnvelope {
	t.Helper()
	var env errEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, string(data))
	}
	return env
}

func captainToken(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "capt-1",
		"role":     "captain",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return body["token"]
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func createTestTrip(t *testing.T, srv *testServer, token string, tripDate time.Time) domain.Trip {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/trips", map[string]any{
		"name":       "Reef run",
		"captain_id": "capt-1",
		"trip_date":  tripDate.UTC().Format(time.RFC3339),
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create trip status %d: %s", res.StatusCode, string(data))
	}
	var trip domain.Trip
	if err := json.Unmarshal(data, &trip); err != nil {
		t.Fatalf("decode trip: %v", err)
	}
	return trip
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/trips", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeErr(t, data)
	if env.Error.Code != "unauthorized" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/trips", nil, bearer("garbage"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestLegacyActorHeaderFallback(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Actor-Id": "ann",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me map[string]string
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me["actor_id"] != "ann" || me["role"] != "angler" || me["source"] != "legacy_header" {
		t.Fatalf("unexpected principal: %v", me)
	}
}

func TestTripLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := captainToken(t, srv)
	trip := createTestTrip(t, srv, token, time.Now())
	base := srv.URL + "/v0/trips/" + trip.ID

	res, data := doJSON(t, srv.Client(), http.MethodGet, base+"/phase", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("phase status %d: %s", res.StatusCode, string(data))
	}
	var status server.PhaseStatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Phase != "preparation" {
		t.Fatalf("expected preparation, got %s", status.Phase)
	}
	if status.NextPhase != "live" {
		t.Fatalf("expected live next, got %s", status.NextPhase)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/phase/validate", map[string]any{"to": "live"}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var validation server.ValidationResponse
	if err := json.Unmarshal(data, &validation); err != nil {
		t.Fatalf("decode validation: %v", err)
	}
	if !validation.Valid {
		t.Fatalf("expected valid transition: %+v", validation)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/phase/transitions", map[string]any{"to": "live"}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("transition status %d: %s", res.StatusCode, string(data))
	}
	var tr server.TransitionResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		t.Fatalf("decode transition: %v", err)
	}
	if tr.Status != "completed" || tr.From != "preparation" || tr.To != "live" {
		t.Fatalf("unexpected transition: %+v", tr)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, base+"/phase/history", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history server.HistoryResponse
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Entries) != 2 || history.TransitionCount != 1 {
		t.Fatalf("unexpected history: %+v", history)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, base+"/phase/transitions", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("records status %d: %s", res.StatusCode, string(data))
	}
	var records []domain.TransitionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 1 || records[0].Status != "completed" {
		t.Fatalf("unexpected records: %+v", records)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, base+"/phase/migrations", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("migrations status %d: %s", res.StatusCode, string(data))
	}
	var ledger []migration.HistoryEntry
	if err := json.Unmarshal(data, &ledger); err != nil {
		t.Fatalf("decode migrations: %v", err)
	}
	if len(ledger) != 1 || !ledger[0].Success {
		t.Fatalf("unexpected migration ledger: %+v", ledger)
	}
}

func TestTransitionValidationFailure(t *testing.T) {
	srv := newTestServer(t)
	token := captainToken(t, srv)
	// trip far in the future: go-live window closed
	trip := createTestTrip(t, srv, token, time.Now().Add(100*time.Hour))

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/trips/"+trip.ID+"/phase/transitions", map[string]any{"to": "live"}, bearer(token))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeErr(t, data)
	if env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
}

func TestTransitionPermissionDenied(t *testing.T) {
	srv := newTestServer(t)
	token := captainToken(t, srv)
	trip := createTestTrip(t, srv, token, time.Now())

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/trips/"+trip.ID+"/phase/transitions", map[string]any{"to": "live"}, map[string]string{
		"X-Actor-Id":   "ann",
		"X-Actor-Role": "angler",
	})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeErr(t, data)
	if env.Error.Code != "PERMISSION_DENIED" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
}

func TestUnknownTripIs404(t *testing.T) {
	srv := newTestServer(t)
	token := captainToken(t, srv)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/trips/nope", nil, bearer(token))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeErr(t, data)
	if env.Error.Code != "not_found" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
}

func TestFeedEndpoints(t *testing.T) {
	srv := newTestServer(t)
	token := captainToken(t, srv)
	trip := createTestTrip(t, srv, token, time.Now())
	base := srv.URL + "/v0/trips/" + trip.ID

	res, data := doJSON(t, srv.Client(), http.MethodPost, base+"/checklist", map[string]any{
		"title":    "Check life jackets",
		"category": "safety",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add checklist status %d: %s", res.StatusCode, string(data))
	}
	var item domain.ChecklistItem
	if err := json.Unmarshal(data, &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/checklist/"+item.ID+"/check", map[string]any{"done": true}, bearer(token))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("check item status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, base+"/checklist", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list checklist status %d: %s", res.StatusCode, string(data))
	}
	var items []domain.ChecklistItem
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 1 || !items[0].IsCompleted {
		t.Fatalf("item not marked done: %+v", items)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/catches", map[string]any{
		"species": "tuna",
		"weight":  12.5,
		"spot":    "reef",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add catch status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/catches", map[string]any{
		"species":   "tuna",
		"weight":    1.0,
		"caught_at": "yesterday",
	}, bearer(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad caught_at, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/reviews", map[string]any{
		"rating":  6,
		"comment": "too good",
	}, bearer(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for rating 6, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/reviews", map[string]any{
		"rating":  5,
		"comment": "great bait choice",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add review status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/weather", map[string]any{
		"temperature": 21.5,
		"windSpeed":   12.0,
		"conditions":  "clear",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add weather status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, base+"/events", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evs []domain.Event
	if err := json.Unmarshal(data, &evs); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(evs) == 0 {
		t.Fatalf("expected trip events")
	}
}

func TestConfigPatchRequiresCaptain(t *testing.T) {
	srv := newTestServer(t)
	token := captainToken(t, srv)
	trip := createTestTrip(t, srv, token, time.Now())
	url := srv.URL + "/v0/trips/" + trip.ID + "/phase/config"

	res, data := doJSON(t, srv.Client(), http.MethodPatch, url, map[string]any{"auto_transitions": false}, map[string]string{
		"X-Actor-Id":   "ann",
		"X-Actor-Role": "angler",
	})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, url, map[string]any{"check_interval": "10s"}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var cfg server.ConfigResponse
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.CheckInterval != "10s" {
		t.Fatalf("check interval not applied: %+v", cfg)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, url, map[string]any{"check_interval": "whenever"}, bearer(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad interval, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCapabilitiesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := captainToken(t, srv)
	trip := createTestTrip(t, srv, token, time.Now())

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/trips/"+trip.ID+"/phase/capabilities?phase=live", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("capabilities status %d: %s", res.StatusCode, string(data))
	}
	var caps struct {
		CanEnter bool `json:"can_enter"`
		CanExit  bool `json:"can_exit"`
	}
	if err := json.Unmarshal(data, &caps); err != nil {
		t.Fatalf("decode capabilities: %v", err)
	}
	if !caps.CanEnter || !caps.CanExit {
		t.Fatalf("captain should have full capabilities: %+v", caps)
	}
}
