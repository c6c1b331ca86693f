package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"poleplan/internal/auth"
	"poleplan/internal/config"
	"poleplan/internal/model"
	"poleplan/internal/plan"
	"poleplan/internal/store"
	"poleplan/internal/traveltime"
	"poleplan/internal/webhooks"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	mem := store.NewMemory()
	return &Server{
		Cfg:      cfg,
		Store:    mem,
		Auth:     &auth.Verifier{Mode: "dev"},
		Pub:      webhooks.NewPublisher(mem),
		Broker:   NewBroker(),
		Model:    traveltime.NewModel(cfg.Estimator),
		Locker:   plan.NewMemoryLocker(),
		Log:      zerolog.Nop(),
		limiters: map[string]*rate.Limiter{},
	}
}

func seedFleet(t *testing.T, s *Server) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Store.UpsertDriver(ctx, "t_demo", "d1", model.DriverIn{
		Home:                  &model.GeoPoint{Lat: 39.7392, Lng: -104.9903},
		DefaultServiceMinutes: 10,
		MaxWorkMinutes:        480,
	})
	if err != nil {
		t.Fatalf("UpsertDriver: %v", err)
	}
	_, _, err = s.Store.CreateLocations(ctx, "t_demo", []model.LocationIn{
		{Serial: "P-1", Position: &model.GeoPoint{Lat: 39.75, Lng: -104.99}, DueDate: "2026-09-10"},
		{Serial: "P-2", Position: &model.GeoPoint{Lat: 39.76, Lng: -104.98}, DueDate: "2026-09-11"},
	})
	if err != nil {
		t.Fatalf("CreateLocations: %v", err)
	}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestLocationsCreateList(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"locations":[{"serial":"P-1","position":{"lat":39.7,"lng":-104.9},"dueDate":"2026-09-15"},{"serial":"BAD"}]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/locations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.LocationsHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("locations create: got %d body=%s", rr.Code, rr.Body.String())
	}
	var res struct {
		Created, Skipped int
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Created != 1 || res.Skipped != 1 {
		t.Fatalf("created=%d skipped=%d", res.Created, res.Skipped)
	}

	rr = httptest.NewRecorder()
	s.LocationsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/locations?limit=5", nil))
	if rr.Code != 200 {
		t.Fatalf("locations list: got %d", rr.Code)
	}
}

func TestLocationsCreateFromCSV(t *testing.T) {
	s := newTestServer(t)
	csvBody := "serial,lat,lng,dueDate\nP-10,39.70,-104.90,2026-09-15\nP-11,39.71,-104.91,2026-09-16\n"
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/locations", bytes.NewReader([]byte(csvBody)))
	req.Header.Set("Content-Type", "text/csv")
	s.LocationsHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("csv import: got %d body=%s", rr.Code, rr.Body.String())
	}
	var res struct {
		Created, Skipped int
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Created != 2 || res.Skipped != 0 {
		t.Fatalf("created=%d skipped=%d", res.Created, res.Skipped)
	}
}

func TestDriverUpsertValidation(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/drivers/d1", bytes.NewReader([]byte(`{"maxWorkMinutes":480}`)))
	s.DriversHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("driver without home should 400, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/v1/drivers/d1", bytes.NewReader([]byte(`{"home":{"lat":1,"lng":2},"maxWorkMinutes":480}`)))
	s.DriversHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("driver upsert: got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPlanEndToEnd(t *testing.T) {
	s := newTestServer(t)
	seedFleet(t, s)
	body := []byte(`{"fromDate":"2026-09-10","days":3}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.PlanHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("plan: got %d body=%s", rr.Code, rr.Body.String())
	}
	var res model.PlanResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Summary.GeneratedDays != 3 {
		t.Fatalf("generatedDays=%d, want 3", res.Summary.GeneratedDays)
	}
	if res.Summary.PlannedLocations != 2 || res.Summary.UnplannedLocations != 0 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	if len(res.Routes) == 0 {
		t.Fatal("expected at least one route")
	}
}

func TestPlanSkipsLockedDays(t *testing.T) {
	s := newTestServer(t)
	seedFleet(t, s)
	// lock the whole horizon
	for _, d := range []string{"2026-09-10", "2026-09-11", "2026-09-12"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/v1/days/"+d, bytes.NewReader([]byte(`{"locked":true}`)))
		s.DaysHandler(rr, req)
		if rr.Code != 200 {
			t.Fatalf("patch day %s: %d", d, rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plan", bytes.NewReader([]byte(`{"fromDate":"2026-09-10","days":3}`)))
	s.PlanHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("plan: got %d body=%s", rr.Code, rr.Body.String())
	}
	var res model.PlanResult
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Summary.GeneratedDays != 0 || res.Summary.SkippedLockedDays != 3 {
		t.Fatalf("locked horizon summary: %+v", res.Summary)
	}
}

// lockRaceStore simulates a day being locked between the orchestrator's
// skip check and the commit.
type lockRaceStore struct {
	*store.Memory
}

func (s *lockRaceStore) SaveDayPlan(ctx context.Context, tenantID string, date time.Time, routes []model.Route, plannedLocationIDs []string) ([]model.Route, error) {
	return nil, store.ErrDayLocked
}

func TestPlanLockedDuringCommitIsConflict(t *testing.T) {
	s := newTestServer(t)
	seedFleet(t, s)
	s.Store = &lockRaceStore{Memory: s.Store.(*store.Memory)}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plan", bytes.NewReader([]byte(`{"fromDate":"2026-09-10","days":1}`)))
	s.PlanHandler(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("locked commit should 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	var prob Problem
	_ = json.Unmarshal(rr.Body.Bytes(), &prob)
	if prob.Title != "Day locked" {
		t.Fatalf("problem=%+v", prob)
	}
}

func TestPlanRequiresPlannerRole(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plan", bytes.NewReader([]byte(`{"fromDate":"2026-09-10","days":1}`)))
	req.Header.Set("X-Role", "driver")
	s.PlanHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("driver role should be forbidden, got %d", rr.Code)
	}
}

func TestPlanRateLimit(t *testing.T) {
	s := newTestServer(t)
	codes := []int{}
	for i := 0; i < 4; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/plan", bytes.NewReader([]byte(`not-json`)))
		s.PlanHandler(rr, req)
		codes = append(codes, rr.Code)
	}
	limited := false
	for _, c := range codes {
		if c == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Fatalf("expected a rate-limited response, got %v", codes)
	}
}

func TestSolverConfigRoundTrip(t *testing.T) {
	s := newTestServer(t)
	put := []byte(`{"config":{"engine":"constructive","timeLimitSeconds":1,"maxDailyCandidates":50,"dueCostCapKm":40,"detourCostCapKm":60,"detourRefKm":25,"lateRefMinutes":200,"dayStartMinute":420}}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/solver-config", bytes.NewReader(put))
	s.SolverConfigHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("put solver config: %d body=%s", rr.Code, rr.Body.String())
	}
	rr = httptest.NewRecorder()
	s.SolverConfigHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/solver-config", nil))
	if rr.Code != 200 {
		t.Fatalf("get solver config: %d", rr.Code)
	}
	var res struct {
		Config model.SolverConfig `json:"config"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Config.Engine != model.EngineConstructive || res.Config.DayStartMinute != 420 {
		t.Fatalf("config did not round trip: %+v", res.Config)
	}
}

func TestSolverConfigRejectsBadEngine(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/solver-config", bytes.NewReader([]byte(`{"config":{"engine":"annealing"}}`)))
	s.SolverConfigHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad engine should 400, got %d", rr.Code)
	}
}

func TestTravelSamplesFeedModel(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"samples":[{"minutes":12,"km":6},{"minutes":0,"km":6},{"minutes":5,"km":-1}]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/travel-samples", bytes.NewReader(body))
	s.TravelSamplesHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("travel samples: %d body=%s", rr.Code, rr.Body.String())
	}
	var res struct {
		Accepted, Rejected int
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Accepted != 1 || res.Rejected != 2 {
		t.Fatalf("accepted=%d rejected=%d", res.Accepted, res.Rejected)
	}
	rr = httptest.NewRecorder()
	s.TravelModelHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/travel-model", nil))
	if rr.Code != 200 {
		t.Fatalf("travel model status: %d", rr.Code)
	}
}

func TestSubscriptionsLifecycle(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader([]byte(`{"url":"https://example.com/hook","events":["plan.completed"]}`)))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create subscription: %d body=%s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 {
		t.Fatalf("list subscriptions: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete subscription: %d", rr.Code)
	}
}

func TestRouteByIDNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.RouteByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/routes/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing route should 404, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type=%q", ct)
	}
	var prob Problem
	_ = json.Unmarshal(rr.Body.Bytes(), &prob)
	if prob.Type != "urn:poleplan:problem:route-not-found" || prob.Status != http.StatusNotFound {
		t.Fatalf("problem=%+v", prob)
	}
}
