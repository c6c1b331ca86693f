package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"poleplan/internal/auth"
	"poleplan/internal/buildinfo"
	"poleplan/internal/integrations"
	"poleplan/internal/integrations/csvimport"
	"poleplan/internal/model"
	"poleplan/internal/plan"
	"poleplan/internal/store"
	"poleplan/internal/webhooks"
)

// LocationsHandler handles POST/GET /v1/locations
func (s *Server) LocationsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !requireRole(w, r, p, auth.RolePlanner) {
			return
		}
		var ins []model.LocationIn
		if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
			var src integrations.SourceAdapter = &csvimport.Adapter{Reader: r.Body, BatchSize: 500}
			cursor := ""
			for {
				batch, err := src.FetchLocations(r.Context(), cursor)
				if err != nil {
					writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
					return
				}
				ins = append(ins, batch.Locations...)
				if batch.Cursor == "" {
					break
				}
				cursor = batch.Cursor
			}
		} else {
			var req struct {
				Locations []model.LocationIn `json:"locations"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			ins = req.Locations
		}
		created, skipped, err := s.Store.CreateLocations(r.Context(), p.Tenant, ins)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create locations failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"created": created, "skipped": skipped})
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListLocations(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List locations failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// LocationByIDHandler handles POST /v1/locations/{id}/complete
func (s *Server) LocationByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/locations/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "complete" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !requireRole(w, r, p, auth.RoleDriver) {
		return
	}
	if err := s.Store.CompleteLocation(r.Context(), p.Tenant, parts[0]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Location not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Complete failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DriversHandler handles GET /v1/drivers and PUT /v1/drivers/{id}
func (s *Server) DriversHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if r.Method == http.MethodGet && (r.URL.Path == "/v1/drivers" || r.URL.Path == "/v1/drivers/") {
		items, err := s.Store.ListDrivers(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List drivers failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireRole(w, r, p, auth.RoleDispatcher) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/drivers/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing driver id", r.URL.Path)
		return
	}
	var in model.DriverIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if in.Home == nil {
		writeProblem(w, http.StatusBadRequest, "Invalid driver", "home is required", r.URL.Path)
		return
	}
	if in.MaxWorkMinutes <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid driver", "maxWorkMinutes must be > 0", r.URL.Path)
		return
	}
	d, err := s.Store.UpsertDriver(r.Context(), p.Tenant, id, in)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Upsert driver failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DaysHandler handles GET/PATCH /v1/days/{date}
func (s *Server) DaysHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	raw := strings.TrimPrefix(r.URL.Path, "/v1/days/")
	date, err := model.ParseDate(raw)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		d, err := s.Store.GetDay(r.Context(), p.Tenant, date)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get day failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, d)
	case http.MethodPatch:
		if !requireRole(w, r, p, auth.RoleDispatcher) {
			return
		}
		var patch model.DayPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if patch.ExtraWorkMinutes != nil && *patch.ExtraWorkMinutes < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid patch", "extraWorkMinutes must be >= 0", r.URL.Path)
			return
		}
		d, err := s.Store.PatchDay(r.Context(), p.Tenant, date, patch)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Patch day failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, d)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlanHandler handles POST /v1/plan
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !requireRole(w, r, p, auth.RolePlanner) {
		return
	}
	if !s.planLimiter(p.Tenant).Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "too many plan requests", r.URL.Path)
		return
	}
	var req model.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	req.TenantID = p.Tenant
	if err := validatePlanRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	cfg := s.solverConfigFor(r.Context(), p.Tenant)
	result, err := s.planner(cfg).PlanHorizon(r.Context(), req)
	if err != nil {
		if errors.Is(err, plan.ErrPassInProgress) {
			writeProblem(w, http.StatusConflict, "Pass in progress", "a planning pass is already running for this tenant", r.URL.Path)
			return
		}
		if errors.Is(err, store.ErrDayLocked) {
			writeProblem(w, http.StatusConflict, "Day locked", "a day in the horizon was locked while the pass was committing", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Plan failed", err.Error(), r.URL.Path)
		return
	}
	event := webhooks.EventPlanCompleted
	if result.Summary.UnplannedLocations > 0 {
		event = webhooks.EventPlanPartiallyPlanned
	}
	s.Pub.Emit(r.Context(), p.Tenant, event, result.Summary)
	s.Broker.Publish(p.Tenant, SSEEvent{Type: event, Data: map[string]any{
		"generatedDays":           result.Summary.GeneratedDays,
		"skippedLockedDays":       result.Summary.SkippedLockedDays,
		"plannedLocationsCount":   result.Summary.PlannedLocations,
		"unplannedLocationsCount": result.Summary.UnplannedLocations,
	}})
	writeJSON(w, http.StatusOK, result)
}

// RoutesHandler handles GET /v1/routes?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	from, err := model.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid from", err.Error(), r.URL.Path)
		return
	}
	to := from
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = model.ParseDate(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid to", err.Error(), r.URL.Path)
			return
		}
	}
	items, err := s.Store.ListRoutes(r.Context(), p.Tenant, from, to)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List routes failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// RouteByIDHandler handles GET /v1/routes/{id}
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	id := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing route id", r.URL.Path)
		return
	}
	rt, err := s.Store.GetRoute(r.Context(), p.Tenant, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Route not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get route failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// TravelSamplesHandler handles POST /v1/travel-samples
func (s *Server) TravelSamplesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !requireRole(w, r, p, auth.RoleDriver) {
		return
	}
	var req struct {
		Samples []model.TravelSample `json:"samples"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	accepted := 0
	for _, sample := range req.Samples {
		if sample.Km <= 0 || sample.Minutes <= 0 {
			continue
		}
		sample.TenantID = p.Tenant
		s.Model.Observe(sample)
		accepted++
	}
	if accepted > 0 {
		if _, err := s.Store.InsertTravelSamples(r.Context(), p.Tenant, req.Samples); err != nil {
			s.Log.Warn().Err(err).Str("tenant", p.Tenant).Msg("persisting travel samples failed")
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted, "rejected": len(req.Samples) - accepted})
}

// TravelModelHandler handles GET /v1/travel-model and POST /v1/travel-model/approve
func (s *Server) TravelModelHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if strings.HasSuffix(r.URL.Path, "/approve") {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !requireRole(w, r, p, auth.RoleAdmin) {
			return
		}
		var req struct {
			Approved bool `json:"approved"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		s.Model.SetApproved(req.Approved)
		writeJSON(w, http.StatusOK, s.Model.Status())
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Model.Status())
}

// SolverConfigHandler handles GET/PUT /v1/admin/solver-config
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireRole(w, r, p, auth.RoleAdmin) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"config": s.solverConfigFor(r.Context(), p.Tenant)})
	case http.MethodPut:
		var body struct {
			Config *model.SolverConfig `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := validateSolverConfig(body.Config); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid solver config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveSolverConfig(r.Context(), p.Tenant, *body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics?date=YYYY-MM-DD
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !requireRole(w, r, p, auth.RoleAdmin) {
		return
	}
	date := r.URL.Query().Get("date")
	if _, err := model.ParseDate(date); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
		return
	}
	items, err := s.Store.ListPlanMetrics(r.Context(), p.Tenant, date)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plan metrics failed", err.Error(), r.URL.Path)
		return
	}
	// latest in-process runs carry detail the persisted rows omit
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"latestRuns": plan.EngineMetricsFor(p.Tenant, date),
	})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireRole(w, r, p, auth.RoleDispatcher) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		req.TenantID = p.Tenant
		if err := validateSubscription(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !requireRole(w, r, p, auth.RoleDispatcher) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EventsStreamHandler handles GET /v1/events/stream (SSE)
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(p.Tenant)
	defer s.Broker.Unsubscribe(p.Tenant, ch)
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\ndata: {\"ts\":%q}\n\n", time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, b)
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if pg, ok := s.Store.(*store.Postgres); ok {
		if err := pg.Ping(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
