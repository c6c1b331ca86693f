package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"poleplan/internal/model"
)

// Memory is a mutex-guarded in-memory store used when no DATABASE_URL is
// set, and by the handler and planner tests.
type Memory struct {
	mu        sync.Mutex
	locations map[string]model.Location          // id -> location
	locByTen  map[string][]string                // tenant -> location ids
	drivers   map[string]model.Driver            // tenant|id -> driver
	drvByTen  map[string][]string                // tenant -> driver ids
	days      map[string]model.Day               // tenant|date -> day
	routes    map[string]model.Route             // id -> route
	rtByTen   map[string][]string                // tenant -> route ids
	samples   map[string][]model.TravelSample    // tenant -> samples
	solverCfg map[string]model.SolverConfig      // tenant -> config
	planMx    map[string]map[string][]map[string]any // tenant -> date -> items
	subs      map[string][]model.Subscription    // tenant -> subscriptions

	deliveries map[string]*memDelivery // id -> delivery state
}

type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		locations:  map[string]model.Location{},
		locByTen:   map[string][]string{},
		drivers:    map[string]model.Driver{},
		drvByTen:   map[string][]string{},
		days:       map[string]model.Day{},
		routes:     map[string]model.Route{},
		rtByTen:    map[string][]string{},
		samples:    map[string][]model.TravelSample{},
		solverCfg:  map[string]model.SolverConfig{},
		planMx:     map[string]map[string][]map[string]any{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

func dayKey(tenantID string, date time.Time) string {
	return tenantID + "|" + model.FormatDate(date)
}

func drvKey(tenantID, driverID string) string {
	return tenantID + "|" + driverID
}

func (m *Memory) CreateLocations(ctx context.Context, tenantID string, in []model.LocationIn) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created, skipped := 0, 0
	for _, li := range in {
		if li.Position == nil || li.DueDate == "" {
			skipped++
			continue
		}
		due, err := model.ParseDate(li.DueDate)
		if err != nil {
			skipped++
			continue
		}
		loc := model.Location{
			ID:             uuid.New().String(),
			TenantID:       tenantID,
			Serial:         li.Serial,
			Position:       *li.Position,
			DueDate:        due,
			ServiceMinutes: li.ServiceMinutes,
		}
		if li.FixedDate != "" {
			fd, err := model.ParseDate(li.FixedDate)
			if err != nil {
				skipped++
				continue
			}
			loc.FixedDate = &fd
		}
		m.locations[loc.ID] = loc
		m.locByTen[tenantID] = append(m.locByTen[tenantID], loc.ID)
		created++
	}
	return created, skipped, nil
}

func (m *Memory) ListLocations(ctx context.Context, tenantID, cursor string, limit int) ([]model.Location, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.locByTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Location{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.locations[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) ListOpenLocations(ctx context.Context, tenantID string, until time.Time) ([]model.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Location{}
	for _, id := range m.locByTen[tenantID] {
		loc := m.locations[id]
		if loc.Planned {
			continue
		}
		dueIn := !model.Midnight(loc.DueDate).After(until)
		fixedIn := loc.FixedDate != nil && !model.Midnight(*loc.FixedDate).After(until)
		if dueIn || fixedIn {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetLocations(ctx context.Context, tenantID string, ids []string) ([]model.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Location, 0, len(ids))
	for _, id := range ids {
		if loc, ok := m.locations[id]; ok && loc.TenantID == tenantID {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (m *Memory) CompleteLocation(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[id]
	if !ok || loc.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.locations, id)
	ids := m.locByTen[tenantID]
	for i := range ids {
		if ids[i] == id {
			m.locByTen[tenantID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) UpsertDriver(ctx context.Context, tenantID, driverID string, in model.DriverIn) (model.Driver, error) {
	if in.Home == nil {
		return model.Driver{}, fmt.Errorf("driver home is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := model.Driver{
		ID:                    driverID,
		TenantID:              tenantID,
		Name:                  in.Name,
		Home:                  *in.Home,
		DefaultServiceMinutes: in.DefaultServiceMinutes,
		MaxWorkMinutes:        in.MaxWorkMinutes,
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	for _, w := range in.Windows {
		date, err := model.ParseDate(w.Date)
		if err != nil {
			return model.Driver{}, fmt.Errorf("window date %q: %w", w.Date, err)
		}
		d.Windows = append(d.Windows, model.AvailabilityWindow{Date: date, StartMinute: w.StartMinute, EndMinute: w.EndMinute})
	}
	key := drvKey(tenantID, d.ID)
	if _, exists := m.drivers[key]; !exists {
		m.drvByTen[tenantID] = append(m.drvByTen[tenantID], d.ID)
	}
	m.drivers[key] = d
	return d, nil
}

func (m *Memory) ListDrivers(ctx context.Context, tenantID string) ([]model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Driver{}
	for _, id := range m.drvByTen[tenantID] {
		out = append(out, m.drivers[drvKey(tenantID, id)])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetDay(ctx context.Context, tenantID string, date time.Time) (model.Day, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.days[dayKey(tenantID, date)]; ok {
		return d, nil
	}
	return model.Day{TenantID: tenantID, Date: model.Midnight(date)}, nil
}

func (m *Memory) PatchDay(ctx context.Context, tenantID string, date time.Time, patch model.DayPatch) (model.Day, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey(tenantID, date)
	d, ok := m.days[key]
	if !ok {
		d = model.Day{TenantID: tenantID, Date: model.Midnight(date)}
	}
	if patch.Locked != nil {
		d.Locked = *patch.Locked
	}
	if patch.ExtraWorkMinutes != nil {
		d.ExtraWorkMinutes = *patch.ExtraWorkMinutes
	}
	m.days[key] = d
	// route lock flags follow the day
	for _, id := range m.rtByTen[tenantID] {
		r := m.routes[id]
		if model.Midnight(r.Date).Equal(model.Midnight(date)) {
			r.Locked = d.Locked
			m.routes[id] = r
		}
	}
	return d, nil
}

func (m *Memory) GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok || r.TenantID != tenantID {
		return model.Route{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRoutes(ctx context.Context, tenantID string, from, to time.Time) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Route{}
	for _, id := range m.rtByTen[tenantID] {
		r := m.routes[id]
		d := model.Midnight(r.Date)
		if !d.Before(model.Midnight(from)) && !d.After(model.Midnight(to)) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].DriverID < out[j].DriverID
	})
	return out, nil
}

func (m *Memory) ListRoutesForDate(ctx context.Context, tenantID string, date time.Time) ([]model.Route, error) {
	return m.ListRoutes(ctx, tenantID, date, date)
}

func (m *Memory) SaveDayPlan(ctx context.Context, tenantID string, date time.Time, routes []model.Route, plannedLocationIDs []string) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.days[dayKey(tenantID, date)]; ok && d.Locked {
		return nil, ErrDayLocked
	}
	// replace this day's unlocked routes for the drivers being committed
	committed := map[string]bool{}
	for _, r := range routes {
		committed[r.DriverID] = true
	}
	keep := m.rtByTen[tenantID][:0]
	for _, id := range m.rtByTen[tenantID] {
		r := m.routes[id]
		if model.Midnight(r.Date).Equal(model.Midnight(date)) && !r.Locked && committed[r.DriverID] {
			delete(m.routes, id)
			continue
		}
		keep = append(keep, id)
	}
	m.rtByTen[tenantID] = keep

	saved := make([]model.Route, 0, len(routes))
	for _, r := range routes {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.TenantID = tenantID
		r.Date = model.Midnight(date)
		for i := range r.Stops {
			if r.Stops[i].ID == "" {
				r.Stops[i].ID = uuid.New().String()
			}
		}
		m.routes[r.ID] = r
		m.rtByTen[tenantID] = append(m.rtByTen[tenantID], r.ID)
		saved = append(saved, r)
	}
	for _, id := range plannedLocationIDs {
		if loc, ok := m.locations[id]; ok && loc.TenantID == tenantID {
			loc.Planned = true
			m.locations[id] = loc
		}
	}
	return saved, nil
}

func (m *Memory) InsertTravelSamples(ctx context.Context, tenantID string, samples []model.TravelSample) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range samples {
		if s.Km <= 0 || s.Minutes <= 0 {
			continue
		}
		s.TenantID = tenantID
		m.samples[tenantID] = append(m.samples[tenantID], s)
		n++
	}
	return n, nil
}

func (m *Memory) GetSolverConfig(ctx context.Context, tenantID string) (*model.SolverConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.solverCfg[tenantID]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, tenantID string, cfg model.SolverConfig) error {
	m.mu.Lock()
	m.solverCfg[tenantID] = cfg
	m.mu.Unlock()
	return nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, date, engine string, metrics map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planMx[tenantID] == nil {
		m.planMx[tenantID] = map[string][]map[string]any{}
	}
	items := m.planMx[tenantID][date]
	replaced := false
	for i := range items {
		if items[i]["engine"] == engine {
			items[i] = metrics
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, metrics)
	}
	m.planMx[tenantID][date] = items
	return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, date string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.planMx[tenantID][date]...), nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription(nil), m.subs[tenantID]...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	for i := range subs {
		if subs[i].ID == id {
			m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload,
			Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, d := range m.deliveries {
		if d.Status == "pending" && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
