package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"poleplan/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// MigrateDir applies every *.sql file in dir in lexical order. Dev helper;
// production deploys run migrations out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	files := []string{}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) CreateLocations(ctx context.Context, tenantID string, in []model.LocationIn) (int, int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()
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
		var fixed any
		if li.FixedDate != "" {
			fd, err := model.ParseDate(li.FixedDate)
			if err != nil {
				skipped++
				continue
			}
			fixed = fd
		}
		// dedup on (tenant_id, serial) when a serial is provided
		if li.Serial != "" {
			var existsID string
			err = tx.QueryRowContext(ctx, `SELECT id::text FROM locations WHERE tenant_id=$1 AND serial=$2`, tenantID, li.Serial).Scan(&existsID)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return 0, 0, err
			}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO locations (id, tenant_id, serial, lat, lng, due_date, fixed_date, service_minutes, planned)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false)`,
			uuid.New(), tenantID, nullIfEmpty(li.Serial), li.Position.Lat, li.Position.Lng, due, fixed, li.ServiceMinutes)
		if err != nil {
			return 0, 0, err
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return created, skipped, nil
}

const locationCols = `id::text, COALESCE(serial,''), lat, lng, due_date, fixed_date, service_minutes, planned`

func scanLocation(row interface{ Scan(...any) error }, tenantID string) (model.Location, error) {
	var loc model.Location
	var fixed sql.NullTime
	if err := row.Scan(&loc.ID, &loc.Serial, &loc.Position.Lat, &loc.Position.Lng, &loc.DueDate, &fixed, &loc.ServiceMinutes, &loc.Planned); err != nil {
		return loc, err
	}
	loc.TenantID = tenantID
	loc.DueDate = model.Midnight(loc.DueDate)
	if fixed.Valid {
		fd := model.Midnight(fixed.Time)
		loc.FixedDate = &fd
	}
	return loc, nil
}

func (p *Postgres) ListLocations(ctx context.Context, tenantID, cursor string, limit int) ([]model.Location, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+locationCols+` FROM locations WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+locationCols+` FROM locations WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Location{}
	var last string
	for rows.Next() {
		loc, err := scanLocation(rows, tenantID)
		if err != nil {
			return nil, "", err
		}
		out = append(out, loc)
		last = loc.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) ListOpenLocations(ctx context.Context, tenantID string, until time.Time) ([]model.Location, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+locationCols+` FROM locations
		WHERE tenant_id=$1 AND NOT planned AND (due_date <= $2 OR fixed_date <= $2) ORDER BY id`, tenantID, model.Midnight(until))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Location{}
	for rows.Next() {
		loc, err := scanLocation(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (p *Postgres) GetLocations(ctx context.Context, tenantID string, ids []string) ([]model.Location, error) {
	out := make([]model.Location, 0, len(ids))
	for _, id := range ids {
		row := p.db.QueryRowContext(ctx, `SELECT `+locationCols+` FROM locations WHERE tenant_id=$1 AND id=$2`, tenantID, id)
		loc, err := scanLocation(row, tenantID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

func (p *Postgres) CompleteLocation(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM locations WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertDriver(ctx context.Context, tenantID, driverID string, in model.DriverIn) (model.Driver, error) {
	if in.Home == nil {
		return model.Driver{}, fmt.Errorf("driver home is required")
	}
	if driverID == "" {
		driverID = uuid.New().String()
	}
	windows, err := json.Marshal(in.Windows)
	if err != nil {
		return model.Driver{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO drivers (id, tenant_id, name, home_lat, home_lng, default_service_minutes, max_work_minutes, windows)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET name=$3, home_lat=$4, home_lng=$5, default_service_minutes=$6, max_work_minutes=$7, windows=$8`,
		driverID, tenantID, in.Name, in.Home.Lat, in.Home.Lng, in.DefaultServiceMinutes, in.MaxWorkMinutes, windows)
	if err != nil {
		return model.Driver{}, err
	}
	drivers, err := p.ListDrivers(ctx, tenantID)
	if err != nil {
		return model.Driver{}, err
	}
	for _, d := range drivers {
		if d.ID == driverID {
			return d, nil
		}
	}
	return model.Driver{}, ErrNotFound
}

func (p *Postgres) ListDrivers(ctx context.Context, tenantID string) ([]model.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, home_lat, home_lng, default_service_minutes, max_work_minutes, windows
		FROM drivers WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Driver{}
	for rows.Next() {
		var d model.Driver
		var windows []byte
		if err := rows.Scan(&d.ID, &d.Name, &d.Home.Lat, &d.Home.Lng, &d.DefaultServiceMinutes, &d.MaxWorkMinutes, &windows); err != nil {
			return nil, err
		}
		d.TenantID = tenantID
		var wins []model.WindowIn
		if len(windows) > 0 {
			if err := json.Unmarshal(windows, &wins); err != nil {
				return nil, err
			}
		}
		for _, w := range wins {
			date, err := model.ParseDate(w.Date)
			if err != nil {
				continue
			}
			d.Windows = append(d.Windows, model.AvailabilityWindow{Date: date, StartMinute: w.StartMinute, EndMinute: w.EndMinute})
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) GetDay(ctx context.Context, tenantID string, date time.Time) (model.Day, error) {
	d := model.Day{TenantID: tenantID, Date: model.Midnight(date)}
	row := p.db.QueryRowContext(ctx, `SELECT locked, extra_work_minutes FROM days WHERE tenant_id=$1 AND day=$2`, tenantID, model.Midnight(date))
	err := row.Scan(&d.Locked, &d.ExtraWorkMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return d, nil
	}
	return d, err
}

func (p *Postgres) PatchDay(ctx context.Context, tenantID string, date time.Time, patch model.DayPatch) (model.Day, error) {
	d, err := p.GetDay(ctx, tenantID, date)
	if err != nil {
		return d, err
	}
	if patch.Locked != nil {
		d.Locked = *patch.Locked
	}
	if patch.ExtraWorkMinutes != nil {
		d.ExtraWorkMinutes = *patch.ExtraWorkMinutes
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO days (tenant_id, day, locked, extra_work_minutes) VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id, day) DO UPDATE SET locked=$3, extra_work_minutes=$4`,
		tenantID, d.Date, d.Locked, d.ExtraWorkMinutes)
	if err != nil {
		return d, err
	}
	_, err = p.db.ExecContext(ctx, `UPDATE routes SET locked=$1 WHERE tenant_id=$2 AND day=$3`, d.Locked, tenantID, d.Date)
	return d, err
}

func (p *Postgres) GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error) {
	var r model.Route
	row := p.db.QueryRowContext(ctx, `SELECT id::text, driver_id::text, day, engine, locked FROM routes WHERE tenant_id=$1 AND id=$2`, tenantID, routeID)
	if err := row.Scan(&r.ID, &r.DriverID, &r.Date, &r.Engine, &r.Locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	r.TenantID = tenantID
	r.Date = model.Midnight(r.Date)
	stops, err := p.routeStops(ctx, tenantID, routeID)
	if err != nil {
		return r, err
	}
	r.Stops = stops
	return r, nil
}

func (p *Postgres) routeStops(ctx context.Context, tenantID, routeID string) ([]model.Stop, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, seq, location_id::text, planned_start, planned_end, travel_minutes, travel_km, service_minutes
		FROM route_stops WHERE tenant_id=$1 AND route_id=$2 ORDER BY seq`, tenantID, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Stop
	for rows.Next() {
		var s model.Stop
		if err := rows.Scan(&s.ID, &s.Seq, &s.LocationID, &s.PlannedStart, &s.PlannedEnd, &s.TravelMinutes, &s.TravelKm, &s.ServiceMin); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListRoutes(ctx context.Context, tenantID string, from, to time.Time) ([]model.Route, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, driver_id::text, day, engine, locked FROM routes
		WHERE tenant_id=$1 AND day >= $2 AND day <= $3 ORDER BY day, driver_id`, tenantID, model.Midnight(from), model.Midnight(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Route{}
	for rows.Next() {
		var r model.Route
		if err := rows.Scan(&r.ID, &r.DriverID, &r.Date, &r.Engine, &r.Locked); err != nil {
			return nil, err
		}
		r.TenantID = tenantID
		r.Date = model.Midnight(r.Date)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		stops, err := p.routeStops(ctx, tenantID, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Stops = stops
	}
	return out, nil
}

func (p *Postgres) ListRoutesForDate(ctx context.Context, tenantID string, date time.Time) ([]model.Route, error) {
	return p.ListRoutes(ctx, tenantID, date, date)
}

func (p *Postgres) SaveDayPlan(ctx context.Context, tenantID string, date time.Time, routes []model.Route, plannedLocationIDs []string) ([]model.Route, error) {
	day := model.Midnight(date)
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var locked bool
	err = tx.QueryRowContext(ctx, `SELECT locked FROM days WHERE tenant_id=$1 AND day=$2 FOR UPDATE`, tenantID, day).Scan(&locked)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if locked {
		return nil, ErrDayLocked
	}
	for _, r := range routes {
		_, err = tx.ExecContext(ctx, `DELETE FROM route_stops WHERE tenant_id=$1 AND route_id IN
			(SELECT id FROM routes WHERE tenant_id=$1 AND day=$2 AND driver_id=$3 AND NOT locked)`, tenantID, day, r.DriverID)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM routes WHERE tenant_id=$1 AND day=$2 AND driver_id=$3 AND NOT locked`, tenantID, day, r.DriverID)
		if err != nil {
			return nil, err
		}
	}
	saved := make([]model.Route, 0, len(routes))
	for _, r := range routes {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.TenantID = tenantID
		r.Date = day
		_, err = tx.ExecContext(ctx, `INSERT INTO routes (id, tenant_id, driver_id, day, engine, locked) VALUES ($1,$2,$3,$4,$5,false)`,
			r.ID, tenantID, r.DriverID, day, r.Engine)
		if err != nil {
			return nil, err
		}
		for i := range r.Stops {
			if r.Stops[i].ID == "" {
				r.Stops[i].ID = uuid.New().String()
			}
			s := r.Stops[i]
			_, err = tx.ExecContext(ctx, `INSERT INTO route_stops (id, tenant_id, route_id, seq, location_id, planned_start, planned_end, travel_minutes, travel_km, service_minutes)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				s.ID, tenantID, r.ID, s.Seq, s.LocationID, s.PlannedStart, s.PlannedEnd, s.TravelMinutes, s.TravelKm, s.ServiceMin)
			if err != nil {
				return nil, err
			}
		}
		saved = append(saved, r)
	}
	for _, id := range plannedLocationIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE locations SET planned=true WHERE tenant_id=$1 AND id=$2`, tenantID, id); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (p *Postgres) InsertTravelSamples(ctx context.Context, tenantID string, samples []model.TravelSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	n := 0
	for _, s := range samples {
		if s.Km <= 0 || s.Minutes <= 0 {
			continue
		}
		at := s.RecordedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO travel_samples (id, tenant_id, minutes, km, recorded_at) VALUES ($1,$2,$3,$4,$5)`,
			uuid.New(), tenantID, s.Minutes, s.Km, at)
		if err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Postgres) GetSolverConfig(ctx context.Context, tenantID string) (*model.SolverConfig, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT config FROM solver_configs WHERE tenant_id=$1`, tenantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg model.SolverConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, tenantID string, cfg model.SolverConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO solver_configs (tenant_id, config, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, raw)
	return err
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID, date, engine string, metrics map[string]any) error {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO plan_metrics (tenant_id, day, engine, metrics, updated_at) VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (tenant_id, day, engine) DO UPDATE SET metrics=$4, updated_at=now()`, tenantID, date, engine, raw)
	return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, date string) ([]map[string]any, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT metrics FROM plan_metrics WHERE tenant_id=$1 AND day=$2 ORDER BY engine`, tenantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		m := map[string]any{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.TenantID, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions
		WHERE tenant_id=$1 AND (events @> $2::jsonb OR events @> '["*"]'::jsonb)`, tenantID, fmt.Sprintf("[%q]", eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, delivered_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, next_attempt_at=$3, response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
