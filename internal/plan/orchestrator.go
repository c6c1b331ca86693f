package plan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"poleplan/internal/metrics"
	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

// PlannerStore is the narrow persistence surface the orchestrator consumes.
// Reads are snapshots of collaborator state; SaveDayPlan commits one day's
// routes and planned markers atomically.
type PlannerStore interface {
	ListOpenLocations(ctx context.Context, tenantID string, until time.Time) ([]model.Location, error)
	GetLocations(ctx context.Context, tenantID string, ids []string) ([]model.Location, error)
	ListDrivers(ctx context.Context, tenantID string) ([]model.Driver, error)
	GetDay(ctx context.Context, tenantID string, date time.Time) (model.Day, error)
	ListRoutesForDate(ctx context.Context, tenantID string, date time.Time) ([]model.Route, error)
	SaveDayPlan(ctx context.Context, tenantID string, date time.Time, routes []model.Route, plannedLocationIDs []string) ([]model.Route, error)
	SavePlanMetrics(ctx context.Context, tenantID, date, engine string, metrics map[string]any) error
}

// Orchestrator drives the horizon loop: skip locked days, select candidates,
// run the engine, commit routes, roll unplaced work forward.
type Orchestrator struct {
	Store  PlannerStore
	Model  *traveltime.Model
	Locker Locker
	Config model.SolverConfig
	Log    zerolog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
	// OnSignal receives estimator quality signals for observability.
	OnSignal func(tenantID string, sig traveltime.QualitySignal)
	// OnDayPlanned receives each day outcome as it commits.
	OnDayPlanned func(tenantID string, out model.DayOutcome)
}

const maxHorizonDays = 60

// PlanHorizon runs one pass over [fromDate, fromDate+days). It holds the
// tenant's planning lock for the whole pass and snapshots the travel model
// once, so every cost within the pass sees identical model state.
func (o *Orchestrator) PlanHorizon(ctx context.Context, req model.PlanRequest) (*model.PlanResult, error) {
	from, err := model.ParseDate(req.FromDate)
	if err != nil {
		return nil, fmt.Errorf("invalid fromDate: %w", err)
	}
	if req.Days <= 0 || req.Days > maxHorizonDays {
		return nil, fmt.Errorf("days must be in 1..%d", maxHorizonDays)
	}
	cfg := o.Config
	if req.Engine != "" {
		cfg.Engine = req.Engine
	}
	if req.TimeLimitSeconds > 0 {
		cfg.TimeLimitSeconds = req.TimeLimitSeconds
	}
	if req.SolutionLimit > 0 {
		cfg.SolutionLimit = req.SolutionLimit
	}

	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	release, err := o.Locker.Acquire(ctx, req.TenantID, time.Duration(req.Days)*time.Minute)
	if err != nil {
		return nil, err
	}
	defer release()

	started := now()
	snap := o.Model.Snapshot(started)
	if snap.Signal != nil {
		// quality signal only: the pass always proceeds
		metrics.EstimatorSignals.WithLabelValues(snap.Signal.Reason).Inc()
		o.Log.Warn().
			Str("tenant", req.TenantID).
			Str("reason", snap.Signal.Reason).
			Float64("learnedRatio", snap.Signal.LearnedRatio).
			Float64("baselineRatio", snap.Signal.BaselineRatio).
			Msg("travel model quality signal")
		if o.OnSignal != nil {
			o.OnSignal(req.TenantID, *snap.Signal)
		}
	}

	engine, err := NewEngine(cfg, snap)
	if err != nil {
		return nil, err
	}

	until := from.AddDate(0, 0, req.Days+cfg.HorizonSlackDays)
	backlog, err := o.Store.ListOpenLocations(ctx, req.TenantID, until)
	if err != nil {
		return nil, fmt.Errorf("load backlog: %w", err)
	}
	drivers, err := o.Store.ListDrivers(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load drivers: %w", err)
	}

	result := &model.PlanResult{}
	everEligible := map[string]bool{}
	planned := map[string]bool{}

	for i := 0; i < req.Days; i++ {
		date := model.Midnight(from.AddDate(0, 0, i))
		day, err := o.Store.GetDay(ctx, req.TenantID, date)
		if err != nil {
			return nil, fmt.Errorf("load day %s: %w", model.FormatDate(date), err)
		}
		if day.Locked {
			result.Summary.SkippedLockedDays++
			result.Days = append(result.Days, model.DayOutcome{Date: date, Status: model.DayLocked})
			continue
		}

		fleet, err := o.resolveFleet(ctx, req.TenantID, drivers, day, cfg)
		if err != nil {
			return nil, err
		}
		candidates := SelectCandidates(backlog, date, fleet, cfg)
		for _, c := range candidates {
			everEligible[c.ID] = true
		}

		dayPlan, err := engine.Plan(ctx, day, candidates, fleet)
		if err != nil {
			return nil, fmt.Errorf("engine %s on %s: %w", engine.Name(), model.FormatDate(date), err)
		}

		saved, err := o.Store.SaveDayPlan(ctx, req.TenantID, date, dayPlan.Routes, dayPlan.Planned)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", model.FormatDate(date), err)
		}
		result.Routes = append(result.Routes, saved...)

		for _, id := range dayPlan.Planned {
			planned[id] = true
		}
		backlog = dropPlanned(backlog, dayPlan.Planned)

		RecordEngineMetrics(req.TenantID, model.FormatDate(date), engine.Name(), dayPlan.Metrics)
		if err := o.Store.SavePlanMetrics(ctx, req.TenantID, model.FormatDate(date), engine.Name(), metricsMap(dayPlan.Metrics)); err != nil {
			o.Log.Warn().Err(err).Msg("persist engine metrics")
		}

		status := model.DayPlanned
		if len(dayPlan.Unplanned) > 0 {
			status = model.DayPartiallyPlanned
		}
		outcome := model.DayOutcome{
			Date:      date,
			Status:    status,
			Planned:   len(dayPlan.Planned),
			Unplanned: len(dayPlan.Unplanned),
		}
		result.Days = append(result.Days, outcome)
		result.Summary.GeneratedDays++
		if o.OnDayPlanned != nil {
			o.OnDayPlanned(req.TenantID, outcome)
		}
	}

	for id := range everEligible {
		if !planned[id] {
			result.Unplanned = append(result.Unplanned, id)
		}
	}
	sort.Strings(result.Unplanned)
	result.Summary.PlannedLocations = len(planned)
	result.Summary.UnplannedLocations = len(result.Unplanned)

	metrics.PlannedLocations.Add(float64(result.Summary.PlannedLocations))
	metrics.UnplannedLocations.Add(float64(result.Summary.UnplannedLocations))
	metrics.PlanPassDuration.Observe(time.Since(started).Seconds())

	o.Log.Info().
		Str("tenant", req.TenantID).
		Str("engine", engine.Name()).
		Int("generatedDays", result.Summary.GeneratedDays).
		Int("skippedLockedDays", result.Summary.SkippedLockedDays).
		Int("planned", result.Summary.PlannedLocations).
		Int("unplanned", result.Summary.UnplannedLocations).
		Dur("took", time.Since(started)).
		Msg("horizon pass complete")
	return result, nil
}

// resolveFleet builds the day's available drivers, seeding each with any
// existing unlocked route so start-of-day position follows the route tail
// instead of home.
func (o *Orchestrator) resolveFleet(ctx context.Context, tenantID string, drivers []model.Driver, day model.Day, cfg model.SolverConfig) ([]DriverDay, error) {
	existing, err := o.Store.ListRoutesForDate(ctx, tenantID, day.Date)
	if err != nil {
		return nil, fmt.Errorf("load routes for %s: %w", model.FormatDate(day.Date), err)
	}
	byDriver := map[string]model.Route{}
	for _, r := range existing {
		if r.Locked {
			continue
		}
		byDriver[r.DriverID] = r
	}

	fleet := make([]DriverDay, 0, len(drivers))
	for _, d := range drivers {
		dd, ok := ResolveDriverDay(d, day, cfg)
		if !ok {
			continue
		}
		if r, has := byDriver[d.ID]; has {
			seed, err := o.routeLocations(ctx, tenantID, r)
			if err != nil {
				return nil, err
			}
			dd.RouteID = r.ID
			dd.Seed = seed
		}
		fleet = append(fleet, dd)
	}
	sort.Slice(fleet, func(i, j int) bool { return fleet[i].Driver.ID < fleet[j].Driver.ID })
	return fleet, nil
}

func (o *Orchestrator) routeLocations(ctx context.Context, tenantID string, r model.Route) ([]model.Location, error) {
	ids := make([]string, 0, len(r.Stops))
	for _, s := range r.Stops {
		ids = append(ids, s.LocationID)
	}
	locs, err := o.Store.GetLocations(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load route %s stops: %w", r.ID, err)
	}
	byID := map[string]model.Location{}
	for _, l := range locs {
		byID[l.ID] = l
	}
	ordered := make([]model.Location, 0, len(ids))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			ordered = append(ordered, l)
		}
	}
	return ordered, nil
}

func metricsMap(m EngineMetrics) map[string]any {
	return map[string]any{
		"engine":          m.Engine,
		"iterations":      m.Iterations,
		"improvements":    m.Improvements,
		"rejectedMoves":   m.RejectedMoves,
		"bestCost":        m.BestCost,
		"finalCost":       m.FinalCost,
		"budgetExhausted": m.BudgetExhausted,
	}
}

func dropPlanned(backlog []model.Location, plannedIDs []string) []model.Location {
	if len(plannedIDs) == 0 {
		return backlog
	}
	drop := map[string]bool{}
	for _, id := range plannedIDs {
		drop[id] = true
	}
	out := backlog[:0]
	for _, loc := range backlog {
		if !drop[loc.ID] {
			out = append(out, loc)
		}
	}
	return out
}
