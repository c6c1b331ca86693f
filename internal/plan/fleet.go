package plan

import (
	"time"

	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

// DriverDay is one driver's resolved capacity and starting state for a
// single planning date.
type DriverDay struct {
	Driver          model.Driver
	CapacityMinutes float64
	StartOfDay      time.Time
	// RouteID and Seed carry an existing unlocked route for the date; the
	// engines insert around the seeded stops instead of starting from home
	// with an empty route.
	RouteID string
	Seed    []model.Location
}

// ResolveDriverDay computes a driver's capacity and day anchor for date.
// The second return is false when the driver is unavailable on that date.
//
// Fallback policy: a driver with no availability window recorded for the
// date works at default capacity, unless cfg.RequireWindow makes windows
// mandatory.
func ResolveDriverDay(d model.Driver, day model.Day, cfg model.SolverConfig) (DriverDay, bool) {
	date := model.Midnight(day.Date)
	capMin := float64(d.MaxWorkMinutes + day.ExtraWorkMinutes)
	startMinute := cfg.DayStartMinute

	if w := d.WindowFor(date); w != nil {
		if w.Span() <= 0 {
			return DriverDay{}, false
		}
		if span := float64(w.Span()); span < capMin {
			capMin = span
		}
		startMinute = w.StartMinute
	} else if cfg.RequireWindow {
		return DriverDay{}, false
	}
	if capMin <= 0 {
		return DriverDay{}, false
	}
	return DriverDay{
		Driver:          d,
		CapacityMinutes: capMin,
		StartOfDay:      date.Add(time.Duration(startMinute) * time.Minute),
	}, true
}

// serviceMinutes resolves the effective on-site duration for loc under d.
func serviceMinutes(d model.Driver, loc model.Location) int {
	if loc.ServiceMinutes > 0 {
		return loc.ServiceMinutes
	}
	return d.DefaultServiceMinutes
}

// routeBuild is the mutable working form of one driver's route while an
// engine runs. Stops are materialized only on commit.
type routeBuild struct {
	dd   DriverDay
	locs []model.Location
}

func newBuilds(fleet []DriverDay) []*routeBuild {
	builds := make([]*routeBuild, len(fleet))
	for i, dd := range fleet {
		builds[i] = &routeBuild{dd: dd, locs: append([]model.Location(nil), dd.Seed...)}
	}
	return builds
}

// totalMinutes simulates the schedule of locs for dd and returns total
// work minutes (travel plus service, starting from the driver's home).
func totalMinutes(dd DriverDay, locs []model.Location, snap traveltime.Snapshot) float64 {
	total := 0.0
	prev := dd.Driver.Home
	for _, loc := range locs {
		est := snap.Estimate(prev, loc.Position)
		total += est.Minutes + float64(serviceMinutes(dd.Driver, loc))
		prev = loc.Position
	}
	return total
}

// fitsCapacity reports whether inserting loc at pos keeps the route within
// the driver's daily capacity.
func fitsCapacity(b *routeBuild, loc model.Location, pos int, snap traveltime.Snapshot) bool {
	trial := make([]model.Location, 0, len(b.locs)+1)
	trial = append(trial, b.locs[:pos]...)
	trial = append(trial, loc)
	trial = append(trial, b.locs[pos:]...)
	return totalMinutes(b.dd, trial, snap) <= b.dd.CapacityMinutes
}

// insertAt mutates the build, placing loc before position pos.
func (b *routeBuild) insertAt(loc model.Location, pos int) {
	b.locs = append(b.locs, model.Location{})
	copy(b.locs[pos+1:], b.locs[pos:])
	b.locs[pos] = loc
}

// insertion identifies one feasible placement of a candidate.
type insertion struct {
	build int
	pos   int
	cost  float64
}

// bestInsertion finds the cheapest feasible placement of loc across all
// builds: every adjacent stop pair plus before-first and after-last. Fixed
// dates that do not match the day are hard-rejected before this is called.
// Ties are broken by smaller driver ID, then earlier position.
func bestInsertion(builds []*routeBuild, loc model.Location, day time.Time, cp CostParams, snap traveltime.Snapshot) (insertion, bool) {
	due := cp.DueCost(loc, day)
	best := insertion{build: -1}
	found := false
	for bi, b := range builds {
		home := b.dd.Driver.Home
		for pos := 0; pos <= len(b.locs); pos++ {
			prev := home
			if pos > 0 {
				prev = b.locs[pos-1].Position
			}
			if !fitsCapacity(b, loc, pos, snap) {
				continue
			}
			var detour float64
			if pos < len(b.locs) {
				detour = cp.DetourCost(prev, loc.Position, b.locs[pos].Position)
			} else {
				// open route: appending adds one leg, replaces none
				detour = clamp(traveltime.HaversineKm(prev, loc.Position), 0, cp.DetourCostCapKm)
			}
			cand := insertion{build: bi, pos: pos, cost: detour + due}
			if !found || betterInsertion(cand, best, builds) {
				best = cand
				found = true
			}
		}
	}
	return best, found
}

// betterInsertion orders candidate insertions deterministically: lower cost
// first, then smaller driver ID, then earlier position.
func betterInsertion(a, b insertion, builds []*routeBuild) bool {
	const eps = 1e-9
	if a.cost+eps < b.cost {
		return true
	}
	if b.cost+eps < a.cost {
		return false
	}
	da := builds[a.build].dd.Driver.ID
	db := builds[b.build].dd.Driver.ID
	if da != db {
		return da < db
	}
	return a.pos < b.pos
}

// materialize turns the builds into committed routes with 1-based contiguous
// stop sequences and planned timestamps anchored at the driver's day start.
func materialize(builds []*routeBuild, tenantID string, day time.Time, snap traveltime.Snapshot) []model.Route {
	routes := make([]model.Route, 0, len(builds))
	for _, b := range builds {
		if len(b.locs) == 0 {
			continue
		}
		r := model.Route{
			ID:       b.dd.RouteID,
			TenantID: tenantID,
			DriverID: b.dd.Driver.ID,
			Date:     model.Midnight(day),
			Stops:    make([]model.Stop, 0, len(b.locs)),
		}
		at := b.dd.StartOfDay
		prev := b.dd.Driver.Home
		for i, loc := range b.locs {
			est := snap.Estimate(prev, loc.Position)
			svc := serviceMinutes(b.dd.Driver, loc)
			start := at.Add(time.Duration(est.Minutes * float64(time.Minute)))
			end := start.Add(time.Duration(svc) * time.Minute)
			r.Stops = append(r.Stops, model.Stop{
				Seq:           i + 1,
				LocationID:    loc.ID,
				PlannedStart:  start,
				PlannedEnd:    end,
				TravelMinutes: est.Minutes,
				TravelKm:      est.Km,
				ServiceMin:    svc,
			})
			at = end
			prev = loc.Position
		}
		routes = append(routes, r)
	}
	return routes
}
