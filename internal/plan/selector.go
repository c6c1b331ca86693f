package plan

import (
	"math"
	"sort"
	"time"

	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

// SelectCandidates filters and ranks the backlog for one day, truncated to
// cfg.MaxDailyCandidates. Stateless across days: the backlog itself is the
// only carried state, so excluded locations simply roll to the next day.
//
// Ranking: fixed-for-day locations first (they must be served), then most
// overdue, then nearest to an available driver's current route tail.
func SelectCandidates(backlog []model.Location, day time.Time, fleet []DriverDay, cfg model.SolverConfig) []model.Location {
	date := model.Midnight(day)
	slack := date.AddDate(0, 0, cfg.HorizonSlackDays)

	eligible := make([]model.Location, 0, len(backlog))
	for _, loc := range backlog {
		if loc.Planned {
			continue
		}
		if loc.FixedDate != nil {
			if model.Midnight(*loc.FixedDate).Equal(date) {
				eligible = append(eligible, loc)
			}
			continue
		}
		if !model.Midnight(loc.DueDate).After(slack) {
			eligible = append(eligible, loc)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		af, bf := a.FixedDate != nil, b.FixedDate != nil
		if af != bf {
			return af
		}
		ad, bd := model.Midnight(a.DueDate), model.Midnight(b.DueDate)
		if !ad.Equal(bd) {
			return ad.Before(bd)
		}
		ap, bp := nearestTailKm(fleet, a.Position), nearestTailKm(fleet, b.Position)
		if ap != bp {
			return ap < bp
		}
		return a.ID < b.ID
	})

	if cfg.MaxDailyCandidates > 0 && len(eligible) > cfg.MaxDailyCandidates {
		eligible = eligible[:cfg.MaxDailyCandidates]
	}
	return eligible
}

// nearestTailKm measures proximity to the closest driver's current route
// tail (the last seeded stop, or home for an empty route).
func nearestTailKm(fleet []DriverDay, p model.GeoPoint) float64 {
	best := math.MaxFloat64
	for _, dd := range fleet {
		tail := dd.Driver.Home
		if n := len(dd.Seed); n > 0 {
			tail = dd.Seed[n-1].Position
		}
		if d := traveltime.HaversineKm(tail, p); d < best {
			best = d
		}
	}
	if best == math.MaxFloat64 {
		return 0
	}
	return best
}
