// Package plan contains the planning core: candidate selection, the routing
// engines, the insertion cost model, and the horizon orchestrator.
package plan

import (
	"time"

	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

// CostParams normalizes heterogeneous cost dimensions (travel km, schedule
// lateness, route detour) into one additive km-equivalent unit.
type CostParams struct {
	DueCostCapKm    float64
	DetourCostCapKm float64
	DetourRefKm     float64
	LateRefMinutes  float64
}

// CostParamsFrom extracts the normalization constants from a solver config.
func CostParamsFrom(cfg model.SolverConfig) CostParams {
	return CostParams{
		DueCostCapKm:    cfg.DueCostCapKm,
		DetourCostCapKm: cfg.DetourCostCapKm,
		DetourRefKm:     cfg.DetourRefKm,
		LateRefMinutes:  cfg.LateRefMinutes,
	}
}

// DueCost converts lateness of serving loc on day into km-equivalent units.
// Zero when the day is on or before the due date, otherwise linear in late
// minutes against LateRefMinutes and clamped to DueCostCapKm.
func (c CostParams) DueCost(loc model.Location, day time.Time) float64 {
	day = model.Midnight(day)
	due := model.Midnight(loc.DueDate)
	if !day.After(due) {
		return 0
	}
	lateMinutes := day.Sub(due).Minutes()
	cost := lateMinutes / c.LateRefMinutes * c.DueCostCapKm
	return clamp(cost, 0, c.DueCostCapKm)
}

// DetourCost is the marginal distance added by visiting cand between prev
// and next. Long baseline legs are attenuated against DetourRefKm so sparse
// routes do not dominate insertion comparisons, then the result is clamped
// to DetourCostCapKm.
func (c CostParams) DetourCost(prev, cand, next model.GeoPoint) float64 {
	added := traveltime.HaversineKm(prev, cand) + traveltime.HaversineKm(cand, next)
	replaced := traveltime.HaversineKm(prev, next)
	detour := added - replaced
	if c.DetourRefKm > 0 && replaced > c.DetourRefKm {
		detour *= c.DetourRefKm / replaced
	}
	return clamp(detour, 0, c.DetourCostCapKm)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
