package plan

import (
	"context"

	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

// GreedyEngine is the deterministic single-pass cheapest-insertion engine.
// Candidates are taken in ranked order; each is committed at its cheapest
// feasible position or left for a later day. Committed insertions are never
// undone within a run.
type GreedyEngine struct {
	Params CostParams
	Snap   traveltime.Snapshot
}

func (e *GreedyEngine) Name() string { return model.EngineGreedy }

func (e *GreedyEngine) Plan(_ context.Context, day model.Day, candidates []model.Location, fleet []DriverDay) (DayPlan, error) {
	builds := newBuilds(fleet)
	out := DayPlan{Metrics: EngineMetrics{Engine: model.EngineGreedy}}

	for _, loc := range candidates {
		out.Metrics.Iterations++
		if loc.FixedDate != nil && !model.Midnight(*loc.FixedDate).Equal(model.Midnight(day.Date)) {
			// fixed elsewhere: hard-rejected, not penalized
			out.Unplanned = append(out.Unplanned, loc.ID)
			continue
		}
		ins, ok := bestInsertion(builds, loc, day.Date, e.Params, e.Snap)
		if !ok {
			out.Unplanned = append(out.Unplanned, loc.ID)
			continue
		}
		builds[ins.build].insertAt(loc, ins.pos)
		out.Planned = append(out.Planned, loc.ID)
		out.Metrics.FinalCost += ins.cost
	}

	out.Metrics.BestCost = out.Metrics.FinalCost
	out.Routes = materialize(builds, tenantOf(candidates, fleet), day.Date, e.Snap)
	return out, nil
}

// tenantOf picks the tenant for materialized routes from the inputs.
func tenantOf(candidates []model.Location, fleet []DriverDay) string {
	if len(candidates) > 0 {
		return candidates[0].TenantID
	}
	if len(fleet) > 0 {
		return fleet[0].Driver.TenantID
	}
	return ""
}
