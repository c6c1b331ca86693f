package plan

import (
	"context"
	"fmt"
	"time"

	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

// RoutingEngine turns a day's candidate set and available drivers into a
// feasible set of ordered routes. Implementations never mutate shared state;
// everything the engine needs is passed in.
type RoutingEngine interface {
	Name() string
	Plan(ctx context.Context, day model.Day, candidates []model.Location, fleet []DriverDay) (DayPlan, error)
}

// DayPlan is one day's engine output.
type DayPlan struct {
	Routes    []model.Route
	Planned   []string
	Unplanned []string
	Metrics   EngineMetrics
}

// EngineMetrics describes one engine run for observability and tuning.
type EngineMetrics struct {
	Engine           string           `json:"engine"`
	Iterations       int              `json:"iterations"`
	Improvements     int              `json:"improvements"`
	RejectedMoves    int              `json:"rejectedMoves"`
	BestCost         float64          `json:"bestCost"`
	FinalCost        float64          `json:"finalCost"`
	BudgetExhausted  bool             `json:"budgetExhausted"`
	MoveSelects      [3]int           `json:"moveSelects"`
	FinalMoveWeights [3]float64       `json:"finalMoveWeights"`
	Snapshots        []WeightSnapshot `json:"snapshots,omitempty"`
}

// WeightSnapshot records adaptive move weights at an iteration mark.
type WeightSnapshot struct {
	Iteration int        `json:"iteration"`
	Weights   [3]float64 `json:"weights"`
}

// NewEngine resolves the engine tag once at configuration load. The set of
// variants is closed; an unknown tag is a configuration error, not a
// per-call dispatch concern.
func NewEngine(cfg model.SolverConfig, snap traveltime.Snapshot) (RoutingEngine, error) {
	cp := CostParamsFrom(cfg)
	switch cfg.Engine {
	case model.EngineGreedy, "":
		return &GreedyEngine{Params: cp, Snap: snap}, nil
	case model.EngineConstructive:
		return &ConstructiveEngine{
			Params:        cp,
			Snap:          snap,
			TimeLimit:     time.Duration(cfg.TimeLimitSeconds * float64(time.Second)),
			SolutionLimit: cfg.SolutionLimit,
			FirstSolution: cfg.FirstSolutionStrategy,
			Metaheuristic: cfg.Metaheuristic,
		}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
