package api

import (
	"fmt"

	"poleplan/internal/model"
)

func validatePlanRequest(req *model.PlanRequest) error {
	if req.FromDate == "" {
		return fmt.Errorf("fromDate is required")
	}
	if _, err := model.ParseDate(req.FromDate); err != nil {
		return fmt.Errorf("invalid fromDate: %v", err)
	}
	if req.Days <= 0 || req.Days > 60 {
		return fmt.Errorf("days must be in 1..60")
	}
	switch req.Engine {
	case "", model.EngineGreedy, model.EngineConstructive:
	default:
		return fmt.Errorf("invalid engine: %s", req.Engine)
	}
	if req.TimeLimitSeconds < 0 {
		return fmt.Errorf("timeLimitSeconds must be >= 0")
	}
	if req.SolutionLimit < 0 {
		return fmt.Errorf("solutionLimit must be >= 0")
	}
	return nil
}

func validateSolverConfig(cfg *model.SolverConfig) error {
	switch cfg.Engine {
	case model.EngineGreedy, model.EngineConstructive:
	default:
		return fmt.Errorf("invalid engine: %s", cfg.Engine)
	}
	switch cfg.FirstSolutionStrategy {
	case "", model.FirstSolutionCheapestArc, model.FirstSolutionSavings:
	default:
		return fmt.Errorf("invalid firstSolutionStrategy: %s", cfg.FirstSolutionStrategy)
	}
	switch cfg.Metaheuristic {
	case "", model.MetaGuidedLocalSearch, model.MetaTabuSearch:
	default:
		return fmt.Errorf("invalid metaheuristic: %s", cfg.Metaheuristic)
	}
	if cfg.TimeLimitSeconds < 0 {
		return fmt.Errorf("timeLimitSeconds must be >= 0")
	}
	if cfg.MaxDailyCandidates < 0 {
		return fmt.Errorf("maxDailyCandidates must be >= 0")
	}
	if cfg.HorizonSlackDays < 0 {
		return fmt.Errorf("horizonSlackDays must be >= 0")
	}
	if cfg.DueCostCapKm < 0 || cfg.DetourCostCapKm < 0 {
		return fmt.Errorf("cost caps must be >= 0")
	}
	if cfg.DetourRefKm < 0 || cfg.LateRefMinutes < 0 {
		return fmt.Errorf("reference constants must be >= 0")
	}
	if cfg.DayStartMinute < 0 || cfg.DayStartMinute >= 24*60 {
		return fmt.Errorf("dayStartMinute must be in 0..1439")
	}
	return nil
}

func validateSubscription(req *model.SubscriptionRequest) error {
	if req.URL == "" {
		return fmt.Errorf("url is required")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("at least one event is required")
	}
	return nil
}
