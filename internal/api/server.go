// Package api implements the HTTP surface of the visit planner.
package api

import (
	"context"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"poleplan/internal/auth"
	"poleplan/internal/config"
	"poleplan/internal/model"
	"poleplan/internal/plan"
	"poleplan/internal/store"
	"poleplan/internal/traveltime"
	"poleplan/internal/webhooks"
)

type Server struct {
	Cfg    *config.Config
	Store  store.Store
	Auth   *auth.Verifier
	Pub    *webhooks.Publisher
	Broker EventBroker
	Model  *traveltime.Model
	Locker plan.Locker
	Log    zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer wires the store, broker, and locker by configuration. No
// DATABASE_URL means the in-memory store; no REDIS_URL means in-process
// broker and lock.
func NewServer(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	var st store.Store
	if cfg.DatabaseURL == "" {
		st = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.DBMigrate {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Warn().Err(err).Msg("migrations failed; continuing with existing schema")
			}
		}
		st = sp
	}

	var broker EventBroker = NewBroker()
	var locker plan.Locker = plan.NewMemoryLocker()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		rdb := redis.NewClient(opt)
		broker = NewRedisBroker(rdb)
		locker = plan.NewRedisLocker(rdb)
	}

	return &Server{
		Cfg:      cfg,
		Store:    st,
		Auth:     auth.NewVerifierFromEnv(),
		Pub:      webhooks.NewPublisher(st),
		Broker:   broker,
		Model:    traveltime.NewModel(cfg.Estimator),
		Locker:   locker,
		Log:      log,
		limiters: map[string]*rate.Limiter{},
	}, nil
}

// planner builds an orchestrator for one pass with the given solver config.
func (s *Server) planner(cfg model.SolverConfig) *plan.Orchestrator {
	return &plan.Orchestrator{
		Store:  s.Store,
		Model:  s.Model,
		Locker: s.Locker,
		Config: cfg,
		Log:    s.Log,
		OnSignal: func(tenantID string, sig traveltime.QualitySignal) {
			s.Pub.Emit(context.Background(), tenantID, webhooks.EventModelDeviation, map[string]any{
				"reason":           sig.Reason,
				"learnedRatio":     sig.LearnedRatio,
				"baselineRatio":    sig.BaselineRatio,
				"deviationPercent": sig.DeviationPercent,
			})
		},
		OnDayPlanned: func(tenantID string, out model.DayOutcome) {
			s.Broker.Publish(tenantID, SSEEvent{Type: "plan.day", Data: map[string]any{
				"date":      model.FormatDate(out.Date),
				"status":    out.Status,
				"planned":   out.Planned,
				"unplanned": out.Unplanned,
			}})
		},
	}
}

// solverConfigFor overlays the tenant's stored config onto process defaults.
func (s *Server) solverConfigFor(ctx context.Context, tenantID string) model.SolverConfig {
	cfg := s.Cfg.Solver
	if stored, err := s.Store.GetSolverConfig(ctx, tenantID); err == nil && stored != nil {
		cfg = *stored
	}
	return cfg
}

// planLimiter returns the per-tenant rate limiter for plan requests.
func (s *Server) planLimiter(tenantID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.Cfg.PlanRateLimit), s.Cfg.PlanRateBurst)
		s.limiters[tenantID] = l
	}
	return l
}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Log)
}
