package store

import (
	"context"
	"errors"
	"time"

	"poleplan/internal/model"
)

// Store is the persistence interface used by the API server and the
// planning orchestrator.
type Store interface {
	// Locations (poles)
	CreateLocations(ctx context.Context, tenantID string, in []model.LocationIn) (created, skipped int, err error)
	ListLocations(ctx context.Context, tenantID, cursor string, limit int) ([]model.Location, string, error)
	ListOpenLocations(ctx context.Context, tenantID string, until time.Time) ([]model.Location, error)
	GetLocations(ctx context.Context, tenantID string, ids []string) ([]model.Location, error)
	// CompleteLocation removes a pole from the backlog once its visit is done.
	CompleteLocation(ctx context.Context, tenantID, id string) error

	// Drivers
	UpsertDriver(ctx context.Context, tenantID, driverID string, in model.DriverIn) (model.Driver, error)
	ListDrivers(ctx context.Context, tenantID string) ([]model.Driver, error)

	// Days
	GetDay(ctx context.Context, tenantID string, date time.Time) (model.Day, error)
	PatchDay(ctx context.Context, tenantID string, date time.Time, patch model.DayPatch) (model.Day, error)

	// Routes
	GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error)
	ListRoutes(ctx context.Context, tenantID string, from, to time.Time) ([]model.Route, error)
	ListRoutesForDate(ctx context.Context, tenantID string, date time.Time) ([]model.Route, error)
	// SaveDayPlan commits one day's routes and planned markers atomically.
	// Committing onto a locked day fails with ErrDayLocked.
	SaveDayPlan(ctx context.Context, tenantID string, date time.Time, routes []model.Route, plannedLocationIDs []string) ([]model.Route, error)

	// Travel samples (trainer feed)
	InsertTravelSamples(ctx context.Context, tenantID string, samples []model.TravelSample) (int, error)

	// Per-tenant solver config
	GetSolverConfig(ctx context.Context, tenantID string) (*model.SolverConfig, error)
	SaveSolverConfig(ctx context.Context, tenantID string, cfg model.SolverConfig) error

	// Plan metrics for admin views
	SavePlanMetrics(ctx context.Context, tenantID, date, engine string, metrics map[string]any) error
	ListPlanMetrics(ctx context.Context, tenantID, date string) ([]map[string]any, error)

	// Webhook subscriptions and deliveries
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error
}

// WebhookDelivery is one queued outbound notification.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var (
	ErrNotFound = errors.New("not found")
	// ErrDayLocked rejects route mutation on a locked day.
	ErrDayLocked = errors.New("day is locked")
)
