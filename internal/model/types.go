package model

import "time"

// DateFormat is the wire format for calendar days.
const DateFormat = "2006-01-02"

// ParseDate parses a YYYY-MM-DD day into a UTC midnight timestamp.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateFormat, s)
}

// FormatDate renders a timestamp as its YYYY-MM-DD day.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// Midnight truncates a timestamp to its UTC calendar day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a pole awaiting a service visit. Immutable once created except
// for the planned marker, which the orchestrator flips when the location is
// routed. It leaves the backlog only when its visit is marked complete.
type Location struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenantId"`
	Serial         string     `json:"serial"`
	Position       GeoPoint   `json:"position"`
	DueDate        time.Time  `json:"dueDate"`
	FixedDate      *time.Time `json:"fixedDate,omitempty"`
	ServiceMinutes int        `json:"serviceMinutes"`
	Planned        bool       `json:"planned"`
}

// LocationIn is the import payload for one pole.
type LocationIn struct {
	Serial         string    `json:"serial"`
	Position       *GeoPoint `json:"position"`
	DueDate        string    `json:"dueDate"`
	FixedDate      string    `json:"fixedDate,omitempty"`
	ServiceMinutes int       `json:"serviceMinutes,omitempty"`
}

// AvailabilityWindow overrides a driver's eligibility for one date.
// Minutes are offsets from midnight of Date.
type AvailabilityWindow struct {
	Date        time.Time `json:"date"`
	StartMinute int       `json:"startMinute"`
	EndMinute   int       `json:"endMinute"`
}

// Span returns the window length in minutes.
func (w AvailabilityWindow) Span() int { return w.EndMinute - w.StartMinute }

type Driver struct {
	ID                    string               `json:"id"`
	TenantID              string               `json:"tenantId"`
	Name                  string               `json:"name,omitempty"`
	Home                  GeoPoint             `json:"home"`
	DefaultServiceMinutes int                  `json:"defaultServiceMinutes,omitempty"`
	MaxWorkMinutes        int                  `json:"maxWorkMinutes"`
	Windows               []AvailabilityWindow `json:"windows,omitempty"`
}

// WindowFor returns the availability window covering date, if any.
func (d Driver) WindowFor(date time.Time) *AvailabilityWindow {
	day := Midnight(date)
	for i := range d.Windows {
		if Midnight(d.Windows[i].Date).Equal(day) {
			return &d.Windows[i]
		}
	}
	return nil
}

type DriverIn struct {
	Name                  string     `json:"name,omitempty"`
	Home                  *GeoPoint  `json:"home"`
	DefaultServiceMinutes int        `json:"defaultServiceMinutes,omitempty"`
	MaxWorkMinutes        int        `json:"maxWorkMinutes"`
	Windows               []WindowIn `json:"windows,omitempty"`
}

type WindowIn struct {
	Date        string `json:"date"`
	StartMinute int    `json:"startMinute"`
	EndMinute   int    `json:"endMinute"`
}

// Day carries per-date planning state. A locked day is frozen for the planner.
type Day struct {
	TenantID         string    `json:"tenantId"`
	Date             time.Time `json:"date"`
	Locked           bool      `json:"locked"`
	ExtraWorkMinutes int       `json:"extraWorkMinutes,omitempty"`
}

type DayPatch struct {
	Locked           *bool `json:"locked,omitempty"`
	ExtraWorkMinutes *int  `json:"extraWorkMinutes,omitempty"`
}

// Stop is one visit inside a route. Seq is 1-based and contiguous. Travel
// fields measure the leg from the previous stop, or from the driver's home
// for the first stop.
type Stop struct {
	ID            string    `json:"id"`
	Seq           int       `json:"seq"`
	LocationID    string    `json:"locationId"`
	PlannedStart  time.Time `json:"plannedStart"`
	PlannedEnd    time.Time `json:"plannedEnd"`
	TravelMinutes float64   `json:"travelMinutes"`
	TravelKm      float64   `json:"travelKm"`
	ServiceMin    int       `json:"serviceMinutes"`
}

// Route is owned by exactly one (driver, day) pair. Totals are derived from
// the stops, never stored independently.
type Route struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	DriverID string    `json:"driverId"`
	Date     time.Time `json:"date"`
	Engine   string    `json:"engine,omitempty"`
	Locked   bool      `json:"locked"`
	Stops    []Stop    `json:"stops"`
}

// TotalMinutes sums service and travel minutes over all stops.
func (r Route) TotalMinutes() float64 {
	total := 0.0
	for _, s := range r.Stops {
		total += s.TravelMinutes + float64(s.ServiceMin)
	}
	return total
}

// TotalKm sums travel distance over all stops.
func (r Route) TotalKm() float64 {
	total := 0.0
	for _, s := range r.Stops {
		total += s.TravelKm
	}
	return total
}

// Engine tags.
const (
	EngineGreedy       = "greedy"
	EngineConstructive = "constructive"
)

// First-solution strategy tags for the constructive engine.
const (
	FirstSolutionCheapestArc = "cheapest_arc"
	FirstSolutionSavings     = "savings"
)

// Local-search metaheuristic tags for the constructive engine.
const (
	MetaGuidedLocalSearch = "guided_local_search"
	MetaTabuSearch        = "tabu_search"
)

// SolverConfig selects the routing engine and its normalization constants.
type SolverConfig struct {
	Engine                string  `json:"engine" yaml:"engine"`
	TimeLimitSeconds      float64 `json:"timeLimitSeconds" yaml:"timeLimitSeconds"`
	SolutionLimit         int     `json:"solutionLimit" yaml:"solutionLimit"`
	FirstSolutionStrategy string  `json:"firstSolutionStrategy" yaml:"firstSolutionStrategy"`
	Metaheuristic         string  `json:"metaheuristic" yaml:"metaheuristic"`
	MaxDailyCandidates    int     `json:"maxDailyCandidates" yaml:"maxDailyCandidates"`
	HorizonSlackDays      int     `json:"horizonSlackDays" yaml:"horizonSlackDays"`
	DueCostCapKm          float64 `json:"dueCostCapKm" yaml:"dueCostCapKm"`
	DetourCostCapKm       float64 `json:"detourCostCapKm" yaml:"detourCostCapKm"`
	DetourRefKm           float64 `json:"detourRefKm" yaml:"detourRefKm"`
	LateRefMinutes        float64 `json:"lateRefMinutes" yaml:"lateRefMinutes"`
	// RequireWindow flips the availability fallback: when true, a driver with
	// no window recorded for a date is unavailable on that date.
	RequireWindow  bool `json:"requireWindow" yaml:"requireWindow"`
	DayStartMinute int  `json:"dayStartMinute" yaml:"dayStartMinute"`
}

// DefaultSolverConfig returns tenant-independent solver defaults.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Engine:                EngineGreedy,
		TimeLimitSeconds:      2,
		SolutionLimit:         40,
		FirstSolutionStrategy: FirstSolutionCheapestArc,
		Metaheuristic:         MetaGuidedLocalSearch,
		MaxDailyCandidates:    120,
		HorizonSlackDays:      3,
		DueCostCapKm:          50,
		DetourCostCapKm:       80,
		DetourRefKm:           30,
		LateRefMinutes:        240,
		DayStartMinute:        8 * 60,
	}
}

// PlanRequest asks for one horizon pass.
type PlanRequest struct {
	TenantID         string  `json:"tenantId"`
	FromDate         string  `json:"fromDate"`
	Days             int     `json:"days"`
	Engine           string  `json:"engine,omitempty"`
	TimeLimitSeconds float64 `json:"timeLimitSeconds,omitempty"`
	SolutionLimit    int     `json:"solutionLimit,omitempty"`
}

// PlanSummary aggregates one horizon pass.
type PlanSummary struct {
	GeneratedDays      int `json:"generatedDays"`
	SkippedLockedDays  int `json:"skippedLockedDays"`
	PlannedLocations   int `json:"plannedLocationsCount"`
	UnplannedLocations int `json:"unplannedLocationsCount"`
}

// Day outcome states for one horizon pass.
const (
	DayLocked           = "locked"
	DayPlanned          = "planned"
	DayPartiallyPlanned = "partially_planned"
)

// DayOutcome reports how one date of the horizon went.
type DayOutcome struct {
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	Planned   int       `json:"planned"`
	Unplanned int       `json:"unplanned"`
}

// PlanResult is the horizon pass output handed back to collaborators.
type PlanResult struct {
	Summary   PlanSummary  `json:"summary"`
	Days      []DayOutcome `json:"days"`
	Routes    []Route      `json:"routes"`
	Unplanned []string     `json:"unplannedLocationIds,omitempty"`
}

// SubscriptionRequest registers a webhook endpoint for plan events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// TravelSample is one observed actual leg, fed by an external trainer.
type TravelSample struct {
	TenantID   string    `json:"tenantId"`
	Minutes    float64   `json:"minutes"`
	Km         float64   `json:"km"`
	RecordedAt time.Time `json:"recordedAt"`
}
