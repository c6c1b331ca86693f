// Package traveltime estimates travel duration and distance between
// coordinates, blending a learned minutes-per-km ratio with a baseline.
package traveltime

import (
	"math"
	"sync"
	"time"

	"poleplan/internal/model"
)

// Ratio sources reported on a Snapshot.
const (
	SourceLearned  = "learned"
	SourceBaseline = "baseline"
)

// Fallback reasons when the learned ratio is rejected.
const (
	FallbackNone          = ""
	FallbackTooFewSamples = "too_few_samples"
	FallbackUnapproved    = "unapproved"
	FallbackStale         = "stale"
	FallbackImplausible   = "implausible"
)

// Config holds the guard thresholds for the learned model.
type Config struct {
	BaselineMinutesPerKm           float64
	LearnedSampleThreshold         int
	RequireApproval                bool
	StaleAfterDays                 int
	PlausibleMinutesPerKmMin       float64
	PlausibleMinutesPerKmMax       float64
	DeviationVsBaselineWarnPercent float64
}

// DefaultConfig returns guard thresholds tuned for rural field service.
func DefaultConfig() Config {
	return Config{
		BaselineMinutesPerKm:           1.2, // ~50 km/h
		LearnedSampleThreshold:         30,
		RequireApproval:                true,
		StaleAfterDays:                 30,
		PlausibleMinutesPerKmMin:       0.5,
		PlausibleMinutesPerKmMax:       6.0,
		DeviationVsBaselineWarnPercent: 25,
	}
}

// Estimate is the travel fact for one leg.
type Estimate struct {
	Minutes float64
	Km      float64
}

// QualitySignal is a non-fatal observability event raised by the estimator.
// It never blocks planning.
type QualitySignal struct {
	Reason           string  `json:"reason"`
	LearnedRatio     float64 `json:"learnedRatio,omitempty"`
	BaselineRatio    float64 `json:"baselineRatio"`
	DeviationPercent float64 `json:"deviationPercent,omitempty"`
}

// Model is the process-wide learned travel state. An external trainer feeds
// Observe between planning passes; planning reads only through Snapshot.
type Model struct {
	cfg Config

	mu         sync.RWMutex
	ratioSum   float64
	samples    int
	lastSample time.Time
	approved   bool
}

func NewModel(cfg Config) *Model {
	if cfg.BaselineMinutesPerKm <= 0 {
		cfg.BaselineMinutesPerKm = DefaultConfig().BaselineMinutesPerKm
	}
	return &Model{cfg: cfg}
}

// Observe folds one actual travel sample into the rolling ratio.
// Samples with non-positive distance are ignored.
func (m *Model) Observe(s model.TravelSample) {
	if s.Km <= 0 || s.Minutes <= 0 {
		return
	}
	at := s.RecordedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	m.mu.Lock()
	m.ratioSum += s.Minutes / s.Km
	m.samples++
	if at.After(m.lastSample) {
		m.lastSample = at
	}
	m.mu.Unlock()
}

// SetApproved marks the learned model as reviewed.
func (m *Model) SetApproved(ok bool) {
	m.mu.Lock()
	m.approved = ok
	m.mu.Unlock()
}

// Status reports the current model state for observability endpoints.
func (m *Model) Status() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	learned := 0.0
	if m.samples > 0 {
		learned = m.ratioSum / float64(m.samples)
	}
	return map[string]any{
		"samples":       m.samples,
		"approved":      m.approved,
		"lastSampleAt":  m.lastSample,
		"learnedRatio":  learned,
		"baselineRatio": m.cfg.BaselineMinutesPerKm,
	}
}

// Snapshot freezes the ratio decision for one planning pass, so every cost
// computed within the pass uses the same model state.
func (m *Model) Snapshot(now time.Time) Snapshot {
	m.mu.RLock()
	samples := m.samples
	approved := m.approved
	last := m.lastSample
	sum := m.ratioSum
	m.mu.RUnlock()

	snap := Snapshot{
		Ratio:  m.cfg.BaselineMinutesPerKm,
		Source: SourceBaseline,
	}
	if samples == 0 {
		snap.Fallback = FallbackTooFewSamples
		return snap
	}
	learned := sum / float64(samples)

	switch {
	case samples < m.cfg.LearnedSampleThreshold:
		snap.Fallback = FallbackTooFewSamples
	case m.cfg.RequireApproval && !approved:
		snap.Fallback = FallbackUnapproved
	case m.cfg.StaleAfterDays > 0 && now.Sub(last) > time.Duration(m.cfg.StaleAfterDays)*24*time.Hour:
		snap.Fallback = FallbackStale
	case learned < m.cfg.PlausibleMinutesPerKmMin || learned > m.cfg.PlausibleMinutesPerKmMax:
		snap.Fallback = FallbackImplausible
	default:
		snap.Ratio = learned
		snap.Source = SourceLearned
	}

	dev := math.Abs(learned-m.cfg.BaselineMinutesPerKm) / m.cfg.BaselineMinutesPerKm * 100
	if snap.Fallback != FallbackNone {
		snap.Signal = &QualitySignal{
			Reason:        snap.Fallback,
			LearnedRatio:  learned,
			BaselineRatio: m.cfg.BaselineMinutesPerKm,
		}
	} else if m.cfg.DeviationVsBaselineWarnPercent > 0 && dev > m.cfg.DeviationVsBaselineWarnPercent {
		snap.Signal = &QualitySignal{
			Reason:           "deviation_vs_baseline",
			LearnedRatio:     learned,
			BaselineRatio:    m.cfg.BaselineMinutesPerKm,
			DeviationPercent: dev,
		}
	}
	return snap
}

// Snapshot is an immutable ratio decision valid for one planning pass.
type Snapshot struct {
	Ratio    float64
	Source   string
	Fallback string
	Signal   *QualitySignal
}

// Estimate converts a coordinate pair into travel minutes and km.
// Pure given the snapshot.
func (s Snapshot) Estimate(from, to model.GeoPoint) Estimate {
	km := HaversineKm(from, to)
	return Estimate{Minutes: km * s.Ratio, Km: km}
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b model.GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
