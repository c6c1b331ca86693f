package traveltime

import (
	"math"
	"testing"
	"time"

	"poleplan/internal/model"
)

func feed(m *Model, n int, ratio float64, at time.Time) {
	for i := 0; i < n; i++ {
		m.Observe(model.TravelSample{Minutes: ratio * 10, Km: 10, RecordedAt: at})
	}
}

func TestSnapshotFallsBackOnTooFewSamples(t *testing.T) {
	m := NewModel(DefaultConfig())
	feed(m, 5, 2.0, time.Now())
	snap := m.Snapshot(time.Now())
	if snap.Source != SourceBaseline || snap.Fallback != FallbackTooFewSamples {
		t.Fatalf("got source=%s fallback=%s", snap.Source, snap.Fallback)
	}
	if snap.Signal == nil || snap.Signal.Reason != FallbackTooFewSamples {
		t.Fatalf("expected quality signal, got %+v", snap.Signal)
	}
}

func TestSnapshotFallsBackWhenUnapproved(t *testing.T) {
	m := NewModel(DefaultConfig())
	feed(m, 40, 2.0, time.Now())
	snap := m.Snapshot(time.Now())
	if snap.Fallback != FallbackUnapproved {
		t.Fatalf("got fallback=%s", snap.Fallback)
	}
}

func TestSnapshotFallsBackWhenStale(t *testing.T) {
	m := NewModel(DefaultConfig())
	feed(m, 40, 2.0, time.Now().Add(-45*24*time.Hour))
	m.SetApproved(true)
	snap := m.Snapshot(time.Now())
	if snap.Fallback != FallbackStale {
		t.Fatalf("got fallback=%s", snap.Fallback)
	}
}

func TestSnapshotFallsBackWhenImplausible(t *testing.T) {
	m := NewModel(DefaultConfig())
	feed(m, 40, 9.0, time.Now())
	m.SetApproved(true)
	snap := m.Snapshot(time.Now())
	if snap.Fallback != FallbackImplausible {
		t.Fatalf("got fallback=%s", snap.Fallback)
	}
	if snap.Ratio != DefaultConfig().BaselineMinutesPerKm {
		t.Fatalf("fallback should use baseline ratio, got %f", snap.Ratio)
	}
}

func TestSnapshotUsesLearnedRatio(t *testing.T) {
	m := NewModel(DefaultConfig())
	feed(m, 40, 2.0, time.Now())
	m.SetApproved(true)
	snap := m.Snapshot(time.Now())
	if snap.Source != SourceLearned || snap.Fallback != FallbackNone {
		t.Fatalf("got source=%s fallback=%s", snap.Source, snap.Fallback)
	}
	if math.Abs(snap.Ratio-2.0) > 1e-9 {
		t.Fatalf("learned ratio=%f, want 2.0", snap.Ratio)
	}
	// 2.0 vs baseline 1.2 is a 66% deviation, above the 25% warn threshold
	if snap.Signal == nil || snap.Signal.Reason != "deviation_vs_baseline" {
		t.Fatalf("expected deviation signal, got %+v", snap.Signal)
	}
	if snap.Signal.DeviationPercent < 25 {
		t.Fatalf("deviation=%f, want >= 25", snap.Signal.DeviationPercent)
	}
}

func TestObserveIgnoresNonPositive(t *testing.T) {
	m := NewModel(DefaultConfig())
	m.Observe(model.TravelSample{Minutes: 10, Km: 0})
	m.Observe(model.TravelSample{Minutes: -1, Km: 5})
	if got := m.Status()["samples"].(int); got != 0 {
		t.Fatalf("samples=%d, want 0", got)
	}
}

func TestEstimateScalesWithRatio(t *testing.T) {
	snap := Snapshot{Ratio: 2.0}
	a := model.GeoPoint{Lat: 39.7392, Lng: -104.9903}
	b := model.GeoPoint{Lat: 39.7492, Lng: -104.9903}
	est := snap.Estimate(a, b)
	if est.Km <= 0 {
		t.Fatal("expected positive distance")
	}
	if math.Abs(est.Minutes-est.Km*2.0) > 1e-9 {
		t.Fatalf("minutes=%f km=%f", est.Minutes, est.Km)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Denver to Colorado Springs, roughly 101 km
	denver := model.GeoPoint{Lat: 39.7392, Lng: -104.9903}
	springs := model.GeoPoint{Lat: 38.8339, Lng: -104.8214}
	d := HaversineKm(denver, springs)
	if d < 95 || d > 110 {
		t.Fatalf("distance=%f, want ~101", d)
	}
	if HaversineKm(denver, denver) != 0 {
		t.Fatal("zero distance expected for identical points")
	}
}
