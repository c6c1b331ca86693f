package plan

import (
	"math"
	"testing"

	"poleplan/internal/model"
)

func TestDueCostZeroOnOrBeforeDue(t *testing.T) {
	cp := CostParams{DueCostCapKm: 50, LateRefMinutes: 240}
	loc := testLoc("L1", 0, 0, date(t, "2026-09-15"))
	if c := cp.DueCost(loc, date(t, "2026-09-10")); c != 0 {
		t.Fatalf("before due: cost=%f", c)
	}
	if c := cp.DueCost(loc, date(t, "2026-09-15")); c != 0 {
		t.Fatalf("on due: cost=%f", c)
	}
}

func TestDueCostLinearThenClamped(t *testing.T) {
	cp := CostParams{DueCostCapKm: 50, LateRefMinutes: 1440}
	loc := testLoc("L1", 0, 0, date(t, "2026-09-15"))
	// one day late is exactly LateRefMinutes, reaching the cap
	if c := cp.DueCost(loc, date(t, "2026-09-16")); math.Abs(c-50) > 1e-9 {
		t.Fatalf("one day late: cost=%f, want 50", c)
	}
	// ten days late stays clamped at the cap
	if c := cp.DueCost(loc, date(t, "2026-09-25")); c != 50 {
		t.Fatalf("ten days late: cost=%f, want 50", c)
	}

	cp.LateRefMinutes = 2880
	if c := cp.DueCost(loc, date(t, "2026-09-16")); math.Abs(c-25) > 1e-9 {
		t.Fatalf("half of late ref: cost=%f, want 25", c)
	}

	// deep backlog: 10 days late against a 4-hour late ref still caps out
	cp.LateRefMinutes = 240
	if c := cp.DueCost(loc, date(t, "2026-09-25")); c != 50 {
		t.Fatalf("deep backlog: cost=%f, want capped 50", c)
	}
}

func TestDetourCostCollinearIsFree(t *testing.T) {
	cp := CostParams{DetourCostCapKm: 80, DetourRefKm: 30}
	prev := model.GeoPoint{Lat: 0, Lng: 0}
	cand := model.GeoPoint{Lat: 0, Lng: 0.05}
	next := model.GeoPoint{Lat: 0, Lng: 0.1}
	if c := cp.DetourCost(prev, cand, next); c > 0.01 {
		t.Fatalf("collinear detour=%f, want ~0", c)
	}
}

func TestDetourCostAttenuatedOnLongLegs(t *testing.T) {
	cp := CostParams{DetourCostCapKm: 80, DetourRefKm: 30}
	prev := model.GeoPoint{Lat: 0, Lng: 0}
	next := model.GeoPoint{Lat: 0, Lng: 0.9} // ~100 km baseline leg
	cand := model.GeoPoint{Lat: 0.1, Lng: 0.45}

	short := cp
	short.DetourRefKm = 0 // attenuation off
	raw := short.DetourCost(prev, cand, next)
	att := cp.DetourCost(prev, cand, next)
	if att >= raw {
		t.Fatalf("attenuated=%f should be below raw=%f", att, raw)
	}
}

func TestDetourCostClamped(t *testing.T) {
	cp := CostParams{DetourCostCapKm: 10, DetourRefKm: 0}
	prev := model.GeoPoint{Lat: 0, Lng: 0}
	next := model.GeoPoint{Lat: 0, Lng: 0.01}
	cand := model.GeoPoint{Lat: 3, Lng: 0} // hundreds of km off-route
	if c := cp.DetourCost(prev, cand, next); c != 10 {
		t.Fatalf("detour=%f, want clamped 10", c)
	}
}
