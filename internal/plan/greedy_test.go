package plan

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"poleplan/internal/model"
)

func TestGreedyPlansSingleStop(t *testing.T) {
	day := model.Day{TenantID: "t1", Date: date(t, "2026-09-10")}
	home := model.GeoPoint{Lat: 39.7392, Lng: -104.9903}
	dd := testDriverDay("d1", home, 480, day.Date)
	loc := testLoc("L1", 39.7842, -104.9903, day.Date) // ~5 km north

	e := &GreedyEngine{Params: CostParamsFrom(model.DefaultSolverConfig()), Snap: baselineSnap(2.0)}
	out, err := e.Plan(context.Background(), day, []model.Location{loc}, []DriverDay{dd})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(out.Planned) != 1 || out.Planned[0] != "L1" {
		t.Fatalf("planned=%v", out.Planned)
	}
	if len(out.Routes) != 1 || len(out.Routes[0].Stops) != 1 {
		t.Fatalf("routes=%+v", out.Routes)
	}
	stop := out.Routes[0].Stops[0]
	if stop.Seq != 1 || stop.LocationID != "L1" {
		t.Fatalf("stop=%+v", stop)
	}
	if stop.TravelKm < 4 || stop.TravelKm > 6 {
		t.Fatalf("travelKm=%f, want ~5", stop.TravelKm)
	}
	if math.Abs(stop.TravelMinutes-stop.TravelKm*2.0) > 1e-9 {
		t.Fatalf("travel minutes should follow the 2.0 min/km ratio: %+v", stop)
	}
	wantStart := dd.StartOfDay.Add(time.Duration(stop.TravelMinutes * float64(time.Minute)))
	if !stop.PlannedStart.Equal(wantStart) {
		t.Fatalf("plannedStart=%s, want %s", stop.PlannedStart, wantStart)
	}
}

func TestGreedyRespectsCapacity(t *testing.T) {
	day := model.Day{TenantID: "t1", Date: date(t, "2026-09-10")}
	home := model.GeoPoint{Lat: 0, Lng: 0}
	dd := testDriverDay("d1", home, 30, day.Date) // room for one 10-min visit plus travel

	a := testLoc("A", 0, 0.05, day.Date) // ~5.6 km, ~11 min at ratio 2
	b := testLoc("B", 0, 0.10, day.Date)

	e := &GreedyEngine{Params: CostParamsFrom(model.DefaultSolverConfig()), Snap: baselineSnap(2.0)}
	out, err := e.Plan(context.Background(), day, []model.Location{a, b}, []DriverDay{dd})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(out.Planned) != 1 {
		t.Fatalf("planned=%v, want exactly one", out.Planned)
	}
	if len(out.Unplanned) != 1 {
		t.Fatalf("unplanned=%v, want exactly one", out.Unplanned)
	}
}

func TestGreedyRejectsFixedElsewhere(t *testing.T) {
	day := model.Day{TenantID: "t1", Date: date(t, "2026-09-10")}
	dd := testDriverDay("d1", model.GeoPoint{}, 480, day.Date)
	loc := testLoc("L1", 0, 0.01, day.Date)
	other := date(t, "2026-09-12")
	loc.FixedDate = &other

	e := &GreedyEngine{Params: CostParamsFrom(model.DefaultSolverConfig()), Snap: baselineSnap(2.0)}
	out, err := e.Plan(context.Background(), day, []model.Location{loc}, []DriverDay{dd})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(out.Planned) != 0 || len(out.Unplanned) != 1 {
		t.Fatalf("planned=%v unplanned=%v", out.Planned, out.Unplanned)
	}
}

func TestGreedyDeterministic(t *testing.T) {
	day := model.Day{TenantID: "t1", Date: date(t, "2026-09-10")}
	fleet := []DriverDay{
		testDriverDay("d1", model.GeoPoint{Lat: 0, Lng: 0}, 480, day.Date),
		testDriverDay("d2", model.GeoPoint{Lat: 0, Lng: 0.2}, 480, day.Date),
	}
	cands := []model.Location{
		testLoc("A", 0, 0.02, day.Date),
		testLoc("B", 0, 0.18, day.Date),
		testLoc("C", 0, 0.10, day.Date),
		testLoc("D", 0, 0.05, day.Date),
	}

	e := &GreedyEngine{Params: CostParamsFrom(model.DefaultSolverConfig()), Snap: baselineSnap(1.2)}
	first, err := e.Plan(context.Background(), day, cands, fleet)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	second, err := e.Plan(context.Background(), day, cands, fleet)
	if err != nil {
		t.Fatalf("replan: %v", err)
	}
	if !reflect.DeepEqual(first.Planned, second.Planned) {
		t.Fatalf("planned diverged: %v vs %v", first.Planned, second.Planned)
	}
	if !reflect.DeepEqual(first.Routes, second.Routes) {
		t.Fatal("routes diverged between identical runs")
	}
}

func TestGreedyAssignsToNearestDriver(t *testing.T) {
	day := model.Day{TenantID: "t1", Date: date(t, "2026-09-10")}
	west := testDriverDay("west", model.GeoPoint{Lat: 0, Lng: 0}, 480, day.Date)
	east := testDriverDay("east", model.GeoPoint{Lat: 0, Lng: 1.0}, 480, day.Date)
	loc := testLoc("L1", 0, 0.95, day.Date)

	e := &GreedyEngine{Params: CostParamsFrom(model.DefaultSolverConfig()), Snap: baselineSnap(1.2)}
	out, err := e.Plan(context.Background(), day, []model.Location{loc}, []DriverDay{west, east})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(out.Routes) != 1 || out.Routes[0].DriverID != "east" {
		t.Fatalf("routes=%+v, want single route for east", out.Routes)
	}
}
