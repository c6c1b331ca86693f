package plan

import (
	"testing"

	"poleplan/internal/model"
)

func TestSelectCandidatesEligibility(t *testing.T) {
	day := date(t, "2026-09-10")
	cfg := model.DefaultSolverConfig()
	cfg.HorizonSlackDays = 3

	fixedToday := date(t, "2026-09-10")
	fixedLater := date(t, "2026-09-20")

	planned := testLoc("planned", 0, 0, day)
	planned.Planned = true
	inSlack := testLoc("in-slack", 0, 0, date(t, "2026-09-13"))
	beyondSlack := testLoc("beyond", 0, 0, date(t, "2026-09-14"))
	fixedNow := testLoc("fixed-now", 0, 0, date(t, "2026-12-01"))
	fixedNow.FixedDate = &fixedToday
	fixedOther := testLoc("fixed-other", 0, 0, day)
	fixedOther.FixedDate = &fixedLater

	backlog := []model.Location{planned, inSlack, beyondSlack, fixedNow, fixedOther}
	got := SelectCandidates(backlog, day, nil, cfg)

	ids := map[string]bool{}
	for _, l := range got {
		ids[l.ID] = true
	}
	if !ids["in-slack"] || !ids["fixed-now"] {
		t.Fatalf("missing eligible candidates: %v", ids)
	}
	if ids["planned"] || ids["beyond"] || ids["fixed-other"] {
		t.Fatalf("ineligible candidate selected: %v", ids)
	}
}

func TestSelectCandidatesFixedFirstThenOverdue(t *testing.T) {
	day := date(t, "2026-09-10")
	cfg := model.DefaultSolverConfig()

	fixed := testLoc("z-fixed", 0, 0, date(t, "2026-09-12"))
	fd := day
	fixed.FixedDate = &fd
	overdue := testLoc("a-overdue", 0, 0, date(t, "2026-09-01"))
	dueSoon := testLoc("b-due", 0, 0, date(t, "2026-09-11"))

	got := SelectCandidates([]model.Location{dueSoon, overdue, fixed}, day, nil, cfg)
	if len(got) != 3 {
		t.Fatalf("got %d candidates", len(got))
	}
	if got[0].ID != "z-fixed" {
		t.Fatalf("fixed should rank first, got %s", got[0].ID)
	}
	if got[1].ID != "a-overdue" || got[2].ID != "b-due" {
		t.Fatalf("overdue ordering wrong: %s, %s", got[1].ID, got[2].ID)
	}
}

func TestSelectCandidatesProximityTieBreak(t *testing.T) {
	day := date(t, "2026-09-10")
	cfg := model.DefaultSolverConfig()
	due := date(t, "2026-09-11")

	near := testLoc("near", 0, 0.01, due)
	far := testLoc("far", 0, 2.0, due)
	fleet := []DriverDay{testDriverDay("d1", model.GeoPoint{Lat: 0, Lng: 0}, 480, day)}

	got := SelectCandidates([]model.Location{far, near}, day, fleet, cfg)
	if got[0].ID != "near" {
		t.Fatalf("same due date should rank by proximity, got %s first", got[0].ID)
	}
}

func TestSelectCandidatesTruncates(t *testing.T) {
	day := date(t, "2026-09-10")
	cfg := model.DefaultSolverConfig()
	cfg.MaxDailyCandidates = 2

	backlog := []model.Location{
		testLoc("a", 0, 0, day),
		testLoc("b", 0, 0, day),
		testLoc("c", 0, 0, day),
	}
	got := SelectCandidates(backlog, day, nil, cfg)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
}
