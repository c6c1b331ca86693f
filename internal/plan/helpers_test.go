package plan

import (
	"testing"
	"time"

	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func testLoc(id string, lat, lng float64, due time.Time) model.Location {
	return model.Location{
		ID:       id,
		TenantID: "t1",
		Serial:   "S-" + id,
		Position: model.GeoPoint{Lat: lat, Lng: lng},
		DueDate:  due,
	}
}

func testDriverDay(id string, home model.GeoPoint, capMin float64, day time.Time) DriverDay {
	return DriverDay{
		Driver: model.Driver{
			ID:                    id,
			TenantID:              "t1",
			Home:                  home,
			DefaultServiceMinutes: 10,
			MaxWorkMinutes:        int(capMin),
		},
		CapacityMinutes: capMin,
		StartOfDay:      model.Midnight(day).Add(8 * time.Hour),
	}
}

// baselineSnap is a fixed-ratio snapshot so tests stay independent of the
// learned model state.
func baselineSnap(ratio float64) traveltime.Snapshot {
	return traveltime.Snapshot{Ratio: ratio, Source: traveltime.SourceBaseline}
}
