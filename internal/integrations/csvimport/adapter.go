// Package csvimport parses pole backlogs exported as CSV.
package csvimport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"poleplan/internal/integrations"
	"poleplan/internal/model"
)

// Adapter reads rows of the form:
//
//	serial,lat,lng,dueDate[,fixedDate[,serviceMinutes]]
//
// A header row is detected and skipped. Malformed rows are dropped, not fatal.
type Adapter struct {
	Reader    io.Reader
	BatchSize int

	csv *csv.Reader
}

func (a *Adapter) Name() string { return "csv-import" }

func (a *Adapter) FetchLocations(ctx context.Context, cursor string) (integrations.LocationBatch, error) {
	size := a.BatchSize
	if size <= 0 {
		size = 500
	}
	if a.csv == nil {
		a.csv = csv.NewReader(a.Reader)
		a.csv.FieldsPerRecord = -1
	}
	r := a.csv
	out := integrations.LocationBatch{}
	for len(out.Locations) < size {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read csv: %w", err)
		}
		li, ok := parseRow(rec)
		if !ok {
			continue
		}
		out.Locations = append(out.Locations, li)
	}
	out.Cursor = "more"
	return out, nil
}

func parseRow(rec []string) (model.LocationIn, bool) {
	if len(rec) < 4 {
		return model.LocationIn{}, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if errLat != nil || errLng != nil {
		// header row lands here too
		return model.LocationIn{}, false
	}
	due := strings.TrimSpace(rec[3])
	if _, err := model.ParseDate(due); err != nil {
		return model.LocationIn{}, false
	}
	li := model.LocationIn{
		Serial:   strings.TrimSpace(rec[0]),
		Position: &model.GeoPoint{Lat: lat, Lng: lng},
		DueDate:  due,
	}
	if len(rec) > 4 {
		fixed := strings.TrimSpace(rec[4])
		if fixed != "" {
			if _, err := model.ParseDate(fixed); err != nil {
				return model.LocationIn{}, false
			}
			li.FixedDate = fixed
		}
	}
	if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
		mins, err := strconv.Atoi(strings.TrimSpace(rec[5]))
		if err != nil || mins < 0 {
			return model.LocationIn{}, false
		}
		li.ServiceMinutes = mins
	}
	return li, true
}
