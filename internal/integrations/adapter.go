// Package integrations defines the intake interface for external pole sources
// (asset registries, GIS exports, inspection backlogs).
package integrations

import (
	"context"

	"poleplan/internal/model"
)

// SourceAdapter pulls pole batches from an external system into the backlog.
type SourceAdapter interface {
	Name() string
	// FetchLocations returns the next batch after cursor; an empty returned
	// cursor means the source is drained.
	FetchLocations(ctx context.Context, cursor string) (LocationBatch, error)
}

type LocationBatch struct {
	Locations []model.LocationIn
	Cursor    string
}
