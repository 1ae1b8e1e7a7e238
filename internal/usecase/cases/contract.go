package cases

import (
	"context"

	"github.com/epiwatch/casestore/internal/domain/geojson"
)

// Geocoder resolves free-text location queries into candidate features.
// Zero candidates is a dependency failure, not an empty success.
type Geocoder interface {
	Locate(ctx context.Context, query string) ([]geojson.Feature, error)
}
