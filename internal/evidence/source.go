// Package evidence gathers source material for one security from N
// independent sources. Each source is an external collaborator behind a
// narrow interface; a single source's failure never aborts gathering,
// and the resulting bundle is immutable once assembled.
package evidence

import (
	"context"
	"time"

	"secbrief/internal/types"
)

// Source is one independent evidence provider.
type Source interface {
	// Type identifies the source for tagging documents and statuses.
	Type() types.SourceType
	// Fetch retrieves documents for the entity within the lookback
	// window. A degraded source may return some documents with
	// FetchPartial; a broken one returns an error and no documents.
	Fetch(ctx context.Context, entityID string, lookback time.Duration) ([]types.Document, types.FetchStatus, error)
}
