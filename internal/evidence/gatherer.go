package evidence

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"secbrief/internal/logging"
	"secbrief/internal/types"
)

// Gatherer queries all configured sources concurrently with a per-source
// timeout and assembles their outcomes into one EvidenceBundle. There
// are no retries at this layer; retries belong to the tier pipeline.
type Gatherer struct {
	sources       []Source
	sourceTimeout time.Duration
	lookback      time.Duration
}

// NewGatherer creates a gatherer over the given sources.
func NewGatherer(sources []Source, sourceTimeout, lookback time.Duration) *Gatherer {
	return &Gatherer{
		sources:       sources,
		sourceTimeout: sourceTimeout,
		lookback:      lookback,
	}
}

// SourceCount returns the number of configured sources.
func (g *Gatherer) SourceCount() int {
	return len(g.sources)
}

// Gather fetches from every source in parallel. It never fails as a
// whole: each source contributes either documents or a failed status,
// and the union becomes the bundle. The returned bundle must not be
// mutated by callers.
func (g *Gatherer) Gather(ctx context.Context, task types.EntityTask) *types.EvidenceBundle {
	timer := logging.StartTimer(logging.CategoryEvidence, "Gather")
	defer timer.Stop()

	bundle := &types.EvidenceBundle{
		EntityID:   task.EntityID,
		EntityName: task.Name,
		GatheredAt: time.Now(),
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)

	for _, src := range g.sources {
		src := src
		eg.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(egCtx, g.sourceTimeout)
			defer cancel()

			docs, status, err := src.Fetch(fetchCtx, task.EntityID, g.lookback)
			result := types.SourceResult{
				Source:    src.Type(),
				Status:    status,
				Documents: docs,
			}
			if err != nil {
				// A failed source yields an empty result; it never
				// aborts gathering for the entity.
				logging.EvidenceWarn("source %s failed for %s: %v", src.Type(), task.EntityID, err)
				result.Status = types.FetchFailed
				result.Documents = nil
				result.Error = err.Error()
			}

			mu.Lock()
			bundle.Sources = append(bundle.Sources, result)
			mu.Unlock()
			return nil
		})
	}

	// Errors are folded into per-source statuses above.
	_ = eg.Wait()

	// Stable source order regardless of completion order.
	sort.Slice(bundle.Sources, func(i, j int) bool {
		return bundle.Sources[i].Source < bundle.Sources[j].Source
	})

	logging.Evidence("gathered %d sources for %s (all failed: %v)",
		len(bundle.Sources), task.EntityID, bundle.AllFailed())
	return bundle
}
