package pipeline

import (
	"context"
	"time"

	"secbrief/internal/logging"
	"secbrief/internal/types"
)

// Mode tags the pipeline's gathering configuration. It is selected once
// at construction from the gatherer's source count; downstream code
// switches on the tag instead of sniffing the gatherer.
type Mode int

const (
	// ModeSingleSource means evidence comes from one source, so a
	// partial or failed fetch leaves no fallback coverage.
	ModeSingleSource Mode = iota
	// ModeMultiSource means evidence is aggregated across sources and
	// individual fetch failures degrade rather than empty the bundle.
	ModeMultiSource
)

func (m Mode) String() string {
	if m == ModeSingleSource {
		return "single-source"
	}
	return "multi-source"
}

// EvidenceGatherer collects documents for an entity. Satisfied by
// *evidence.Gatherer.
type EvidenceGatherer interface {
	Gather(ctx context.Context, task types.EntityTask) *types.EvidenceBundle
	SourceCount() int
}

// OutcomeStore persists a finished entity outcome. Satisfied by
// *store.Store. A nil store disables persistence (dry runs, tests).
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, outcome *types.EntityOutcome) (int64, error)
}

// EntityPipeline runs the full flow for one entity: gather evidence
// once, then each tier in escalating order with prior tier text as
// context, then persist. It never returns an error; every failure mode
// is recorded on the outcome.
type EntityPipeline struct {
	gatherer EvidenceGatherer
	tiers    *TierPipeline
	store    OutcomeStore
	mode     Mode
}

// NewEntityPipeline wires the pipeline. The mode tag is fixed here from
// the gatherer's source count.
func NewEntityPipeline(gatherer EvidenceGatherer, tiers *TierPipeline, store OutcomeStore) *EntityPipeline {
	mode := ModeMultiSource
	if gatherer.SourceCount() <= 1 {
		mode = ModeSingleSource
	}
	return &EntityPipeline{
		gatherer: gatherer,
		tiers:    tiers,
		store:    store,
		mode:     mode,
	}
}

// Mode reports the gathering configuration the pipeline was built with.
func (p *EntityPipeline) Mode() Mode {
	return p.mode
}

// Run executes gather -> hook -> medium -> expanded -> persist for one
// entity and returns its outcome. Tiers always run even when every
// source failed; the generator handles empty evidence explicitly.
func (p *EntityPipeline) Run(ctx context.Context, task types.EntityTask) *types.EntityOutcome {
	start := time.Now()
	outcome := &types.EntityOutcome{Task: task}

	bundle := p.gatherer.Gather(ctx, task)
	if bundle.AllFailed() {
		logging.PipelineWarn("entity %s (%s): all evidence sources failed", task.EntityID, p.mode)
	} else if p.mode == ModeSingleSource && len(bundle.Documents()) == 0 {
		logging.PipelineWarn("entity %s: sole source returned no documents", task.EntityID)
	}

	prior := make(map[types.Tier]string, len(types.AllTiers()))
	for _, tier := range types.AllTiers() {
		res := p.tiers.Run(ctx, bundle, tier, prior)
		outcome.Tiers = append(outcome.Tiers, *res)
		prior[tier] = res.Text
	}

	if p.store != nil {
		if _, err := p.store.SaveOutcome(ctx, outcome); err != nil {
			// Persistence is not retried; the failure is surfaced on
			// the outcome and counted by the fleet summary.
			logging.PipelineWarn("entity %s: persistence failed: %v", task.EntityID, err)
			outcome.Storage = types.StorageFailed
			outcome.Err = err.Error()
		} else {
			outcome.Storage = types.StorageStored
		}
	} else {
		outcome.Storage = types.StorageStored
	}

	outcome.Duration = time.Since(start)
	logging.Pipeline("entity %s done in %s: succeeded=%v storage=%s",
		task.EntityID, outcome.Duration.Round(time.Millisecond), outcome.Succeeded(), outcome.Storage)
	return outcome
}
