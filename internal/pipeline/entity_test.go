package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secbrief/internal/types"
)

func newEntityPipeline(gen *fakeGenerator, ver *fakeVerifier, gatherer *fakeGatherer, st OutcomeStore) *EntityPipeline {
	return NewEntityPipeline(gatherer, NewTierPipeline(gen, ver, 2), st)
}

func TestEntityRunsAllTiersInOrder(t *testing.T) {
	gen := newFakeGenerator()
	ver := &fakeVerifier{}
	st := &fakeStore{}
	p := newEntityPipeline(gen, ver, &fakeGatherer{}, st)

	outcome := p.Run(context.Background(), types.EntityTask{EntityID: "AAPL", Name: "Apple", RunID: "run-1"})

	require.Len(t, outcome.Tiers, 3)
	assert.Equal(t, types.TierHook, outcome.Tiers[0].Tier)
	assert.Equal(t, types.TierMedium, outcome.Tiers[1].Tier)
	assert.Equal(t, types.TierExpanded, outcome.Tiers[2].Tier)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, types.StorageStored, outcome.Storage)
	assert.Positive(t, outcome.Duration)
	require.Len(t, st.saved, 1)
}

func TestEntityPassesPriorTiersDownward(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierHook, genStep{text: "hook text"})
	gen.script(types.TierMedium, genStep{text: "medium text"})
	gen.script(types.TierExpanded, genStep{text: "expanded text"})
	ver := &fakeVerifier{}
	p := newEntityPipeline(gen, ver, &fakeGatherer{}, nil)

	p.Run(context.Background(), types.EntityTask{EntityID: "AAPL", RunID: "run-1"})

	hookCalls := gen.callsFor(types.TierHook)
	require.Len(t, hookCalls, 1)
	assert.Empty(t, hookCalls[0].PriorTiers)

	mediumCalls := gen.callsFor(types.TierMedium)
	require.Len(t, mediumCalls, 1)
	assert.Equal(t, "hook text", mediumCalls[0].PriorTiers[types.TierHook])

	expandedCalls := gen.callsFor(types.TierExpanded)
	require.Len(t, expandedCalls, 1)
	assert.Equal(t, "hook text", expandedCalls[0].PriorTiers[types.TierHook])
	assert.Equal(t, "medium text", expandedCalls[0].PriorTiers[types.TierMedium])
}

func TestEntityAllSourcesFailedStillProducesOutcome(t *testing.T) {
	gen := newFakeGenerator()
	ver := &fakeVerifier{}
	st := &fakeStore{}
	gatherer := &fakeGatherer{bundle: failedBundle("DARK")}
	p := newEntityPipeline(gen, ver, gatherer, st)

	outcome := p.Run(context.Background(), types.EntityTask{EntityID: "DARK", RunID: "run-1"})

	require.Len(t, outcome.Tiers, 3)
	assert.Equal(t, types.StorageStored, outcome.Storage)
	require.Len(t, st.saved, 1)
}

func TestEntityPersistenceFailureRecordedNotRetried(t *testing.T) {
	gen := newFakeGenerator()
	ver := &fakeVerifier{}
	st := &fakeStore{err: errors.New("disk full")}
	p := newEntityPipeline(gen, ver, &fakeGatherer{}, st)

	outcome := p.Run(context.Background(), types.EntityTask{EntityID: "AAPL", RunID: "run-1"})

	assert.Equal(t, types.StorageFailed, outcome.Storage)
	assert.Contains(t, outcome.Err, "disk full")
	assert.False(t, outcome.Succeeded())
	// The tier results survive even when persistence fails.
	require.Len(t, outcome.Tiers, 3)
	assert.Empty(t, st.saved)
}

func TestEntityNilStoreSkipsPersistence(t *testing.T) {
	gen := newFakeGenerator()
	ver := &fakeVerifier{}
	p := newEntityPipeline(gen, ver, &fakeGatherer{}, nil)

	outcome := p.Run(context.Background(), types.EntityTask{EntityID: "AAPL", RunID: "run-1"})

	assert.True(t, outcome.Succeeded())
}

func TestEntityModeSelection(t *testing.T) {
	gen := newFakeGenerator()
	ver := &fakeVerifier{}
	tiers := NewTierPipeline(gen, ver, 2)

	multi := NewEntityPipeline(&fakeGatherer{sources: 3}, tiers, nil)
	assert.Equal(t, ModeMultiSource, multi.Mode())

	single := NewEntityPipeline(&fakeGatherer{sources: 1}, tiers, nil)
	assert.Equal(t, ModeSingleSource, single.Mode())
	assert.Equal(t, "single-source", single.Mode().String())
}
