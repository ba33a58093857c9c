package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"secbrief/internal/generator"
	"secbrief/internal/types"
)

// genCall records one Generate invocation so tests can assert on the
// corrections the pipeline passed down.
type genCall struct {
	Tier        types.Tier
	Corrections []types.FailedClaim
	PriorTiers  map[types.Tier]string
}

// genStep scripts one Generate response.
type genStep struct {
	text string
	err  error
}

// fakeGenerator replays scripted responses per tier and records calls.
type fakeGenerator struct {
	mu    sync.Mutex
	steps map[types.Tier][]genStep
	calls []genCall
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{steps: make(map[types.Tier][]genStep)}
}

func (g *fakeGenerator) script(tier types.Tier, steps ...genStep) {
	g.steps[tier] = append(g.steps[tier], steps...)
}

func (g *fakeGenerator) Generate(_ context.Context, req generator.Request) (string, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prior := make(map[types.Tier]string, len(req.PriorTiers))
	for k, v := range req.PriorTiers {
		prior[k] = v
	}
	g.calls = append(g.calls, genCall{
		Tier:        req.Tier,
		Corrections: append([]types.FailedClaim(nil), req.Corrections...),
		PriorTiers:  prior,
	})

	queue := g.steps[req.Tier]
	if len(queue) == 0 {
		return "default text", 2, nil
	}
	step := queue[0]
	g.steps[req.Tier] = queue[1:]
	if step.err != nil {
		return "", 0, step.err
	}
	return step.text, len(strings.Fields(step.text)), nil
}

func (g *fakeGenerator) callsFor(tier types.Tier) []genCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []genCall
	for _, c := range g.calls {
		if c.Tier == tier {
			out = append(out, c)
		}
	}
	return out
}

// verifyStep scripts one Verify response.
type verifyStep struct {
	outcome types.VerificationOutcome
	err     error
}

// fakeVerifier replays scripted outcomes in call order, shared across
// tiers. When the script runs dry it passes everything.
type fakeVerifier struct {
	mu    sync.Mutex
	steps []verifyStep
	texts []string
}

func (v *fakeVerifier) script(steps ...verifyStep) {
	v.steps = append(v.steps, steps...)
}

func (v *fakeVerifier) Verify(_ context.Context, text string, _ *types.EvidenceBundle) (types.VerificationOutcome, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.texts = append(v.texts, text)
	if len(v.steps) == 0 {
		return types.VerificationOutcome{PassRate: 1.0, Status: types.VerificationPassed, Verified: 1}, nil
	}
	step := v.steps[0]
	v.steps = v.steps[1:]
	if step.err != nil {
		return types.VerificationOutcome{}, step.err
	}
	return step.outcome, nil
}

func passOutcome() types.VerificationOutcome {
	return types.VerificationOutcome{PassRate: 1.0, Status: types.VerificationPassed, Verified: 2}
}

func failOutcome(claims ...types.FailedClaim) types.VerificationOutcome {
	return types.VerificationOutcome{
		PassRate:     0.5,
		Status:       types.VerificationFailed,
		Verified:     1,
		Failed:       len(claims),
		FailedClaims: claims,
	}
}

// fakeGatherer returns a fixed bundle.
type fakeGatherer struct {
	bundle  *types.EvidenceBundle
	sources int
}

func (g *fakeGatherer) Gather(_ context.Context, task types.EntityTask) *types.EvidenceBundle {
	if g.bundle != nil {
		return g.bundle
	}
	return healthyBundle(task.EntityID)
}

func (g *fakeGatherer) SourceCount() int {
	if g.sources > 0 {
		return g.sources
	}
	return 3
}

// fakeStore records saved outcomes and optionally fails.
type fakeStore struct {
	mu    sync.Mutex
	saved []*types.EntityOutcome
	err   error
}

func (s *fakeStore) SaveOutcome(_ context.Context, outcome *types.EntityOutcome) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.saved = append(s.saved, outcome)
	return int64(len(s.saved)), nil
}

func healthyBundle(entityID string) *types.EvidenceBundle {
	return &types.EvidenceBundle{
		EntityID:   entityID,
		EntityName: "Test Corp",
		GatheredAt: time.Now(),
		Sources: []types.SourceResult{
			{
				Source: types.SourceFilings,
				Status: types.FetchSuccess,
				Documents: []types.Document{
					{Source: types.SourceFilings, Content: "Revenue of $500 million in Q2 2026."},
				},
			},
		},
	}
}

func failedBundle(entityID string) *types.EvidenceBundle {
	return &types.EvidenceBundle{
		EntityID:   entityID,
		EntityName: "Dark Corp",
		GatheredAt: time.Now(),
		Sources: []types.SourceResult{
			{Source: types.SourceFilings, Status: types.FetchFailed, Error: "upstream 503"},
			{Source: types.SourceAnalyst, Status: types.FetchFailed, Error: "timeout"},
		},
	}
}
