package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secbrief/internal/types"
)

func TestTierPassesFirstAttempt(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierHook, genStep{text: "Revenue hit $500 million."})
	ver := &fakeVerifier{}
	ver.script(verifyStep{outcome: passOutcome()})

	p := NewTierPipeline(gen, ver, 2)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierHook, nil)

	assert.True(t, res.Passed())
	assert.Equal(t, 0, res.Retries)
	assert.Equal(t, "Revenue hit $500 million.", res.Text)
	require.Len(t, gen.callsFor(types.TierHook), 1)
	assert.Empty(t, gen.callsFor(types.TierHook)[0].Corrections)
}

func TestTierRetryReceivesFailedClaims(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierHook,
		genStep{text: "Revenue hit $900 million."},
		genStep{text: "Revenue hit $500 million."},
	)
	ver := &fakeVerifier{}
	bad := types.FailedClaim{Claim: "$900 million", Discrepancy: "numeric value \"900\" not supported by evidence"}
	ver.script(
		verifyStep{outcome: failOutcome(bad)},
		verifyStep{outcome: passOutcome()},
	)

	p := NewTierPipeline(gen, ver, 2)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierHook, nil)

	assert.True(t, res.Passed())
	assert.Equal(t, 1, res.Retries)

	calls := gen.callsFor(types.TierHook)
	require.Len(t, calls, 2)
	assert.Empty(t, calls[0].Corrections)
	require.Len(t, calls[1].Corrections, 1)
	assert.Equal(t, bad, calls[1].Corrections[0])
}

func TestTierExhaustsRetryBudget(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierMedium,
		genStep{text: "wrong one"},
		genStep{text: "wrong two"},
		genStep{text: "wrong three"},
	)
	ver := &fakeVerifier{}
	bad := types.FailedClaim{Claim: "wrong", Discrepancy: "not supported"}
	ver.script(
		verifyStep{outcome: failOutcome(bad)},
		verifyStep{outcome: failOutcome(bad)},
		verifyStep{outcome: failOutcome(bad)},
	)

	p := NewTierPipeline(gen, ver, 2)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierMedium, nil)

	// Initial attempt plus exactly maxRetries, never more.
	require.Len(t, gen.callsFor(types.TierMedium), 3)
	assert.False(t, res.Passed())
	assert.Equal(t, 2, res.Retries)
	// Exhaustion keeps the last generated text and its failing outcome.
	assert.Equal(t, "wrong three", res.Text)
	assert.Equal(t, types.VerificationFailed, res.Verification.Status)
}

func TestTierGeneratorErrorConsumesRetry(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierHook,
		genStep{err: errors.New("provider 503")},
		genStep{text: "Revenue hit $500 million."},
	)
	ver := &fakeVerifier{}
	ver.script(verifyStep{outcome: passOutcome()})

	p := NewTierPipeline(gen, ver, 2)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierHook, nil)

	assert.True(t, res.Passed())
	assert.Equal(t, 1, res.Retries)

	// The retry's corrections carry the synthetic ERROR claim.
	calls := gen.callsFor(types.TierHook)
	require.Len(t, calls, 2)
	require.Len(t, calls[1].Corrections, 1)
	assert.Equal(t, ErrorClaim, calls[1].Corrections[0].Claim)
	assert.Contains(t, calls[1].Corrections[0].Discrepancy, "provider 503")
}

func TestTierVerifierErrorConsumesRetry(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierHook,
		genStep{text: "first attempt text"},
		genStep{text: "second attempt text"},
	)
	ver := &fakeVerifier{}
	ver.script(
		verifyStep{err: errors.New("verifier unavailable")},
		verifyStep{outcome: passOutcome()},
	)

	p := NewTierPipeline(gen, ver, 2)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierHook, nil)

	assert.True(t, res.Passed())
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, "second attempt text", res.Text)
}

func TestTierAllErrorsExhausts(t *testing.T) {
	boom := errors.New("provider down")
	gen := newFakeGenerator()
	gen.script(types.TierExpanded,
		genStep{err: boom},
		genStep{err: boom},
		genStep{err: boom},
	)
	ver := &fakeVerifier{}

	p := NewTierPipeline(gen, ver, 2)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierExpanded, nil)

	assert.False(t, res.Passed())
	assert.Equal(t, 2, res.Retries)
	assert.Empty(t, res.Text)
	require.Len(t, res.Verification.FailedClaims, 1)
	assert.Equal(t, ErrorClaim, res.Verification.FailedClaims[0].Claim)
	// The verifier is never consulted without text to check.
	assert.Empty(t, ver.texts)
}

func TestTierZeroRetryBudget(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierHook, genStep{text: "wrong"})
	ver := &fakeVerifier{}
	ver.script(verifyStep{outcome: failOutcome(types.FailedClaim{Claim: "wrong", Discrepancy: "nope"})})

	p := NewTierPipeline(gen, ver, 0)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierHook, nil)

	require.Len(t, gen.callsFor(types.TierHook), 1)
	assert.False(t, res.Passed())
	assert.Equal(t, 0, res.Retries)
}

func TestTierRetryCorrectionsNeverEmpty(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierHook,
		genStep{text: "vague first attempt"},
		genStep{text: "grounded second attempt"},
	)
	ver := &fakeVerifier{}
	// A failure carried entirely by uncertain claims: below threshold
	// but with no failed claims of its own.
	ver.script(
		verifyStep{outcome: types.VerificationOutcome{
			PassRate:  0.25,
			Status:    types.VerificationFailed,
			Verified:  1,
			Uncertain: 3,
		}},
		verifyStep{outcome: passOutcome()},
	)

	p := NewTierPipeline(gen, ver, 2)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierHook, nil)

	assert.True(t, res.Passed())
	calls := gen.callsFor(types.TierHook)
	require.Len(t, calls, 2)
	require.NotEmpty(t, calls[1].Corrections, "a retry must always carry corrections")
	assert.NotEmpty(t, calls[1].Corrections[0].Discrepancy)
}

func TestTierRetryOutcomeReplacesPrevious(t *testing.T) {
	gen := newFakeGenerator()
	gen.script(types.TierHook,
		genStep{text: "bad numbers"},
		genStep{text: "good numbers"},
	)
	ver := &fakeVerifier{}
	ver.script(
		verifyStep{outcome: failOutcome(
			types.FailedClaim{Claim: "a", Discrepancy: "x"},
			types.FailedClaim{Claim: "b", Discrepancy: "y"},
		)},
		verifyStep{outcome: passOutcome()},
	)

	p := NewTierPipeline(gen, ver, 2)
	res := p.Run(context.Background(), healthyBundle("AAPL"), types.TierHook, nil)

	// No residue from the failed attempt on the final outcome.
	assert.Equal(t, types.VerificationPassed, res.Verification.Status)
	assert.Empty(t, res.Verification.FailedClaims)
	assert.Equal(t, 1.0, res.Verification.PassRate)
}
