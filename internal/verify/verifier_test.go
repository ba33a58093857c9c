package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secbrief/internal/types"
)

func bundleWith(content string) *types.EvidenceBundle {
	return &types.EvidenceBundle{
		EntityID: "SEC-001",
		Sources: []types.SourceResult{
			{
				Source: types.SourceFilings,
				Status: types.FetchSuccess,
				Documents: []types.Document{
					{Source: types.SourceFilings, Content: content},
				},
			},
		},
	}
}

func TestExtractClaimsKinds(t *testing.T) {
	text := "Acme Corp reported revenue of $100 million in 2024, up 12%. The consensus rating is buy."
	claims := ExtractClaims(text)

	kinds := make(map[ClaimKind][]string)
	for _, c := range claims {
		kinds[c.Kind] = append(kinds[c.Kind], c.Value)
	}

	assert.Contains(t, kinds[KindNumeric], "100")
	assert.Contains(t, kinds[KindNumeric], "12")
	assert.Contains(t, kinds[KindDate], "2024")
	assert.Contains(t, kinds[KindEntity], "acme corp")
	assert.Contains(t, kinds[KindCategorical], "buy")
}

func TestExtractClaimsDeterministic(t *testing.T) {
	text := "Acme Corp grew revenue 8% to $250 million in 2023."
	first := ExtractClaims(text)
	second := ExtractClaims(text)
	require.Equal(t, first, second)
}

func TestExtractClaimsEmptyText(t *testing.T) {
	assert.Empty(t, ExtractClaims(""))
	assert.Empty(t, ExtractClaims("plain prose without any checkable facts here"))
}

func TestVerifyAllSupported(t *testing.T) {
	v := NewVerifier(0.8)
	bundle := bundleWith("Acme Corp reported quarterly revenue of $100 million, up 12% year over year in 2024. Consensus rating is buy.")

	outcome, err := v.Verify(context.Background(), "Acme Corp posted $100 million revenue, 12% growth, in 2024. Analysts rate it a buy.", bundle)
	require.NoError(t, err)

	assert.Equal(t, types.VerificationPassed, outcome.Status)
	assert.Equal(t, 1.0, outcome.PassRate)
	assert.Zero(t, outcome.Failed)
	assert.Empty(t, outcome.FailedClaims)
}

func TestVerifyUnsupportedNumberFails(t *testing.T) {
	v := NewVerifier(0.8)
	bundle := bundleWith("Acme Corp reported revenue of $100 million.")

	outcome, err := v.Verify(context.Background(), "Acme Corp reported revenue of $900 million.", bundle)
	require.NoError(t, err)

	assert.Equal(t, types.VerificationFailed, outcome.Status)
	require.NotEmpty(t, outcome.FailedClaims)
	assert.Contains(t, outcome.FailedClaims[0].Discrepancy, "900")
}

func TestVerifyPartialEntityMatchIsUncertain(t *testing.T) {
	v := NewVerifier(0.8)
	bundle := bundleWith("Revenue reported to Global Federal Bank was $100 million.")

	// One verified numeric, one entity whose phrase only partially
	// matches the evidence ("Global" appears, the full name does not).
	outcome, err := v.Verify(context.Background(), "Revenue hit $100 million according to Global Insight Partners.", bundle)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Verified)
	assert.Equal(t, 1, outcome.Uncertain)
	assert.Zero(t, outcome.Failed)
	assert.InDelta(t, 0.5, outcome.PassRate, 1e-9)
	assert.Equal(t, types.VerificationFailed, outcome.Status)
	// Uncertain claims never populate the correction list.
	assert.Empty(t, outcome.FailedClaims)
}

func TestVerifyHallucinatedEntityFailsWithCorrection(t *testing.T) {
	v := NewVerifier(0.8)
	bundle := bundleWith("Revenue was $100 million.")

	// Neither the firm name nor the rating appears anywhere in the
	// evidence; both must fail and carry correction text.
	outcome, err := v.Verify(context.Background(), "According to Global Insight Partners the outlook is neutral.", bundle)
	require.NoError(t, err)

	assert.Equal(t, types.VerificationFailed, outcome.Status)
	assert.Zero(t, outcome.Verified)
	assert.Equal(t, 2, outcome.Failed)
	require.Len(t, outcome.FailedClaims, 2)

	var discrepancies []string
	for _, fc := range outcome.FailedClaims {
		assert.NotEmpty(t, fc.Discrepancy)
		discrepancies = append(discrepancies, fc.Discrepancy)
	}
	assert.Contains(t, strings.Join(discrepancies, "\n"), "global insight partners")
	assert.Contains(t, strings.Join(discrepancies, "\n"), "neutral")
}

func TestVerifyZeroClaimsPasses(t *testing.T) {
	v := NewVerifier(0.8)
	bundle := bundleWith("anything")

	outcome, err := v.Verify(context.Background(), "insufficient data is available to summarize this security", bundle)
	require.NoError(t, err)

	assert.Equal(t, 1.0, outcome.PassRate)
	assert.Equal(t, types.VerificationPassed, outcome.Status)
}

func TestVerifyThresholdBoundary(t *testing.T) {
	// Status must be a pure function of pass rate: >= threshold passes.
	v := NewVerifier(0.8)

	// 4 verified numerics + 1 failed = 0.8 exactly.
	bundle := bundleWith("Figures: $10 million, $20 million, $30 million, $40 million.")
	text := "Reported $10 million, $20 million, $30 million, $40 million and $77 million."

	outcome, err := v.Verify(context.Background(), text, bundle)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, outcome.PassRate, 1e-9)
	assert.Equal(t, types.VerificationPassed, outcome.Status)
}

func TestVerifyDeterministic(t *testing.T) {
	v := NewVerifier(0.8)
	bundle := bundleWith("Acme Corp revenue $100 million in 2024, rating hold.")
	text := "Acme Corp made $150 million in 2024 and analysts say hold."

	first, err := v.Verify(context.Background(), text, bundle)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := v.Verify(context.Background(), text, bundle)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestVerifyCancelledContext(t *testing.T) {
	v := NewVerifier(0.8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, "text", bundleWith("evidence"))
	assert.Error(t, err)
}
