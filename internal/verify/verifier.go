package verify

import (
	"context"
	"fmt"
	"strings"

	"secbrief/internal/logging"
	"secbrief/internal/types"
)

// Verifier checks generated tier text against an evidence bundle. It is
// a pure function of its inputs: no provider calls, no randomness.
type Verifier struct {
	threshold float64
}

// NewVerifier creates a verifier with the given pass threshold.
func NewVerifier(threshold float64) *Verifier {
	return &Verifier{threshold: threshold}
}

// Verify extracts claims from text and validates each against the
// bundle. A claim fully absent from the evidence is a failure and
// carries correction text, whatever its kind; an entity claim whose
// phrase is only partially present is ambiguous and counts as
// uncertain, against the pass rate but without a correction. Zero
// extracted claims means no false claims were made, so the pass rate
// is 1.0.
func (v *Verifier) Verify(ctx context.Context, text string, bundle *types.EvidenceBundle) (types.VerificationOutcome, error) {
	if err := ctx.Err(); err != nil {
		return types.VerificationOutcome{}, err
	}

	timer := logging.StartTimer(logging.CategoryVerify, "Verify")
	defer timer.Stop()

	claims := ExtractClaims(text)
	if len(claims) == 0 {
		return types.VerificationOutcome{
			PassRate: 1.0,
			Status:   types.VerificationPassed,
		}, nil
	}

	corpus := strings.ToLower(bundle.CombinedText())
	corpusNumbers := extractCorpusNumbers(corpus)

	outcome := types.VerificationOutcome{}
	for _, claim := range claims {
		status, discrepancy := v.check(claim, corpus, corpusNumbers)
		switch status {
		case types.ClaimVerified:
			outcome.Verified++
		case types.ClaimFailed:
			outcome.Failed++
			outcome.FailedClaims = append(outcome.FailedClaims, types.FailedClaim{
				Claim:       claim.Text,
				Discrepancy: discrepancy,
			})
		case types.ClaimUncertain:
			outcome.Uncertain++
		}
	}

	total := outcome.Verified + outcome.Failed + outcome.Uncertain
	outcome.PassRate = float64(outcome.Verified) / float64(total)
	if outcome.PassRate >= v.threshold {
		outcome.Status = types.VerificationPassed
	} else {
		outcome.Status = types.VerificationFailed
	}

	logging.Verify("claims=%d verified=%d failed=%d uncertain=%d rate=%.2f status=%s",
		total, outcome.Verified, outcome.Failed, outcome.Uncertain, outcome.PassRate, outcome.Status)
	return outcome, nil
}

// check classifies one claim against the evidence corpus. Failed
// claims carry the discrepancy text fed back to the generator.
func (v *Verifier) check(claim Claim, corpus string, corpusNumbers map[string]bool) (types.ClaimStatus, string) {
	switch claim.Kind {
	case KindNumeric, KindDate:
		if corpusNumbers[claim.Value] {
			return types.ClaimVerified, ""
		}
		return types.ClaimFailed, fmt.Sprintf("%s value %q not supported by evidence", claim.Kind, claim.Value)
	case KindEntity:
		if strings.Contains(corpus, claim.Value) {
			return types.ClaimVerified, ""
		}
		if partiallyPresent(corpus, claim.Value) {
			return types.ClaimUncertain, ""
		}
		return types.ClaimFailed, fmt.Sprintf("entity %q not found in evidence", claim.Value)
	case KindCategorical:
		if containsWord(corpus, claim.Value) {
			return types.ClaimVerified, ""
		}
		return types.ClaimFailed, fmt.Sprintf("assertion %q not supported by evidence", claim.Value)
	}
	return types.ClaimUncertain, ""
}

// partiallyPresent reports whether any substantial word of an entity
// phrase appears in the corpus. A partial match is ambiguous rather
// than failed: the evidence may name the same party differently.
func partiallyPresent(corpus, phrase string) bool {
	for _, w := range strings.Fields(phrase) {
		if len(w) >= 4 && containsWord(corpus, w) {
			return true
		}
	}
	return false
}

// extractCorpusNumbers builds the set of normalized numeric/date tokens
// present in the evidence.
func extractCorpusNumbers(corpus string) map[string]bool {
	numbers := make(map[string]bool)
	for _, tok := range numericRe.FindAllString(corpus, -1) {
		numbers[normalizeNumber(tok)] = true
	}
	return numbers
}
