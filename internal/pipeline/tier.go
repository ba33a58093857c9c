// Package pipeline implements the per-entity execution flow: a tier
// pipeline that sequences generate -> verify -> conditional retry for
// one summary tier, and an entity pipeline that runs evidence gathering
// once, the three tier pipelines in order, and the persistence call.
// All failures below this layer are converted to data; nothing here
// panics past the entity boundary.
package pipeline

import (
	"context"

	"secbrief/internal/generator"
	"secbrief/internal/logging"
	"secbrief/internal/types"
)

// State is the tier pipeline's explicit state. Transitions:
//
//	Generating -> Verifying            always, once text is produced
//	Verifying  -> Passed               verification passed (terminal)
//	Verifying  -> Retrying             failed and retries remain
//	Verifying  -> Exhausted            failed and budget spent (terminal)
//	Retrying   -> Generating           immediately, with corrections
type State string

const (
	StateGenerating State = "generating"
	StateVerifying  State = "verifying"
	StatePassed     State = "passed"
	StateRetrying   State = "retrying"
	StateExhausted  State = "exhausted"
)

// ErrorClaim is the synthetic claim recorded when a generator or
// verifier call fails outright (timeout, provider error). Such failures
// consume a retry attempt instead of aborting the entity.
const ErrorClaim = "ERROR"

// TierGenerator produces tier text. Satisfied by *generator.Generator.
type TierGenerator interface {
	Generate(ctx context.Context, req generator.Request) (text string, wordCount int, err error)
}

// ClaimVerifier checks tier text against evidence. Satisfied by
// *verify.Verifier.
type ClaimVerifier interface {
	Verify(ctx context.Context, text string, bundle *types.EvidenceBundle) (types.VerificationOutcome, error)
}

// TierPipeline runs the bounded generate/verify/retry loop for a single
// tier. It owns its TierResult exclusively; sibling tiers and other
// entities never touch it.
type TierPipeline struct {
	gen        TierGenerator
	verifier   ClaimVerifier
	maxRetries int
}

// NewTierPipeline creates a tier pipeline with the given retry budget.
func NewTierPipeline(gen TierGenerator, verifier ClaimVerifier, maxRetries int) *TierPipeline {
	return &TierPipeline{
		gen:        gen,
		verifier:   verifier,
		maxRetries: maxRetries,
	}
}

// Run drives the state machine to a terminal state and returns the tier
// result. On exhaustion the last generated text and its failing outcome
// are kept as-is: a failed-but-present summary beats no summary, and
// storage sees the failure through the verification status.
func (p *TierPipeline) Run(ctx context.Context, bundle *types.EvidenceBundle, tier types.Tier, prior map[types.Tier]string) *types.TierResult {
	result := &types.TierResult{Tier: tier}
	var corrections []types.FailedClaim

	state := StateGenerating
	for {
		switch state {
		case StateGenerating:
			text, count, err := p.gen.Generate(ctx, generator.Request{
				Evidence:    bundle,
				Tier:        tier,
				Corrections: corrections,
				PriorTiers:  prior,
			})
			if err != nil {
				logging.PipelineWarn("tier %s generation failed for %s: %v", tier, bundle.EntityID, err)
				result.Verification = syntheticErrorOutcome(err)
				state = p.afterFailedVerification(result, &corrections)
				continue
			}
			result.Text = text
			result.WordCount = count
			state = StateVerifying

		case StateVerifying:
			outcome, err := p.verifier.Verify(ctx, result.Text, bundle)
			if err != nil {
				logging.PipelineWarn("tier %s verification failed for %s: %v", tier, bundle.EntityID, err)
				result.Verification = syntheticErrorOutcome(err)
				state = p.afterFailedVerification(result, &corrections)
				continue
			}
			// Retry replaces the previous outcome, never merges.
			result.Verification = outcome
			if outcome.Status == types.VerificationPassed {
				state = StatePassed
			} else {
				state = p.afterFailedVerification(result, &corrections)
			}

		case StateRetrying:
			state = StateGenerating

		case StatePassed, StateExhausted:
			logging.Pipeline("tier %s for %s terminal: state=%s retries=%d rate=%.2f",
				tier, bundle.EntityID, state, result.Retries, result.Verification.PassRate)
			return result
		}
	}
}

// afterFailedVerification decides between Retrying and Exhausted. The
// next attempt's corrections are the failed claims of the outcome that
// triggered the retry; a retry never carries an empty corrections list,
// so a failure driven purely by uncertain claims still gives the
// generator something to act on.
func (p *TierPipeline) afterFailedVerification(result *types.TierResult, corrections *[]types.FailedClaim) State {
	if result.Retries < p.maxRetries {
		result.Retries++
		corr := append([]types.FailedClaim(nil), result.Verification.FailedClaims...)
		if len(corr) == 0 {
			corr = []types.FailedClaim{{
				Claim:       "overall summary",
				Discrepancy: "too many statements could not be confirmed against the evidence; restate using only facts it contains",
			}}
		}
		*corrections = corr
		return StateRetrying
	}
	return StateExhausted
}

// syntheticErrorOutcome converts a transport/provider failure into a
// failed verification outcome so it flows through the same retry path.
func syntheticErrorOutcome(err error) types.VerificationOutcome {
	return types.VerificationOutcome{
		PassRate: 0,
		Status:   types.VerificationFailed,
		Failed:   1,
		FailedClaims: []types.FailedClaim{
			{Claim: ErrorClaim, Discrepancy: err.Error()},
		},
	}
}
