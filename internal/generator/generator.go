// Package generator produces one summary tier's text from gathered
// evidence via the text-generation provider. On retry it receives the
// prior verification's failed claims and passes them verbatim into the
// prompt; producing text that repeats a listed error is a contract
// violation, not a quality nit.
package generator

import (
	"context"
	"strings"
	"time"

	"secbrief/internal/config"
	"secbrief/internal/logging"
	"secbrief/internal/provider"
	"secbrief/internal/types"
)

// Request carries everything one generation attempt needs.
type Request struct {
	Evidence    *types.EvidenceBundle
	Tier        types.Tier
	Corrections []types.FailedClaim   // nil on the first attempt
	PriorTiers  map[types.Tier]string // earlier tier text, reusable as context
}

// Generator turns evidence into tier text.
type Generator struct {
	client      provider.Client
	ranges      map[types.Tier]config.WordRange
	callTimeout time.Duration
}

// NewGenerator creates a generator bound to a provider client.
func NewGenerator(client provider.Client, ranges map[types.Tier]config.WordRange, callTimeout time.Duration) *Generator {
	return &Generator{
		client:      client,
		ranges:      ranges,
		callTimeout: callTimeout,
	}
}

// maxTokensFor sizes the completion budget to the tier's upper bound.
func (g *Generator) maxTokensFor(tier types.Tier) int {
	r := g.ranges[tier]
	// Roughly two tokens per word plus headroom.
	return r.Max*2 + 100
}

// Generate produces text and its word count for one tier. If the output
// falls outside the tier's word range, one self-correction pass asks the
// provider to expand or condense before returning; that pass is separate
// from claim-based retry and never consumes a retry attempt. Out-of-range
// text after self-correction is logged as a warning and still returned
// for verification.
func (g *Generator) Generate(ctx context.Context, req Request) (string, int, error) {
	timer := logging.StartTimer(logging.CategoryGenerate, "Generate")
	defer timer.Stop()

	opts := provider.Options{
		MaxTokens:   g.maxTokensFor(req.Tier),
		Temperature: 0.3,
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	system := buildSystemPrompt(req.Tier, g.ranges[req.Tier])
	user := buildUserPrompt(req)

	text, err := g.client.CompleteWithSystem(callCtx, system, user, opts)
	if err != nil {
		return "", 0, err
	}
	text = strings.TrimSpace(text)
	count := wordCount(text)

	r := g.ranges[req.Tier]
	if !r.Contains(count) {
		text, count, err = g.selfCorrect(ctx, req.Tier, text, count, opts)
		if err != nil {
			return "", 0, err
		}
		if !r.Contains(count) {
			// Policy violation, not an error: the text still goes to
			// verification.
			logging.GenerateWarn("tier %s text out of range after self-correction: %d words (want %d-%d)",
				req.Tier, count, r.Min, r.Max)
		}
	}

	logging.Generate("tier %s generated for %s: %d words, %d corrections applied",
		req.Tier, req.Evidence.EntityID, count, len(req.Corrections))
	return text, count, nil
}

// selfCorrect asks the provider once to expand or condense the draft
// into the tier's word range.
func (g *Generator) selfCorrect(ctx context.Context, tier types.Tier, draft string, count int, opts provider.Options) (string, int, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	prompt := buildSelfCorrectionPrompt(tier, g.ranges[tier], draft, count)
	text, err := g.client.Complete(callCtx, prompt, opts)
	if err != nil {
		return "", 0, err
	}
	text = strings.TrimSpace(text)
	return text, wordCount(text), nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
