package generator

import (
	"fmt"
	"strings"

	"secbrief/internal/config"
	"secbrief/internal/types"
)

// tierRole maps each tier to the register the summary should be
// written in.
func tierRole(tier types.Tier) string {
	switch tier {
	case types.TierHook:
		return "a one-to-two sentence hook that makes an investor want to read more"
	case types.TierMedium:
		return "a compact paragraph covering the key financials and analyst view"
	case types.TierExpanded:
		return "a full research-note style summary covering financials, analyst sentiment, and market activity"
	default:
		return "a summary"
	}
}

func buildSystemPrompt(tier types.Tier, r config.WordRange) string {
	return fmt.Sprintf(`You are a financial writing assistant producing securities summaries.
Write %s.
Target length: %d to %d words.
Use ONLY facts present in the provided evidence. Never invent figures, dates, or names.
If the evidence is insufficient, say so plainly instead of speculating.
Return only the summary text, no headings or preamble.`, tierRole(tier), r.Min, r.Max)
}

func buildUserPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Security\n%s (%s)\n\n", req.Evidence.EntityName, req.Evidence.EntityID))

	sb.WriteString("## Evidence\n")
	docs := req.Evidence.Documents()
	if len(docs) == 0 || req.Evidence.AllFailed() {
		sb.WriteString("No evidence could be retrieved for this security. ")
		sb.WriteString("Produce a brief, honest summary stating that insufficient data is available.\n")
	} else {
		for _, d := range docs {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", d.Source, d.Content))
		}
	}
	sb.WriteString("\n")

	// Earlier tier text gives later tiers something to stay consistent
	// with (the medium tier may condense or extend the hook).
	if len(req.PriorTiers) > 0 {
		sb.WriteString("## Previously Generated Tiers\n")
		for _, tier := range types.AllTiers() {
			if text, ok := req.PriorTiers[tier]; ok && text != "" {
				sb.WriteString(fmt.Sprintf("### %s\n%s\n", tier, text))
			}
		}
		sb.WriteString("\n")
	}

	// Corrections are passed verbatim; the generator must avoid every
	// listed error.
	if len(req.Corrections) > 0 {
		sb.WriteString("## Errors In The Previous Attempt - You MUST Avoid Every One\n")
		for i, c := range req.Corrections {
			sb.WriteString(fmt.Sprintf("%d. Claim: %s\n   Problem: %s\n", i+1, c.Claim, c.Discrepancy))
		}
		sb.WriteString("\nRewrite the summary so none of these errors appear.\n")
	}

	return sb.String()
}

func buildSelfCorrectionPrompt(tier types.Tier, r config.WordRange, draft string, count int) string {
	verb := "Condense"
	if count < r.Min {
		verb = "Expand"
	}
	return fmt.Sprintf(`%s the following %s summary to between %d and %d words.
Keep every factual statement unchanged; do not add new facts.
Return only the revised summary.

%s`, verb, tier, r.Min, r.Max, draft)
}
