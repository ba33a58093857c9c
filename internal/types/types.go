// Package types defines the shared data model for the secbrief fleet:
// entity tasks, evidence bundles, tier results, verification outcomes,
// and the fleet summary. These types flow strictly downward through the
// orchestrator, entity pipeline, and tier pipeline; none of them carry
// behavior beyond read-only accessors, so concurrently running entity
// pipelines never share mutable state through them.
package types

import (
	"sort"
	"strings"
	"time"
)

// Tier identifies one of the three escalating-length summary variants
// generated for each security.
type Tier string

const (
	TierHook     Tier = "hook"     // 1-2 sentence attention hook
	TierMedium   Tier = "medium"   // short paragraph
	TierExpanded Tier = "expanded" // full research-note style summary
)

// AllTiers returns the tiers in generation order. Later tiers may reuse
// earlier tier text as context, so the order is contractual.
func AllTiers() []Tier {
	return []Tier{TierHook, TierMedium, TierExpanded}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierHook, TierMedium, TierExpanded:
		return true
	}
	return false
}

// SourceType tags an evidence source.
type SourceType string

const (
	SourceFilings SourceType = "filings"  // regulatory filings
	SourceAnalyst SourceType = "analyst"  // analyst reports
	SourceMarket  SourceType = "market"   // market data events
	SourceNews    SourceType = "news"     // news wire
)

// FetchStatus describes the outcome of one source fetch.
type FetchStatus string

const (
	FetchSuccess FetchStatus = "success"
	FetchPartial FetchStatus = "partial"
	FetchFailed  FetchStatus = "failed"
)

// Document is one retrieved piece of source material.
type Document struct {
	Source    SourceType `json:"source"`
	Timestamp time.Time  `json:"timestamp"`
	Content   string     `json:"content"`
}

// SourceResult holds the documents and status for one evidence source.
type SourceResult struct {
	Source    SourceType  `json:"source"`
	Status    FetchStatus `json:"status"`
	Documents []Document  `json:"documents"`
	Error     string      `json:"error,omitempty"`
}

// EntityTask identifies one unit of fleet work. Immutable once created.
type EntityTask struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	RunID    string `json:"run_id"`
}

// EvidenceBundle is the per-entity collection of source results used for
// both generation and verification. It is assembled once by the evidence
// gatherer and must never be mutated afterwards; all three tier pipelines
// read it, and the read-only contract must hold even if they are ever
// parallelized.
type EvidenceBundle struct {
	EntityID   string         `json:"entity_id"`
	EntityName string         `json:"entity_name"`
	GatheredAt time.Time      `json:"gathered_at"`
	Sources    []SourceResult `json:"sources"`
}

// AllFailed reports whether every source fetch failed. The entity
// pipeline still proceeds in that case; generators produce a best-effort
// insufficient-data summary.
func (b *EvidenceBundle) AllFailed() bool {
	if len(b.Sources) == 0 {
		return true
	}
	for _, s := range b.Sources {
		if s.Status != FetchFailed {
			return false
		}
	}
	return true
}

// Documents returns every document across all sources, ordered by source
// type then timestamp so downstream consumers see a stable view.
func (b *EvidenceBundle) Documents() []Document {
	var docs []Document
	for _, s := range b.Sources {
		docs = append(docs, s.Documents...)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Source != docs[j].Source {
			return docs[i].Source < docs[j].Source
		}
		return docs[i].Timestamp.Before(docs[j].Timestamp)
	})
	return docs
}

// CombinedText concatenates all document content. Used by the claim
// verifier as the corpus claims are checked against.
func (b *EvidenceBundle) CombinedText() string {
	var sb strings.Builder
	for _, d := range b.Documents() {
		sb.WriteString(d.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ClaimStatus classifies one verified claim.
type ClaimStatus string

const (
	ClaimVerified  ClaimStatus = "verified"
	ClaimFailed    ClaimStatus = "failed"
	ClaimUncertain ClaimStatus = "uncertain"
)

// FailedClaim pairs a failed claim with the discrepancy found against
// the evidence. Failed claims become the corrections input for the next
// generation attempt.
type FailedClaim struct {
	Claim       string `json:"claim"`
	Discrepancy string `json:"discrepancy"`
}

// VerificationStatus is the overall pass/fail of one verification attempt.
type VerificationStatus string

const (
	VerificationPassed VerificationStatus = "passed"
	VerificationFailed VerificationStatus = "failed"
)

// VerificationOutcome is produced fresh on every verification attempt;
// a retry replaces the previous outcome, never merges with it.
type VerificationOutcome struct {
	PassRate     float64            `json:"pass_rate"`
	Status       VerificationStatus `json:"status"`
	FailedClaims []FailedClaim      `json:"failed_claims,omitempty"`
	Verified     int                `json:"verified"`
	Failed       int                `json:"failed"`
	Uncertain    int                `json:"uncertain"`
}

// TierResult is the terminal state of one tier pipeline: the last
// generated text, its word count, the final verification outcome, and
// how many retries were consumed. Mutated only by its own tier pipeline.
type TierResult struct {
	Tier         Tier                `json:"tier"`
	Text         string              `json:"text"`
	WordCount    int                 `json:"word_count"`
	Verification VerificationOutcome `json:"verification"`
	Retries      int                 `json:"retries"`
}

// Passed reports whether the tier's final verification passed.
func (r *TierResult) Passed() bool {
	return r.Verification.Status == VerificationPassed
}

// StorageStatus describes the persistence result for an entity.
type StorageStatus string

const (
	StorageStored StorageStatus = "stored"
	StorageFailed StorageStatus = "failed"
)

// EntityOutcome is the terminal aggregate for one entity task. Exactly
// one outcome is produced per submitted task, even when the pipeline
// fails internally.
type EntityOutcome struct {
	Task     EntityTask    `json:"task"`
	Tiers    []TierResult  `json:"tiers"`
	Storage  StorageStatus `json:"storage"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TierResult returns the result for the named tier, or nil.
func (o *EntityOutcome) TierResult(tier Tier) *TierResult {
	for i := range o.Tiers {
		if o.Tiers[i].Tier == tier {
			return &o.Tiers[i]
		}
	}
	return nil
}

// Succeeded reports whether the entity both completed its pipeline and
// persisted cleanly.
func (o *EntityOutcome) Succeeded() bool {
	return o.Storage == StorageStored && o.Err == ""
}

// TierStats aggregates one tier across a whole fleet run.
type TierStats struct {
	AvgWordCount float64 `json:"avg_word_count"`
	TotalRetries int     `json:"total_retries"`
	PassRate     float64 `json:"pass_rate"` // fraction of entities whose tier passed
}

// RunStatus is the operator-visible completion status of a fleet run.
type RunStatus string

const (
	RunAllSucceeded    RunStatus = "all_succeeded"
	RunPartialFailures RunStatus = "partial_failures"
	RunSetupError      RunStatus = "setup_error"
)

// FleetSummary aggregates all entity outcomes of one run. It is computed
// exactly once, by a commutative fold, after every entity finishes or is
// cancelled.
type FleetSummary struct {
	RunID     string             `json:"run_id"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	TierStats map[Tier]TierStats `json:"tier_stats"`
	Elapsed   time.Duration      `json:"elapsed"`
	Status    RunStatus          `json:"status"`
}
