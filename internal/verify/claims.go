// Package verify implements the deterministic claim verifier. Generated
// tier text is decomposed into factual claims (numeric values, dates,
// named entities, categorical assertions) and each claim is checked
// against the entity's evidence bundle. Determinism is a contract:
// identical inputs always produce identical outcomes, which keeps the
// retry loop convergent and testable.
package verify

import (
	"regexp"
	"strings"
)

// ClaimKind classifies an extracted claim.
type ClaimKind string

const (
	KindNumeric     ClaimKind = "numeric"
	KindDate        ClaimKind = "date"
	KindEntity      ClaimKind = "entity"
	KindCategorical ClaimKind = "categorical"
)

// Claim is one extractable factual assertion in generated text.
type Claim struct {
	Text  string    // the sentence the claim appears in
	Kind  ClaimKind
	Value string    // the asserted value, normalized for matching
}

var (
	// Money, percentages, and bare figures: "$100 million", "45%", "1,200".
	numericRe = regexp.MustCompile(`\$?\d[\d,]*(?:\.\d+)?%?`)
	// Four-digit years in the plausible reporting range.
	yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	// Proper-noun phrases: two or more consecutive capitalized words.
	entityRe = regexp.MustCompile(`[A-Z][A-Za-z]+(?: [A-Z][A-Za-z]+)+`)

	sentenceSplitRe = regexp.MustCompile(`[.!?]\s+|[.!?]$`)
)

// categoricalTerms is the fixed vocabulary of checkable categorical
// assertions (analyst ratings and directional statements).
var categoricalTerms = []string{
	"buy", "sell", "hold", "outperform", "underperform", "neutral",
	"overweight", "underweight",
	"increased", "decreased", "declined", "grew",
}

// normalizeNumber strips currency, grouping, and percent decoration so
// "$1,200" and "1200" compare equal.
func normalizeNumber(tok string) string {
	tok = strings.TrimPrefix(tok, "$")
	tok = strings.TrimSuffix(tok, "%")
	return strings.ReplaceAll(tok, ",", "")
}

// splitSentences breaks text into sentences for claim attribution.
func splitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	var sentences []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// ExtractClaims pulls candidate factual claims from generated text. The
// extraction order is stable (sentence order, then kind) so repeated
// runs over the same text yield the same claim list.
func ExtractClaims(text string) []Claim {
	var claims []Claim
	seen := make(map[string]bool)

	add := func(sentence string, kind ClaimKind, value string) {
		key := string(kind) + "|" + value
		if value == "" || seen[key] {
			return
		}
		seen[key] = true
		claims = append(claims, Claim{Text: sentence, Kind: kind, Value: value})
	}

	for _, sentence := range splitSentences(text) {
		// Years first so they are not re-counted as plain numerics.
		years := make(map[string]bool)
		for _, y := range yearRe.FindAllString(sentence, -1) {
			years[y] = true
			add(sentence, KindDate, y)
		}

		for _, tok := range numericRe.FindAllString(sentence, -1) {
			norm := normalizeNumber(tok)
			if years[norm] {
				continue
			}
			if norm == "" {
				continue
			}
			add(sentence, KindNumeric, norm)
		}

		for _, ent := range entityRe.FindAllString(sentence, -1) {
			add(sentence, KindEntity, strings.ToLower(ent))
		}

		lower := strings.ToLower(sentence)
		for _, term := range categoricalTerms {
			if containsWord(lower, term) {
				add(sentence, KindCategorical, term)
			}
		}
	}

	return claims
}

// containsWord reports whether the term appears as a whole word.
func containsWord(haystack, term string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], term)
		if i < 0 {
			return false
		}
		i += idx
		beforeOK := i == 0 || !isWordChar(haystack[i-1])
		after := i + len(term)
		afterOK := after >= len(haystack) || !isWordChar(haystack[after])
		if beforeOK && afterOK {
			return true
		}
		idx = i + len(term)
		if idx >= len(haystack) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
