// Package retriever routes memory queries between semantic (baseline) and
// metadata-filtered (precision) search over the vector store.
package retriever

import (
	"regexp"
	"strings"
)

// Mode is the retrieval strategy chosen for a query.
type Mode string

const (
	ModeBaseline  Mode = "baseline"
	ModePrecision Mode = "precision"
)

// Classification explains the routing decision for observability.
type Classification struct {
	Mode       Mode    `json:"mode"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`

	// role derived from a role-term trigger, if any; narrows the filter.
	role string
}

var (
	roleTerms = []struct{ term, role string }{
		{"proponent said", "proponent"},
		{"proponent argued", "proponent"},
		{"opponent said", "opponent"},
		{"opponent argued", "opponent"},
		{"moderator", "moderator"},
	}
	temporalTerms = []string{"yesterday", "earlier", "last turn", "previously", "before"}
	docTypeTerms  = []string{"ocr", "uploaded", "image", "screenshot", "document"}

	citationRe = regexp.MustCompile(`\[\d+\]`)
	// Two or more consecutive capitalized tokens past the first word: a light
	// named-entity signal without a model round-trip.
	namedEntityRe = regexp.MustCompile(`\S\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)`)
)

// Classify decides the retrieval mode for a query. Precision triggers fire
// in a fixed priority order; the reason names the first trigger.
func Classify(query string) Classification {
	lower := strings.ToLower(query)

	for _, rt := range roleTerms {
		if strings.Contains(lower, rt.term) {
			return Classification{Mode: ModePrecision, Reason: "role term: " + rt.term, Confidence: 0.9, role: rt.role}
		}
	}
	if citationRe.MatchString(query) {
		return Classification{Mode: ModePrecision, Reason: "citation reference", Confidence: 0.9}
	}
	for _, term := range temporalTerms {
		if strings.Contains(lower, term) {
			return Classification{Mode: ModePrecision, Reason: "temporal qualifier: " + term, Confidence: 0.8}
		}
	}
	for _, term := range docTypeTerms {
		if containsWord(lower, term) {
			return Classification{Mode: ModePrecision, Reason: "document-type marker: " + term, Confidence: 0.8}
		}
	}
	if namedEntityRe.MatchString(query) {
		return Classification{Mode: ModePrecision, Reason: "named entity", Confidence: 0.6}
	}
	return Classification{Mode: ModeBaseline, Reason: "no precision trigger", Confidence: 0.5}
}

func containsWord(haystack, word string) bool {
	for _, field := range strings.FieldsFunc(haystack, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if field == word {
			return true
		}
	}
	return false
}
