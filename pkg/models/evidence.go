package models

import "time"

// Evidence acquisition methods.
const (
	MethodLive         = "live"
	MethodCache        = "cache"
	MethodVectorRecall = "vector_recall"
)

// EvidenceItem is one cited source. CitationIdx is 1-based and stable within
// a debate once assigned.
type EvidenceItem struct {
	CitationIdx int       `json:"citation_idx"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title,omitempty"`
	Snippet     string    `json:"snippet"`
	Authority   float64   `json:"authority"`
	SourceType  string    `json:"source_type"`
	Method      string    `json:"method"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// EvidenceBundle is the ordered set of EvidenceItems referenced by citation
// indices within a turn or verdict.
type EvidenceBundle struct {
	Items []EvidenceItem `json:"items"`
}

// Add appends an item, assigning the next citation index, and returns it.
func (b *EvidenceBundle) Add(item EvidenceItem) EvidenceItem {
	item.CitationIdx = len(b.Items) + 1
	b.Items = append(b.Items, item)
	return item
}

// ByIndex returns the item with the given 1-based citation index.
func (b *EvidenceBundle) ByIndex(idx int) (EvidenceItem, bool) {
	if idx < 1 || idx > len(b.Items) {
		return EvidenceItem{}, false
	}
	return b.Items[idx-1], true
}

// Len returns the number of items in the bundle.
func (b *EvidenceBundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Items)
}
