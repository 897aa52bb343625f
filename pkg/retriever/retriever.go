package retriever

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync/atomic"

	"github.com/parley-ai/parley/pkg/vectorstore"
)

const defaultTopK = 5

// AuthorityFunc scores a source domain in [0,1]. Nil means flat 0.5.
type AuthorityFunc func(domain string) float64

// Counters is a snapshot of routing activity.
type Counters struct {
	Baseline  int64 `json:"baseline"`
	Precision int64 `json:"precision"`
	Fallbacks int64 `json:"fallbacks"`
}

// Result carries the records together with the routing decision that
// produced them.
type Result struct {
	Records        []vectorstore.Record
	Classification Classification
	FellBack       bool
}

// Retriever performs classified dual-mode search, always scoped to the
// caller's session.
type Retriever struct {
	store     vectorstore.Store
	topK      int
	authority AuthorityFunc

	baseline  atomic.Int64
	precision atomic.Int64
	fallbacks atomic.Int64
}

// Options configure a Retriever.
type Options struct {
	TopK      int
	Authority AuthorityFunc
}

// New creates a Retriever over the store.
func New(store vectorstore.Store, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	return &Retriever{store: store, topK: opts.TopK, authority: opts.Authority}
}

// Retrieve classifies the query and searches accordingly. Precision mode
// over-fetches, re-ranks by authority and role match, and falls back to
// baseline when the filtered search comes up empty.
func (r *Retriever) Retrieve(ctx context.Context, query, sessionID string) (*Result, error) {
	c := Classify(query)

	if c.Mode == ModeBaseline {
		r.baseline.Add(1)
		records, err := r.baselineSearch(ctx, query, sessionID)
		if err != nil {
			return nil, err
		}
		return &Result{Records: records, Classification: c}, nil
	}

	r.precision.Add(1)
	filter := r.deriveFilter(c, sessionID)
	records, err := r.store.Search(ctx, query, r.topK*2, filter)
	if err != nil {
		return nil, fmt.Errorf("precision search: %w", err)
	}
	if len(records) == 0 {
		r.fallbacks.Add(1)
		records, err = r.baselineSearch(ctx, query, sessionID)
		if err != nil {
			return nil, err
		}
		return &Result{Records: records, Classification: c, FellBack: true}, nil
	}

	r.rerank(records, c)
	if len(records) > r.topK {
		records = records[:r.topK]
	}
	return &Result{Records: records, Classification: c}, nil
}

// Counters returns the routing counters.
func (r *Retriever) Counters() Counters {
	return Counters{
		Baseline:  r.baseline.Load(),
		Precision: r.precision.Load(),
		Fallbacks: r.fallbacks.Load(),
	}
}

func (r *Retriever) baselineSearch(ctx context.Context, query, sessionID string) ([]vectorstore.Record, error) {
	filter := vectorstore.Filter{}
	if sessionID != "" {
		filter[vectorstore.MetaSessionID] = sessionID
	}
	records, err := r.store.Search(ctx, query, r.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("baseline search: %w", err)
	}
	return records, nil
}

// deriveFilter narrows the precision search by the trigger that fired.
func (r *Retriever) deriveFilter(c Classification, sessionID string) vectorstore.Filter {
	filter := vectorstore.Filter{}
	if sessionID != "" {
		filter[vectorstore.MetaSessionID] = sessionID
	}
	if c.role != "" {
		filter[vectorstore.MetaRole] = c.role
		filter[vectorstore.MetaType] = vectorstore.TypeRoleStatement
	}
	return filter
}

// rerank orders records by blended score: semantic score dominates, source
// authority and role agreement nudge.
func (r *Retriever) rerank(records []vectorstore.Record, c Classification) {
	blended := make(map[string]float64, len(records))
	for _, rec := range records {
		score := float64(rec.Score) * 0.7
		score += r.sourceAuthority(rec) * 0.2
		if c.role != "" && fmt.Sprintf("%v", rec.Metadata[vectorstore.MetaRole]) == c.role {
			score += 0.1
		}
		blended[rec.ID] = score
	}
	sort.SliceStable(records, func(i, j int) bool {
		return blended[records[i].ID] > blended[records[j].ID]
	})
}

func (r *Retriever) sourceAuthority(rec vectorstore.Record) float64 {
	if r.authority == nil {
		return 0.5
	}
	src, _ := rec.Metadata[vectorstore.MetaSource].(string)
	if src == "" {
		return 0.5
	}
	u, err := url.Parse(src)
	if err != nil || u.Hostname() == "" {
		return 0.5
	}
	return r.authority(u.Hostname())
}
