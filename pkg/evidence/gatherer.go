package evidence

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/models"
)

const (
	defaultMaxCandidates = 6
	defaultWorkers       = 4
)

// URLLookup serves a URL through the cache→fetch→summarize line.
// memory.Manager satisfies it.
type URLLookup interface {
	LookupURL(ctx context.Context, rawURL string) (*memory.WebContent, string, error)
}

// Gatherer fans a topic out to candidate URLs and ranks the summaries.
type Gatherer struct {
	backend       SearchBackend
	lookup        URLLookup
	scorer        *Scorer
	maxCandidates int
	workers       int
}

// Options configure a Gatherer.
type Options struct {
	MaxCandidates int
	Workers       int
}

// New creates a Gatherer.
func New(backend SearchBackend, lookup URLLookup, scorer *Scorer, opts Options) *Gatherer {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaultMaxCandidates
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if scorer == nil {
		scorer = NewScorer(nil)
	}
	return &Gatherer{
		backend:       backend,
		lookup:        lookup,
		scorer:        scorer,
		maxCandidates: opts.MaxCandidates,
		workers:       opts.Workers,
	}
}

// Gather produces up to max ranked evidence items for the topic. Per-URL
// failures are logged and skipped; an empty bundle is a valid outcome.
func (g *Gatherer) Gather(ctx context.Context, topic string, max int) (*models.EvidenceBundle, error) {
	if max <= 0 {
		max = g.maxCandidates
	}
	candidates, err := g.backend.Search(ctx, topic, g.maxCandidates)
	if err != nil {
		slog.Warn("Evidence search backend failed", "topic", topic, "error", err)
		return &models.EvidenceBundle{}, nil
	}

	type scored struct {
		item  models.EvidenceItem
		score float64
		order int
	}
	var (
		mu      sync.Mutex
		results []scored
	)

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.workers)
	for i, candidate := range candidates {
		grp.Go(func() error {
			content, method, lookupErr := g.lookup.LookupURL(grpCtx, candidate)
			if lookupErr != nil {
				slog.Warn("Evidence URL skipped", "url", candidate, "error", lookupErr)
				return nil
			}
			domain := hostOf(content.URL)
			item := models.EvidenceItem{
				URL:        content.URL,
				Domain:     domain,
				Title:      content.Title,
				Snippet:    content.Summary,
				Authority:  g.scorer.Authority(domain),
				SourceType: ClassifySource(domain),
				Method:     method,
				FetchedAt:  content.FetchedAt,
			}
			mu.Lock()
			results = append(results, scored{
				item:  item,
				score: item.Authority * semanticMatch(topic, content.Summary),
				order: i,
			})
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()
	if ctx.Err() != nil {
		return &models.EvidenceBundle{}, ctx.Err()
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].order < results[j].order
	})

	bundle := &models.EvidenceBundle{}
	for _, r := range results {
		if bundle.Len() == max {
			break
		}
		bundle.Add(r.item)
	}
	return bundle, nil
}

// semanticMatch measures topical fit between the topic and a summary as
// unigram overlap weighted toward the topic's terms.
func semanticMatch(topic, summary string) float64 {
	topicTokens := tokenSet(topic)
	if len(topicTokens) == 0 {
		return 0.5
	}
	summaryTokens := tokenSet(summary)
	hit := 0
	for tok := range topicTokens {
		if summaryTokens[tok] {
			hit++
		}
	}
	return 0.2 + 0.8*float64(hit)/float64(len(topicTokens))
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, `.,;:!?"'()[]{}`)
		if len(tok) > 2 {
			out[tok] = true
		}
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
