// Package memory assembles per-turn prompt context from short-term
// conversation, long-term vector recall, and live web content, and feeds
// successful web summaries back into the vector store.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/retriever"
	"github.com/parley-ai/parley/pkg/summarize"
	"github.com/parley-ai/parley/pkg/urlcache"
	"github.com/parley-ai/parley/pkg/vectorstore"
	"github.com/parley-ai/parley/pkg/webfetch"
)

const (
	// FormatConversational uses compact section headers.
	FormatConversational = "conversational"
	// FormatDebate uses explicit role-labelled headers.
	FormatDebate = "debate"

	defaultShortTermLimit = 8
	snippetLen            = 400
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// Fetcher retrieves a URL's readable text.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*webfetch.Result, error)
}

// Summarizer compresses text into a bounded summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (summarize.Summary, error)
}

// BuildInput are the ingredients of one composite context payload.
type BuildInput struct {
	SystemPrompt string
	CurrentTask  string
	Query        string
	ShortTerm    []models.ChatTurn // oldest first
	UseLongTerm  bool
	UseShortTerm bool
	EnableWebRAG bool
	FormatStyle  string
	SessionID    string
	DebateID     string
	Role         models.Role
}

// Manager builds structured context payloads and owns the learning loop.
type Manager struct {
	retriever  *retriever.Retriever
	store      vectorstore.Store
	cache      *urlcache.Cache
	fetcher    Fetcher
	summarizer Summarizer

	shortTermLimit int
}

// Options configure a Manager.
type Options struct {
	ShortTermLimit int
}

// New creates a Manager. cache, fetcher, and summarizer may be nil when web
// RAG is never enabled.
func New(rt *retriever.Retriever, store vectorstore.Store, cache *urlcache.Cache, fetcher Fetcher, summarizer Summarizer, opts Options) *Manager {
	if opts.ShortTermLimit <= 0 {
		opts.ShortTermLimit = defaultShortTermLimit
	}
	return &Manager{
		retriever:      rt,
		store:          store,
		cache:          cache,
		fetcher:        fetcher,
		summarizer:     summarizer,
		shortTermLimit: opts.ShortTermLimit,
	}
}

// BuildContext assembles the composite prompt for one turn. The returned
// bundle maps every citation index appearing in the payload to its evidence
// item; sections with no content are omitted entirely.
func (m *Manager) BuildContext(ctx context.Context, in BuildInput) (string, *models.EvidenceBundle, error) {
	if ctx.Err() != nil {
		return "", nil, ctx.Err()
	}
	var b strings.Builder
	bundle := &models.EvidenceBundle{}

	if in.SystemPrompt != "" {
		b.WriteString(m.header(in, "SYSTEM"))
		b.WriteString(in.SystemPrompt)
		b.WriteString("\n\n")
	}

	if in.UseShortTerm && len(in.ShortTerm) > 0 {
		turns := in.ShortTerm
		if len(turns) > m.shortTermLimit {
			turns = turns[len(turns)-m.shortTermLimit:]
		}
		b.WriteString(m.header(in, "RECENT CONVERSATION"))
		for _, turn := range turns {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	if in.UseLongTerm && m.retriever != nil {
		m.appendRetrieved(ctx, &b, in, bundle)
	}

	if in.EnableWebRAG {
		if rawURL := urlRe.FindString(in.Query); rawURL != "" {
			m.appendLiveWeb(ctx, &b, in, bundle, rawURL)
		}
	}

	if in.CurrentTask != "" {
		b.WriteString(m.header(in, "USER QUESTION"))
		b.WriteString(in.CurrentTask)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n"), bundle, nil
}

// appendRetrieved adds the RETRIEVED EVIDENCE section. Retrieval failure is
// soft: the turn proceeds with a smaller context.
func (m *Manager) appendRetrieved(ctx context.Context, b *strings.Builder, in BuildInput, bundle *models.EvidenceBundle) {
	res, err := m.retriever.Retrieve(ctx, in.Query, in.SessionID)
	if err != nil {
		slog.Warn("Long-term retrieval failed, continuing without it", "error", err)
		return
	}
	if len(res.Records) == 0 {
		return
	}
	b.WriteString(m.header(in, "RETRIEVED EVIDENCE"))
	for _, rec := range res.Records {
		src, _ := rec.Metadata[vectorstore.MetaSource].(string)
		item := bundle.Add(models.EvidenceItem{
			URL:        src,
			Domain:     hostOf(src),
			Snippet:    truncate(rec.Text, snippetLen),
			Authority:  0.5,
			SourceType: fmt.Sprintf("%v", rec.Metadata[vectorstore.MetaType]),
			Method:     models.MethodVectorRecall,
			FetchedAt:  time.Now().UTC(),
		})
		fmt.Fprintf(b, "[%d] %s\n", item.CitationIdx, truncate(rec.Text, snippetLen))
	}
	b.WriteString("\n")
}

// appendLiveWeb runs the cache→fetch→summarize line for a URL found in the
// query, cites the summary, and persists it as web memory (the learning
// loop). Every failure short of context cancellation is soft.
func (m *Manager) appendLiveWeb(ctx context.Context, b *strings.Builder, in BuildInput, bundle *models.EvidenceBundle, rawURL string) {
	content, method, err := m.LookupURL(ctx, rawURL)
	if err != nil {
		slog.Warn("Live web content unavailable", "url", rawURL, "error", err)
		return
	}

	item := bundle.Add(models.EvidenceItem{
		URL:        content.URL,
		Domain:     hostOf(content.URL),
		Title:      content.Title,
		Snippet:    truncate(content.Summary, snippetLen),
		Authority:  0.5,
		SourceType: "web",
		Method:     method,
		FetchedAt:  content.FetchedAt,
	})
	b.WriteString(m.header(in, "LIVE WEB CONTENT"))
	fmt.Fprintf(b, "[%d] %s\n%s\n\n", item.CitationIdx, content.URL, content.Summary)

	if !content.SummaryUnavailable {
		md := map[string]any{
			vectorstore.MetaType:      vectorstore.TypeWebMemory,
			vectorstore.MetaSource:    content.URL,
			vectorstore.MetaSessionID: in.SessionID,
		}
		if in.Query != "" {
			md[vectorstore.MetaTopic] = truncate(in.Query, 200)
		}
		if _, err := m.store.Add(ctx, content.Summary, md, true); err != nil {
			slog.Warn("Learning-loop store write failed", "url", content.URL, "error", err)
		}
	}
}

// WebContent is the product of one URL lookup.
type WebContent struct {
	URL                string
	Title              string
	Summary            string
	RawText            string
	FetchedAt          time.Time
	SummaryUnavailable bool
}

// LookupURL serves a URL through the cache, falling back to a live fetch and
// summarization on miss. The cache is updated on successful live fetches.
func (m *Manager) LookupURL(ctx context.Context, rawURL string) (*WebContent, string, error) {
	canon, err := urlcache.Canonicalize(rawURL)
	if err != nil {
		return nil, "", err
	}
	now := time.Now()

	if m.cache != nil {
		if entry := m.cache.Get(canon, now); entry != nil {
			return &WebContent{
				URL:       canon,
				Summary:   entry.Summary,
				RawText:   entry.RawText,
				FetchedAt: entry.CreatedAt,
			}, models.MethodCache, nil
		}
	}
	if m.fetcher == nil || m.summarizer == nil {
		return nil, "", fmt.Errorf("no fetcher configured for %s", canon)
	}

	res, err := m.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", canon, err)
	}
	sum, err := m.summarizer.Summarize(ctx, res.RawText)
	if err != nil {
		return nil, "", fmt.Errorf("summarize %s: %w", canon, err)
	}

	if m.cache != nil && !sum.Unavailable && ctx.Err() == nil {
		if err := m.cache.Put(canon, sum.Text, res.RawText, now); err != nil {
			slog.Warn("URL cache write failed", "url", canon, "error", err)
		}
	}
	return &WebContent{
		URL:                canon,
		Title:              res.Title,
		Summary:            sum.Text,
		RawText:            res.RawText,
		FetchedAt:          res.FetchedAt,
		SummaryUnavailable: sum.Unavailable,
	}, models.MethodLive, nil
}

// PersistTurn stores a completed turn for long-term recall.
func (m *Manager) PersistTurn(ctx context.Context, debateID string, role models.Role, content, sessionID, topic string) (string, error) {
	recordType := vectorstore.TypeDebateTurn
	switch role {
	case models.RoleProponent, models.RoleOpponent, models.RoleModerator,
		models.RoleReversedProponent, models.RoleReversedOpponent:
		recordType = vectorstore.TypeRoleStatement
	}
	md := map[string]any{
		vectorstore.MetaType:      recordType,
		vectorstore.MetaRole:      string(role),
		vectorstore.MetaDebateID:  debateID,
		vectorstore.MetaSessionID: sessionID,
	}
	if topic != "" {
		md[vectorstore.MetaTopic] = truncate(topic, 200)
	}
	return m.store.Add(ctx, content, md, true)
}

func (m *Manager) header(in BuildInput, section string) string {
	if in.FormatStyle == FormatDebate {
		if in.Role != "" {
			return fmt.Sprintf("=== %s [%s] ===\n", section, strings.ToUpper(string(in.Role)))
		}
		return fmt.Sprintf("=== %s ===\n", section)
	}
	return "## " + section + "\n"
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
