package evidence

import "strings"

const defaultAuthority = 0.5

// Built-in domain authority scores; a configured table overlays these.
var builtinAuthority = map[string]float64{
	"reuters.com":    0.95,
	"apnews.com":     0.95,
	"bbc.com":        0.9,
	"bbc.co.uk":      0.9,
	"nature.com":     0.95,
	"science.org":    0.95,
	"who.int":        0.9,
	"un.org":         0.9,
	"wikipedia.org":  0.75,
	"nytimes.com":    0.85,
	"theguardian.com": 0.85,
	"economist.com":  0.85,
	"arxiv.org":      0.8,
}

// Source types assigned by ClassifySource.
const (
	SourceGovernment = "government"
	SourceAcademic   = "academic"
	SourceNews       = "news"
	SourceBlog       = "blog"
	SourceSocial     = "social"
	SourceGeneral    = "general"
)

var socialDomains = map[string]bool{
	"twitter.com": true, "x.com": true, "facebook.com": true,
	"instagram.com": true, "tiktok.com": true, "reddit.com": true,
}

var blogHosts = []string{"blogspot.", "medium.com", "substack.com", "wordpress.", "tumblr.com"}

// Scorer computes per-domain authority from a configurable table layered
// over built-in defaults, adjusted by source type.
type Scorer struct {
	table map[string]float64
}

// NewScorer creates a Scorer. The overrides table wins over built-ins.
func NewScorer(overrides map[string]float64) *Scorer {
	table := make(map[string]float64, len(builtinAuthority)+len(overrides))
	for k, v := range builtinAuthority {
		table[k] = v
	}
	for k, v := range overrides {
		table[strings.ToLower(k)] = clamp01(v)
	}
	return &Scorer{table: table}
}

// Authority returns the domain's score in [0,1].
func (s *Scorer) Authority(domain string) float64 {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	if score, ok := s.table[domain]; ok {
		return score
	}
	// Walk up the registrable suffixes so subdomains inherit the table entry.
	parts := strings.Split(domain, ".")
	for i := 1; i < len(parts)-1; i++ {
		if score, ok := s.table[strings.Join(parts[i:], ".")]; ok {
			return score
		}
	}

	switch ClassifySource(domain) {
	case SourceGovernment, SourceAcademic:
		return 0.85
	case SourceBlog:
		return 0.35
	case SourceSocial:
		return 0.25
	default:
		return defaultAuthority
	}
}

// ClassifySource buckets a domain by its likely publisher class.
func ClassifySource(domain string) string {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	if socialDomains[domain] {
		return SourceSocial
	}
	for _, h := range blogHosts {
		if strings.Contains(domain, h) {
			return SourceBlog
		}
	}
	switch {
	case strings.HasSuffix(domain, ".gov") || strings.Contains(domain, ".gov."):
		return SourceGovernment
	case strings.HasSuffix(domain, ".edu") || strings.HasSuffix(domain, ".ac.uk"):
		return SourceAcademic
	case strings.HasSuffix(domain, ".org") || strings.Contains(domain, "news"):
		return SourceNews
	default:
		return SourceGeneral
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
