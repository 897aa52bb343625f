// Package evidence turns a debate topic into a ranked, citation-indexed
// bundle of web evidence.
package evidence

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// SearchBackend maps a topic to candidate URLs.
type SearchBackend interface {
	Search(ctx context.Context, topic string, n int) ([]string, error)
}

// StaticBackend serves a fixed candidate list, for tests and offline runs.
type StaticBackend struct {
	URLs []string
}

func (s *StaticBackend) Search(_ context.Context, _ string, n int) ([]string, error) {
	if n > len(s.URLs) {
		n = len(s.URLs)
	}
	return s.URLs[:n], nil
}

// DuckDuckGoBackend scrapes the HTML search endpoint. No API key required;
// result quality is acceptable for candidate generation.
type DuckDuckGoBackend struct {
	Client    *http.Client
	UserAgent string
}

const ddgEndpoint = "https://html.duckduckgo.com/html/"

var ddgResultRe = regexp.MustCompile(`<a[^>]+class="result__a"[^>]+href="([^"]+)"`)

func (d *DuckDuckGoBackend) Search(ctx context.Context, topic string, n int) ([]string, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ddgEndpoint+"?q="+url.QueryEscape(topic), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	buf := make([]byte, 512*1024)
	total := 0
	for total < len(buf) {
		read, readErr := resp.Body.Read(buf[total:])
		total += read
		if readErr != nil {
			break
		}
	}

	var urls []string
	seen := map[string]bool{}
	for _, m := range ddgResultRe.FindAllStringSubmatch(string(buf[:total]), -1) {
		u := decodeDDGRedirect(m[1])
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
		if len(urls) == n {
			break
		}
	}
	return urls, nil
}

// decodeDDGRedirect unwraps the uddg redirect parameter the HTML endpoint
// wraps results in.
func decodeDDGRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}
