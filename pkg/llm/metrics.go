package llm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// firstTokenWindow bounds the latency sample buffer per provider. Old
// samples are overwritten ring-style.
const firstTokenWindow = 256

// ProviderMetrics is a read-only snapshot of one provider's counters.
type ProviderMetrics struct {
	Calls           int64          `json:"calls"`
	Successes       int64          `json:"successes"`
	FailuresByKind  map[Kind]int64 `json:"failures_by_kind"`
	FirstTokenP50MS int64          `json:"first_token_ms_p50"`
	FirstTokenP95MS int64          `json:"first_token_ms_p95"`
	TokensIn        int64          `json:"total_tokens_in"`
	TokensOut       int64          `json:"total_tokens_out"`
}

type providerCounters struct {
	calls     atomic.Int64
	successes atomic.Int64
	tokensIn  atomic.Int64
	tokensOut atomic.Int64

	mu         sync.Mutex
	failures   map[Kind]int64
	firstToken []int64
	ftCursor   int
}

// Metrics aggregates per-provider call statistics. Writers use atomic
// increments; Snapshot returns a deep copy so readers never observe
// partial updates.
type Metrics struct {
	mu        sync.Mutex
	providers map[string]*providerCounters
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{providers: make(map[string]*providerCounters)}
}

func (m *Metrics) counters(provider string) *providerCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.providers[provider]
	if !ok {
		c = &providerCounters{failures: make(map[Kind]int64)}
		m.providers[provider] = c
	}
	return c
}

// RecordCall counts one attempt against the provider.
func (m *Metrics) RecordCall(provider string) {
	m.counters(provider).calls.Add(1)
}

// RecordSuccess counts a successful completion with its token usage.
func (m *Metrics) RecordSuccess(provider string, tokensIn, tokensOut int) {
	c := m.counters(provider)
	c.successes.Add(1)
	c.tokensIn.Add(int64(tokensIn))
	c.tokensOut.Add(int64(tokensOut))
}

// RecordFailure counts a classified failure.
func (m *Metrics) RecordFailure(provider string, kind Kind) {
	c := m.counters(provider)
	c.mu.Lock()
	c.failures[kind]++
	c.mu.Unlock()
}

// RecordFirstToken stores a first-token latency sample.
func (m *Metrics) RecordFirstToken(provider string, ms int64) {
	c := m.counters(provider)
	c.mu.Lock()
	if len(c.firstToken) < firstTokenWindow {
		c.firstToken = append(c.firstToken, ms)
	} else {
		c.firstToken[c.ftCursor] = ms
		c.ftCursor = (c.ftCursor + 1) % firstTokenWindow
	}
	c.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all provider metrics.
func (m *Metrics) Snapshot() map[string]ProviderMetrics {
	m.mu.Lock()
	names := make([]string, 0, len(m.providers))
	refs := make([]*providerCounters, 0, len(m.providers))
	for name, c := range m.providers {
		names = append(names, name)
		refs = append(refs, c)
	}
	m.mu.Unlock()

	out := make(map[string]ProviderMetrics, len(names))
	for i, c := range refs {
		c.mu.Lock()
		failures := make(map[Kind]int64, len(c.failures))
		for k, v := range c.failures {
			failures[k] = v
		}
		samples := make([]int64, len(c.firstToken))
		copy(samples, c.firstToken)
		c.mu.Unlock()

		p50, p95 := percentiles(samples)
		out[names[i]] = ProviderMetrics{
			Calls:           c.calls.Load(),
			Successes:       c.successes.Load(),
			FailuresByKind:  failures,
			FirstTokenP50MS: p50,
			FirstTokenP95MS: p95,
			TokensIn:        c.tokensIn.Load(),
			TokensOut:       c.tokensOut.Load(),
		}
	}
	return out
}

func percentiles(samples []int64) (p50, p95 int64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	p50 = samples[len(samples)/2]
	idx := (len(samples) * 95) / 100
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	p95 = samples[idx]
	return p50, p95
}
