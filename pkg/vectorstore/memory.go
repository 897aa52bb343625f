package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a brute-force in-memory Store. It serves tests and development
// runs without a qdrant endpoint; semantics match the qdrant store, including
// post-return visibility of Add.
type Memory struct {
	mu       sync.RWMutex
	embedder Embedder
	points   map[string]*memoryPoint
}

type memoryPoint struct {
	vector   []float32
	text     string
	metadata map[string]any
}

// NewMemory creates an empty in-memory store.
func NewMemory(embedder Embedder) *Memory {
	return &Memory{embedder: embedder, points: make(map[string]*memoryPoint)}
}

// Add embeds and stores the text. Dedup matches on content hash plus source.
func (m *Memory) Add(ctx context.Context, text string, metadata map[string]any, dedup bool) (string, error) {
	md := stampMetadata(text, metadata, time.Now())

	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed for add: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dedup {
		for id, p := range m.points {
			if p.metadata[MetaHash] != md[MetaHash] {
				continue
			}
			if src, ok := md[MetaSource]; ok && src != "" && p.metadata[MetaSource] != src {
				continue
			}
			return id, nil
		}
	}

	id := uuid.NewString()
	m.points[id] = &memoryPoint{vector: vec, text: text, metadata: md}
	return id, nil
}

// Search returns the k best cosine matches passing the filter.
func (m *Memory) Search(ctx context.Context, query string, k int, filter Filter) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed for search: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.points))
	for id, p := range m.points {
		if !matches(p.metadata, filter) {
			continue
		}
		records = append(records, Record{
			ID:       id,
			Score:    CosineSimilarity(vec, p.vector),
			Text:     p.text,
			Metadata: cloneMetadata(p.metadata),
		})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Score > records[j].Score })
	if len(records) > k {
		records = records[:k]
	}
	return records, nil
}

// Delete removes one record.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.points[id]; !ok {
		return ErrNotFound
	}
	delete(m.points, id)
	return nil
}

// DeleteWhere removes all records matching the filter.
func (m *Memory) DeleteWhere(_ context.Context, filter Filter) error {
	if len(filter) == 0 {
		return fmt.Errorf("delete_where requires a non-empty filter")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if matches(p.metadata, filter) {
			delete(m.points, id)
		}
	}
	return nil
}

// Count returns the number of stored records.
func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

// Health always succeeds for the in-memory store.
func (m *Memory) Health(context.Context) error { return nil }

func matches(metadata map[string]any, filter Filter) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func cloneMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
