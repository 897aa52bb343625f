// Package vectorstore provides approximate-nearest-neighbor search over
// embedded text with metadata filters, backed by qdrant, plus an in-memory
// implementation for tests and single-node development.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Metadata keys with reserved meaning.
const (
	MetaType      = "type"
	MetaSource    = "source"
	MetaRole      = "role"
	MetaDebateID  = "debate_id"
	MetaSessionID = "session_id"
	MetaTopic     = "topic"
	MetaTimestamp = "timestamp"
	MetaHash      = "hash"
)

// Record types stored in the collection.
const (
	TypeWebMemory     = "web_memory"
	TypeDebateTurn    = "debate_turn"
	TypeRoleStatement = "role_statement"
	TypeUserDoc       = "user_doc"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable indicates the backing engine cannot be reached.
	ErrUnavailable = errors.New("vector store unavailable")
)

// Record is one stored text with its search score and metadata.
type Record struct {
	ID       string
	Score    float32
	Text     string
	Metadata map[string]any
}

// Filter is a conjunction of metadata equality predicates.
type Filter map[string]any

// Store is the vector-store contract. Add is linearizable: once it returns,
// subsequent searches see the record. Search is snapshot-consistent.
type Store interface {
	Add(ctx context.Context, text string, metadata map[string]any, dedup bool) (string, error)
	Search(ctx context.Context, query string, k int, filter Filter) ([]Record, error)
	Delete(ctx context.Context, id string) error
	DeleteWhere(ctx context.Context, filter Filter) error
	Count(ctx context.Context) (int, error)
	Health(ctx context.Context) error
}

var hashSpaceRe = regexp.MustCompile(`\s+`)

// NormalizeHash computes the content hash used for deduplication: text is
// lowercased and whitespace-collapsed before hashing, so trivial reflows of
// the same content collide.
func NormalizeHash(text string) string {
	normalized := hashSpaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// stampMetadata fills the dedup hash and insertion timestamp. Timestamps are
// stored as RFC 3339 strings; an existing timestamp is clamped to now so a
// stored record is never dated in the future.
func stampMetadata(text string, metadata map[string]any, now time.Time) map[string]any {
	md := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		md[k] = v
	}
	md[MetaHash] = NormalizeHash(text)
	md[MetaTimestamp] = metadataTimestamp(md[MetaTimestamp], now)
	return md
}

func metadataTimestamp(existing any, now time.Time) string {
	switch ts := existing.(type) {
	case time.Time:
		if !ts.After(now) {
			return ts.UTC().Format(time.RFC3339)
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil && !parsed.After(now) {
			return ts
		}
	}
	return now.UTC().Format(time.RFC3339)
}
