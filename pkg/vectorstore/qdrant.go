package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const healthCacheWindow = 5 * time.Second

// indexedFields carry keyword payload indexes for filtered search.
var indexedFields = []string{MetaType, MetaSource, MetaRole, MetaDebateID, MetaSessionID, MetaHash}

// QdrantConfig connects a Qdrant store.
type QdrantConfig struct {
	Addr       string // host:port of the gRPC endpoint
	APIKey     string
	UseTLS     bool
	Collection string
}

// Qdrant is the Store implementation backed by a qdrant collection.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder

	healthGroup singleflight.Group
	healthErr   atomic.Value // *error
	healthAt    atomic.Int64 // unix nanos of last probe
}

// NewQdrant connects to qdrant over gRPC.
func NewQdrant(cfg QdrantConfig, embedder Embedder) (*Qdrant, error) {
	host, port, err := splitAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant at %s: %w", cfg.Addr, err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "parley_memory"
	}
	return &Qdrant{client: client, collection: collection, embedder: embedder}, nil
}

func splitAddr(addr string) (string, int, error) {
	host := addr
	port := 6334
	if i := lastColon(addr); i >= 0 {
		host = addr[:i]
		if _, err := fmt.Sscanf(addr[i+1:], "%d", &port); err != nil {
			return "", 0, fmt.Errorf("invalid qdrant address %q", addr)
		}
	}
	if host == "" {
		host = "localhost"
	}
	return host, port, nil
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// EnsureCollection creates the collection and its payload indexes if absent.
// CreateFieldIndex is idempotent on qdrant, so indexes added later backfill
// on restart.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return classify("check collection", err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.embedder.Dimension()),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return classify("create collection", err)
		}
		slog.Info("Vector collection created", "collection", q.collection, "dim", q.embedder.Dimension())
	}

	keyword := qdrant.FieldType_FieldTypeKeyword
	for _, field := range indexedFields {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keyword,
		}); err != nil {
			return classify(fmt.Sprintf("ensure index on %q", field), err)
		}
	}
	return nil
}

// Add embeds the text and upserts it. With dedup, a record with the same
// normalized-content hash and source is not duplicated; the existing id is
// returned. The upsert waits for commit so post-return searches see it.
func (q *Qdrant) Add(ctx context.Context, text string, metadata map[string]any, dedup bool) (string, error) {
	md := stampMetadata(text, metadata, time.Now())

	if dedup {
		if id, found, err := q.findDuplicate(ctx, md); err != nil {
			return "", err
		} else if found {
			return id, nil
		}
	}

	vec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed for add: %w", err)
	}

	id := uuid.NewString()
	payload := map[string]any{"text": text}
	for k, v := range md {
		payload[k] = v
	}
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return "", classify("upsert", err)
	}
	return id, nil
}

// findDuplicate scrolls for a point with the same hash (and source, when
// present).
func (q *Qdrant) findDuplicate(ctx context.Context, md map[string]any) (string, bool, error) {
	must := []*qdrant.Condition{qdrant.NewMatch(MetaHash, md[MetaHash].(string))}
	if src, ok := md[MetaSource].(string); ok && src != "" {
		must = append(must, qdrant.NewMatch(MetaSource, src))
	}
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return "", false, classify("dedup scroll", err)
	}
	if len(points) == 0 {
		return "", false, nil
	}
	return points[0].Id.GetUuid(), true, nil
}

// Search embeds the query and returns the k best matches by cosine score.
func (q *Qdrant) Search(ctx context.Context, query string, k int, filter Filter) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed for search: %w", err)
	}

	limit := uint64(k)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Filter:         buildFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify("query", err)
	}

	records := make([]Record, 0, len(scored))
	for _, sp := range scored {
		records = append(records, Record{
			ID:       sp.Id.GetUuid(),
			Score:    sp.Score,
			Text:     payloadText(sp.Payload),
			Metadata: payloadMetadata(sp.Payload),
		})
	}
	return records, nil
}

// Delete removes one point by id.
func (q *Qdrant) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewID(id)}},
			},
		},
	})
	if err != nil {
		return classify("delete", err)
	}
	return nil
}

// DeleteWhere removes all points matching the filter.
func (q *Qdrant) DeleteWhere(ctx context.Context, filter Filter) error {
	qf := buildFilter(filter)
	if qf == nil {
		return fmt.Errorf("delete_where requires a non-empty filter")
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qf},
		},
	})
	if err != nil {
		return classify("delete_where", err)
	}
	return nil
}

// Count returns the number of points in the collection.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, classify("count", err)
	}
	return int(n), nil
}

// Health probes qdrant, caching the result for a short window and collapsing
// concurrent probes through singleflight.
func (q *Qdrant) Health(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < healthCacheWindow {
		return q.loadHealthErr()
	}
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		// Probes run on their own context: singleflight reuses the first
		// caller's context, and its cancellation must not poison waiters.
		probeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(probeCtx)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		q.healthErr.Store(&err)
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	if err, ok := result.(error); ok {
		return err
	}
	return nil
}

func (q *Qdrant) loadHealthErr() error {
	if p, ok := q.healthErr.Load().(*error); ok && p != nil {
		return *p
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (q *Qdrant) Close() error { return q.client.Close() }

func buildFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for key, val := range filter {
		must = append(must, qdrant.NewMatch(key, fmt.Sprintf("%v", val)))
	}
	return &qdrant.Filter{Must: must}
}

func payloadText(payload map[string]*qdrant.Value) string {
	if v, ok := payload["text"]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadMetadata(payload map[string]*qdrant.Value) map[string]any {
	md := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "text" {
			continue
		}
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			md[k] = kind.StringValue
		case *qdrant.Value_DoubleValue:
			md[k] = kind.DoubleValue
		case *qdrant.Value_IntegerValue:
			md[k] = kind.IntegerValue
		case *qdrant.Value_BoolValue:
			md[k] = kind.BoolValue
		}
	}
	return md
}

// classify maps qdrant/gRPC failures onto the package's sentinel errors.
func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
