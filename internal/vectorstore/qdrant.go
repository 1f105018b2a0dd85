// Package vectorstore adapts the chunk/embedding pipeline to Qdrant,
// grounded on the same client wrapper pattern the originating codebase
// uses for its own vector store, extended with the collection-lifecycle
// and filtered-search operations a full ingestion/retrieval system needs.
package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"lexserve/internal/documents"
)

// PayloadIDField stores the caller-supplied chunk id inside the point
// payload, since Qdrant point ids must be UUIDs or positive integers.
const PayloadIDField = "_original_id"

// Store adapts a Qdrant collection to the operations the ingestion
// pipeline and MCP server need.
type Store struct {
	client *qdrant.Client
}

// Dial connects to Qdrant. dsn may carry an api_key query parameter, e.g.
// "http://localhost:6334?api_key=...".
func Dial(dsn string) (*Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse dsn: %w", err)
	}
	if parsed.Scheme == "file" {
		return nil, fmt.Errorf("vectorstore: embedded on-disk storage is not supported over gRPC; run a Qdrant server and set QDRANT_HOST/QDRANT_PORT")
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid port in dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		cfg.APIKey = key
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error { return s.client.Close() }

// Exists reports whether a collection is already present.
func (s *Store) Exists(ctx context.Context, collection string) (bool, error) {
	return s.client.CollectionExists(ctx, collection)
}

// EnsureCollection creates the collection if absent. If it already
// exists with a different vector dimension, that is treated as a fatal
// configuration error rather than silently mismatched.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dimension int, metric string) error {
	if dimension <= 0 {
		return fmt.Errorf("vectorstore: dimension must be > 0")
	}
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection: %w", err)
	}
	if exists {
		info, err := s.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			return fmt.Errorf("vectorstore: inspect existing collection: %w", err)
		}
		if got := existingDimension(info); got != 0 && got != uint64(dimension) {
			return fmt.Errorf("vectorstore: collection %q has dimension %d, want %d", collection, got, dimension)
		}
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distanceFor(metric),
		}),
	})
}

func existingDimension(info *qdrant.CollectionInfo) uint64 {
	if info == nil || info.Config == nil || info.Config.Params == nil {
		return 0
	}
	vp := info.Config.Params.VectorsConfig.GetParams()
	if vp == nil {
		return 0
	}
	return vp.Size
}

func distanceFor(metric string) qdrant.Distance {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "l2", "euclidean":
		return qdrant.Distance_Euclid
	case "ip", "dot":
		return qdrant.Distance_Dot
	case "manhattan":
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

// DeleteCollection drops a collection entirely.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	return s.client.DeleteCollection(ctx, collection)
}

// CollectionInfo summarizes one collection for the list_collections tool
// and the `info collections` CLI subcommand.
type CollectionInfo struct {
	Name   string
	Count  uint64
	Dim    uint64
	Metric string
}

// ListCollections returns every collection known to the server along
// with its point count, vector dimension and distance metric.
func (s *Store) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: list collections: %w", err)
	}
	out := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: inspect collection %s: %w", name, err)
		}
		var count uint64
		if info != nil && info.PointsCount != nil {
			count = *info.PointsCount
		}
		out = append(out, CollectionInfo{
			Name:   name,
			Count:  count,
			Dim:    existingDimension(info),
			Metric: metricName(info),
		})
	}
	return out, nil
}

func metricName(info *qdrant.CollectionInfo) string {
	if info == nil || info.Config == nil || info.Config.Params == nil {
		return ""
	}
	vp := info.Config.Params.VectorsConfig.GetParams()
	if vp == nil {
		return ""
	}
	switch vp.Distance {
	case qdrant.Distance_Euclid:
		return "l2"
	case qdrant.Distance_Dot:
		return "ip"
	case qdrant.Distance_Manhattan:
		return "manhattan"
	default:
		return "cosine"
	}
}

// ChunkExists reports whether a chunk with the given original id has
// already been upserted into collection, so the ingestion pipeline can
// skip re-embedding it.
func (s *Store) ChunkExists(ctx context.Context, collection, chunkID string) (bool, error) {
	_, ok, err := s.GetByID(ctx, collection, chunkID)
	return ok, err
}

func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// DateField is the numeric (epoch seconds) payload field date-range
// predicates run against; the human-readable ISO date stays in the
// metadata fields.
const DateField = "date_ts"

func payloadFor(id string, payload documents.ChunkPayload) map[string]any {
	var fields map[string]string
	var lists map[string][]string
	if payload.Metadata != nil {
		fields = payload.Metadata.Fields()
		lists = payload.Metadata.ListFields()
	}
	m := make(map[string]any, len(fields)+len(lists)+12)
	for k, v := range fields {
		m[k] = v
	}
	for k, vals := range lists {
		items := make([]any, len(vals))
		for i, v := range vals {
			items[i] = v
		}
		m[k] = items
	}
	m["doc_type"] = string(payload.DocType)
	m["title"] = payload.Title
	m["text"] = payload.Text
	m["chunk_index"] = int64(payload.ChunkIndex)
	m["token_count"] = int64(payload.TokenCount)
	m["section"] = payload.Section
	m["citation"] = payload.Citation
	m[PayloadIDField] = id

	switch payload.DocType {
	case documents.TypeOpinion:
		m["opinion_type"] = payload.Labels.OpinionType
		m["authoring_justice"] = payload.Labels.AuthoringJustice
		m["section_label"] = payload.Labels.SectionLabel
	case documents.TypeOrder:
		m["chunk_type"] = payload.Labels.ChunkType
		m["section_title"] = payload.Labels.SectionTitle
		m["subsection_label"] = payload.Labels.SubsectionLabel
	}

	if ts, ok := documentDate(fields); ok {
		m[DateField] = ts
	}
	return m
}

// documentDate derives the numeric sort/filter date from whichever ISO
// date field the document type carries.
func documentDate(fields map[string]string) (int64, bool) {
	for _, key := range []string{"decision_date", "publication_date", "signing_date"} {
		if v := fields[key]; v != "" {
			if t, err := time.Parse("2006-01-02", v); err == nil {
				return t.Unix(), true
			}
		}
	}
	return 0, false
}

// BatchUpsert writes one point per (id, vector, payload) triple. Each
// point is written atomically via its own upsert call; progress, if
// non-nil, is invoked after every successful point so the pipeline can
// report throughput without waiting for the whole batch.
func (s *Store) BatchUpsert(ctx context.Context, collection string, ids []string, vectors [][]float32, payloads []documents.ChunkPayload, progress func(int)) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("vectorstore: mismatched batch lengths: ids=%d vectors=%d payloads=%d", len(ids), len(vectors), len(payloads))
	}
	points := make([]*qdrant.PointStruct, 0, len(ids))
	for i := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(ids[i]),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payloadFor(ids[i], payloads[i])),
		})
	}
	for i, p := range points {
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         []*qdrant.PointStruct{p},
		}); err != nil {
			return fmt.Errorf("vectorstore: upsert %s: %w", ids[i], err)
		}
		if progress != nil {
			progress(1)
		}
	}
	return nil
}

// SearchHit is one ranked result from SemanticSearch.
type SearchHit struct {
	ID         string
	Score      float64
	DocType    string
	Title      string
	Text       string
	ChunkIndex int
	TokenCount int
	Section    string
	Citation   string
	Fields     map[string]string
}

// SemanticSearch runs a cosine-similarity query bounded by filter, and
// returns up to k hits ordered by descending score.
func (s *Store) SemanticSearch(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qFilter *qdrant.Filter
	if len(filter.Must) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter.Must))
		for _, p := range filter.Must {
			must = append(must, translatePredicate(p))
		}
		qFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, hitFromPayload(r.Id, float64(r.Score), r.Payload))
	}
	return hits, nil
}

// Sample returns up to limit stored chunks from a collection in scroll
// order, for the `info sample` inspection subcommand.
func (s *Store) Sample(ctx context.Context, collection string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}
	n := uint32(limit)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: scroll %s: %w", collection, err)
	}
	hits := make([]SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, hitFromPayload(p.Id, 0, p.Payload))
	}
	return hits, nil
}

// GetByID fetches a single point by its original chunk id.
func (s *Store) GetByID(ctx context.Context, collection, id string) (SearchHit, bool, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return SearchHit{}, false, fmt.Errorf("vectorstore: get %s: %w", id, err)
	}
	if len(points) == 0 {
		return SearchHit{}, false, nil
	}
	return hitFromPayload(points[0].Id, 0, points[0].Payload), true, nil
}

func hitFromPayload(pid *qdrant.PointId, score float64, payload map[string]*qdrant.Value) SearchHit {
	hit := SearchHit{Score: score, Fields: make(map[string]string)}
	for k, v := range payload {
		switch k {
		case PayloadIDField:
			hit.ID = v.GetStringValue()
		case "doc_type":
			hit.DocType = v.GetStringValue()
		case "title":
			hit.Title = v.GetStringValue()
		case "text":
			hit.Text = v.GetStringValue()
		case "chunk_index":
			hit.ChunkIndex = int(v.GetIntegerValue())
		case "token_count":
			hit.TokenCount = int(v.GetIntegerValue())
		case "section":
			hit.Section = v.GetStringValue()
		case "citation":
			hit.Citation = v.GetStringValue()
		case DateField:
			// numeric filter shadow of the ISO date; not rendered
		default:
			if lv := v.GetListValue(); lv != nil {
				var items []string
				for _, item := range lv.Values {
					items = append(items, item.GetStringValue())
				}
				hit.Fields[k] = strings.Join(items, ", ")
			} else {
				hit.Fields[k] = v.GetStringValue()
			}
		}
	}
	if hit.ID == "" && pid != nil {
		hit.ID = pid.GetUuid()
	}
	return hit
}

func translatePredicate(p Predicate) *qdrant.Condition {
	switch pr := p.(type) {
	case Equals:
		return qdrant.NewMatch(pr.Field, pr.Value)
	case In:
		return qdrant.NewMatchKeywords(pr.Field, pr.Values...)
	case DateRange:
		r := &qdrant.Range{}
		if !pr.From.IsZero() {
			gte := float64(pr.From.Unix())
			r.Gte = &gte
		}
		if !pr.To.IsZero() {
			lte := float64(pr.To.Unix())
			r.Lte = &lte
		}
		return qdrant.NewRange(pr.Field, r)
	default:
		return nil
	}
}
