// Package search embeds queries, translates tool-level filters into
// vector-store predicates, and shapes ranked hits into the text blocks
// the MCP tools and the debug CLI return.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lexserve/internal/documents"
	"lexserve/internal/vectorstore"
)

// Store is the subset of *vectorstore.Store the search service uses.
type Store interface {
	SemanticSearch(ctx context.Context, collection string, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.SearchHit, error)
	GetByID(ctx context.Context, collection, id string) (vectorstore.SearchHit, bool, error)
	ListCollections(ctx context.Context) ([]vectorstore.CollectionInfo, error)
}

// Embedder is the subset of embedder.Embedder the search service uses.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes result limits and shaping.
type Config struct {
	DefaultLimit  int
	MaxLimit      int
	SnippetChars  int     // per-hit character ceiling before truncation
	HintThreshold float64 // minimum score for the full-document hint
	HintMaxHits   int     // maximum hit count for the full-document hint
}

func (c Config) withDefaults() Config {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 50
	}
	if c.SnippetChars <= 0 {
		c.SnippetChars = 2000
	}
	if c.HintThreshold <= 0 {
		c.HintThreshold = 0.4
	}
	if c.HintMaxHits <= 0 {
		c.HintMaxHits = 3
	}
	return c
}

// Service answers semantic-search requests against the stored chunks.
type Service struct {
	store Store
	embed Embedder
	cfg   Config
}

func New(store Store, embed Embedder, cfg Config) *Service {
	return &Service{store: store, embed: embed, cfg: cfg.withDefaults()}
}

// OpinionFilters narrows a court-opinion search.
type OpinionFilters struct {
	OpinionType      string
	AuthoringJustice string
	DateFrom         time.Time
	DateTo           time.Time
}

// OrderFilters narrows an executive-order search.
type OrderFilters struct {
	President    string
	Agencies     []string
	PolicyTopics []string
	DateFrom     time.Time
	DateTo       time.Time
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := s.embed.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("search: got %d query vectors, want 1", len(vectors))
	}
	return vectors[0], nil
}

// SearchOpinions runs a filtered semantic search over the court-opinion
// collection and returns the shaped text block.
func (s *Service) SearchOpinions(ctx context.Context, query string, f OpinionFilters, limit int) (string, error) {
	var filter vectorstore.Filter
	if f.OpinionType != "" {
		filter.Must = append(filter.Must, vectorstore.Equals{Field: "opinion_type", Value: f.OpinionType})
	}
	if f.AuthoringJustice != "" {
		filter.Must = append(filter.Must, vectorstore.Equals{Field: "authoring_justice", Value: f.AuthoringJustice})
	}
	if !f.DateFrom.IsZero() || !f.DateTo.IsZero() {
		filter.Must = append(filter.Must, vectorstore.DateRange{Field: vectorstore.DateField, From: f.DateFrom, To: f.DateTo})
	}
	hits, err := s.search(ctx, documents.CollectionOpinions, query, filter, limit)
	if err != nil {
		return "", err
	}
	return s.render(query, hits), nil
}

// SearchOrders runs a filtered semantic search over the executive-order
// collection and returns the shaped text block.
func (s *Service) SearchOrders(ctx context.Context, query string, f OrderFilters, limit int) (string, error) {
	var filter vectorstore.Filter
	if f.President != "" {
		filter.Must = append(filter.Must, vectorstore.Equals{Field: "president", Value: f.President})
	}
	if len(f.Agencies) > 0 {
		filter.Must = append(filter.Must, vectorstore.In{Field: "agencies", Values: f.Agencies})
	}
	if len(f.PolicyTopics) > 0 {
		filter.Must = append(filter.Must, vectorstore.In{Field: "topics", Values: f.PolicyTopics})
	}
	if !f.DateFrom.IsZero() || !f.DateTo.IsZero() {
		filter.Must = append(filter.Must, vectorstore.DateRange{Field: vectorstore.DateField, From: f.DateFrom, To: f.DateTo})
	}
	hits, err := s.search(ctx, documents.CollectionOrders, query, filter, limit)
	if err != nil {
		return "", err
	}
	return s.render(query, hits), nil
}

// SearchAll searches the named document types (both when none are named)
// and merges the results into one descending-score ranking.
func (s *Service) SearchAll(ctx context.Context, query string, docTypes []string, limit int) (string, error) {
	collections := collectionsFor(docTypes)
	limit = s.clampLimit(limit)

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return "", err
	}

	var hits []vectorstore.SearchHit
	for _, col := range collections {
		colHits, err := s.store.SemanticSearch(ctx, col, vector, limit, vectorstore.Filter{})
		if err != nil {
			return "", fmt.Errorf("search: %s: %w", col, err)
		}
		hits = append(hits, colHits...)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return s.render(query, hits), nil
}

func collectionsFor(docTypes []string) []string {
	if len(docTypes) == 0 {
		return []string{documents.CollectionOpinions, documents.CollectionOrders}
	}
	var out []string
	for _, t := range docTypes {
		switch t {
		case "court_opinion", documents.CollectionOpinions, string(documents.TypeOpinion):
			out = append(out, documents.CollectionOpinions)
		case "executive_order", documents.CollectionOrders, string(documents.TypeOrder):
			out = append(out, documents.CollectionOrders)
		}
	}
	if len(out) == 0 {
		return []string{documents.CollectionOpinions, documents.CollectionOrders}
	}
	return out
}

func (s *Service) search(ctx context.Context, collection, query string, filter vectorstore.Filter, limit int) ([]vectorstore.SearchHit, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.SemanticSearch(ctx, collection, vector, s.clampLimit(limit), filter)
	if err != nil {
		return nil, fmt.Errorf("search: %s: %w", collection, err)
	}
	return hits, nil
}

// GetByID renders a single stored chunk without ranking.
func (s *Service) GetByID(ctx context.Context, collection, id string) (string, error) {
	hit, ok, err := s.store.GetByID(ctx, collection, id)
	if err != nil {
		return "", fmt.Errorf("search: get %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("search: no chunk %q in collection %q", id, collection)
	}
	return s.renderSingle(hit), nil
}

// ListCollections renders the collection inventory as a compact table.
func (s *Service) ListCollections(ctx context.Context) (string, error) {
	infos, err := s.store.ListCollections(ctx)
	if err != nil {
		return "", fmt.Errorf("search: list collections: %w", err)
	}
	return renderCollections(infos), nil
}
