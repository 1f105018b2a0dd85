// Package app is the composition root: it assembles the fetchers,
// chunker, enricher, embedder, vector store, search service and progress
// stores from configuration, so the CLI subcommands share one wiring and
// tests can swap any collaborator for a fake.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"lexserve/internal/chunker"
	"lexserve/internal/config"
	"lexserve/internal/documents"
	"lexserve/internal/embedder"
	"lexserve/internal/enricher"
	"lexserve/internal/fetch"
	"lexserve/internal/observability"
	"lexserve/internal/pipeline"
	"lexserve/internal/progress"
	"lexserve/internal/search"
	"lexserve/internal/vectorstore"
)

// VectorStore is the full adapter surface the subcommands use.
type VectorStore interface {
	pipelineStore
	search.Store
	EnsureCollection(ctx context.Context, collection string, dimension int, metric string) error
	DeleteCollection(ctx context.Context, collection string) error
	Sample(ctx context.Context, collection string, limit int) ([]vectorstore.SearchHit, error)
	Close() error
}

type pipelineStore interface {
	BatchUpsert(ctx context.Context, collection string, ids []string, vectors [][]float32, payloads []documents.ChunkPayload, progress func(int)) error
	ChunkExists(ctx context.Context, collection, chunkID string) (bool, error)
}

// Enricher is the document-level metadata extractor the pipeline uses.
type Enricher interface {
	Enrich(ctx context.Context, doc documents.Document) (documents.Metadata, error)
}

// Application owns every long-lived collaborator.
type Application struct {
	Config config.Config

	Chunker  *chunker.Chunker
	Embedder embedder.Embedder
	Enricher Enricher
	Opinions fetch.Fetcher
	Orders   fetch.Fetcher
	Store    VectorStore
	Search   *search.Service
}

// Option swaps a collaborator, primarily so tests can inject fakes.
type Option func(*Application)

func WithEmbedder(e embedder.Embedder) Option   { return func(a *Application) { a.Embedder = e } }
func WithEnricher(e Enricher) Option            { return func(a *Application) { a.Enricher = e } }
func WithStore(s VectorStore) Option            { return func(a *Application) { a.Store = s } }
func WithOpinionFetcher(f fetch.Fetcher) Option { return func(a *Application) { a.Opinions = f } }
func WithOrderFetcher(f fetch.Fetcher) Option   { return func(a *Application) { a.Orders = f } }

// New wires an Application from configuration. Collaborators provided
// via options are kept; everything else is constructed here.
func New(cfg config.Config, opts ...Option) (*Application, error) {
	a := &Application{Config: cfg}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	if a.Chunker == nil {
		if a.Chunker, err = chunker.New("cl100k_base"); err != nil {
			return nil, err
		}
	}
	if a.Embedder == nil {
		a.Embedder = embedder.New(embedder.Config{
			BaseURL:   cfg.EmbeddingBaseURL,
			Path:      cfg.EmbeddingPath,
			Model:     cfg.EmbeddingModel,
			APIKey:    cfg.OpenAIAPIKey,
			APIHeader: "Authorization",
			Dimension: cfg.EmbeddingDim,
			BatchSize: cfg.EmbeddingBatch,
		}, observability.NewHTTPClient(nil))
	}
	if a.Enricher == nil {
		a.Enricher = enricher.New(cfg.AnthropicAPIKey, cfg.EnricherModel)
	}
	// Both upstream APIs ask callers to identify themselves.
	fetchHeaders := map[string]string{"User-Agent": "lexserve/1.0"}
	if a.Opinions == nil {
		a.Opinions = fetch.NewCourtListenerFetcher(cfg.CourtListenerBaseURL, cfg.CourtListenerAPIToken,
			observability.WithHeaders(observability.NewHTTPClient(nil), fetchHeaders))
	}
	if a.Orders == nil {
		a.Orders = fetch.NewFederalRegisterFetcher(cfg.FederalRegisterBaseURL,
			observability.WithHeaders(observability.NewHTTPClient(nil), fetchHeaders))
	}
	if a.Store == nil {
		store, err := vectorstore.Dial(cfg.VectorStoreDSN())
		if err != nil {
			return nil, err
		}
		a.Store = store
	}
	a.Search = search.New(a.Store, a.Embedder, search.Config{
		DefaultLimit:  cfg.MCP.DefaultSearchLimit,
		MaxLimit:      cfg.MCP.MaxSearchLimit,
		SnippetChars:  cfg.MCP.SnippetMaxChars,
		HintThreshold: cfg.MCP.FullDocHintThreshold,
		HintMaxHits:   cfg.MCP.FullDocHintMaxHits,
	})
	return a, nil
}

// Close releases the vector-store connection.
func (a *Application) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// OpenProgress opens (creating if needed) the per-type progress store
// under the configured directory, honoring the stale-claim threshold.
func (a *Application) OpenProgress(docType documents.Type, overridePath string) (*progress.Store, error) {
	path := overridePath
	if path == "" {
		path = filepath.Join(a.Config.ProgressDBDir, string(docType)+".db")
	}
	store, err := progress.Open(path)
	if err != nil {
		return nil, err
	}
	return store.WithStaleClaimAfter(a.Config.StaleClaimAfter), nil
}

// FetcherFor maps a document type to its fetcher.
func (a *Application) FetcherFor(docType documents.Type) (fetch.Fetcher, error) {
	switch docType {
	case documents.TypeOpinion:
		return a.Opinions, nil
	case documents.TypeOrder:
		return a.Orders, nil
	default:
		return nil, fmt.Errorf("app: no fetcher for document type %q", docType)
	}
}

// ChunkingFor maps a document type to its configured chunking budget.
func (a *Application) ChunkingFor(docType documents.Type) documents.ChunkingConfig {
	var c config.ChunkingConfig
	if docType == documents.TypeOrder {
		c = a.Config.OrderChunking
	} else {
		c = a.Config.OpinionChunking
	}
	return documents.ChunkingConfig{
		MinTokens:    c.MinTokens,
		TargetTokens: c.TargetTokens,
		MaxTokens:    c.MaxTokens,
		OverlapRatio: c.OverlapRatio,
	}
}

// NewPipeline assembles an ingestion pipeline for one document type.
func (a *Application) NewPipeline(docType documents.Type, prog *progress.Store, pcfg pipeline.Config) (*pipeline.Pipeline, error) {
	fetcher, err := a.FetcherFor(docType)
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		DocType:    docType,
		Collection: documents.CollectionFor(docType),
		Chunking:   a.ChunkingFor(docType),
		Fetcher:    fetcher,
		Chunker:    a.Chunker,
		Enricher:   a.Enricher,
		Embedder:   a.Embedder,
		Store:      a.Store,
		Progress:   prog,
		Metrics:    observability.NewOtelMetrics("lexserve.pipeline"),
		Config:     pcfg,
	}, nil
}
