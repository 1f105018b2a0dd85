// Package pipeline coordinates end-to-end document ingestion: discovery,
// claiming, fetching, chunking, enrichment, embedding and upsert, with
// resumability and duplicate detection backed by the progress store and
// the vector store's own idempotent writes.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"lexserve/internal/documents"
	"lexserve/internal/embedder"
	"lexserve/internal/fetch"
	"lexserve/internal/observability"
	"lexserve/internal/progress"
	"lexserve/internal/vectorstore"
)

// Stage timeouts, per the concurrency model's per-call deadlines.
const (
	FetchTimeout  = 30 * time.Second
	EmbedTimeout  = 60 * time.Second
	EnrichTimeout = 60 * time.Second
	UpsertTimeout = 30 * time.Second
)

// chunker is the subset of *chunker.Chunker the pipeline depends on.
type chunker interface {
	Chunk(doc documents.Document, cfg documents.ChunkingConfig) ([]documents.Chunk, error)
}

// enricher is the subset of *enricher.Enricher the pipeline depends on.
type enricher interface {
	Enrich(ctx context.Context, doc documents.Document) (documents.Metadata, error)
}

// vectorStore is the subset of *vectorstore.Store the pipeline depends on.
type vectorStore interface {
	BatchUpsert(ctx context.Context, collection string, ids []string, vectors [][]float32, payloads []documents.ChunkPayload, progress func(int)) error
	ChunkExists(ctx context.Context, collection, chunkID string) (bool, error)
}

// progressStore is the subset of *progress.Store the pipeline depends on.
type progressStore interface {
	Discover(ctx context.Context, documentID, docType string) error
	Claim(ctx context.Context, documentID, workerID string) (bool, error)
	Advance(ctx context.Context, documentID string, status progress.Status) error
	Complete(ctx context.Context, documentID, contentHash string, duration time.Duration) error
	Fail(ctx context.Context, documentID string, cause error) error
	Get(ctx context.Context, documentID string) (Record, bool, error)
	StartRun(ctx context.Context, runID, docType string, total int) error
	FinishRun(ctx context.Context, runID string, done, failed int) error
}

// Record aliases the progress store's row type so fakes in tests only
// need this package.
type Record = progress.Record

// Config tunes the worker pool and batching behavior.
type Config struct {
	WorkerPoolSize int
	BatchSize      int
	WorkerID       string
	DryRun         bool
}

func (c Config) withDefaults() Config {
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.WorkerID == "" {
		c.WorkerID = "lexserve"
	}
	return c
}

// Pipeline ingests documents of one type from one fetcher into one
// vector-store collection, tracking progress in one progress store.
type Pipeline struct {
	DocType    documents.Type
	Collection string
	Chunking   documents.ChunkingConfig

	Fetcher  fetch.Fetcher
	Chunker  chunker
	Enricher enricher
	Embedder embedder.Embedder
	Store    vectorStore
	Progress progressStore
	Metrics  Metrics

	Config Config
}

// preparedDoc is a document that has cleared fetch/chunk/enrich and is
// ready to contribute its chunks to a batch upsert.
type preparedDoc struct {
	id      string
	chunks  []documents.Chunk
	hash    string
	started time.Time
	start   int // offset into the flushed batch's flat arrays
	end     int
}

// Run discovers every document published inside [start, end], then
// processes each through the full pipeline in waves bounded by
// Config.BatchSize, each wave using a worker pool of
// Config.WorkerPoolSize. It returns once every discovered document has
// reached a terminal status, or early on a coordinator-level error.
func (p *Pipeline) Run(ctx context.Context, start, end time.Time) (Summary, error) {
	cfg := p.Config.withDefaults()

	ids, err := p.Fetcher.ListIDs(ctx, start, end)
	if err != nil {
		return Summary{}, fmt.Errorf("pipeline: list ids: %w", err)
	}

	mon := newMonitor(len(ids), p.Metrics, string(p.DocType))
	if cfg.DryRun {
		log.Info().Str("doc_type", string(p.DocType)).Int("discovered", len(ids)).Msg("dry run: discovery only, nothing written")
		return mon.summary(), nil
	}

	for _, id := range ids {
		if err := p.Progress.Discover(ctx, id, string(p.DocType)); err != nil {
			return Summary{}, fmt.Errorf("pipeline: discover %s: %w", id, err)
		}
	}

	runID := uuid.NewString()
	if err := p.Progress.StartRun(ctx, runID, string(p.DocType), len(ids)); err != nil {
		return Summary{}, fmt.Errorf("pipeline: record run start: %w", err)
	}

	var runErr error
	for batchStart := 0; batchStart < len(ids); batchStart += cfg.BatchSize {
		if ctx.Err() != nil {
			// Shutdown: stop claiming new documents; in-flight waves have
			// already completed or flushed.
			break
		}
		batchEnd := batchStart + cfg.BatchSize
		if batchEnd > len(ids) {
			batchEnd = len(ids)
		}
		if runErr = p.runWave(ctx, ids[batchStart:batchEnd], cfg, mon); runErr != nil {
			break
		}
	}

	sum := mon.summary()
	if err := p.Progress.FinishRun(ctx, runID, sum.Completed, sum.Failed); err != nil && runErr == nil {
		runErr = fmt.Errorf("pipeline: record run finish: %w", err)
	}
	return sum, runErr
}

// runWave processes up to BatchSize documents concurrently (bounded by
// WorkerPoolSize), then flushes every chunk they produced in a single
// vector-store batch, giving backpressure (never more than BatchSize
// documents' chunks held in memory) and batched writes.
func (p *Pipeline) runWave(ctx context.Context, ids []string, cfg Config, mon *monitor) error {
	var g errgroup.Group
	g.SetLimit(cfg.WorkerPoolSize)

	prepared := make([]*preparedDoc, len(ids))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			prep, skip, err := p.processDocument(ctx, id, cfg)
			switch {
			case err != nil:
				observability.LoggerWithTrace(ctx).Warn().Str("document_id", id).Err(err).Msg("document failed")
				if failErr := p.Progress.Fail(ctx, id, err); failErr != nil {
					return fmt.Errorf("pipeline: record failure for %s: %w", id, failErr)
				}
				mon.recordFailure()
			case skip:
				mon.recordSkip()
			default:
				prepared[i] = prep
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return p.flush(ctx, prepared, mon)
}

// processDocument runs the fetch -> chunk -> enrich stages for one
// document and reports whether it should be skipped (already completed
// or already present in the vector store) rather than embedded.
func (p *Pipeline) processDocument(ctx context.Context, id string, cfg Config) (*preparedDoc, bool, error) {
	started := time.Now()

	if rec, ok, err := p.Progress.Get(ctx, id); err != nil {
		return nil, false, fmt.Errorf("check progress: %w", err)
	} else if ok && rec.Status == progress.StatusCompleted {
		return nil, true, nil
	}

	// Duplicate detection against the vector store: the first chunk id
	// is a pure function of the document id, so this check needs no
	// fetch at all.
	firstChunkID := vectorstore.ChunkID(id, 0)
	if exists, err := p.Store.ChunkExists(ctx, p.Collection, firstChunkID); err != nil {
		return nil, false, fmt.Errorf("check vector store: %w", err)
	} else if exists {
		if err := p.Progress.Complete(ctx, id, "", 0); err != nil {
			return nil, false, fmt.Errorf("mark duplicate complete: %w", err)
		}
		return nil, true, nil
	}

	claimed, err := p.Progress.Claim(ctx, id, cfg.WorkerID)
	if err != nil {
		return nil, false, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return nil, true, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, FetchTimeout)
	doc, err := p.Fetcher.Fetch(fetchCtx, id)
	cancel()
	if err != nil {
		return nil, false, fmt.Errorf("fetch: %w", err)
	}
	if err := p.Progress.Advance(ctx, id, progress.StatusFetched); err != nil {
		return nil, false, fmt.Errorf("advance fetched: %w", err)
	}

	chunks, err := p.Chunker.Chunk(doc, p.Chunking)
	if err != nil {
		return nil, false, fmt.Errorf("chunk: %w", err)
	}
	if err := p.Progress.Advance(ctx, id, progress.StatusChunked); err != nil {
		return nil, false, fmt.Errorf("advance chunked: %w", err)
	}

	if len(chunks) == 0 {
		// An empty document is a completion with zero chunks written, not
		// a failure.
		if err := p.Progress.Complete(ctx, id, contentHash(doc.Text), time.Since(started)); err != nil {
			return nil, false, fmt.Errorf("complete empty document: %w", err)
		}
		return nil, true, nil
	}

	enrichCtx, cancel := context.WithTimeout(ctx, EnrichTimeout)
	enriched, err := p.Enricher.Enrich(enrichCtx, doc)
	cancel()
	if err != nil {
		return nil, false, fmt.Errorf("enrich: %w", err)
	}
	merged := mergeMetadata(doc.Metadata, enriched)
	for i := range chunks {
		chunks[i].Payload.Metadata = merged
		if bm, ok := merged.(documents.OpinionMetadata); ok {
			chunks[i].Payload.Citation = bm.Citation
		}
	}
	if err := p.Progress.Advance(ctx, id, progress.StatusEnriched); err != nil {
		return nil, false, fmt.Errorf("advance enriched: %w", err)
	}

	return &preparedDoc{id: id, chunks: chunks, hash: contentHash(doc.Text), started: started}, false, nil
}

// flush embeds and upserts every chunk produced by this wave in a single
// vector-store batch, then marks each document completed or failed
// depending on how many of its chunks the store actually accepted.
func (p *Pipeline) flush(ctx context.Context, prepared []*preparedDoc, mon *monitor) error {
	var docs []*preparedDoc
	var texts []string
	var ids []string
	var payloads []documents.ChunkPayload

	for _, doc := range prepared {
		if doc == nil {
			continue
		}
		doc.start = len(ids)
		for _, c := range doc.chunks {
			ids = append(ids, vectorstore.ChunkID(doc.id, c.Index))
			texts = append(texts, c.Text)
			payloads = append(payloads, c.Payload)
		}
		doc.end = len(ids)
		docs = append(docs, doc)
	}
	if len(texts) == 0 {
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	vectors, embedErr := p.Embedder.EmbedBatch(embedCtx, texts)
	cancel()

	// A document with any zero-vector chunk is failed rather than
	// upserted, so a later run re-embeds it instead of the duplicate
	// check skipping a half-useless document forever.
	badDocs := make(map[string]bool)
	if embedErr != nil {
		var pf *embedder.PartialFailure
		if errors.As(embedErr, &pf) {
			for _, idx := range pf.Indices {
				for _, doc := range docs {
					if idx >= doc.start && idx < doc.end {
						badDocs[doc.id] = true
					}
				}
			}
			log.Warn().Err(embedErr).Int("documents_affected", len(badDocs)).Msg("partial embedding failure")
		} else {
			return p.failAll(ctx, docs, mon, fmt.Errorf("embed batch: %w", embedErr))
		}
	}

	var upsertIDs []string
	var upsertVectors [][]float32
	var upsertPayloads []documents.ChunkPayload
	var healthy []*preparedDoc
	for _, doc := range docs {
		if badDocs[doc.id] {
			if err := p.Progress.Fail(ctx, doc.id, errors.New("chunk embedding failed after retries")); err != nil {
				return fmt.Errorf("fail %s: %w", doc.id, err)
			}
			mon.recordFailure()
			continue
		}
		if err := p.Progress.Advance(ctx, doc.id, progress.StatusEmbedded); err != nil {
			return fmt.Errorf("advance embedded %s: %w", doc.id, err)
		}
		first := len(upsertIDs)
		upsertIDs = append(upsertIDs, ids[doc.start:doc.end]...)
		upsertVectors = append(upsertVectors, vectors[doc.start:doc.end]...)
		upsertPayloads = append(upsertPayloads, payloads[doc.start:doc.end]...)
		doc.start, doc.end = first, len(upsertIDs)
		healthy = append(healthy, doc)
	}
	if len(upsertIDs) == 0 {
		return nil
	}

	var succeeded int
	upsertCtx, cancel := context.WithTimeout(ctx, UpsertTimeout)
	upsertErr := p.Store.BatchUpsert(upsertCtx, p.Collection, upsertIDs, upsertVectors, upsertPayloads, func(n int) { succeeded += n })
	cancel()

	for _, doc := range healthy {
		if doc.end <= succeeded {
			if err := p.Progress.Complete(ctx, doc.id, doc.hash, time.Since(doc.started)); err != nil {
				return fmt.Errorf("complete %s: %w", doc.id, err)
			}
			mon.recordCompletion(time.Since(doc.started))
			continue
		}
		cause := upsertErr
		if cause == nil {
			cause = errors.New("upsert did not cover all chunks")
		}
		if err := p.Progress.Fail(ctx, doc.id, cause); err != nil {
			return fmt.Errorf("fail %s: %w", doc.id, err)
		}
		mon.recordFailure()
	}
	return nil
}

func (p *Pipeline) failAll(ctx context.Context, docs []*preparedDoc, mon *monitor, cause error) error {
	for _, doc := range docs {
		if err := p.Progress.Fail(ctx, doc.id, cause); err != nil {
			return fmt.Errorf("fail %s: %w", doc.id, err)
		}
		mon.recordFailure()
	}
	return nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
