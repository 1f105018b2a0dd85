package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lexserve/internal/documents"
	"lexserve/internal/embedder"
	"lexserve/internal/progress"
	"lexserve/internal/vectorstore"
)

type fakeFetcher struct {
	ids      []string
	docs     map[string]documents.Document
	failIDs  map[string]error
	fetched  map[string]int
	mu       sync.Mutex
	listErr  error
	interval time.Duration
}

func (f *fakeFetcher) ListIDs(ctx context.Context, start, end time.Time) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string) (documents.Document, error) {
	f.mu.Lock()
	if f.fetched == nil {
		f.fetched = make(map[string]int)
	}
	f.fetched[id]++
	f.mu.Unlock()
	if err := f.failIDs[id]; err != nil {
		return documents.Document{}, err
	}
	return f.docs[id], nil
}

func (f *fakeFetcher) RateLimit() time.Duration { return f.interval }

type fakeChunker struct{}

// Chunk produces one chunk per paragraph, which is enough structure for
// the pipeline to exercise batching and deterministic ids.
func (fakeChunker) Chunk(doc documents.Document, cfg documents.ChunkingConfig) ([]documents.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}
	var chunks []documents.Chunk
	for i, p := range strings.Split(doc.Text, "\n\n") {
		chunks = append(chunks, documents.Chunk{
			DocumentID: doc.ID,
			Index:      i,
			Text:       p,
			TokenCount: len(strings.Fields(p)),
			Payload:    documents.ChunkPayload{DocType: doc.Type, Text: p, ChunkIndex: i},
		})
	}
	return chunks, nil
}

type fakeEnricher struct{ err error }

func (f fakeEnricher) Enrich(ctx context.Context, doc documents.Document) (documents.Metadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return documents.OpinionMetadata{Summary: "summary of " + doc.ID}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 3 }
func (fakeEmbedder) Name() string   { return "fake" }

type fakeStore struct {
	mu       sync.Mutex
	points   map[string]documents.ChunkPayload
	upserted int
	failNext error
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string]documents.ChunkPayload)}
}

func (s *fakeStore) BatchUpsert(ctx context.Context, collection string, ids []string, vectors [][]float32, payloads []documents.ChunkPayload, progress func(int)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	for i, id := range ids {
		s.points[id] = payloads[i]
		s.upserted++
		if progress != nil {
			progress(1)
		}
	}
	return nil
}

func (s *fakeStore) ChunkExists(ctx context.Context, collection, chunkID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.points[chunkID]
	return ok, nil
}

type fakeProgress struct {
	mu      sync.Mutex
	records map[string]*progress.Record
	runs    int
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{records: make(map[string]*progress.Record)}
}

func (p *fakeProgress) Discover(ctx context.Context, id, docType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.records[id]; !ok {
		p.records[id] = &progress.Record{DocumentID: id, DocType: docType, Status: progress.StatusDiscovered}
	}
	return nil
}

func (p *fakeProgress) Claim(ctx context.Context, id, workerID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[id]
	if !ok {
		return false, nil
	}
	switch r.Status {
	case progress.StatusDiscovered, progress.StatusFailed:
		r.Status = progress.StatusClaimed
		r.ClaimedBy = workerID
		return true, nil
	default:
		return false, nil
	}
}

func (p *fakeProgress) Advance(ctx context.Context, id string, status progress.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.records[id]; ok {
		r.Status = status
	}
	return nil
}

func (p *fakeProgress) Complete(ctx context.Context, id, hash string, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[id]
	if !ok {
		r = &progress.Record{DocumentID: id}
		p.records[id] = r
	}
	r.Status = progress.StatusCompleted
	r.ContentHash = hash
	return nil
}

func (p *fakeProgress) Fail(ctx context.Context, id string, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[id]
	if !ok {
		r = &progress.Record{DocumentID: id}
		p.records[id] = r
	}
	r.Status = progress.StatusFailed
	r.Attempts++
	if cause != nil {
		r.LastError = cause.Error()
	}
	return nil
}

func (p *fakeProgress) Get(ctx context.Context, id string) (Record, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.records[id]; ok {
		return *r, true, nil
	}
	return Record{}, false, nil
}

func (p *fakeProgress) StartRun(ctx context.Context, runID, docType string, total int) error {
	p.mu.Lock()
	p.runs++
	p.mu.Unlock()
	return nil
}

func (p *fakeProgress) FinishRun(ctx context.Context, runID string, done, failed int) error {
	return nil
}

func (p *fakeProgress) status(id string) progress.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.records[id]; ok {
		return r.Status
	}
	return ""
}

func testPipeline(fetcher *fakeFetcher, store *fakeStore, prog *fakeProgress) *Pipeline {
	return &Pipeline{
		DocType:    documents.TypeOpinion,
		Collection: documents.CollectionOpinions,
		Chunking:   documents.DefaultOpinionChunking(),
		Fetcher:    fetcher,
		Chunker:    fakeChunker{},
		Enricher:   fakeEnricher{},
		Embedder:   fakeEmbedder{},
		Store:      store,
		Progress:   prog,
		Config:     Config{WorkerPoolSize: 2, BatchSize: 2},
	}
}

func docsFor(ids ...string) (*fakeFetcher, map[string]documents.Document) {
	docs := make(map[string]documents.Document, len(ids))
	for _, id := range ids {
		docs[id] = documents.Document{
			ID:       id,
			Type:     documents.TypeOpinion,
			Title:    "Case " + id,
			Text:     fmt.Sprintf("First paragraph of %s.\n\nSecond paragraph of %s.", id, id),
			Metadata: documents.OpinionMetadata{CourtListenerID: id},
		}
	}
	return &fakeFetcher{ids: ids, docs: docs}, docs
}

func TestRun_CompletesAllDocuments(t *testing.T) {
	fetcher, _ := docsFor("a", "b", "c")
	store := newFakeStore()
	prog := newFakeProgress()

	sum, err := testPipeline(fetcher, store, prog).Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 3, sum.Discovered)
	require.Equal(t, 3, sum.Completed)
	require.Zero(t, sum.Failed)
	require.Equal(t, 6, store.upserted) // two chunks per document

	for _, id := range []string{"a", "b", "c"} {
		require.Equal(t, progress.StatusCompleted, prog.status(id))
		require.Contains(t, store.points, vectorstore.ChunkID(id, 0))
		require.Contains(t, store.points, vectorstore.ChunkID(id, 1))
	}
}

func TestRun_AttachesEnrichmentToPayloads(t *testing.T) {
	fetcher, _ := docsFor("a")
	store := newFakeStore()
	prog := newFakeProgress()

	_, err := testPipeline(fetcher, store, prog).Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	payload := store.points[vectorstore.ChunkID("a", 0)]
	meta, ok := payload.Metadata.(documents.OpinionMetadata)
	require.True(t, ok)
	require.Equal(t, "summary of a", meta.Summary)
	require.Equal(t, "a", meta.CourtListenerID) // fetcher metadata survives the merge
}

func TestRun_SkipsCompletedWithoutRefetching(t *testing.T) {
	fetcher, _ := docsFor("a", "b")
	store := newFakeStore()
	prog := newFakeProgress()
	require.NoError(t, prog.Discover(context.Background(), "a", "opinion"))
	require.NoError(t, prog.Complete(context.Background(), "a", "hash", 0))

	sum, err := testPipeline(fetcher, store, prog).Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Completed)
	require.Equal(t, 1, sum.Skipped)
	require.Zero(t, fetcher.fetched["a"])
	require.Equal(t, 1, fetcher.fetched["b"])
}

func TestRun_DetectsDuplicateInVectorStore(t *testing.T) {
	fetcher, _ := docsFor("a")
	store := newFakeStore()
	store.points[vectorstore.ChunkID("a", 0)] = documents.ChunkPayload{}
	prog := newFakeProgress()

	sum, err := testPipeline(fetcher, store, prog).Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)
	require.Zero(t, fetcher.fetched["a"])
	require.Equal(t, progress.StatusCompleted, prog.status("a"))
}

func TestRun_FailureIsolatesSingleDocument(t *testing.T) {
	fetcher, _ := docsFor("a", "b", "c")
	fetcher.failIDs = map[string]error{"b": errors.New("upstream 500")}
	store := newFakeStore()
	prog := newFakeProgress()

	sum, err := testPipeline(fetcher, store, prog).Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2, sum.Completed)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, progress.StatusFailed, prog.status("b"))
	require.Equal(t, progress.StatusCompleted, prog.status("a"))
	require.Equal(t, progress.StatusCompleted, prog.status("c"))

	rec, ok, err := prog.Get(context.Background(), "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, rec.LastError, "upstream 500")
}

func TestRun_EmptyDocumentCompletesWithZeroChunks(t *testing.T) {
	fetcher, docs := docsFor("a")
	docs["a"] = documents.Document{ID: "a", Type: documents.TypeOpinion, Text: ""}
	fetcher.docs = docs
	store := newFakeStore()
	prog := newFakeProgress()

	sum, err := testPipeline(fetcher, store, prog).Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)
	require.Zero(t, store.upserted)
	require.Equal(t, progress.StatusCompleted, prog.status("a"))
}

func TestRun_RerunProducesSameChunkIDs(t *testing.T) {
	fetcher, _ := docsFor("a", "b")
	store := newFakeStore()
	prog := newFakeProgress()
	p := testPipeline(fetcher, store, prog)

	_, err := p.Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	firstIDs := make(map[string]bool, len(store.points))
	for id := range store.points {
		firstIDs[id] = true
	}

	// A fresh progress store simulates losing the progress file; the
	// vector-store duplicate check still prevents re-ingestion.
	_, err = testPipeline(fetcher, store, newFakeProgress()).Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, store.points, len(firstIDs))
	for id := range store.points {
		require.True(t, firstIDs[id])
	}
	require.Equal(t, 1, fetcher.fetched["a"]) // second run never refetched
}

func TestRun_UpsertFailureFailsWholeWaveDocuments(t *testing.T) {
	fetcher, _ := docsFor("a", "b")
	store := newFakeStore()
	store.failNext = errors.New("store down")
	prog := newFakeProgress()
	p := testPipeline(fetcher, store, prog)
	p.Config.BatchSize = 10

	sum, err := p.Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2, sum.Failed)
	require.Equal(t, progress.StatusFailed, prog.status("a"))
	require.Equal(t, progress.StatusFailed, prog.status("b"))
}

type partialEmbedder struct{ failIdx []int }

func (e partialEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	for _, i := range e.failIdx {
		out[i] = []float32{0, 0, 0}
	}
	return out, &embedder.PartialFailure{Indices: e.failIdx, Total: len(texts)}
}

func (partialEmbedder) Dimension() int { return 3 }
func (partialEmbedder) Name() string   { return "partial" }

func TestRun_ZeroVectorChunksFailTheirDocumentOnly(t *testing.T) {
	fetcher, _ := docsFor("a", "b")
	store := newFakeStore()
	prog := newFakeProgress()
	p := testPipeline(fetcher, store, prog)
	// Chunks land in the wave as a[0], a[1], b[0], b[1]; index 2 is b's
	// first chunk.
	p.Embedder = partialEmbedder{failIdx: []int{2}}

	sum, err := p.Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Completed)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, progress.StatusCompleted, prog.status("a"))
	require.Equal(t, progress.StatusFailed, prog.status("b"))
	require.Contains(t, store.points, vectorstore.ChunkID("a", 0))
	require.NotContains(t, store.points, vectorstore.ChunkID("b", 0)) // left out so a retry re-embeds it
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	fetcher, _ := docsFor("a", "b")
	store := newFakeStore()
	prog := newFakeProgress()
	p := testPipeline(fetcher, store, prog)
	p.Config.DryRun = true

	sum, err := p.Run(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2, sum.Discovered)
	require.Zero(t, store.upserted)
	require.Zero(t, fetcher.fetched["a"])
	require.Empty(t, prog.records)
}
