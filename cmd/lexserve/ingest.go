package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lexserve/internal/app"
	"lexserve/internal/config"
	"lexserve/internal/documents"
	"lexserve/internal/pipeline"
)

func cmdIngest(ctx context.Context, cfg config.Config, args []string) int {
	if len(args) == 0 {
		log.Error().Msg("ingest needs a source: opinions or orders")
		return exitUsage
	}

	var docType documents.Type
	switch args[0] {
	case "opinions":
		docType = documents.TypeOpinion
	case "orders":
		docType = documents.TypeOrder
	default:
		log.Error().Str("source", args[0]).Msg("unknown ingest source")
		return exitUsage
	}

	fs := flag.NewFlagSet("ingest "+args[0], flag.ContinueOnError)
	var (
		startDate  = fs.String("start-date", "", "earliest publication date, YYYY-MM-DD")
		endDate    = fs.String("end-date", "", "latest publication date, YYYY-MM-DD")
		batchSize  = fs.Int("batch-size", cfg.BatchSize, "documents per embedding/upsert wave")
		dryRun     = fs.Bool("dry-run", false, "discover only; no document is fetched or stored (the collection and progress file are still created if missing)")
		progressDB = fs.String("progress-db", "", "override the progress database file")
		vectorDB   = fs.String("vector-db-path", "", "embedded on-disk vector store path; not supported by the Qdrant client, so setting it ends with a configuration error")
	)
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	start, end, err := parseDateRange(*startDate, *endDate)
	if err != nil {
		log.Error().Err(err).Msg("invalid date range")
		return exitUsage
	}

	if cfg.OpenAIAPIKey == "" {
		log.Error().Msg("OPENAI_API_KEY is required for ingestion")
		return exitConfig
	}
	if cfg.AnthropicAPIKey == "" {
		log.Error().Msg("ANTHROPIC_API_KEY is required for ingestion")
		return exitConfig
	}
	if docType == documents.TypeOpinion && cfg.CourtListenerAPIToken == "" {
		log.Error().Msg("COURT_LISTENER_API_TOKEN is required to ingest opinions")
		return exitConfig
	}
	if *vectorDB != "" {
		cfg.VectorStore.DBPath = *vectorDB
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("wiring failed")
		return exitConfig
	}
	defer a.Close()

	collection := documents.CollectionFor(docType)
	if err := a.Store.EnsureCollection(ctx, collection, cfg.EmbeddingDim, "cosine"); err != nil {
		// A dimension mismatch on an existing collection is a config
		// error, not a runtime one.
		log.Error().Err(err).Str("collection", collection).Msg("collection check failed")
		return exitConfig
	}

	prog, err := a.OpenProgress(docType, *progressDB)
	if err != nil {
		log.Error().Err(err).Msg("open progress store")
		return exitRuntime
	}
	defer prog.Close()

	p, err := a.NewPipeline(docType, prog, pipeline.Config{
		WorkerPoolSize: cfg.WorkerPoolSize,
		BatchSize:      *batchSize,
		DryRun:         *dryRun,
	})
	if err != nil {
		log.Error().Err(err).Msg("build pipeline")
		return exitConfig
	}

	summary, runErr := p.Run(ctx, start, end)
	fmt.Printf("discovered=%d completed=%d failed=%d skipped=%d elapsed=%s\n",
		summary.Discovered, summary.Completed, summary.Failed, summary.Skipped,
		summary.Elapsed.Round(time.Millisecond))

	switch {
	case interrupted(ctx, runErr):
		return exitInterrupted
	case runErr != nil:
		log.Error().Err(runErr).Msg("ingestion crashed")
		return exitRuntime
	default:
		// Per-document failures are reported in the summary, not the
		// exit code.
		return exitOK
	}
}

func parseDateRange(startStr, endStr string) (start, end time.Time, err error) {
	if startStr == "" || endStr == "" {
		return start, end, fmt.Errorf("--start-date and --end-date are required")
	}
	if start, err = time.Parse("2006-01-02", startStr); err != nil {
		return start, end, fmt.Errorf("--start-date: %w", err)
	}
	if end, err = time.Parse("2006-01-02", endStr); err != nil {
		return start, end, fmt.Errorf("--end-date: %w", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("--end-date precedes --start-date")
	}
	return start, end, nil
}
