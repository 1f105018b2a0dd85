// lexserve indexes US federal legal documents (Supreme Court opinions
// and Executive Orders) into a vector store and serves them to LLM
// clients over the Model Context Protocol.
//
// Subcommands:
//
//	server                       start the MCP server on stdio
//	ingest opinions|orders       run the ingestion pipeline for one source
//	delete                       remove a collection (or all of them)
//	info collections             list collections and chunk counts
//	info sample <type>           show sample chunks from a collection
//	query <text>                 one-shot semantic search for debugging
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"lexserve/internal/config"
	"lexserve/internal/observability"
)

// Exit codes: 0 success, 1 user error, 2 configuration error, 3 runtime
// failure, 130 interrupted.
const (
	exitOK          = 0
	exitUsage       = 1
	exitConfig      = 2
	exitRuntime     = 3
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	cfg := config.Load()

	if args[0] == "server" {
		// stdout carries JSON-RPC for the server; route logs away from
		// it before anything (telemetry setup included) writes a line.
		observability.InitServerLogger(cfg.LogPath, cfg.MCP.LogLevel)
	} else {
		observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := initTelemetry(ctx, cfg)
	defer shutdownTelemetry()

	switch args[0] {
	case "server":
		return cmdServer(ctx, cfg, args[1:])
	case "ingest":
		return cmdIngest(ctx, cfg, args[1:])
	case "delete":
		return cmdDelete(ctx, cfg, args[1:])
	case "info":
		return cmdInfo(ctx, cfg, args[1:])
	case "query":
		return cmdQuery(ctx, cfg, args[1:])
	case "help", "-h", "--help":
		usage()
		return exitOK
	default:
		log.Error().Str("subcommand", args[0]).Msg("unknown subcommand")
		usage()
		return exitUsage
	}
}

// initTelemetry installs the OTLP trace/metric providers when an
// exporter endpoint is configured, so pipeline metrics and otelhttp
// spans actually leave the process. Missing telemetry never blocks the
// command.
func initTelemetry(ctx context.Context, cfg config.Config) func() {
	if cfg.Obs.OTLP == "" {
		return func() {}
	}
	shutdown, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel exporters disabled")
		return func() {}
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}
}

func usage() {
	os.Stderr.WriteString(`usage: lexserve <subcommand> [flags]

  server                               start the MCP server on stdio
  ingest opinions|orders [flags]       ingest one source for a date range
      --start-date YYYY-MM-DD   (required)
      --end-date   YYYY-MM-DD   (required)
      --batch-size N            documents per embedding/upsert wave
      --dry-run                 discover only; no document is fetched or stored
      --progress-db PATH        override the progress database file
      --vector-db-path PATH     embedded on-disk store; not supported, exits with a config error
  delete [--collection NAME | --all] [-y]
  info collections
  info sample <opinions|orders> [--limit N] [--show-text]
  query <text> [--limit N]
`)
}

// interrupted distinguishes a SIGINT/SIGTERM cancellation from other
// failures, so the process can exit 130 the way shells expect.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled))
}
