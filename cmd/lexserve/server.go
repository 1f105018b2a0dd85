package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"lexserve/internal/app"
	"lexserve/internal/config"
	"lexserve/internal/mcpserver"
	"lexserve/internal/observability"
)

func cmdServer(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	logLevel := fs.String("log-level", cfg.MCP.LogLevel, "log level for the server process")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	// stdout carries JSON-RPC; logs must never land there.
	observability.InitServerLogger(cfg.LogPath, *logLevel)

	if cfg.OpenAIAPIKey == "" {
		log.Error().Msg("OPENAI_API_KEY is required to embed queries")
		return exitConfig
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("wiring failed")
		return exitConfig
	}
	defer a.Close()

	srv := mcpserver.New(a.Search, a.Opinions, a.Orders, mcpserver.Config{
		Name:          "lexserve",
		ShutdownGrace: cfg.MCP.ShutdownGrace,
	})

	log.Info().Msg("mcp server listening on stdio")
	if err := srv.Run(ctx); err != nil {
		if interrupted(ctx, err) {
			return exitInterrupted
		}
		log.Error().Err(err).Msg("mcp server stopped")
		return exitRuntime
	}
	return exitOK
}
