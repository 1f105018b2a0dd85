// Package mcpserver exposes the stored collections to LLM clients over
// the Model Context Protocol: five search/inventory tools plus two
// resource URI templates that bypass the vector store and fetch the full
// current document from its authoritative source.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"lexserve/internal/fetch"
	"lexserve/internal/observability"
	"lexserve/internal/search"
)

// Config tunes the server's request handling.
type Config struct {
	Name           string
	Version        string
	RequestTimeout time.Duration // per-tool-call deadline
	ShutdownGrace  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "lexserve"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// Server translates MCP tool calls into filtered vector searches and
// resource reads into live upstream fetches.
type Server struct {
	search   *search.Service
	opinions fetch.Fetcher
	orders   fetch.Fetcher
	cfg      Config
}

func New(searchSvc *search.Service, opinions, orders fetch.Fetcher, cfg Config) *Server {
	return &Server{search: searchSvc, opinions: opinions, orders: orders, cfg: cfg.withDefaults()}
}

// Run serves MCP over stdio until ctx is cancelled or stdin closes.
// Cancellation gives in-flight requests up to ShutdownGrace to finish.
func (s *Server) Run(ctx context.Context) error {
	mcpServer := server.NewMCPServer(
		s.cfg.Name,
		s.cfg.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)
	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	stdioServer := server.NewStdioServer(mcpServer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- stdioServer.Listen(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Dur("grace", s.cfg.ShutdownGrace).Msg("mcp server shutting down")
		select {
		case err := <-errCh:
			return err
		case <-time.After(s.cfg.ShutdownGrace):
			return nil
		}
	}
}

// handle wraps a tool handler with the per-request deadline and maps
// handler errors to protocol-level tool errors so the server stays up.
func (s *Server) handle(fn func(ctx context.Context, request mcp.CallToolRequest) (string, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
		text, err := fn(ctx, request)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Str("tool", request.Params.Name).Err(err).Msg("tool call failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func (s *Server) registerTools(m *server.MCPServer) {
	m.AddTool(mcp.NewTool("search_government_documents",
		mcp.WithDescription("Semantic search across all indexed federal documents (Supreme Court opinions and Executive Orders)."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language search query.")),
		mcp.WithArray("document_types", mcp.Description("Restrict to 'court_opinion' and/or 'executive_order'. Empty searches both.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of chunks to return.")),
	), s.handle(func(ctx context.Context, request mcp.CallToolRequest) (string, error) {
		query, err := requireString(request, "query")
		if err != nil {
			return "", err
		}
		return s.search.SearchAll(ctx, query, stringSlice(request, "document_types"), intArg(request, "limit"))
	}))

	m.AddTool(mcp.NewTool("search_court_opinions",
		mcp.WithDescription("Filtered semantic search over Supreme Court opinion chunks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language search query.")),
		mcp.WithString("opinion_type", mcp.Description("One of syllabus, majority, concurring, dissenting, concurring-in-part-and-dissenting-in-part.")),
		mcp.WithString("authoring_justice", mcp.Description("Filter to opinions authored by this justice, e.g. 'Thomas'.")),
		mcp.WithString("date_from", mcp.Description("Earliest decision date, YYYY-MM-DD.")),
		mcp.WithString("date_to", mcp.Description("Latest decision date, YYYY-MM-DD.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of chunks to return.")),
	), s.handle(func(ctx context.Context, request mcp.CallToolRequest) (string, error) {
		query, err := requireString(request, "query")
		if err != nil {
			return "", err
		}
		from, to, err := dateRange(request)
		if err != nil {
			return "", err
		}
		filters := search.OpinionFilters{
			OpinionType:      request.GetString("opinion_type", ""),
			AuthoringJustice: request.GetString("authoring_justice", ""),
			DateFrom:         from,
			DateTo:           to,
		}
		return s.search.SearchOpinions(ctx, query, filters, intArg(request, "limit"))
	}))

	m.AddTool(mcp.NewTool("search_executive_orders",
		mcp.WithDescription("Filtered semantic search over Executive Order chunks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language search query.")),
		mcp.WithString("president", mcp.Description("Filter to orders signed by this president.")),
		mcp.WithArray("agencies", mcp.Description("Filter to orders impacting any of these agencies.")),
		mcp.WithArray("policy_topics", mcp.Description("Filter to orders tagged with any of these policy topics.")),
		mcp.WithString("date_from", mcp.Description("Earliest publication date, YYYY-MM-DD.")),
		mcp.WithString("date_to", mcp.Description("Latest publication date, YYYY-MM-DD.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of chunks to return.")),
	), s.handle(func(ctx context.Context, request mcp.CallToolRequest) (string, error) {
		query, err := requireString(request, "query")
		if err != nil {
			return "", err
		}
		from, to, err := dateRange(request)
		if err != nil {
			return "", err
		}
		filters := search.OrderFilters{
			President:    request.GetString("president", ""),
			Agencies:     stringSlice(request, "agencies"),
			PolicyTopics: stringSlice(request, "policy_topics"),
			DateFrom:     from,
			DateTo:       to,
		}
		return s.search.SearchOrders(ctx, query, filters, intArg(request, "limit"))
	}))

	m.AddTool(mcp.NewTool("get_document_by_id",
		mcp.WithDescription("Fetch one stored chunk by its id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Deterministic chunk id as returned by a search tool.")),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection the chunk lives in: court_opinions or executive_orders.")),
	), s.handle(func(ctx context.Context, request mcp.CallToolRequest) (string, error) {
		id, err := requireString(request, "id")
		if err != nil {
			return "", err
		}
		collection, err := requireString(request, "collection")
		if err != nil {
			return "", err
		}
		return s.search.GetByID(ctx, collection, id)
	}))

	m.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the indexed collections with chunk counts, dimensions and distance metrics."),
	), s.handle(func(ctx context.Context, request mcp.CallToolRequest) (string, error) {
		return s.search.ListCollections(ctx)
	}))
}

// registerResources exposes opinion://{id} and order://{document_number}.
// Reading one bypasses the vector store and fetches the full current text
// from the authoritative source, so resources are always fresh.
func (s *Server) registerResources(m *server.MCPServer) {
	m.AddResourceTemplate(mcp.NewResourceTemplate(
		"opinion://{id}",
		"Supreme Court opinion",
		mcp.WithTemplateDescription("Full current text of one Supreme Court opinion, fetched live from CourtListener."),
		mcp.WithTemplateMIMEType("text/plain"),
	), s.readResource(func(ctx context.Context, id string) (string, error) {
		doc, err := s.opinions.Fetch(ctx, id)
		if err != nil {
			return "", err
		}
		return doc.Text, nil
	}))

	m.AddResourceTemplate(mcp.NewResourceTemplate(
		"order://{document_number}",
		"Executive Order",
		mcp.WithTemplateDescription("Full current text of one Executive Order, fetched live from the Federal Register."),
		mcp.WithTemplateMIMEType("text/plain"),
	), s.readResource(func(ctx context.Context, id string) (string, error) {
		doc, err := s.orders.Fetch(ctx, id)
		if err != nil {
			return "", err
		}
		return doc.Text, nil
	}))
}

func (s *Server) readResource(fetchText func(ctx context.Context, id string) (string, error)) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
		id, err := resourceID(request.Params.URI)
		if err != nil {
			return nil, err
		}
		text, err := fetchText(ctx, id)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Str("uri", request.Params.URI).Err(err).Msg("resource read failed")
			return nil, fmt.Errorf("read %s: %w", request.Params.URI, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "text/plain",
				Text:     text,
			},
		}, nil
	}
}

// resourceID pulls the document id out of an opinion:// or order:// URI.
func resourceID(uri string) (string, error) {
	_, rest, ok := strings.Cut(uri, "://")
	if !ok || rest == "" {
		return "", fmt.Errorf("malformed resource uri %q", uri)
	}
	return strings.Trim(rest, "/"), nil
}

func requireString(request mcp.CallToolRequest, key string) (string, error) {
	v := strings.TrimSpace(request.GetString(key, ""))
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func intArg(request mcp.CallToolRequest, key string) int {
	return int(request.GetFloat(key, 0))
}

func stringSlice(request mcp.CallToolRequest, key string) []string {
	raw, ok := request.GetArguments()[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dateRange(request mcp.CallToolRequest) (from, to time.Time, err error) {
	parse := func(key string) (time.Time, error) {
		v := strings.TrimSpace(request.GetString(key, ""))
		if v == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", key, err)
		}
		return t, nil
	}
	if from, err = parse("date_from"); err != nil {
		return
	}
	to, err = parse("date_to")
	return
}
