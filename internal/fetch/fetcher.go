// Package fetch retrieves source documents from upstream government APIs.
package fetch

import (
	"context"
	"time"

	"lexserve/internal/documents"
)

// Fetcher is the capability set both upstream sources implement, so the
// pipeline can treat them uniformly and the MCP server can dereference a
// resource URI by scheme.
type Fetcher interface {
	// ListIDs returns every upstream document id published inside
	// [start, end], in ascending publication-date order. A zero start or
	// end leaves that side of the range open.
	ListIDs(ctx context.Context, start, end time.Time) ([]string, error)
	// Fetch retrieves and normalizes a single document.
	Fetch(ctx context.Context, id string) (documents.Document, error)
	// RateLimit is the minimum interval between requests this fetcher
	// enforces internally.
	RateLimit() time.Duration
}
