// Package enricher extracts structured, document-level metadata from a
// fetched document using a single chat completion, validating any
// citations the model returns against the source text before trusting
// them.
package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"lexserve/internal/documents"
	"lexserve/internal/observability"
)

// Enricher produces document-level metadata for a fetched document. On
// schema or validation failure it returns an empty-but-valid Metadata
// rather than an error, per the non-fatal enrichment contract.
type Enricher struct {
	client anthropic.Client
	model  anthropic.Model
}

func New(apiKey, model string) *Enricher {
	m := anthropic.Model(model)
	if m == "" {
		m = anthropic.ModelClaude3_7SonnetLatest
	}
	return &Enricher{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
	}
}

// Enrich requests one JSON-shaped extraction for doc and returns a typed
// Metadata value. It retries once with a stricter prompt on a schema
// failure; if both attempts fail, the document proceeds with an empty
// Metadata for doc.Type — a logged warning, never a failure.
func (e *Enricher) Enrich(ctx context.Context, doc documents.Document) (documents.Metadata, error) {
	prompt, strictPrompt := promptsFor(doc)

	meta, err := e.extract(ctx, doc, prompt)
	if err == nil {
		return meta, nil
	}
	observability.LoggerWithTrace(ctx).Warn().Str("document_id", doc.ID).Err(err).Msg("enrichment response rejected, retrying with stricter prompt")
	meta, err = e.extract(ctx, doc, strictPrompt)
	if err == nil {
		return meta, nil
	}
	observability.LoggerWithTrace(ctx).Warn().Str("document_id", doc.ID).Err(err).Msg("enrichment failed twice, proceeding with empty metadata")
	return emptyMetadata(doc.Type), nil
}

func promptsFor(doc documents.Document) (prompt, strict string) {
	var schemaPrompt string
	switch doc.Type {
	case documents.TypeOpinion:
		schemaPrompt = opinionSchemaPrompt
	case documents.TypeOrder:
		schemaPrompt = orderSchemaPrompt
	}
	prompt = schemaPrompt + "\n\nDocument:\n" + doc.Text
	strict = schemaPrompt + "\n\nYour previous response did not match the schema exactly. Return ONLY the JSON object, with no markdown fences and no commentary.\n\nDocument:\n" + doc.Text
	return prompt, strict
}

func (e *Enricher) extract(ctx context.Context, doc documents.Document, prompt string) (documents.Metadata, error) {
	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("enricher: request: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	text = strings.TrimSpace(stripFences(text))

	switch doc.Type {
	case documents.TypeOpinion:
		var out OpinionEnrichment
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, fmt.Errorf("enricher: parse opinion json: %w", err)
		}
		return validateOpinion(out, doc.Text), nil
	case documents.TypeOrder:
		var out OrderEnrichment
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, fmt.Errorf("enricher: parse order json: %w", err)
		}
		return validateOrder(out, doc.Text), nil
	default:
		return nil, fmt.Errorf("enricher: unsupported document type %q", doc.Type)
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// validateOpinion drops any citation, constitutional provision, or
// statute citation the model claims but that does not appear verbatim
// (modulo whitespace normalization) in the source text, per the
// non-hallucination validation rule.
func validateOpinion(out OpinionEnrichment, sourceText string) documents.OpinionMetadata {
	norm := normalizeWhitespace(sourceText)
	var citation string
	for _, c := range out.Citations {
		if strings.Contains(norm, normalizeWhitespace(c)) {
			citation = c
			break
		}
	}
	return documents.OpinionMetadata{
		CaseName:                 out.CaseName,
		DocketNumber:             out.DocketNumber,
		DecisionDate:             out.DecisionDate,
		Citation:                 citation,
		Topics:                   out.Topics,
		Agencies:                 out.Agencies,
		Summary:                  out.Summary,
		Holding:                  out.Holding,
		VoteBreakdown:            out.VoteBreakdown,
		LegalQuestions:           out.LegalQuestions,
		ConstitutionalProvisions: keepVerbatim(out.ConstitutionalProvisions, norm),
		StatuteCitations:         keepVerbatim(out.StatuteCitations, norm),
	}
}

// validateOrder drops any legal authority or agency code the model claims
// but that does not appear verbatim (modulo whitespace) in the source text.
func validateOrder(out OrderEnrichment, sourceText string) documents.OrderMetadata {
	norm := normalizeWhitespace(sourceText)
	return documents.OrderMetadata{
		Title:            out.Title,
		ExecutiveOrder:   out.ExecutiveOrder,
		SigningDate:      out.SigningDate,
		Agencies:         keepVerbatim(out.Agencies, norm),
		Topics:           out.Topics,
		PolicySummary:    out.PolicySummary,
		LegalAuthorities: keepVerbatim(out.LegalAuthorities, norm),
		ReferencedOrders: out.ReferencedOrders,
		RevokedOrders:    out.RevokedOrders,
		AmendedOrders:    out.AmendedOrders,
		EconomicSectors:  out.EconomicSectors,
	}
}

// keepVerbatim drops any item from items that does not appear (modulo
// whitespace normalization) in normalizedSource, per the enricher's
// never-hallucinate validation rule.
func keepVerbatim(items []string, normalizedSource string) []string {
	var kept []string
	for _, item := range items {
		if strings.Contains(normalizedSource, normalizeWhitespace(item)) {
			kept = append(kept, item)
		}
	}
	return kept
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func emptyMetadata(t documents.Type) documents.Metadata {
	switch t {
	case documents.TypeOpinion:
		return documents.OpinionMetadata{}
	case documents.TypeOrder:
		return documents.OrderMetadata{}
	default:
		return documents.OpinionMetadata{}
	}
}
