package pipeline

import "lexserve/internal/documents"

// mergeMetadata overlays enricher-derived fields onto the fetcher-sourced
// base metadata, keeping the fetcher's own identifiers and dates
// authoritative (they come from the upstream API, not an LLM) while
// taking every field only the enricher can produce.
func mergeMetadata(base, enriched documents.Metadata) documents.Metadata {
	switch b := base.(type) {
	case documents.OpinionMetadata:
		e, _ := enriched.(documents.OpinionMetadata)
		b.Topics = e.Topics
		b.Agencies = e.Agencies
		b.Summary = e.Summary
		b.Holding = e.Holding
		b.VoteBreakdown = e.VoteBreakdown
		b.LegalQuestions = e.LegalQuestions
		b.ConstitutionalProvisions = e.ConstitutionalProvisions
		b.StatuteCitations = e.StatuteCitations
		if b.Citation == "" {
			b.Citation = e.Citation
		}
		return b
	case documents.OrderMetadata:
		e, _ := enriched.(documents.OrderMetadata)
		b.Topics = e.Topics
		if len(b.Agencies) == 0 {
			b.Agencies = e.Agencies
		}
		b.PolicySummary = e.PolicySummary
		b.LegalAuthorities = e.LegalAuthorities
		b.ReferencedOrders = e.ReferencedOrders
		b.RevokedOrders = e.RevokedOrders
		b.AmendedOrders = e.AmendedOrders
		b.EconomicSectors = e.EconomicSectors
		if b.ExecutiveOrder == "" {
			b.ExecutiveOrder = e.ExecutiveOrder
		}
		return b
	default:
		return enriched
	}
}
