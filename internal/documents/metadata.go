package documents

// Metadata is the tagged-union replacement for a generic field-bag map.
// Every concrete implementation knows its own Type and how to flatten
// itself into scalar and list field maps for storage in a backend whose
// payloads are native maps. List fields stay lists so set-membership
// filters work against them.
type Metadata interface {
	DocType() Type
	Fields() map[string]string
	ListFields() map[string][]string
}

// OpinionMetadata carries the fields specific to a Supreme Court opinion,
// including the document-level fields the enricher extracts:
// Summary, Holding, VoteBreakdown, LegalQuestions, ConstitutionalProvisions
// and StatuteCitations (the latter two validated against the source text
// before being kept).
type OpinionMetadata struct {
	CaseName        string
	DocketNumber    string
	CourtListenerID string
	DecisionDate    string // ISO-8601 date
	Citation        string // Bluebook-formatted, may be empty
	Topics          []string
	Agencies        []string

	Summary                  string
	Holding                  string
	VoteBreakdown            string
	LegalQuestions           []string
	ConstitutionalProvisions []string
	StatuteCitations         []string
}

func (m OpinionMetadata) DocType() Type { return TypeOpinion }

func (m OpinionMetadata) Fields() map[string]string {
	return map[string]string{
		"case_name":        m.CaseName,
		"docket_number":    m.DocketNumber,
		"courtlistener_id": m.CourtListenerID,
		"decision_date":    m.DecisionDate,
		"citation":         m.Citation,
		"summary":          m.Summary,
		"holding":          m.Holding,
		"vote_breakdown":   m.VoteBreakdown,
	}
}

func (m OpinionMetadata) ListFields() map[string][]string {
	return map[string][]string{
		"topics":                    m.Topics,
		"agencies":                  m.Agencies,
		"legal_questions":           m.LegalQuestions,
		"constitutional_provisions": m.ConstitutionalProvisions,
		"statute_citations":         m.StatuteCitations,
	}
}

// OrderMetadata carries the fields specific to a presidential Executive
// Order, including the document-level enrichment fields:
// PolicySummary, LegalAuthorities (validated), ReferencedOrders,
// RevokedOrders, AmendedOrders and EconomicSectors.
type OrderMetadata struct {
	DocumentNumber  string
	ExecutiveOrder  string // "14XXX" style EO number, if assigned
	Title           string
	President       string
	SigningDate     string // ISO-8601 date
	PublicationDate string
	Agencies        []string
	Topics          []string

	PolicySummary    string
	LegalAuthorities []string
	ReferencedOrders []string
	RevokedOrders    []string
	AmendedOrders    []string
	EconomicSectors  []string
}

func (m OrderMetadata) DocType() Type { return TypeOrder }

func (m OrderMetadata) Fields() map[string]string {
	return map[string]string{
		"document_number":  m.DocumentNumber,
		"executive_order":  m.ExecutiveOrder,
		"title":            m.Title,
		"president":        m.President,
		"signing_date":     m.SigningDate,
		"publication_date": m.PublicationDate,
		"policy_summary":   m.PolicySummary,
	}
}

func (m OrderMetadata) ListFields() map[string][]string {
	return map[string][]string{
		"agencies":          m.Agencies,
		"topics":            m.Topics,
		"legal_authorities": m.LegalAuthorities,
		"referenced_orders": m.ReferencedOrders,
		"revoked_orders":    m.RevokedOrders,
		"amended_orders":    m.AmendedOrders,
		"economic_sectors":  m.EconomicSectors,
	}
}
