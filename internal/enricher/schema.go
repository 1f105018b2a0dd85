package enricher

// OpinionEnrichment is the JSON shape requested from the model for a
// Supreme Court opinion.
type OpinionEnrichment struct {
	CaseName                 string   `json:"case_name"`
	DocketNumber             string   `json:"docket_number"`
	DecisionDate             string   `json:"decision_date"`
	Summary                  string   `json:"summary"`
	Holding                  string   `json:"holding"`
	VoteBreakdown            string   `json:"vote_breakdown"`
	Topics                   []string `json:"topics"`
	Agencies                 []string `json:"agencies"`
	Citations                []string `json:"citations"`
	LegalQuestions           []string `json:"legal_questions"`
	ConstitutionalProvisions []string `json:"constitutional_provisions"`
	StatuteCitations         []string `json:"statute_citations"`
}

// OrderEnrichment is the JSON shape requested from the model for an
// executive order.
type OrderEnrichment struct {
	Title            string   `json:"title"`
	ExecutiveOrder   string   `json:"executive_order"`
	SigningDate      string   `json:"signing_date"`
	PolicySummary    string   `json:"policy_summary"`
	Topics           []string `json:"topics"`
	Agencies         []string `json:"agencies"`
	LegalAuthorities []string `json:"legal_authorities"`
	ReferencedOrders []string `json:"referenced_orders"`
	RevokedOrders    []string `json:"revoked_orders"`
	AmendedOrders    []string `json:"amended_orders"`
	EconomicSectors  []string `json:"economic_sectors"`
}

const opinionSchemaPrompt = `Return only a JSON object describing this Supreme Court opinion with these exact fields:
case_name (string), docket_number (string), decision_date (ISO-8601 date string),
summary (a 1-2 sentence technical summary), holding (one sentence stating the Court's holding),
vote_breakdown (e.g. "6-3"), topics (array of short legal-topic strings),
agencies (array of agency names mentioned, if any),
legal_questions (array of the key legal questions presented),
citations (array of case citation strings found verbatim in the text),
constitutional_provisions (array of constitutional provisions cited, found verbatim in the text),
statute_citations (array of U.S. Code or other statute citations found verbatim in the text).
Every citation, provision, and statute you return must appear verbatim (modulo whitespace) in the source text; omit any you are not sure of.
Do not include any text outside the JSON object.`

const orderSchemaPrompt = `Return only a JSON object describing this Executive Order with these exact fields:
title (string), executive_order (string, the EO number if present, else empty),
signing_date (ISO-8601 date string), policy_summary (a 1-2 sentence policy summary),
topics (array of short policy-topic strings), agencies (array of impacted agency names or codes named in the order),
legal_authorities (array of U.S. Code / CFR citations found verbatim in the text),
referenced_orders (array of prior Executive Order numbers referenced, e.g. "13990"),
revoked_orders (array of prior Executive Order numbers this order revokes),
amended_orders (array of prior Executive Order numbers this order amends),
economic_sectors (array of short economic-sector strings this order affects).
Every legal authority you return must appear verbatim (modulo whitespace) in the source text; omit any you are not sure of.
Do not include any text outside the JSON object.`
