package enricher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lexserve/internal/documents"
)

const opinionText = `The Consumer Financial Protection Bureau's funding satisfies
the Appropriations Clause, Art. I, §9, cl. 7. See also 12 U.S.C. §5497(a).`

func TestValidateOpinion_DropsUnverifiableCitations(t *testing.T) {
	out := OpinionEnrichment{
		CaseName: "CFPB v. CFSA",
		Summary:  "The Court upholds the Bureau's funding mechanism.",
		ConstitutionalProvisions: []string{
			"Art. I, §9, cl. 7",   // present
			"Amend. XIV, §1",      // hallucinated
		},
		StatuteCitations: []string{
			"12 U.S.C. §5497(a)", // present
			"5 U.S.C. §553",      // hallucinated
		},
		Citations: []string{"999 U.S. 1 (2030)"},
	}

	meta := validateOpinion(out, opinionText)
	require.Equal(t, []string{"Art. I, §9, cl. 7"}, meta.ConstitutionalProvisions)
	require.Equal(t, []string{"12 U.S.C. §5497(a)"}, meta.StatuteCitations)
	require.Empty(t, meta.Citation) // hallucinated case citation dropped
	require.Equal(t, "CFPB v. CFSA", meta.CaseName)
}

func TestValidateOpinion_WhitespaceNormalization(t *testing.T) {
	// The model may collapse the source's line break inside the citation.
	out := OpinionEnrichment{
		StatuteCitations: []string{"funding satisfies the Appropriations Clause"},
	}
	meta := validateOpinion(out, opinionText)
	require.Len(t, meta.StatuteCitations, 1)
}

func TestValidateOrder_DropsUnverifiableAuthorities(t *testing.T) {
	source := "By the authority vested in me, including 3 U.S.C. 301, it is hereby ordered."
	out := OrderEnrichment{
		Title:            "Test Order",
		LegalAuthorities: []string{"3 U.S.C. 301", "42 U.S.C. 7401"},
		RevokedOrders:    []string{"13990"},
	}
	meta := validateOrder(out, source)
	require.Equal(t, []string{"3 U.S.C. 301"}, meta.LegalAuthorities)
	require.Equal(t, []string{"13990"}, meta.RevokedOrders)
}

func TestStripFences(t *testing.T) {
	require.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestEmptyMetadata_MatchesDocType(t *testing.T) {
	require.Equal(t, documents.TypeOpinion, emptyMetadata(documents.TypeOpinion).DocType())
	require.Equal(t, documents.TypeOrder, emptyMetadata(documents.TypeOrder).DocType())
}
