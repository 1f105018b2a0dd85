package vectorstore

import (
	"regexp"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/require"

	"lexserve/internal/documents"
)

func TestChunkID_DeterministicAndHexMD5(t *testing.T) {
	a := ChunkID("doc-123", 0)
	b := ChunkID("doc-123", 0)
	require.Equal(t, a, b)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), a)
	require.NotEqual(t, a, ChunkID("doc-123", 1))
	require.NotEqual(t, a, ChunkID("doc-124", 0))
}

func TestPointID_StableForNonUUIDInput(t *testing.T) {
	p1 := pointID("2025-01234")
	p2 := pointID("2025-01234")
	require.Equal(t, p1.GetUuid(), p2.GetUuid())
	require.NotEmpty(t, p1.GetUuid())
}

func TestPayloadFor_CarriesChunkAndMetadataFields(t *testing.T) {
	payload := documents.ChunkPayload{
		DocType:    documents.TypeOpinion,
		Title:      "CFPB v. CFSA",
		Text:       "chunk body",
		ChunkIndex: 3,
		TokenCount: 611,
		Section:    "majority/II.A",
		Citation:   "601 U.S. 416 (2024)",
		Labels: documents.ChunkLabels{
			OpinionType:      "majority",
			AuthoringJustice: "Thomas",
			SectionLabel:     "II.A",
		},
		Metadata: documents.OpinionMetadata{
			CaseName:     "CFPB v. CFSA",
			DecisionDate: "2024-05-16",
			Topics:       []string{"appropriations", "separation of powers"},
		},
	}

	m := payloadFor("chunk-id-1", payload)
	require.Equal(t, "chunk body", m["text"])
	require.Equal(t, int64(3), m["chunk_index"])
	require.Equal(t, int64(611), m["token_count"])
	require.Equal(t, "majority", m["opinion_type"])
	require.Equal(t, "Thomas", m["authoring_justice"])
	require.Equal(t, "II.A", m["section_label"])
	require.Equal(t, "chunk-id-1", m[PayloadIDField])
	require.Equal(t, []any{"appropriations", "separation of powers"}, m["topics"])

	wantTS, _ := time.Parse("2006-01-02", "2024-05-16")
	require.Equal(t, wantTS.Unix(), m[DateField])
}

func TestPayloadRoundTrip_ThroughQdrantValues(t *testing.T) {
	payload := documents.ChunkPayload{
		DocType:    documents.TypeOrder,
		Title:      "Strengthening the Thing",
		Text:       "Sec. 1. Purpose. Body.",
		ChunkIndex: 1,
		TokenCount: 42,
		Labels: documents.ChunkLabels{
			ChunkType:    "section",
			SectionTitle: "Sec. 1. Purpose.",
		},
		Metadata: documents.OrderMetadata{
			DocumentNumber:  "2025-01234",
			President:       "Donald J. Trump",
			PublicationDate: "2025-01-20",
			Agencies:        []string{"Department of Energy", "EPA"},
		},
	}

	values := qdrant.NewValueMap(payloadFor("cid", payload))
	hit := hitFromPayload(nil, 0.73, values)

	require.Equal(t, "cid", hit.ID)
	require.Equal(t, 0.73, hit.Score)
	require.Equal(t, "Sec. 1. Purpose. Body.", hit.Text)
	require.Equal(t, 1, hit.ChunkIndex)
	require.Equal(t, 42, hit.TokenCount)
	require.Equal(t, "Sec. 1. Purpose.", hit.Fields["section_title"])
	require.Equal(t, "Department of Energy, EPA", hit.Fields["agencies"])
	require.Equal(t, "Donald J. Trump", hit.Fields["president"])
}

func TestTranslatePredicate_CoversEveryKind(t *testing.T) {
	eq := translatePredicate(Equals{Field: "opinion_type", Value: "majority"})
	require.NotNil(t, eq)

	in := translatePredicate(In{Field: "agencies", Values: []string{"EPA", "DOE"}})
	require.NotNil(t, in)

	from, _ := time.Parse("2006-01-02", "2024-01-01")
	to, _ := time.Parse("2006-01-02", "2024-12-31")
	rng := translatePredicate(DateRange{Field: DateField, From: from, To: to})
	require.NotNil(t, rng)
	fc := rng.GetField()
	require.NotNil(t, fc)
	require.Equal(t, DateField, fc.Key)
	require.Equal(t, float64(from.Unix()), fc.GetRange().GetGte())
	require.Equal(t, float64(to.Unix()), fc.GetRange().GetLte())
}
