// Package documents defines the data model shared by the chunker, the
// enricher, the vector store adapter, and the progress store: a fetched
// source document, its chunking configuration, and the chunks produced
// from it.
package documents

import "time"

// Type discriminates the two supported document kinds. Every Metadata
// implementation below is tagged with exactly one of these.
type Type string

const (
	TypeOpinion Type = "opinion"
	TypeOrder   Type = "order"
)

// Vector-store collection names, one partition per document type.
const (
	CollectionOpinions = "court_opinions"
	CollectionOrders   = "executive_orders"
)

// CollectionFor maps a document type to its vector-store collection.
func CollectionFor(t Type) string {
	if t == TypeOrder {
		return CollectionOrders
	}
	return CollectionOpinions
}

// Document is a single fetched source document prior to chunking.
type Document struct {
	ID         string
	Type       Type
	Title      string
	Text       string
	SourceURL  string
	FetchedAt  time.Time
	Metadata   Metadata
}

// ChunkingConfig bounds the token-budgeted sliding window. MinTokens and
// MaxTokens bracket every chunk except the final chunk of a structural
// section, which may fall short of MinTokens rather than being merged
// across a section boundary. OverlapRatio is the fraction of TargetTokens
// repeated at the start of the next chunk, applied only within the same
// section.
type ChunkingConfig struct {
	MinTokens    int
	TargetTokens int
	MaxTokens    int
	OverlapRatio float64
}

// DefaultOpinionChunking matches the court-opinion defaults.
func DefaultOpinionChunking() ChunkingConfig {
	return ChunkingConfig{MinTokens: 500, TargetTokens: 600, MaxTokens: 800, OverlapRatio: 0.15}
}

// DefaultOrderChunking matches the executive-order defaults.
func DefaultOrderChunking() ChunkingConfig {
	return ChunkingConfig{MinTokens: 240, TargetTokens: 340, MaxTokens: 400, OverlapRatio: 0.10}
}

// ChunkLabels is the structural position of a chunk inside its document.
// Opinion chunks carry OpinionType/AuthoringJustice/SectionLabel; order
// chunks carry ChunkType/SectionTitle/SubsectionLabel. A document with no
// detectable structure leaves every label empty.
type ChunkLabels struct {
	OpinionType      string // syllabus|majority|concurring|dissenting|concurring-in-part-and-dissenting-in-part
	AuthoringJustice string
	SectionLabel     string // "II", "II.A"

	ChunkType       string // header|section|tail
	SectionTitle    string // "Sec. 1. Purpose."
	SubsectionLabel string // "a", "1"
}

// Chunk is one token-budgeted window of a Document's text, tagged with the
// structural section it was cut from.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
	TokenCount int
	Section    string
	Labels     ChunkLabels
	Payload    ChunkPayload
}

// ChunkPayload is what gets written into the vector store alongside the
// embedding: the chunk text plus enough metadata to render a result
// without re-fetching the source.
type ChunkPayload struct {
	DocType    Type
	Title      string
	Text       string
	ChunkIndex int
	TokenCount int
	Section    string
	Labels     ChunkLabels
	Citation   string
	Metadata   Metadata
}
