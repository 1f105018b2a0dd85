package chunker

import (
	"fmt"

	"lexserve/internal/documents"
)

// Chunker splits a Document into token-budgeted Chunks along its
// structural sections.
type Chunker struct {
	tok Tokenizer
}

// New builds a Chunker using the given encoding name for token counting.
func New(tokenEncoding string) (*Chunker, error) {
	tok, err := NewTokenizer(tokenEncoding)
	if err != nil {
		return nil, err
	}
	return &Chunker{tok: tok}, nil
}

// Chunk splits doc according to cfg, dispatching to the document-type
// specific structural splitter. Empty input yields an empty chunk list;
// input with no detectable structure yields unlabeled chunks rather than
// an error.
func (c *Chunker) Chunk(doc documents.Document, cfg documents.ChunkingConfig) ([]documents.Chunk, error) {
	var sections []Section
	switch doc.Type {
	case documents.TypeOpinion:
		sections = SplitOpinion(doc.Text)
	case documents.TypeOrder:
		sections = SplitOrder(doc.Text)
	default:
		return nil, fmt.Errorf("chunker: unsupported document type %q", doc.Type)
	}

	windows := BuildWindows(c.tok, sections, cfg)
	chunks := make([]documents.Chunk, 0, len(windows))
	for i, w := range windows {
		labels := w.Labels
		if doc.Type == documents.TypeOrder && labels.ChunkType == orderSection {
			labels.SubsectionLabel = subsectionLabelOf(w.Text)
		}
		chunks = append(chunks, documents.Chunk{
			DocumentID: doc.ID,
			Index:      i,
			Text:       w.Text,
			TokenCount: w.TokenCount,
			Section:    w.Section,
			Labels:     labels,
			Payload: documents.ChunkPayload{
				DocType:    doc.Type,
				Title:      doc.Title,
				Text:       w.Text,
				ChunkIndex: i,
				TokenCount: w.TokenCount,
				Section:    w.Section,
				Labels:     labels,
				Metadata:   doc.Metadata,
			},
		})
	}
	return chunks, nil
}
