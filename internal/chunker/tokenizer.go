package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens the way the embedding model's vocabulary would.
type Tokenizer interface {
	Count(s string) int
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer returns a Tokenizer backed by tiktoken-go. encoding should
// match the embedding model's vocabulary, e.g. "cl100k_base".
func NewTokenizer(encoding string) (Tokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("chunker: load tiktoken encoding %q: %w", encoding, err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}
