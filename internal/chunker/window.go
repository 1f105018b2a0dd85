package chunker

import (
	"math"
	"regexp"
	"strings"

	"lexserve/internal/documents"
)

// Section is one structurally-identified piece of a document (a court
// opinion's syllabus/majority/dissent subdivided by its I/II/A markers, an
// executive order's header/numbered-section/tail blocks). The window
// builder never lets a chunk span two sections, and overlap is discarded
// at every section boundary.
type Section struct {
	Name   string
	Text   string
	Labels documents.ChunkLabels
}

// Window is one token-budgeted slice of a Section, before it is turned
// into a documents.Chunk.
type Window struct {
	Section    string
	Labels     documents.ChunkLabels
	Text       string
	TokenCount int
}

var paragraphSplit = regexp.MustCompile(`\n{2,}`)
var sentenceSplit = regexp.MustCompile(`(?:[.;])\s+`)

// BuildWindows slides a token budget over every section's paragraphs,
// honoring cfg.MinTokens/TargetTokens/MaxTokens and repeating the last
// round(cfg.OverlapRatio * cfg.TargetTokens) tokens of a window at the
// start of the next one, as long as both windows stay inside the same
// section. A section's last window may fall under MinTokens; it is merged
// back into the previous window when that keeps the total under
// MaxTokens, and kept as a short tail otherwise.
func BuildWindows(tok Tokenizer, sections []Section, cfg documents.ChunkingConfig) []Window {
	var windows []Window
	overlapTokens := int(math.Round(float64(cfg.TargetTokens) * cfg.OverlapRatio))

	for _, sec := range sections {
		units := splitUnits(tok, sec.Text, cfg.MaxTokens)
		if len(units) == 0 {
			continue
		}
		windows = append(windows, buildSectionWindows(tok, sec, units, cfg, overlapTokens)...)
	}
	return windows
}

// buildSectionWindows windows one section's units independently of every
// other section.
func buildSectionWindows(tok Tokenizer, sec Section, units []string, cfg documents.ChunkingConfig, overlapTokens int) []Window {
	var windows []Window

	var parts []string // units (plus a possible leading overlap tail) in the current window
	currentTokens := 0
	fresh := 0 // units in parts that are not overlap carry

	flush := func() {
		if fresh == 0 {
			// Nothing but the overlap tail accumulated; emitting it would
			// duplicate the previous window's ending verbatim.
			return
		}
		text := strings.TrimSpace(strings.Join(parts, "\n\n"))
		if text == "" {
			return
		}
		windows = append(windows, Window{
			Section:    sec.Name,
			Labels:     sec.Labels,
			Text:       text,
			TokenCount: tok.Count(text),
		})
		carry := overlapSuffix(tok, text, overlapTokens)
		parts = parts[:0]
		fresh = 0
		currentTokens = 0
		if carry != "" {
			parts = append(parts, carry)
			currentTokens = tok.Count(carry)
		}
	}

	for _, u := range units {
		uTokens := tok.Count(u)
		if fresh > 0 && currentTokens+uTokens > cfg.MaxTokens {
			flush()
		}
		if fresh == 0 && len(parts) > 0 && currentTokens+uTokens > cfg.MaxTokens {
			// The overlap tail plus this unit would overshoot; the budget
			// belongs to fresh content, so the tail gives way.
			parts = parts[:0]
			currentTokens = 0
		}
		parts = append(parts, u)
		fresh++
		currentTokens += uTokens

		if currentTokens >= cfg.TargetTokens {
			flush()
		}
	}
	flush()

	return mergeShortTail(tok, windows, cfg)
}

// mergeShortTail folds a final window below MinTokens back into its
// predecessor when the combined window stays within MaxTokens. Any
// overlap the tail shares with its predecessor is dropped before
// merging so the merged window carries no repeated text.
func mergeShortTail(tok Tokenizer, windows []Window, cfg documents.ChunkingConfig) []Window {
	n := len(windows)
	if n < 2 {
		return windows
	}
	last := windows[n-1]
	if last.TokenCount >= cfg.MinTokens {
		return windows
	}
	prev := windows[n-2]
	tail := trimSharedPrefix(prev.Text, last.Text)
	if tail == "" {
		return windows[:n-1]
	}
	merged := prev.Text + "\n\n" + tail
	if count := tok.Count(merged); count <= cfg.MaxTokens {
		windows[n-2] = Window{
			Section:    prev.Section,
			Labels:     prev.Labels,
			Text:       merged,
			TokenCount: count,
		}
		return windows[:n-1]
	}
	return windows
}

// trimSharedPrefix removes the longest paragraph-aligned prefix of last
// that prev already ends with (the overlap tail carried between windows).
func trimSharedPrefix(prev, last string) string {
	paras := paragraphSplit.Split(last, -1)
	for i := len(paras); i > 0; i-- {
		prefix := strings.Join(paras[:i], "\n\n")
		if strings.HasSuffix(prev, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(last, prefix))
		}
	}
	return last
}

// overlapSuffix returns the trailing portion of text worth approximately
// budget tokens, cut on a paragraph or sentence boundary where possible.
func overlapSuffix(tok Tokenizer, text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	paras := paragraphSplit.Split(strings.TrimSpace(text), -1)
	var out string
	for i := len(paras) - 1; i >= 0; i-- {
		candidate := strings.Join(paras[i:], "\n\n")
		if tok.Count(candidate) > budget && out != "" {
			break
		}
		out = candidate
		if tok.Count(out) >= budget {
			break
		}
	}
	// A single paragraph much larger than the budget: back off to its
	// trailing sentences instead of repeating the whole paragraph.
	if tok.Count(out) > budget*2 {
		sentences := sentenceSplit.Split(out, -1)
		out = ""
		for i := len(sentences) - 1; i >= 0; i-- {
			candidate := strings.TrimSpace(strings.Join(sentences[i:], ". "))
			if tok.Count(candidate) > budget && out != "" {
				break
			}
			out = candidate
			if tok.Count(out) >= budget {
				break
			}
		}
	}
	return out
}

// splitUnits breaks text into paragraph-sized units, progressively
// splitting any unit that alone exceeds maxTokens into sentences and
// finally whitespace-delimited runs.
func splitUnits(tok Tokenizer, text string, maxTokens int) []string {
	var units []string
	for _, p := range paragraphSplit.Split(strings.TrimSpace(text), -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		units = append(units, splitOversized(tok, p, maxTokens)...)
	}
	return units
}

func splitOversized(tok Tokenizer, text string, maxTokens int) []string {
	if tok.Count(text) <= maxTokens {
		return []string{text}
	}
	sentences := sentenceSplit.Split(text, -1)
	if len(sentences) > 1 {
		var out []string
		for _, s := range sentences {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			out = append(out, splitOversized(tok, s, maxTokens)...)
		}
		return out
	}
	// A single run-on sentence still over budget: fall back to
	// whitespace-delimited chunks built up to the budget.
	words := strings.Fields(text)
	var out []string
	var cur strings.Builder
	for _, w := range words {
		candidate := strings.TrimSpace(cur.String() + " " + w)
		if cur.Len() > 0 && tok.Count(candidate) > maxTokens {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}
