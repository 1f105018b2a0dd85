package chunker

import (
	"regexp"
	"strings"

	"lexserve/internal/documents"
)

var (
	sectionHeading = regexp.MustCompile(`(?m)^\s*(Sec\.\s*\d+\.(?:\s*[^.\n]{1,80}\.)?)`)
	signatureLine  = regexp.MustCompile(`(?m)^\s*(?:IN WITNESS WHEREOF|THE WHITE HOUSE[,.]?|\[FR Doc\.|Filed \d)`)
	subsectionHead = regexp.MustCompile(`^\(([a-z]|\d{1,2})\)`)
)

const (
	orderHeader  = "header"
	orderSection = "section"
	orderTail    = "tail"
)

// SplitOrder partitions an executive order's plain text into a header
// block (title and preamble up to the first "Sec. N." heading), one block
// per numbered section carrying that heading as its title, and a tail
// block holding the signature and filing lines after the last section's
// body. Overlap never crosses any of these boundaries. An order with no
// numbered sections at all is returned as a single unlabeled block.
func SplitOrder(text string) []Section {
	locs := sectionHeading.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []Section{{Name: "body", Text: text}}
	}

	var sections []Section
	if header := strings.TrimSpace(text[:locs[0][0]]); header != "" {
		sections = append(sections, Section{
			Name:   orderHeader,
			Text:   header,
			Labels: documents.ChunkLabels{ChunkType: orderHeader},
		})
	}

	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := text[loc[0]:end]
		title := normalizeTitle(text[loc[2]:loc[3]])

		// The signature/filing block belongs to the tail, not to the last
		// numbered section it happens to follow.
		var tail string
		if i+1 == len(locs) {
			if sig := signatureLine.FindStringIndex(body); sig != nil {
				tail = strings.TrimSpace(body[sig[0]:])
				body = body[:sig[0]]
			}
		}

		if b := strings.TrimSpace(body); b != "" {
			sections = append(sections, Section{
				Name: "sec/" + title,
				Text: b,
				Labels: documents.ChunkLabels{
					ChunkType:    orderSection,
					SectionTitle: title,
				},
			})
		}
		if tail != "" {
			sections = append(sections, Section{
				Name:   orderTail,
				Text:   tail,
				Labels: documents.ChunkLabels{ChunkType: orderTail},
			})
		}
	}
	return sections
}

// normalizeTitle collapses the internal whitespace of a matched section
// heading, so "Sec.  1.  Purpose." renders as "Sec. 1. Purpose.".
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// subsectionLabelOf reports the "(a)"/"(1)" label a chunk's text opens
// with, if any, so within-section chunks can be addressed down to the
// lettered or numbered subsection.
func subsectionLabelOf(text string) string {
	m := subsectionHead.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return ""
	}
	return m[1]
}

// OrderConfig returns the executive-order chunking defaults.
func OrderConfig() documents.ChunkingConfig {
	return documents.DefaultOrderChunking()
}
