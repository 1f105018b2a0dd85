package search

import (
	"fmt"
	"sort"
	"strings"

	"lexserve/internal/documents"
	"lexserve/internal/vectorstore"
)

const truncationMarker = " […truncated]"

// render shapes ranked hits into the text block a search tool returns:
// a header per hit, the chunk id (the key get_document_by_id takes), a
// hierarchical-context line, the (possibly truncated)
// chunk text, list metadata, the document summary, and — when few strong
// hits remain — a hint naming the resource URIs that return the full
// documents.
func (s *Service) render(query string, hits []vectorstore.SearchHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	var b strings.Builder
	fmt.Fprintf(&b, "%d result(s) for %q:\n", len(hits), query)
	for i, hit := range hits {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "[%d] score=%.2f — %s\n", i+1, hit.Score, titleLine(hit))
		fmt.Fprintf(&b, "    id: %s\n", hit.ID)
		if ctxLine := contextLine(hit); ctxLine != "" {
			fmt.Fprintf(&b, "    %s\n", ctxLine)
		}
		b.WriteString(indent(truncate(hit.Text, s.cfg.SnippetChars)))
		b.WriteByte('\n')
		if meta := metadataLine(hit); meta != "" {
			fmt.Fprintf(&b, "    %s\n", meta)
		}
		if summary := summaryOf(hit); summary != "" {
			fmt.Fprintf(&b, "    Summary: %s\n", summary)
		}
	}
	if hint := s.fullDocumentHint(hits); hint != "" {
		b.WriteByte('\n')
		b.WriteString(hint)
		b.WriteByte('\n')
	}
	return b.String()
}

// renderSingle shapes one payload for get_document_by_id, without rank
// or score.
func (s *Service) renderSingle(hit vectorstore.SearchHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleLine(hit))
	if ctxLine := contextLine(hit); ctxLine != "" {
		fmt.Fprintf(&b, "%s\n", ctxLine)
	}
	fmt.Fprintf(&b, "chunk %d, %d tokens\n\n", hit.ChunkIndex, hit.TokenCount)
	b.WriteString(hit.Text)
	b.WriteByte('\n')
	if meta := metadataLine(hit); meta != "" {
		fmt.Fprintf(&b, "\n%s\n", meta)
	}
	if summary := summaryOf(hit); summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", summary)
	}
	return b.String()
}

func renderCollections(infos []vectorstore.CollectionInfo) string {
	if len(infos) == 0 {
		return "No collections."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %10s %6s %10s\n", "collection", "chunks", "dim", "metric")
	for _, info := range infos {
		fmt.Fprintf(&b, "%-24s %10d %6d %10s\n", info.Name, info.Count, info.Dim, info.Metric)
	}
	return b.String()
}

// fullDocumentHint names the resource URIs returning the complete
// documents, emitted only when the result set is small (at most
// HintMaxHits) and every hit clears HintThreshold.
func (s *Service) fullDocumentHint(hits []vectorstore.SearchHit) string {
	if len(hits) == 0 || len(hits) > s.cfg.HintMaxHits {
		return ""
	}
	seen := make(map[string]bool)
	var uris []string
	for _, hit := range hits {
		if hit.Score < s.cfg.HintThreshold {
			return ""
		}
		uri := resourceURI(hit)
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		uris = append(uris, uri)
	}
	if len(uris) == 0 {
		return ""
	}
	return "Full documents available as resources: " + strings.Join(uris, ", ")
}

func resourceURI(hit vectorstore.SearchHit) string {
	switch hit.DocType {
	case string(documents.TypeOpinion):
		if id := hit.Fields["courtlistener_id"]; id != "" {
			return "opinion://" + id
		}
	case string(documents.TypeOrder):
		if num := hit.Fields["document_number"]; num != "" {
			return "order://" + num
		}
	}
	return ""
}

func titleLine(hit vectorstore.SearchHit) string {
	title := hit.Title
	if title == "" {
		title = hit.Fields["case_name"]
	}
	if title == "" {
		title = hit.ID
	}
	switch {
	case hit.Citation != "":
		return title + " — " + hit.Citation
	case hit.Fields["executive_order"] != "":
		return title + " — Executive Order " + hit.Fields["executive_order"]
	default:
		return title
	}
}

// contextLine renders the hit's position in the document hierarchy:
// opinion type, authoring justice and section for opinions; block type,
// section title and subsection for orders.
func contextLine(hit vectorstore.SearchHit) string {
	var parts []string
	switch hit.DocType {
	case string(documents.TypeOpinion):
		if v := hit.Fields["opinion_type"]; v != "" {
			parts = append(parts, v+" opinion")
		}
		if v := hit.Fields["authoring_justice"]; v != "" {
			parts = append(parts, "by Justice "+v)
		}
		if v := hit.Fields["section_label"]; v != "" {
			parts = append(parts, "section "+v)
		}
	case string(documents.TypeOrder):
		if v := hit.Fields["section_title"]; v != "" {
			parts = append(parts, v)
		} else if v := hit.Fields["chunk_type"]; v != "" {
			parts = append(parts, v)
		}
		if v := hit.Fields["subsection_label"]; v != "" {
			parts = append(parts, "subsection ("+v+")")
		}
	}
	return strings.Join(parts, " — ")
}

func metadataLine(hit vectorstore.SearchHit) string {
	var parts []string
	if v := hit.Fields["topics"]; v != "" {
		parts = append(parts, "Topics: "+v)
	}
	if v := hit.Fields["constitutional_provisions"]; v != "" {
		parts = append(parts, "Provisions: "+v)
	}
	if v := hit.Fields["agencies"]; v != "" {
		parts = append(parts, "Agencies: "+v)
	}
	return strings.Join(parts, " | ")
}

func summaryOf(hit vectorstore.SearchHit) string {
	if v := hit.Fields["summary"]; v != "" {
		return v
	}
	return hit.Fields["policy_summary"]
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + truncationMarker
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
