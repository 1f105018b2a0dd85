package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"lexserve/internal/documents"
)

// Opinion-type markers, matched against whole lines of the stripped plain
// text. Classification of concurring/dissenting/mixed happens on the
// matched line afterwards, since Go's regexp has no lookahead to exclude
// "concurring in part and dissenting in part" inline.
var (
	syllabusHeading  = regexp.MustCompile(`(?im)^\s*Syllabus\s*$`)
	perCuriamHeading = regexp.MustCompile(`(?im)^\s*PER\s+CURIAM\b`)
	deliveredHeading = regexp.MustCompile(`(?im)^\s*(?:CHIEF\s+)?JUSTICE\s+([A-Z][A-Za-z'’-]+)\s+delivered\s+the\s+opinion\s+of\s+the\s+Court\b[^\n]*$`)
	separateHeading  = regexp.MustCompile(`(?im)^\s*(?:CHIEF\s+)?JUSTICE\s+([A-Z][A-Za-z'’-]+)\b[^\n]*\b(?:concurring|dissenting)[^\n]*$`)
	subsectionMarker = regexp.MustCompile(`(?m)^\s*([IVX]+|[A-Z])\s*$`)
	romanOnly        = regexp.MustCompile(`^[IVX]+$`)
)

const (
	opinionSyllabus   = "syllabus"
	opinionMajority   = "majority"
	opinionConcurring = "concurring"
	opinionDissenting = "dissenting"
	opinionMixed      = "concurring-in-part-and-dissenting-in-part"
)

type opinionMarker struct {
	opinionType string
	justice     string
	pos         int
}

// SplitOpinion partitions a Supreme Court opinion's plain text into its
// structural sections: syllabus, the opinion of the Court, and each
// separate concurrence or dissent, every span further subdivided by its
// Roman-numeral and capital-letter markers. A marker is recognized only
// when it stands alone on its own line; a numeral or letter inside a line
// of running text does not start a subsection. A document that never
// matches an opinion-type heading is returned as a single unlabeled span.
func SplitOpinion(text string) []Section {
	markers := findOpinionMarkers(text)
	if len(markers) == 0 {
		return []Section{{Name: "body", Text: text}}
	}

	var sections []Section
	if lead := strings.TrimSpace(text[:markers[0].pos]); lead != "" {
		sections = append(sections, Section{Name: "preamble", Text: lead})
	}
	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].pos
		}
		body := strings.TrimSpace(text[m.pos:end])
		if body == "" {
			continue
		}
		span := Section{
			Name: m.opinionType,
			Text: body,
			Labels: documents.ChunkLabels{
				OpinionType:      m.opinionType,
				AuthoringJustice: m.justice,
			},
		}
		sections = append(sections, subdivide(span)...)
	}
	return sections
}

func findOpinionMarkers(text string) []opinionMarker {
	var markers []opinionMarker

	if loc := syllabusHeading.FindStringIndex(text); loc != nil {
		markers = append(markers, opinionMarker{opinionType: opinionSyllabus, pos: loc[0]})
	}
	if loc := perCuriamHeading.FindStringIndex(text); loc != nil {
		markers = append(markers, opinionMarker{opinionType: opinionMajority, pos: loc[0]})
	}
	for _, loc := range deliveredHeading.FindAllStringSubmatchIndex(text, -1) {
		markers = append(markers, opinionMarker{
			opinionType: opinionMajority,
			justice:     normalizeJusticeName(text[loc[2]:loc[3]]),
			pos:         loc[0],
		})
	}
	for _, loc := range separateHeading.FindAllStringSubmatchIndex(text, -1) {
		line := text[loc[0]:loc[1]]
		markers = append(markers, opinionMarker{
			opinionType: classifySeparateOpinion(line),
			justice:     normalizeJusticeName(text[loc[2]:loc[3]]),
			pos:         loc[0],
		})
	}

	sort.SliceStable(markers, func(i, j int) bool { return markers[i].pos < markers[j].pos })
	return markers
}

// classifySeparateOpinion distinguishes a plain concurrence, a plain
// dissent, and a mixed "concurring in part and dissenting in part"
// heading. A dissent qualified by "in part" is always treated as mixed so
// it is never mis-filed as a simple dissent. "Concurring in the judgment"
// keeps the plain concurring label.
func classifySeparateOpinion(line string) string {
	l := strings.ToLower(line)
	switch {
	case strings.Contains(l, "concurring in part and dissenting in part"):
		return opinionMixed
	case strings.Contains(l, "dissenting") && strings.Contains(l, "in part"):
		return opinionMixed
	case strings.Contains(l, "dissenting"):
		return opinionDissenting
	default:
		return opinionConcurring
	}
}

// normalizeJusticeName maps "KAGAN" and "Kagan" both to "Kagan".
func normalizeJusticeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
}

// subdivide splits one opinion span on its standalone Roman-numeral and
// capital-letter markers, labeling the text that follows each marker
// "II", "II.A", and so on until the next marker. Text before the first
// marker keeps the span's own labels with no section label.
func subdivide(span Section) []Section {
	locs := subsectionMarker.FindAllStringSubmatchIndex(span.Text, -1)
	if len(locs) == 0 {
		return []Section{span}
	}

	type cut struct {
		label string
		start int
	}
	var cuts []cut
	major := ""
	for _, loc := range locs {
		token := span.Text[loc[2]:loc[3]]
		if !followedByUppercase(span.Text, loc[1]) {
			continue
		}
		var label string
		if romanOnly.MatchString(token) && (len(token) > 1 || token == "I" || token == "V" || token == "X") {
			major = token
			label = token
		} else if major != "" {
			label = major + "." + token
		} else {
			label = token
		}
		cuts = append(cuts, cut{label: label, start: loc[0]})
	}
	if len(cuts) == 0 {
		return []Section{span}
	}

	var out []Section
	if lead := strings.TrimSpace(span.Text[:cuts[0].start]); lead != "" {
		out = append(out, Section{Name: span.Name, Text: lead, Labels: span.Labels})
	}
	for i, c := range cuts {
		end := len(span.Text)
		if i+1 < len(cuts) {
			end = cuts[i+1].start
		}
		body := strings.TrimSpace(span.Text[c.start:end])
		if body == "" {
			continue
		}
		labels := span.Labels
		labels.SectionLabel = c.label
		out = append(out, Section{
			Name:   span.Name + "/" + c.label,
			Text:   body,
			Labels: labels,
		})
	}
	return out
}

// followedByUppercase reports whether the first letter after offset is
// uppercase, which is what separates a real section marker from a stray
// single-letter line.
func followedByUppercase(text string, offset int) bool {
	for _, r := range text[offset:] {
		if unicode.IsSpace(r) {
			continue
		}
		return unicode.IsUpper(r)
	}
	return false
}

// OpinionConfig returns the court-opinion chunking defaults.
func OpinionConfig() documents.ChunkingConfig {
	return documents.DefaultOpinionChunking()
}
