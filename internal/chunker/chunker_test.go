package chunker

import (
	"strings"
	"testing"

	"lexserve/internal/documents"
)

func testTokenizer(t *testing.T) Tokenizer {
	t.Helper()
	tok, err := NewTokenizer("cl100k_base")
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	return tok
}

func genParagraphs(n, wordsPerPara int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString("\n\n")
		}
		for j := 0; j < wordsPerPara; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("word")
		}
	}
	return b.String()
}

func TestBuildWindows_RespectsTokenBudget(t *testing.T) {
	tok := testTokenizer(t)
	text := genParagraphs(40, 40)
	cfg := documents.ChunkingConfig{MinTokens: 100, TargetTokens: 150, MaxTokens: 200, OverlapRatio: 0.15}
	windows := BuildWindows(tok, []Section{{Name: "body", Text: text}}, cfg)
	if len(windows) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(windows))
	}
	for i, w := range windows {
		if w.TokenCount > cfg.MaxTokens {
			t.Fatalf("window %d exceeds max tokens: %d > %d", i, w.TokenCount, cfg.MaxTokens)
		}
		if i < len(windows)-1 && w.TokenCount < cfg.MinTokens {
			t.Fatalf("non-final window %d below min tokens: %d < %d", i, w.TokenCount, cfg.MinTokens)
		}
	}
}

func TestBuildWindows_NeverSpansSections(t *testing.T) {
	tok := testTokenizer(t)
	sections := []Section{
		{Name: "majority", Text: genParagraphs(10, 30)},
		{Name: "dissenting", Text: genParagraphs(10, 30)},
	}
	cfg := documents.ChunkingConfig{MinTokens: 50, TargetTokens: 80, MaxTokens: 120, OverlapRatio: 0.1}
	windows := BuildWindows(tok, sections, cfg)
	var sawDissent bool
	for _, w := range windows {
		if w.Section == "dissenting" {
			sawDissent = true
		}
		if sawDissent && w.Section == "majority" {
			t.Fatalf("majority window found after dissenting section started")
		}
	}
	if !sawDissent {
		t.Fatalf("expected a dissenting window")
	}
}

func TestBuildWindows_OverlapRepeatsTail(t *testing.T) {
	tok := testTokenizer(t)
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, "Paragraph "+strings.Repeat("alpha beta gamma delta ", 10)+"number "+strings.Repeat("x", i+1)+".")
	}
	text := strings.Join(paras, "\n\n")
	cfg := documents.ChunkingConfig{MinTokens: 60, TargetTokens: 100, MaxTokens: 150, OverlapRatio: 0.2}
	windows := BuildWindows(tok, []Section{{Name: "body", Text: text}}, cfg)
	if len(windows) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(windows))
	}
	for i := 1; i < len(windows); i++ {
		prev, cur := windows[i-1], windows[i]
		firstPara := strings.SplitN(cur.Text, "\n\n", 2)[0]
		if !strings.Contains(prev.Text, firstPara) {
			t.Fatalf("window %d does not begin with an overlap tail of window %d", i, i-1)
		}
	}
}

func TestBuildWindows_NoOverlapAcrossSections(t *testing.T) {
	tok := testTokenizer(t)
	sections := []Section{
		{Name: "majority", Text: genParagraphs(6, 40)},
		{Name: "dissenting", Text: "The dissent opens with its own words, not the majority's."},
	}
	cfg := documents.ChunkingConfig{MinTokens: 20, TargetTokens: 60, MaxTokens: 100, OverlapRatio: 0.25}
	windows := BuildWindows(tok, sections, cfg)
	last := windows[len(windows)-1]
	if last.Section != "dissenting" {
		t.Fatalf("expected last window from the dissent, got %q", last.Section)
	}
	if strings.Contains(last.Text, "word word") {
		t.Fatalf("dissent window carries overlap from the majority section")
	}
}

func TestBuildWindows_MergesShortFinalChunk(t *testing.T) {
	tok := testTokenizer(t)
	// Two full paragraphs plus a tiny trailing one: the tail is far below
	// MinTokens and merging keeps the total under MaxTokens.
	text := genParagraphs(2, 60) + "\n\nShort tail."
	cfg := documents.ChunkingConfig{MinTokens: 100, TargetTokens: 120, MaxTokens: 400, OverlapRatio: 0}
	windows := BuildWindows(tok, []Section{{Name: "body", Text: text}}, cfg)
	if len(windows) != 1 {
		t.Fatalf("expected the short tail to merge into one window, got %d", len(windows))
	}
	if !strings.Contains(windows[0].Text, "Short tail.") {
		t.Fatalf("merged window lost the tail text")
	}
}

func TestBuildWindows_KeepsShortTailWhenMergeWouldOvershoot(t *testing.T) {
	tok := testTokenizer(t)
	// 99-token paragraphs each fill a window; adding the separator and the
	// 3-token tail would take the last one past MaxTokens.
	text := genParagraphs(3, 99) + "\n\nShort tail."
	cfg := documents.ChunkingConfig{MinTokens: 80, TargetTokens: 90, MaxTokens: 100, OverlapRatio: 0}
	windows := BuildWindows(tok, []Section{{Name: "body", Text: text}}, cfg)
	last := windows[len(windows)-1]
	if last.Text != "Short tail." {
		t.Fatalf("expected the short tail to survive as its own window")
	}
	for i, w := range windows {
		if w.TokenCount > cfg.MaxTokens {
			t.Fatalf("window %d exceeds max tokens after tail handling: %d", i, w.TokenCount)
		}
	}
}

func TestSplitOpinion_DetectsHeadings(t *testing.T) {
	text := "Syllabus\n\nSome syllabus text.\n\nJUSTICE KAGAN delivered the opinion of the Court.\n\nMajority body text.\n\nJUSTICE THOMAS, dissenting.\n\nDissent body text."
	sections := SplitOpinion(text)

	types := map[string]Section{}
	for _, s := range sections {
		types[s.Labels.OpinionType] = s
	}
	if _, ok := types[opinionSyllabus]; !ok {
		t.Fatalf("missing syllabus section in %#v", sections)
	}
	maj, ok := types[opinionMajority]
	if !ok {
		t.Fatalf("missing majority section")
	}
	if maj.Labels.AuthoringJustice != "Kagan" {
		t.Fatalf("majority attributed to %q, want Kagan", maj.Labels.AuthoringJustice)
	}
	dis, ok := types[opinionDissenting]
	if !ok {
		t.Fatalf("missing dissenting section")
	}
	if dis.Labels.AuthoringJustice != "Thomas" {
		t.Fatalf("dissent attributed to %q, want Thomas", dis.Labels.AuthoringJustice)
	}
}

func TestSplitOpinion_PerCuriamIsMajority(t *testing.T) {
	sections := SplitOpinion("PER CURIAM.\n\nThe judgment is affirmed.")
	if len(sections) == 0 || sections[0].Labels.OpinionType != opinionMajority {
		t.Fatalf("expected per curiam text to be a majority section, got %#v", sections)
	}
}

func TestSplitOpinion_MixedIsNeitherConcurringNorDissenting(t *testing.T) {
	text := "JUSTICE KAGAN delivered the opinion of the Court.\n\nBody.\n\nJustice Thomas, concurring in part and dissenting in part.\n\nMixed body text."
	sections := SplitOpinion(text)
	var sawMixed bool
	for _, s := range sections {
		switch s.Labels.OpinionType {
		case opinionMixed:
			sawMixed = true
			if s.Labels.AuthoringJustice != "Thomas" {
				t.Fatalf("mixed opinion attributed to %q, want Thomas", s.Labels.AuthoringJustice)
			}
		case opinionConcurring, opinionDissenting:
			t.Fatalf("mixed opinion mis-filed as %s", s.Labels.OpinionType)
		}
	}
	if !sawMixed {
		t.Fatalf("expected a mixed section, got %#v", sections)
	}
}

func TestSplitOpinion_ConcurringWithJoinClause(t *testing.T) {
	text := "JUSTICE KAGAN delivered the opinion of the Court.\n\nBody.\n\nJUSTICE JACKSON, with whom JUSTICE SOTOMAYOR joins, concurring.\n\nConcurrence body."
	sections := SplitOpinion(text)
	var conc *Section
	for i := range sections {
		if sections[i].Labels.OpinionType == opinionConcurring {
			conc = &sections[i]
		}
	}
	if conc == nil {
		t.Fatalf("missing concurring section in %#v", sections)
	}
	if conc.Labels.AuthoringJustice != "Jackson" {
		t.Fatalf("concurrence attributed to %q, want Jackson", conc.Labels.AuthoringJustice)
	}
}

func TestSplitOpinion_SubsectionLabels(t *testing.T) {
	text := "JUSTICE KAGAN delivered the opinion of the Court.\n\nIntroductory text.\n\nI\n\nFirst part analysis.\n\nII\n\nSecond part analysis.\n\nA\n\nNested subsection text.\n\nB\n\nMore nested text."
	sections := SplitOpinion(text)

	var labels []string
	for _, s := range sections {
		if s.Labels.SectionLabel != "" {
			labels = append(labels, s.Labels.SectionLabel)
		}
	}
	want := []string{"I", "II", "II.A", "II.B"}
	if len(labels) != len(want) {
		t.Fatalf("got labels %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("label %d = %q, want %q", i, labels[i], want[i])
		}
	}
}

func TestSplitOpinion_NoMarkersIsSingleUnlabeledSpan(t *testing.T) {
	sections := SplitOpinion("plain text with no headings at all")
	if len(sections) != 1 {
		t.Fatalf("expected single span, got %d", len(sections))
	}
	if sections[0].Labels != (documents.ChunkLabels{}) {
		t.Fatalf("expected unlabeled span, got %#v", sections[0].Labels)
	}
}

func TestSplitOrder_SectionTitlesAndHeader(t *testing.T) {
	text := "By the authority vested in me as President by the Constitution and the laws of the United States of America, it is hereby ordered:\nSec. 1. Purpose. This order does X.\nSec. 2. Policy. Agencies shall Y."
	sections := SplitOrder(text)
	if len(sections) != 3 {
		t.Fatalf("expected header + two sections, got %d: %#v", len(sections), sections)
	}
	if sections[0].Labels.ChunkType != orderHeader {
		t.Fatalf("first block should be the header, got %#v", sections[0].Labels)
	}
	if sections[1].Labels.SectionTitle != "Sec. 1. Purpose." {
		t.Fatalf("section 1 title = %q", sections[1].Labels.SectionTitle)
	}
	if sections[2].Labels.SectionTitle != "Sec. 2. Policy." {
		t.Fatalf("section 2 title = %q", sections[2].Labels.SectionTitle)
	}
}

func TestSplitOrder_TailAfterLastSection(t *testing.T) {
	text := "Preamble, it is hereby ordered:\n\nSec. 1. Purpose. Body of the only section.\n\nTHE WHITE HOUSE,\nJanuary 20, 2025.\n\n[FR Doc. 2025-01234 Filed 1-21-25; 8:45 am]"
	sections := SplitOrder(text)
	last := sections[len(sections)-1]
	if last.Labels.ChunkType != orderTail {
		t.Fatalf("expected trailing tail block, got %#v", last.Labels)
	}
	if !strings.Contains(last.Text, "THE WHITE HOUSE") {
		t.Fatalf("tail lost the signature block: %q", last.Text)
	}
}

func TestSplitOrder_NoSectionsFallsBack(t *testing.T) {
	sections := SplitOrder("A proclamation with no numbered sections.")
	if len(sections) != 1 || sections[0].Labels != (documents.ChunkLabels{}) {
		t.Fatalf("expected single unlabeled block, got %#v", sections)
	}
}

func TestChunk_SyllabusThenMajorityAttribution(t *testing.T) {
	c, err := New("cl100k_base")
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	doc := documents.Document{
		ID:   "opinion-1",
		Type: documents.TypeOpinion,
		Text: "Syllabus\n\nThe Court holds that the funding mechanism satisfies the Appropriations Clause.\n\nJustice Roberts delivered the opinion of the Court. The Constitution gives Congress control over the public fisc.",
	}
	cfg := documents.ChunkingConfig{MinTokens: 5, TargetTokens: 10, MaxTokens: 60, OverlapRatio: 0}
	chunks, err := c.Chunk(doc, cfg)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected at least two chunks, got %d", len(chunks))
	}
	var sawSyllabus, sawMajority bool
	for _, ch := range chunks {
		switch ch.Labels.OpinionType {
		case opinionSyllabus:
			sawSyllabus = true
		case opinionMajority:
			sawMajority = true
			if ch.Labels.AuthoringJustice != "Roberts" {
				t.Fatalf("majority chunk attributed to %q, want Roberts", ch.Labels.AuthoringJustice)
			}
		}
		if ch.Payload.Text != ch.Text {
			t.Fatalf("payload text does not carry the chunk text")
		}
		if ch.Payload.ChunkIndex != ch.Index {
			t.Fatalf("payload chunk index mismatch")
		}
	}
	if !sawSyllabus || !sawMajority {
		t.Fatalf("expected syllabus and majority chunks, got %#v", chunks)
	}
}

func TestChunk_OrderSubsectionLabels(t *testing.T) {
	c, err := New("cl100k_base")
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	doc := documents.Document{
		ID:   "order-1",
		Type: documents.TypeOrder,
		Text: "It is hereby ordered:\nSec. 1. Definitions. (a) The term agency has the meaning given in section 3502. (b) The term rule has the meaning given in section 551.",
	}
	chunks, err := c.Chunk(doc, documents.ChunkingConfig{MinTokens: 5, TargetTokens: 20, MaxTokens: 120, OverlapRatio: 0})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	var sawSection bool
	for _, ch := range chunks {
		if ch.Labels.ChunkType == orderSection {
			sawSection = true
			if ch.Labels.SectionTitle != "Sec. 1. Definitions." {
				t.Fatalf("section title = %q", ch.Labels.SectionTitle)
			}
		}
	}
	if !sawSection {
		t.Fatalf("expected a section chunk, got %#v", chunks)
	}
}

func TestChunk_EmptyDocumentYieldsNoChunks(t *testing.T) {
	c, err := New("cl100k_base")
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	chunks, err := c.Chunk(documents.Document{ID: "x", Type: documents.TypeOpinion, Text: ""}, OpinionConfig())
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected zero chunks for empty input, got %d", len(chunks))
	}
}
