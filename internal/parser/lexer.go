package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies a token produced by Lex.
type Kind int

const (
	TokText Kind = iota
	TokBlank
	TokAnswer
	TokSingle          // (DON)
	TokGroup           // (NHOM)
	TokFillBlank       // (DIENKHUYET)
	TokCLO             // (CLOn)
	TokGroupStart      // [<sg>]
	TokGroupContentEnd // [<egc>]
	TokGroupEnd        // [</sg>], (KETTHUCNHOM), (KETTHUCDIENKHUYET)
	TokChild           // (<n>), (NHOM – n), (DIENKHUYET – n)
	TokBreak           // [<br>]
)

var kindNames = map[Kind]string{
	TokText: "text", TokBlank: "blank", TokAnswer: "answer",
	TokSingle: "(DON)", TokGroup: "(NHOM)", TokFillBlank: "(DIENKHUYET)",
	TokCLO: "(CLO)", TokGroupStart: "[<sg>]", TokGroupContentEnd: "[<egc>]",
	TokGroupEnd: "[</sg>]", TokChild: "(<n>)", TokBreak: "[<br>]",
}

func (k Kind) String() string { return kindNames[k] }

// IsStart reports whether k opens a top-level question.
func (k Kind) IsStart() bool {
	return k == TokSingle || k == TokGroup || k == TokFillBlank
}

// Token is one lexical unit. Line is the 1-based source line.
type Token struct {
	Kind   Kind
	Text   string // text/answer payload, CLO label
	Num    int    // child number
	Letter byte   // answer letter
	Line   int
}

type markerRule struct {
	kind Kind
	re   *regexp.Regexp
}

// Marker rules. When two rules match at the same offset the longer match
// wins, so "(NHOM – 2)" is a child marker and never "(NHOM)" plus text.
var markerRules = []markerRule{
	{TokGroupEnd, regexp.MustCompile(`(?i)\(\s*KETTHUC\s*(?:NHOM|NHÓM|DIENKHUYET|ĐIỀN\s*KHUYẾT)\s*\)`)},
	{TokChild, regexp.MustCompile(`(?i)\(\s*(?:NHOM|NHÓM|DIENKHUYET|ĐIỀN\s*KHUYẾT)\s*[-–—]\s*(\d+)\s*\)`)},
	{TokChild, regexp.MustCompile(`\(\s*<\s*(\d+)\s*>\s*\)`)},
	{TokFillBlank, regexp.MustCompile(`(?i)\(\s*(?:DIENKHUYET|ĐIỀN\s*KHUYẾT)\s*\)`)},
	{TokGroup, regexp.MustCompile(`(?i)\(\s*(?:NHOM|NHÓM)\s*\)`)},
	{TokSingle, regexp.MustCompile(`(?i)\(\s*(?:DON|ĐƠN)\s*\)`)},
	{TokCLO, regexp.MustCompile(`(?i)\(\s*(CLO\s*\d+)\s*\)`)},
	{TokGroupStart, regexp.MustCompile(`(?i)\[\s*<\s*sg\s*>\s*\]`)},
	{TokGroupContentEnd, regexp.MustCompile(`(?i)\[\s*<\s*egc\s*>\s*\]`)},
	{TokGroupEnd, regexp.MustCompile(`(?i)\[\s*<\s*/\s*sg\s*>\s*\]`)},
	{TokBreak, regexp.MustCompile(`(?i)\[\s*<\s*br\s*>\s*\]`)},
}

// answerLead matches an option letter at the start of a line, allowing
// formatting tags ahead of it ("<u>B. 4</u>").
var answerLead = regexp.MustCompile(`^\s*((?:<[^>]*>\s*)*)([A-D])[.)]`)

var tagRe = regexp.MustCompile(`<[^>]*>`)

type markerHit struct {
	start, end int
	kind       Kind
	text       string
	num        int
}

// Lex tokenizes extracted document lines. Markers may appear anywhere on a
// line; the line is split at every marker occurrence.
func Lex(lines []string) []Token {
	var out []Token
	for i, line := range lines {
		ln := i + 1
		if strings.TrimSpace(tagRe.ReplaceAllString(line, "")) == "" && !strings.Contains(line, "[image:") {
			out = append(out, Token{Kind: TokBlank, Line: ln})
			continue
		}
		hits := findMarkers(line)
		pos := 0
		for _, h := range hits {
			out = appendText(out, line[pos:h.start], pos == 0, ln)
			out = append(out, Token{Kind: h.kind, Text: h.text, Num: h.num, Line: ln})
			pos = h.end
		}
		out = appendText(out, line[pos:], pos == 0, ln)
	}
	return out
}

func findMarkers(line string) []markerHit {
	var hits []markerHit
	for _, r := range markerRules {
		for _, m := range r.re.FindAllStringSubmatchIndex(line, -1) {
			h := markerHit{start: m[0], end: m[1], kind: r.kind}
			if len(m) >= 4 && m[2] >= 0 {
				g := line[m[2]:m[3]]
				if r.kind == TokChild {
					h.num, _ = strconv.Atoi(g)
				} else {
					h.text = strings.ToUpper(strings.Join(strings.Fields(g), ""))
				}
			}
			hits = append(hits, h)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end-hits[i].start > hits[j].end-hits[j].start
	})
	// Drop overlaps; the earlier (or longer) hit is kept.
	kept := hits[:0]
	last := -1
	for _, h := range hits {
		if h.start < last {
			continue
		}
		kept = append(kept, h)
		last = h.end
	}
	return kept
}

func appendText(out []Token, s string, lineStart bool, ln int) []Token {
	if strings.TrimSpace(tagRe.ReplaceAllString(s, "")) == "" && !strings.Contains(s, "[image:") {
		return out
	}
	if lineStart {
		if letter, ok := answerLetter(s); ok {
			return append(out, Token{Kind: TokAnswer, Text: strings.TrimSpace(s), Letter: letter, Line: ln})
		}
	}
	return append(out, Token{Kind: TokText, Text: strings.TrimSpace(s), Line: ln})
}

func answerLetter(s string) (byte, bool) {
	m := answerLead.FindStringSubmatchIndex(s)
	if m == nil {
		return 0, false
	}
	// The delimiter must be followed by whitespace, a tag or end of line,
	// so "A.D. 1945" stays text.
	if m[1] < len(s) {
		switch s[m[1]] {
		case ' ', '\t', '<':
		default:
			return 0, false
		}
	}
	return s[m[4]], true
}

func hasStartMarker(toks []Token) bool {
	for _, t := range toks {
		if t.Kind.IsStart() {
			return true
		}
	}
	return false
}
