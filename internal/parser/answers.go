package parser

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-itembank/internal/question"
)

var (
	underlineSignal = regexp.MustCompile(`(?i)<u(?:\s[^>]*)?>|text-decoration\s*:\s*underline`)
	underlineSpan   = regexp.MustCompile(`(?is)<span[^>]*text-decoration\s*:\s*underline[^>]*>(.*?)</span>`)
	underlineTag    = regexp.MustCompile(`(?i)</?u(?:\s[^>]*)?>`)
)

// ExtractAnswers builds options from raw "A. ..." lines in document order.
// An option is correct iff it carries the underline signal. When none does,
// the first option is marked correct.
func ExtractAnswers(raw []string) []question.Answer {
	out := make([]question.Answer, 0, len(raw))
	for i, line := range raw {
		underlined := underlineSignal.MatchString(line)
		out = append(out, question.Answer{
			ID:           uuid.NewString(),
			Content:      cleanAnswer(line),
			IsCorrect:    underlined,
			Order:        i,
			HasUnderline: underlined,
		})
	}
	ensureCorrect(out)
	return out
}

func cleanAnswer(line string) string {
	s := line
	if m := answerLead.FindStringSubmatchIndex(s); m != nil {
		// keep any leading tags, drop only the "B." prefix
		s = s[m[2]:m[3]] + s[m[1]:]
	}
	s = stripUnderline(s)
	return strings.Join(strings.Fields(s), " ")
}

func stripUnderline(s string) string {
	s = underlineSpan.ReplaceAllString(s, "$1")
	return underlineTag.ReplaceAllString(s, "")
}

func ensureCorrect(as []question.Answer) {
	if len(as) == 0 {
		return
	}
	for _, a := range as {
		if a.IsCorrect {
			return
		}
	}
	as[0].IsCorrect = true
}

// normalizeOrders rewrites orders to 0..n-1 following slice position.
func normalizeOrders(as []question.Answer) {
	for i := range as {
		as[i].Order = i
	}
}

func correctCount(as []question.Answer) int {
	n := 0
	for _, a := range as {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

var fixedLastOption = regexp.MustCompile(`(?i)(all|none)\s+of\s+the\s+above|tất\s+cả\s+(đều\s+)?(đúng|sai)|không\s+có\s+đáp\s+án\s+nào\s+đúng`)

// ShuffleEligible is false when the last option only makes sense in last
// position ("all of the above", "tất cả đều đúng", ...).
func ShuffleEligible(as []question.Answer) bool {
	if len(as) == 0 {
		return true
	}
	return !fixedLastOption.MatchString(as[len(as)-1].Content)
}
