package parser

import (
	"regexp"

	"github.com/mind-engage/mindengage-itembank/internal/question"
)

var blankIndicators = []*regexp.Regexp{
	regexp.MustCompile(`_{2,}`),
	regexp.MustCompile(`\.{3,}|…`),
	regexp.MustCompile(`(?i)[(\[<{]\s*(?:\.{2,}|_{2,}|…|blank|điền|trống)\s*[)\]>}]`),
	regexp.MustCompile(`\{\s*<\s*\d+\s*>\s*\}`),
	regexp.MustCompile(`(?i)điền|khuyết|\bfill\b|\bblank\b|\bmissing\b`),
}

// HasBlankIndicator reports whether text looks like it asks for a blank to
// be completed.
func HasBlankIndicator(text string) bool {
	for _, re := range blankIndicators {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// classifyFillInBlank retypes plain singles that carry blank indicators and
// flags groups that contain them. Groups are never retyped, and types set
// by an explicit marker or by multiple correct answers are kept.
func classifyFillInBlank(qs []*question.Question) {
	for _, q := range qs {
		if q.IsGroupShaped() {
			flagged := HasBlankIndicator(q.GroupContent)
			for _, c := range q.Children {
				if HasBlankIndicator(c.Content) {
					flagged = true
					if c.Type == question.TypeSingle {
						c.Type = question.TypeFillInBlank
					}
				}
			}
			if flagged {
				q.HasFillInBlank = true
			}
			continue
		}
		if q.Type == question.TypeSingle && HasBlankIndicator(q.Content) {
			q.Type = question.TypeFillInBlank
		}
	}
}

var latexPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\$[\s\S]+?\$\$`),
	regexp.MustCompile(`\$[^$\n]+?\$`),
	regexp.MustCompile(`\\begin\{equation\}`),
	regexp.MustCompile(`\\begin\{align\}`),
	regexp.MustCompile(`\\frac\{[^}]*\}\{[^}]*\}`),
	regexp.MustCompile(`\\sqrt\{[^}]*\}`),
	regexp.MustCompile(`\\sum_\{[^}]*\}`),
	regexp.MustCompile(`\\ce\{[^}]*\}`),
	regexp.MustCompile(`H_\d+O`),
	regexp.MustCompile(`(?:H|C|O|N|P|S|Cl|Na|K|Ca|Fe|Mg)_\d+`),
	regexp.MustCompile(`\d+\((?:aq|s|l|g)\)`),
	regexp.MustCompile(`CH_\d+`),
	regexp.MustCompile(`C\dH\d+`),
}

// HasLatex reports whether text holds a math or chemistry expression.
func HasLatex(text string) bool {
	for _, re := range latexPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// markLatex sets HasLatex on every question whose content, passage,
// answers or children carry an expression. It returns the flag for q.
func markLatex(q *question.Question) bool {
	has := HasLatex(q.Content) || HasLatex(q.GroupContent)
	for _, a := range q.Answers {
		if HasLatex(a.Content) {
			has = true
		}
	}
	for _, c := range q.Children {
		if markLatex(c) {
			has = true
		}
	}
	q.HasLatex = has
	return has
}

// Finalize brings questions from any strategy to the same shape: group
// questions hold no answers, answer orders are dense, at least one answer
// is correct, and the derived flags are set. Warnings describe fixes made.
func Finalize(qs []*question.Question) []string {
	var warnings []string
	question.Walk(qs, func(q, _ *question.Question) {
		if q.IsGroupShaped() {
			if len(q.Answers) > 0 {
				warnings = append(warnings, "group question "+q.ID+" had answers of its own; they were dropped")
				q.Answers = nil
			}
			if q.Type != question.TypeFillInBlank {
				q.Type = question.TypeGroup
			}
			q.ShuffleEligible = true
			return
		}
		normalizeOrders(q.Answers)
		ensureCorrect(q.Answers)
		if q.Type == question.TypeSingle && correctCount(q.Answers) > 1 {
			q.Type = question.TypeMultiChoice
		}
		q.ShuffleEligible = ShuffleEligible(q.Answers)
		if q.OriginalContent == "" {
			q.OriginalContent = q.Content
		}
	})
	classifyFillInBlank(qs)
	for _, q := range qs {
		markLatex(q)
	}
	return warnings
}
