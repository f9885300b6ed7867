package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-itembank/internal/question"
)

// HeuristicStrategy handles documents without start markers. Questions are
// separated by [<br>], "===" lines, numbered headers ("1.", "Câu 3:",
// "Question 4") or a paragraph break after the options. [<sg>] blocks are
// still read as groups, and an option-less paragraph introducing a
// passage ("Read the following...", "Đọc đoạn văn...") opens a group for
// the questions after it.
type HeuristicStrategy struct{}

func (HeuristicStrategy) Name() string { return "heuristic" }

var (
	questionHeader = regexp.MustCompile(`(?i)^\s*(?:(?:câu|question|bài)\s*\d+\s*[.:)]?\s*|\d+[.)]\s+)`)
	passagePhrase  = regexp.MustCompile(`(?i)read\s+the\s+(following|passage|text)|listen\s+to|đọc\s+(đoạn|bài|văn\s+bản)|nghe\s+(đoạn|bài)`)
)

func (HeuristicStrategy) Parse(_ context.Context, in Input) (*Result, error) {
	toks := Lex(in.Lines)
	anyAnswer := false
	for _, t := range toks {
		if t.Kind == TokAnswer {
			anyAnswer = true
			break
		}
	}
	if !anyAnswer {
		return nil, ErrNotApplicable
	}

	s := &segmenter{toks: toks}
	res := &Result{}
	var (
		cur       *block
		curLine   int
		afterGap  bool
		passageQ  *question.Question
		collected []*question.Question
	)
	emitTop := func(q *question.Question) {
		q.Number = len(collected) + 1
		collected = append(collected, q)
	}
	closeBlock := func() {
		b := cur
		cur = nil
		if b == nil || b.empty() {
			return
		}
		if len(b.answers) == 0 {
			text := strings.Join(b.content, "\n")
			if passagePhrase.MatchString(text) {
				passageQ = &question.Question{
					ID:           uuid.NewString(),
					Type:         question.TypeGroup,
					GroupContent: strings.TrimSpace(text),
					CLO:          b.clo,
				}
				passageQ.OriginalContent = passageQ.GroupContent
				emitTop(passageQ)
				return
			}
			passageQ = nil
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: paragraph without options skipped", curLine))
			return
		}
		q := b.question()
		if passageQ != nil {
			q.Number = len(passageQ.Children) + 1
			passageQ.Children = append(passageQ.Children, q)
			return
		}
		emitTop(q)
	}
	open := func(line int) {
		if cur == nil {
			cur = &block{}
			curLine = line
		}
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.Kind {
		case TokGroupStart:
			closeBlock()
			passageQ = nil
			s.ordinal++
			q, next, err := s.buildGroup(i, question.TypeGroup)
			if err != nil {
				s.fail(t, err)
				continue
			}
			emitTop(q)
			i = next - 1
		case TokBreak:
			closeBlock()
		case TokBlank:
			afterGap = true
			continue
		case TokCLO:
			if cur != nil && !cur.empty() {
				closeBlock()
			}
			open(t.Line)
			cur.clo = t.Text
		case TokAnswer:
			open(t.Line)
			cur.answers = append(cur.answers, t.Text)
		case TokText:
			text := t.Text
			if strings.TrimSpace(text) == "===" {
				closeBlock()
				break
			}
			header := questionHeader.FindString(text)
			switch {
			case cur == nil:
			case len(cur.answers) > 0 && (afterGap || header != ""):
				closeBlock()
			case header != "" && !cur.empty():
				closeBlock()
			case afterGap && passagePhrase.MatchString(strings.Join(cur.content, " ")):
				closeBlock()
			}
			if header != "" {
				text = strings.TrimSpace(text[len(header):])
			}
			open(t.Line)
			if text != "" {
				cur.addText(text)
			}
		}
		afterGap = false
	}
	closeBlock()

	// drop passages that never received a question
	for _, q := range collected {
		if q.Type == question.TypeGroup && len(q.Children) == 0 {
			res.Warnings = append(res.Warnings, "passage without questions skipped: "+abbrev(q.GroupContent))
			continue
		}
		res.Questions = append(res.Questions, q)
	}
	for i, q := range res.Questions {
		q.Number = i + 1
	}
	for _, e := range s.errs {
		res.Errors = append(res.Errors, e.Error())
	}
	return res, nil
}

func abbrev(s string) string {
	r := []rune(s)
	if len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return s
}
