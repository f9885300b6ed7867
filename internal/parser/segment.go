package parser

import (
	"errors"
	"fmt"

	"github.com/mind-engage/mindengage-itembank/internal/question"
)

var (
	ErrEmptyBlock          = errors.New("question block has no content and no answers")
	ErrUnterminatedPassage = errors.New("group passage opened with [<sg>] is not closed by [<egc>]")
	ErrNoChildren          = errors.New("group has no child questions")
)

// ParseError is a block that could not be built. It never aborts the
// remaining document.
type ParseError struct {
	Ordinal int // 1-based position among start markers
	Line    int
	Marker  string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("question %d (line %d, %s): %v", e.Ordinal, e.Line, e.Marker, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type segmenter struct {
	toks    []Token
	ordinal int
	errs    []*ParseError
}

// Segment walks the token stream and builds every question it finds. Tokens
// outside any question are skipped. A failing block is recorded and
// scanning resumes right after its start marker.
func Segment(toks []Token) ([]*question.Question, []*ParseError) {
	s := &segmenter{toks: toks}
	var (
		out        []*question.Question
		pendingCLO string
	)
	for i := 0; i < len(toks); {
		t := toks[i]
		if t.Kind == TokCLO {
			pendingCLO = t.Text
			i++
			continue
		}
		if !t.Kind.IsStart() {
			i++
			continue
		}
		s.ordinal++
		var (
			q    *question.Question
			next int
			err  error
		)
		switch t.Kind {
		case TokSingle:
			q, next, err = s.buildSingle(toks, i+1)
			if q != nil {
				q.Type = question.TypeSingle
			}
		case TokGroup:
			q, next, err = s.buildGroup(i+1, question.TypeGroup)
		case TokFillBlank:
			q, next, err = s.buildFillBlank(i + 1)
		}
		if err != nil {
			s.fail(t, err)
			i++
			continue
		}
		if q.CLO == "" {
			q.CLO = pendingCLO
		}
		q.Number = len(out) + 1
		pendingCLO = ""
		out = append(out, q)
		i = next
	}
	return out, s.errs
}

func (s *segmenter) fail(t Token, err error) {
	s.errs = append(s.errs, &ParseError{Ordinal: s.ordinal, Line: t.Line, Marker: t.Kind.String(), Err: err})
}
