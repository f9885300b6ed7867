package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-itembank/internal/question"
)

// block gathers the lines of one question before it is assembled.
type block struct {
	content []string
	answers []string
	clo     string
}

func (b *block) addText(s string) {
	if n := len(b.answers); n > 0 {
		b.answers[n-1] += " " + s
		return
	}
	b.content = append(b.content, s)
}

func (b *block) empty() bool { return len(b.content) == 0 && len(b.answers) == 0 }

func (b *block) question() *question.Question {
	content := strings.TrimSpace(strings.Join(b.content, "\n"))
	return &question.Question{
		ID:              uuid.NewString(),
		Type:            question.TypeSingle,
		Content:         content,
		OriginalContent: content,
		CLO:             b.clo,
		Answers:         ExtractAnswers(b.answers),
	}
}

// buildSingle consumes toks from start until [<br>] (consumed) or the next
// start/child/group-end marker (not consumed).
func (s *segmenter) buildSingle(toks []Token, start int) (*question.Question, int, error) {
	var b block
	j := start
loop:
	for ; j < len(toks); j++ {
		t := toks[j]
		switch t.Kind {
		case TokBreak:
			j++
			break loop
		case TokSingle, TokGroup, TokFillBlank, TokChild, TokGroupEnd:
			break loop
		case TokCLO:
			if len(b.answers) > 0 {
				// belongs to whatever follows
				break loop
			}
			if b.clo == "" {
				b.clo = t.Text
			}
		case TokAnswer:
			b.answers = append(b.answers, t.Text)
		case TokText:
			b.addText(t.Text)
		}
	}
	if b.empty() {
		return nil, j, ErrEmptyBlock
	}
	return b.question(), j, nil
}

func (s *segmenter) buildFillBlank(start int) (*question.Question, int, error) {
	j := start
	for j < len(s.toks) && (s.toks[j].Kind == TokBlank || s.toks[j].Kind == TokCLO) {
		j++
	}
	if j < len(s.toks) && s.toks[j].Kind == TokGroupStart {
		return s.buildGroup(start, question.TypeFillInBlank)
	}
	q, next, err := s.buildSingle(s.toks, start)
	if err != nil {
		return nil, next, err
	}
	q.Type = question.TypeFillInBlank
	return q, next, nil
}

var blankPlaceholder = regexp.MustCompile(`\{\s*<\s*(\d+)\s*>\s*\}`)

// buildGroup reads an optional CLO, the passage, then the children. The
// group ends at [</sg>] (consumed), the next top-level start marker or EOF.
func (s *segmenter) buildGroup(start int, typ question.Type) (*question.Question, int, error) {
	toks := s.toks
	q := &question.Question{ID: uuid.NewString(), Type: typ}
	j := start
	for j < len(toks) && (toks[j].Kind == TokBlank || toks[j].Kind == TokCLO) {
		if toks[j].Kind == TokCLO && q.CLO == "" {
			q.CLO = toks[j].Text
		}
		j++
	}

	end, next := s.groupEnd(j)
	region := toks[:end]

	var passage []string
	addPassage := func(t Token) {
		switch t.Kind {
		case TokText, TokAnswer:
			passage = append(passage, t.Text)
		case TokBlank:
			passage = append(passage, "")
		}
	}
	withMarkers := hasChildMarker(region, j)
	switch {
	case j < end && toks[j].Kind == TokGroupStart:
		j++
		closed := false
	passageLoop:
		for ; j < end; j++ {
			switch toks[j].Kind {
			case TokGroupContentEnd:
				closed = true
				j++
				break passageLoop
			case TokChild:
				break passageLoop
			default:
				addPassage(toks[j])
			}
		}
		if !closed {
			return nil, 0, ErrUnterminatedPassage
		}
	case withMarkers:
		for ; j < end && toks[j].Kind != TokChild; j++ {
			addPassage(toks[j])
		}
	default:
		// no markers at all: the first paragraph is the passage
		for j < end && toks[j].Kind == TokBlank {
			j++
		}
		for ; j < end && toks[j].Kind != TokBlank && toks[j].Kind != TokAnswer; j++ {
			addPassage(toks[j])
		}
	}
	q.GroupContent = strings.TrimSpace(strings.Join(passage, "\n"))
	q.OriginalContent = q.GroupContent

	childType := question.TypeSingle
	if typ == question.TypeFillInBlank {
		childType = question.TypeFillInBlank
		q.HasFillInBlank = true
	}
	var children []*question.Question
	if hasChildMarker(region, j) {
		children = s.childrenByMarker(region, j, childType)
	} else {
		children = fallbackChildren(region, j, childType)
	}
	sort.SliceStable(children, func(a, b int) bool { return children[a].Number < children[b].Number })
	if len(children) == 0 {
		return nil, 0, ErrNoChildren
	}
	q.Children = children
	for _, m := range blankPlaceholder.FindAllStringSubmatch(q.GroupContent, -1) {
		n, _ := strconv.Atoi(m[1])
		q.BlankMarkers = append(q.BlankMarkers, n)
	}
	return q, next, nil
}

// groupEnd returns the exclusive end of the group's tokens and the resume
// index. A CLO tag directly before the next start marker is left for it.
func (s *segmenter) groupEnd(from int) (end, next int) {
	toks := s.toks
	for k := from; k < len(toks); k++ {
		switch {
		case toks[k].Kind == TokGroupEnd:
			return k, k + 1
		case toks[k].Kind.IsStart():
			end = k
			for end > from && (toks[end-1].Kind == TokCLO || toks[end-1].Kind == TokBlank) {
				end--
			}
			return end, end
		}
	}
	return len(toks), len(toks)
}

func hasChildMarker(toks []Token, from int) bool {
	for _, t := range toks[min(from, len(toks)):] {
		if t.Kind == TokChild {
			return true
		}
	}
	return false
}

func (s *segmenter) childrenByMarker(region []Token, j int, typ question.Type) []*question.Question {
	var (
		out     []*question.Question
		pending string
	)
	for j < len(region) {
		t := region[j]
		switch t.Kind {
		case TokCLO:
			pending = t.Text
			j++
		case TokChild:
			c, next, err := s.buildSingle(region, j+1)
			if err != nil {
				s.fail(t, fmt.Errorf("child %d: %w", t.Num, err))
				j++
				continue
			}
			c.Number = t.Num
			c.Type = typ
			if c.CLO == "" {
				c.CLO = pending
			}
			pending = ""
			out = append(out, c)
			j = next
		default:
			j++
		}
	}
	return out
}

// fallbackChildren splits on blank paragraphs. A paragraph that opens
// with an option belongs to the child before it.
func fallbackChildren(region []Token, j int, typ question.Type) []*question.Question {
	var blocks []*block
	var cur *block
	newPara := true
	for ; j < len(region); j++ {
		t := region[j]
		switch t.Kind {
		case TokBlank, TokBreak:
			newPara = true
			continue
		case TokText, TokAnswer, TokCLO:
		default:
			continue
		}
		if newPara {
			newPara = false
			if t.Kind != TokAnswer || cur == nil {
				cur = &block{}
				blocks = append(blocks, cur)
			}
		}
		switch t.Kind {
		case TokCLO:
			if cur.clo == "" {
				cur.clo = t.Text
			}
		case TokAnswer:
			cur.answers = append(cur.answers, t.Text)
		case TokText:
			cur.addText(t.Text)
		}
	}
	var out []*question.Question
	for _, b := range blocks {
		if b.empty() {
			continue
		}
		c := b.question()
		c.Type = typ
		c.Number = len(out) + 1
		out = append(out, c)
	}
	return out
}
