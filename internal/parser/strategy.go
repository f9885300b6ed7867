package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/mind-engage/mindengage-itembank/internal/logger"
	"github.com/mind-engage/mindengage-itembank/internal/question"
)

// ErrNotApplicable tells the chain to try the next strategy without
// recording a warning.
var ErrNotApplicable = errors.New("parser: strategy not applicable")

// Input is what every strategy gets to work with.
type Input struct {
	Lines   []string // extracted markup, one paragraph per line
	DocPath string   // the .docx on disk, for strategies that need the file
}

// Result has the same shape whichever strategy produced it.
type Result struct {
	Strategy  string
	Questions []*question.Question
	Errors    []string
	Warnings  []string
}

type Strategy interface {
	Name() string
	Parse(ctx context.Context, in Input) (*Result, error)
}

// Chain tries strategies in order. A strategy that fails, is not
// applicable or finds nothing hands over to the next one.
type Chain struct {
	strategies []Strategy
	log        *logger.Logger
}

func NewChain(log *logger.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, log: logger.OrNop(log)}
}

// Default is the external parser (when configured) followed by the marker
// grammar and the heuristic splitter.
func Default(log *logger.Logger, external *ProcessStrategy) *Chain {
	var ss []Strategy
	if external != nil {
		ss = append(ss, external)
	}
	ss = append(ss, MarkerStrategy{}, HeuristicStrategy{})
	return NewChain(log, ss...)
}

func (c *Chain) Parse(ctx context.Context, in Input) (*Result, error) {
	var (
		notes []string
		empty *Result
	)
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.Parse(ctx, in)
		switch {
		case errors.Is(err, ErrNotApplicable):
			c.log.Debug("parser strategy not applicable", "strategy", s.Name())
			continue
		case err != nil:
			c.log.Warn("parser strategy failed", "strategy", s.Name(), "error", err)
			notes = append(notes, fmt.Sprintf("parser %s failed: %v", s.Name(), err))
			continue
		}
		res.Strategy = s.Name()
		if len(res.Questions) == 0 && len(res.Errors) > 0 {
			// The strategy recognised the document and rejected its blocks;
			// a later strategy would only re-read them without the grammar.
			res.Warnings = append(notes, res.Warnings...)
			c.log.Info("document rejected", "strategy", s.Name(), "errors", len(res.Errors))
			return res, nil
		}
		if len(res.Questions) == 0 {
			if empty == nil {
				empty = res
			}
			continue
		}
		res.Warnings = append(notes, append(res.Warnings, Finalize(res.Questions)...)...)
		c.log.Info("document parsed", "strategy", s.Name(), "questions", len(res.Questions), "errors", len(res.Errors))
		return res, nil
	}
	if empty == nil {
		empty = &Result{Strategy: "none"}
	}
	empty.Warnings = append(notes, empty.Warnings...)
	return empty, nil
}

// MarkerStrategy is the marker grammar: tokenizer plus state machine.
type MarkerStrategy struct{}

func (MarkerStrategy) Name() string { return "marker" }

func (MarkerStrategy) Parse(_ context.Context, in Input) (*Result, error) {
	toks := Lex(in.Lines)
	if !hasStartMarker(toks) {
		return nil, ErrNotApplicable
	}
	qs, perrs := Segment(toks)
	res := &Result{Questions: qs}
	for _, e := range perrs {
		res.Errors = append(res.Errors, e.Error())
	}
	return res, nil
}
