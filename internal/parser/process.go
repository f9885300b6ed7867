package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-itembank/internal/question"
)

// ProcessStrategy runs an external document parser as
//
//	<command...> <input.docx> <output.json>
//
// and reads the question list it writes.
type ProcessStrategy struct {
	Command []string
	Timeout time.Duration
}

// NewProcessStrategy returns nil when command is empty.
func NewProcessStrategy(command string, timeout time.Duration) *ProcessStrategy {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ProcessStrategy{Command: fields, Timeout: timeout}
}

func (p *ProcessStrategy) Name() string { return "process" }

type externalAnswer struct {
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
}

type externalQuestion struct {
	Content        string             `json:"content"`
	Type           string             `json:"type"`
	CLO            string             `json:"clo"`
	GroupContent   string             `json:"groupContent"`
	Answers        []externalAnswer   `json:"answers"`
	ChildQuestions []externalQuestion `json:"childQuestions"`
}

func (p *ProcessStrategy) Parse(ctx context.Context, in Input) (*Result, error) {
	if in.DocPath == "" {
		return nil, ErrNotApplicable
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := os.CreateTemp(filepath.Dir(in.DocPath), "parsed-*.json")
	if err != nil {
		return nil, err
	}
	outPath := out.Name()
	_ = out.Close()
	defer os.Remove(outPath)

	args := append(append([]string{}, p.Command[1:]...), in.DocPath, outPath)
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("external parser timed out after %s", p.Timeout)
		}
		return nil, fmt.Errorf("external parser: %w: %s", err, strings.TrimSpace(lastLine(stderr.String())))
	}
	b, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read parser output: %w", err)
	}
	var ext []externalQuestion
	if err := json.Unmarshal(b, &ext); err != nil {
		return nil, fmt.Errorf("decode parser output: %w", err)
	}
	res := &Result{}
	for i, e := range ext {
		q := fromExternal(e)
		q.Number = i + 1
		res.Questions = append(res.Questions, q)
	}
	return res, nil
}

func fromExternal(e externalQuestion) *question.Question {
	q := &question.Question{
		ID:           uuid.NewString(),
		Type:         externalType(e.Type),
		Content:      strings.TrimSpace(e.Content),
		GroupContent: strings.TrimSpace(e.GroupContent),
		CLO:          strings.Trim(e.CLO, "() "),
	}
	q.OriginalContent = q.Content
	for i, a := range e.Answers {
		q.Answers = append(q.Answers, question.Answer{
			ID:           uuid.NewString(),
			Content:      stripUnderline(a.Content),
			IsCorrect:    a.IsCorrect,
			HasUnderline: a.IsCorrect,
			Order:        i,
		})
	}
	for i, c := range e.ChildQuestions {
		child := fromExternal(c)
		child.Number = i + 1
		q.Children = append(q.Children, child)
	}
	if len(q.Children) > 0 && q.GroupContent == "" {
		q.GroupContent, q.Content = q.Content, ""
		q.OriginalContent = q.GroupContent
	}
	return q
}

func externalType(t string) question.Type {
	switch strings.ToLower(strings.ReplaceAll(t, "_", "-")) {
	case "group", "group-question":
		return question.TypeGroup
	case "multi-choice", "multiple-choice":
		return question.TypeMultiChoice
	case "fill-blank", "fill-in-blank":
		return question.TypeFillInBlank
	default:
		return question.TypeSingle
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
