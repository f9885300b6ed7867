package media

import (
	"regexp"
	"strings"

	"github.com/mind-engage/mindengage-itembank/internal/question"
)

// Assignment records why an image was bound to a question.
type Assignment struct {
	AssetID    string  `json:"assetId"`
	FileName   string  `json:"fileName"`
	QuestionID string  `json:"questionId"`
	Pass       int     `json:"pass"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Trace lists every binding plus the images nothing claimed.
type Trace struct {
	Assignments []Assignment `json:"assignments"`
	Unassigned  []string     `json:"unassigned,omitempty"`
}

// Associator binds image assets to questions. Implementations are best
// effort; the trace says how confident each binding is.
type Associator interface {
	Associate(qs []*question.Question, assets []*Asset) Trace
}

var imageKeywords = regexp.MustCompile(`(?i)\bfigure\s+\d+|hình\s+\d+|hình\s+ảnh|\bimage\s+\d+|\bdiagram\b|biểu\s+đồ|\bgraph\b|đồ\s+thị|\bpicture\b|\bphoto\b|\billustration\b|minh\s+họa`)

// KeywordAssociator runs four passes over the pool of unbound images:
//
//	0. content naming the image ([image: x] or an <img> src) binds it
//	1. every reference keyword ("figure 2", "hình ảnh", ...) binds the next image
//	2. top-level questions still without an image, groups first
//	3. child questions still without an image
type KeywordAssociator struct{}

func (KeywordAssociator) Associate(qs []*question.Question, assets []*Asset) Trace {
	var images []*Asset
	for _, a := range assets {
		if a.FileType == FileImage {
			images = append(images, a)
		}
	}
	var (
		tr       Trace
		taken    = map[string]bool{}
		hasImage = map[string]bool{}
	)
	bind := func(q *question.Question, a *Asset, pass int, reason string, conf float64) {
		taken[a.ID] = true
		hasImage[q.ID] = true
		q.AttachedMedia = append(q.AttachedMedia, a.ID)
		tr.Assignments = append(tr.Assignments, Assignment{
			AssetID: a.ID, FileName: a.OriginalName, QuestionID: q.ID,
			Pass: pass, Reason: reason, Confidence: conf,
		})
	}
	next := func() *Asset {
		for _, a := range images {
			if !taken[a.ID] {
				return a
			}
		}
		return nil
	}

	explicit := map[string]bool{}
	question.Walk(qs, func(q, _ *question.Question) {
		text := questionText(q)
		for _, a := range images {
			if !taken[a.ID] && mentions(text, a.OriginalName) {
				bind(q, a, 0, "content names "+a.OriginalName, 1.0)
				explicit[q.ID] = true
			}
		}
	})

	question.Walk(qs, func(q, _ *question.Question) {
		if explicit[q.ID] {
			return
		}
		for _, kw := range imageKeywords.FindAllString(questionText(q), -1) {
			a := next()
			if a == nil {
				return
			}
			bind(q, a, 1, "keyword "+strings.ToLower(kw), 0.6)
		}
	})

	var groups, singles []*question.Question
	for _, q := range qs {
		if q.IsGroupShaped() {
			groups = append(groups, q)
		} else {
			singles = append(singles, q)
		}
	}
	for _, q := range append(groups, singles...) {
		if hasImage[q.ID] {
			continue
		}
		a := next()
		if a == nil {
			break
		}
		bind(q, a, 2, "fallback: first question without an image", 0.3)
	}

	for _, q := range qs {
		for _, c := range q.Children {
			if hasImage[c.ID] {
				continue
			}
			a := next()
			if a == nil {
				break
			}
			bind(c, a, 3, "fallback: child question without an image", 0.2)
		}
	}

	for _, a := range images {
		if !taken[a.ID] {
			tr.Unassigned = append(tr.Unassigned, a.ID)
		}
	}
	return tr
}

func questionText(q *question.Question) string {
	var b strings.Builder
	b.WriteString(q.GroupContent)
	b.WriteByte('\n')
	b.WriteString(q.Content)
	for _, a := range q.Answers {
		b.WriteByte('\n')
		b.WriteString(a.Content)
	}
	return b.String()
}

func mentions(text, name string) bool {
	if name == "" {
		return false
	}
	q := regexp.QuoteMeta(name)
	re := regexp.MustCompile(`(?i)\[\s*image\s*:\s*` + q + `\s*\]|src=["'][^"']*` + q + `["']`)
	return re.MatchString(text)
}
