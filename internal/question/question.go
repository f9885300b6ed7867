// Package question holds the parsed exam question model shared by the
// parser, media and persistence layers.
package question

type Type string

const (
	TypeSingle      Type = "single"
	TypeGroup       Type = "group"
	TypeFillInBlank Type = "fill_in_blank"
	TypeMultiChoice Type = "multi_choice"
)

type Answer struct {
	ID           string `json:"id"`
	Content      string `json:"content"`
	IsCorrect    bool   `json:"isCorrect"`
	Order        int    `json:"order"`
	HasUnderline bool   `json:"hasUnderline"`
}

// MediaReference records one rewritten media occurrence in a question.
type MediaReference struct {
	Type           string `json:"type"` // audio|image
	OriginalPath   string `json:"originalPath"`
	FileName       string `json:"fileName"`
	NewURL         string `json:"newUrl"`
	TagContent     string `json:"tagContent"`
	ReplacementTag string `json:"replacementTag"`
}

type Question struct {
	ID              string `json:"id"`
	Number          int    `json:"number,omitempty"`
	Type            Type   `json:"type"`
	Content         string `json:"content"`
	OriginalContent string `json:"originalContent,omitempty"`
	GroupContent    string `json:"groupContent,omitempty"`
	CLO             string `json:"clo,omitempty"`

	Answers  []Answer    `json:"answers,omitempty"`
	Children []*Question `json:"children,omitempty"`

	HasLatex        bool `json:"hasLatex"`
	HasFillInBlank  bool `json:"hasFillInBlank,omitempty"`
	ShuffleEligible bool `json:"hoanVi"`

	// BlankMarkers lists {<n>} placeholder numbers found in the passage.
	BlankMarkers []int `json:"blankMarkers,omitempty"`

	MediaReferences []MediaReference `json:"mediaReferences,omitempty"`
	AttachedMedia   []string         `json:"attachedMedia,omitempty"`
}

// IsGroupShaped reports whether q owns children rather than answers.
func (q *Question) IsGroupShaped() bool {
	return q.Type == TypeGroup || len(q.Children) > 0
}

// Walk visits q and every descendant, parents first.
func Walk(qs []*Question, fn func(q *Question, parent *Question)) {
	var visit func(q, parent *Question)
	visit = func(q, parent *Question) {
		fn(q, parent)
		for _, c := range q.Children {
			visit(c, q)
		}
	}
	for _, q := range qs {
		visit(q, nil)
	}
}

// Find returns the question or child with the given id.
func Find(qs []*Question, id string) *Question {
	var found *Question
	Walk(qs, func(q, _ *Question) {
		if found == nil && q.ID == id {
			found = q
		}
	})
	return found
}

// Count returns the number of top-level questions plus all their children.
func Count(qs []*Question) int {
	n := 0
	Walk(qs, func(*Question, *Question) { n++ })
	return n
}
