package importer

import (
	"github.com/mind-engage/mindengage-itembank/internal/content"
	"github.com/mind-engage/mindengage-itembank/internal/media"
	"github.com/mind-engage/mindengage-itembank/internal/question"
)

type Statistics struct {
	TotalQuestions       int `json:"totalQuestions"`
	GroupQuestions       int `json:"groupQuestions"`
	SingleQuestions      int `json:"singleQuestions"`
	FillInBlankQuestions int `json:"fillInBlankQuestions"`
	MultiChoiceQuestions int `json:"multiChoiceQuestions"`
	ChildQuestions       int `json:"childQuestions"`
	WithLatex            int `json:"questionsWithLatex"`
	WithMedia            int `json:"questionsWithMedia"`
	Shuffle              int `json:"hoanVi1"`
	NoShuffle            int `json:"hoanVi0"`

	TotalMedia      int `json:"totalMedia"`
	AudioFiles      int `json:"audioFiles"`
	ImageFiles      int `json:"imageFiles"`
	ImagesConverted int `json:"imagesConverted"`
	UploadsFailed   int `json:"uploadsFailed"`
	Skipped         int `json:"mediaSkipped"`

	Replacements content.Stats `json:"replacements"`
}

func collect(qs []*question.Question, assets []*media.Asset, rep media.Report, refs []question.MediaReference) Statistics {
	var s Statistics
	for _, q := range qs {
		s.TotalQuestions++
		switch q.Type {
		case question.TypeGroup:
			s.GroupQuestions++
		case question.TypeFillInBlank:
			s.FillInBlankQuestions++
		case question.TypeMultiChoice:
			s.MultiChoiceQuestions++
		default:
			s.SingleQuestions++
		}
		s.ChildQuestions += len(q.Children)
	}
	question.Walk(qs, func(q, _ *question.Question) {
		if q.HasLatex {
			s.WithLatex++
		}
		if len(q.MediaReferences) > 0 || len(q.AttachedMedia) > 0 {
			s.WithMedia++
		}
		if q.IsGroupShaped() {
			return
		}
		if q.ShuffleEligible {
			s.Shuffle++
		} else {
			s.NoShuffle++
		}
	})
	for _, a := range assets {
		s.TotalMedia++
		switch a.FileType {
		case media.FileAudio:
			s.AudioFiles++
		case media.FileImage:
			s.ImageFiles++
		}
	}
	s.ImagesConverted = rep.ImagesConverted
	s.UploadsFailed = rep.Failed
	s.Skipped = rep.Skipped
	s.Replacements = content.Statistics(refs)
	return s
}
