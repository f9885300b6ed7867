// Package content rewrites local media references in question text to the
// URLs the assets were uploaded to.
package content

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/mind-engage/mindengage-itembank/internal/logger"
	"github.com/mind-engage/mindengage-itembank/internal/media"
	"github.com/mind-engage/mindengage-itembank/internal/question"
)

const imageStyle = "max-width: 400px; height: auto;"

// AudioTag and ImageTag are the canonical replacement markup.
func AudioTag(url string) string { return fmt.Sprintf(`<audio src="%s" controls></audio>`, url) }
func ImageTag(url string) string { return fmt.Sprintf(`<img src="%s" style="%s">`, url, imageStyle) }

type Engine struct {
	log *logger.Logger
}

func NewEngine(log *logger.Logger) *Engine {
	return &Engine{log: logger.OrNop(log).With("component", "content")}
}

// rule matches every local spelling of one uploaded asset.
type rule struct {
	re    *regexp.Regexp
	kind  string
	asset *media.Asset
	tag   string
}

func rulesFor(a *media.Asset) []rule {
	if a.UploadedURL == "" {
		return nil
	}
	name := regexp.QuoteMeta(a.OriginalName)
	switch a.FileType {
	case media.FileAudio:
		tag := AudioTag(a.UploadedURL)
		return []rule{
			{re: regexp.MustCompile(`(?i)<audio\b[^>]*\bsrc=["'](?:\./)?audio/` + name + `["'][^>]*>(?:\s*</audio>)?`), kind: "audio", asset: a, tag: tag},
			{re: regexp.MustCompile(`(?i)<audio>\s*` + name + `\s*</audio>`), kind: "audio", asset: a, tag: tag},
			{re: regexp.MustCompile(`(?i)\[\s*audio\s*:\s*` + name + `\s*\]`), kind: "audio", asset: a, tag: tag},
		}
	case media.FileImage:
		tag := ImageTag(a.UploadedURL)
		names := name
		if a.ConvertedName != "" {
			base := strings.TrimSuffix(a.OriginalName, path.Ext(a.OriginalName))
			names = "(?:" + name + "|" + regexp.QuoteMeta(base+path.Ext(a.ConvertedName)) + "|" + regexp.QuoteMeta(a.ConvertedName) + ")"
		}
		// Word names embedded media image1.png, image2.png... so a package
		// file may share its name. Paths under images/ point at package
		// files; [image: ...] tokens come from the document body.
		var rs []rule
		if a.Origin != media.OriginDocument {
			rs = append(rs, rule{re: regexp.MustCompile(`(?i)<img\b[^>]*\bsrc=["'](?:\./)?images/` + names + `["'][^>]*>`), kind: "image", asset: a, tag: tag})
		}
		if a.Origin != media.OriginPackage {
			rs = append(rs, rule{re: regexp.MustCompile(`(?i)\[\s*image\s*:\s*` + name + `\s*\]`), kind: "image", asset: a, tag: tag})
		}
		return rs
	}
	return nil
}

// Replace rewrites every reference to an uploaded asset in text. Assets
// without a URL are left alone, so their references stay local.
func (e *Engine) Replace(text string, assets []*media.Asset) (string, []question.MediaReference) {
	var refs []question.MediaReference
	for _, a := range assets {
		for _, r := range rulesFor(a) {
			text = r.re.ReplaceAllStringFunc(text, func(m string) string {
				refs = append(refs, question.MediaReference{
					Type:           r.kind,
					OriginalPath:   "./" + a.Folder + "/" + a.OriginalName,
					FileName:       a.OriginalName,
					NewURL:         a.UploadedURL,
					TagContent:     m,
					ReplacementTag: r.tag,
				})
				return r.tag
			})
		}
	}
	return text, refs
}

// ApplyAll rewrites content, group content and answers of every question
// and child. It returns all references made and the unresolved local
// references left behind, one warning each.
func (e *Engine) ApplyAll(qs []*question.Question, assets []*media.Asset) ([]question.MediaReference, []string) {
	var (
		all      []question.MediaReference
		warnings []string
	)
	question.Walk(qs, func(q, parent *question.Question) {
		var refs, r []question.MediaReference
		q.Content, r = e.Replace(q.Content, assets)
		refs = append(refs, r...)
		q.GroupContent, r = e.Replace(q.GroupContent, assets)
		refs = append(refs, r...)
		for i := range q.Answers {
			q.Answers[i].Content, r = e.Replace(q.Answers[i].Content, assets)
			refs = append(refs, r...)
		}
		q.MediaReferences = append(q.MediaReferences, refs...)
		all = append(all, refs...)

		label := fmt.Sprintf("question %d", q.Number)
		if parent != nil {
			label = fmt.Sprintf("question %d.%d", parent.Number, q.Number)
		}
		for _, field := range fieldsOf(q) {
			for _, u := range Validate(field) {
				warnings = append(warnings, fmt.Sprintf("%s: unresolved media reference %s", label, u))
			}
		}
	})
	if len(all) > 0 || len(warnings) > 0 {
		e.log.Info("media references rewritten", "replaced", len(all), "unresolved", len(warnings))
	}
	return all, warnings
}

func fieldsOf(q *question.Question) []string {
	out := []string{q.Content, q.GroupContent}
	for _, a := range q.Answers {
		out = append(out, a.Content)
	}
	return out
}

var unresolved = regexp.MustCompile(`(?i)<audio\b[^>]*\bsrc=["'](?:\./)?audio/[^"']+["'][^>]*>|<img\b[^>]*\bsrc=["'](?:\./)?images/[^"']+["'][^>]*>|<audio>[^<]+</audio>|\[\s*(?:audio|image)\s*:[^\]]*\]`)

// Validate lists the local media references still present in text.
func Validate(text string) []string {
	return unresolved.FindAllString(text, -1)
}

// Stats summarises a set of references.
type Stats struct {
	Total       int `json:"totalReplacements"`
	Audio       int `json:"audioReplacements"`
	Images      int `json:"imageReplacements"`
	UniqueFiles int `json:"uniqueFiles"`
}

func Statistics(refs []question.MediaReference) Stats {
	s := Stats{Total: len(refs)}
	files := map[string]struct{}{}
	for _, r := range refs {
		switch r.Type {
		case "audio":
			s.Audio++
		case "image":
			s.Images++
		}
		files[r.FileName] = struct{}{}
	}
	s.UniqueFiles = len(files)
	return s
}
