// Package docxtest builds small in-memory .docx files for tests.
package docxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Run is a formatted text run.
type Run struct {
	Text      string
	Underline bool
	Sub       bool
	Sup       bool
}

// U returns an underlined run.
func U(s string) Run { return Run{Text: s, Underline: true} }

type media struct {
	name string
	data []byte
}

type Builder struct {
	body  strings.Builder
	rels  []string
	media []media
}

func New() *Builder { return &Builder{} }

// P appends a paragraph. Each part is a string (plain run) or a Run.
func (b *Builder) P(parts ...interface{}) *Builder {
	b.body.WriteString("<w:p>")
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			b.writeRun(Run{Text: v})
		case Run:
			b.writeRun(v)
		default:
			panic(fmt.Sprintf("docxtest: unsupported part %T", p))
		}
	}
	b.body.WriteString("</w:p>")
	return b
}

// Lines appends one plain paragraph per line.
func (b *Builder) Lines(lines ...string) *Builder {
	for _, l := range lines {
		if l == "" {
			b.P()
			continue
		}
		b.P(l)
	}
	return b
}

// Picture stores data under word/media/name and places it in a paragraph
// of its own, optionally preceded by text.
func (b *Builder) Picture(name string, data []byte, before ...interface{}) *Builder {
	id := b.addMedia(name, data)
	b.body.WriteString("<w:p>")
	for _, p := range before {
		if s, ok := p.(string); ok {
			b.writeRun(Run{Text: s})
		}
	}
	b.body.WriteString(`<w:r><w:drawing><wp:inline><a:graphic><a:graphicData><pic:pic><pic:blipFill>`)
	fmt.Fprintf(&b.body, `<a:blip r:embed="%s"/>`, id)
	b.body.WriteString(`</pic:blipFill></pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`)
	return b
}

// Media stores a file under word/media/ without placing it in the body.
func (b *Builder) Media(name string, data []byte) *Builder {
	b.addMedia(name, data)
	return b
}

func (b *Builder) addMedia(name string, data []byte) string {
	b.media = append(b.media, media{name: name, data: data})
	id := fmt.Sprintf("rId%d", len(b.media)+10)
	b.rels = append(b.rels, fmt.Sprintf(
		`<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/%s"/>`,
		id, name))
	return id
}

func (b *Builder) writeRun(r Run) {
	b.body.WriteString("<w:r>")
	if r.Underline || r.Sub || r.Sup {
		b.body.WriteString("<w:rPr>")
		if r.Underline {
			b.body.WriteString(`<w:u w:val="single"/>`)
		}
		if r.Sub {
			b.body.WriteString(`<w:vertAlign w:val="subscript"/>`)
		}
		if r.Sup {
			b.body.WriteString(`<w:vertAlign w:val="superscript"/>`)
		}
		b.body.WriteString("</w:rPr>")
	}
	b.body.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(&b.body, []byte(r.Text))
	b.body.WriteString("</w:t></w:r>")
}

// Bytes renders the archive. Writing to memory cannot fail short of a bug,
// so errors panic.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name, content string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if data == nil {
			data = []byte(content)
		}
		if _, err := w.Write(data); err != nil {
			panic(err)
		}
	}
	add("[Content_Types].xml", contentTypes, nil)
	add("word/document.xml", docHead+b.body.String()+docTail, nil)
	add("word/_rels/document.xml.rels", relsHead+strings.Join(b.rels, "")+relsTail, nil)
	for _, m := range b.media {
		add("word/media/"+m.name, "", m.data)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
 xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
 xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
 xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
 xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture"><w:body>`

const docTail = `</w:body></w:document>`

const relsHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`

const relsTail = `</Relationships>`
