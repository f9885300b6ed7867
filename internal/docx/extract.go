// Package docx turns a Word document into the line-oriented, lightly marked
// up text the question parser consumes.
//
// Each paragraph becomes one line. Underlined runs are wrapped in <u>..</u>
// (that is the only signal of a correct answer), super/subscript runs in
// <sup>/<sub>, and every embedded picture is replaced by an inline
// "[image: name]" token at the position it occupies in the text.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var ErrNoDocumentXML = errors.New("word/document.xml not found")

// Document is the extracted markup of a .docx file.
type Document struct {
	Lines  []string
	Images []ImageRef
}

// ImageRef is a picture placement found in the body.
type ImageRef struct {
	RelID  string
	Target string // path inside the archive, e.g. word/media/image1.png
	Name   string // base name used in the inline token
	Line   int    // index into Document.Lines
}

// Text joins the lines with "\n".
func (d *Document) Text() string { return strings.Join(d.Lines, "\n") }

// Extract reads a .docx from memory.
func Extract(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	return ExtractZip(zr)
}

// ExtractZip reads an already opened .docx archive.
func ExtractZip(zr *zip.Reader) (*Document, error) {
	index := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		index[f.Name] = f
	}
	docFile := index["word/document.xml"]
	if docFile == nil {
		return nil, ErrNoDocumentXML
	}
	rels, err := readRels(index["word/_rels/document.xml.rels"])
	if err != nil {
		return nil, err
	}
	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	doc, err := walkBody(rc, rels)
	if err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}
	return doc, nil
}

type relationships struct {
	XMLName xml.Name       `xml:"Relationships"`
	Rels    []relationship `xml:"Relationship"`
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Target string `xml:"Target,attr"`
}

func readRels(f *zip.File) (map[string]string, error) {
	out := map[string]string{}
	if f == nil {
		return out, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open document rels: %w", err)
	}
	defer rc.Close()
	var rs relationships
	if err := xml.NewDecoder(rc).Decode(&rs); err != nil {
		return nil, fmt.Errorf("parse document rels: %w", err)
	}
	for _, r := range rs.Rels {
		t := strings.TrimPrefix(r.Target, "/")
		if !strings.HasPrefix(t, "word/") {
			t = path.Clean("word/" + t)
		}
		out[r.ID] = t
	}
	return out, nil
}

type runStyle struct {
	underline bool
	vert      string // "", "superscript", "subscript"
}

// lineWriter accumulates one output line, merging adjacent runs that share
// a style so "<u>Ha</u><u>noi</u>" comes out as "<u>Hanoi</u>".
type lineWriter struct {
	b    strings.Builder
	open runStyle
}

func (w *lineWriter) write(s string, st runStyle) {
	if s == "" {
		return
	}
	if st != w.open {
		w.closeTags()
		w.openTags(st)
	}
	w.b.WriteString(s)
}

func (w *lineWriter) openTags(st runStyle) {
	if st.underline {
		w.b.WriteString("<u>")
	}
	switch st.vert {
	case "superscript":
		w.b.WriteString("<sup>")
	case "subscript":
		w.b.WriteString("<sub>")
	}
	w.open = st
}

func (w *lineWriter) closeTags() {
	switch w.open.vert {
	case "superscript":
		w.b.WriteString("</sup>")
	case "subscript":
		w.b.WriteString("</sub>")
	}
	if w.open.underline {
		w.b.WriteString("</u>")
	}
	w.open = runStyle{}
}

func (w *lineWriter) take() string {
	w.closeTags()
	s := w.b.String()
	w.b.Reset()
	return s
}

func walkBody(r io.Reader, rels map[string]string) (*Document, error) {
	dec := xml.NewDecoder(r)
	doc := &Document{}
	var (
		lw      lineWriter
		style   runStyle
		inPara  bool
		inPPr   bool
		inRPr   bool
		inText  bool
		started bool // a line has begun in the current paragraph
		// mc:Fallback repeats the mc:Choice content for older readers.
		fallback int
	)
	flush := func() {
		doc.Lines = append(doc.Lines, lw.take())
		started = false
	}
	emitImage := func(relID string) {
		target, ok := rels[relID]
		if !ok {
			return
		}
		name := path.Base(target)
		lw.write("[image: "+name+"]", runStyle{})
		started = true
		doc.Images = append(doc.Images, ImageRef{RelID: relID, Target: target, Name: name, Line: len(doc.Lines)})
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Fallback" {
				fallback++
			}
			if fallback > 0 {
				continue
			}
			switch t.Name.Local {
			case "p":
				inPara, started = true, false
			case "pPr":
				inPPr = true
			case "r":
				style = runStyle{}
			case "rPr":
				inRPr = true
			case "u":
				if inRPr && !inPPr {
					v := attr(t, "val")
					style.underline = v != "none" && v != "0" && v != "false"
				}
			case "vertAlign":
				if inRPr && !inPPr {
					style.vert = attr(t, "val")
				}
			case "t":
				inText = true
			case "tab":
				if inPara && !inPPr {
					lw.write(" ", style)
					started = true
				}
			case "br", "cr":
				if inPara {
					flush()
				}
			case "blip":
				emitImage(attr(t, "embed"))
			case "imagedata":
				emitImage(attr(t, "id"))
			}
		case xml.EndElement:
			if fallback > 0 {
				if t.Name.Local == "Fallback" {
					fallback--
				}
				continue
			}
			switch t.Name.Local {
			case "p":
				if inPara {
					flush()
				}
				inPara = false
			case "pPr":
				inPPr = false
			case "rPr":
				inRPr = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && inPara && fallback == 0 {
				lw.write(string(t), style)
				started = true
			}
		}
	}
	if started {
		flush()
	}
	return doc, nil
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
