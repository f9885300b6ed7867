package importer

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/mind-engage/mindengage-itembank/internal/config"
	"github.com/mind-engage/mindengage-itembank/internal/media"
)

// bundle is an upload after structure checks: one document plus the media
// files that came with it.
type bundle struct {
	docName string
	docData []byte
	media   []media.File
}

// openUpload accepts a bare .docx or a .zip package holding exactly one.
func openUpload(name string, data []byte, lim config.Limits) (*bundle, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".docx":
		if int64(len(data)) > lim.MaxDocumentBytes {
			return nil, invalid("document is %d bytes, limit is %d", len(data), lim.MaxDocumentBytes)
		}
		return &bundle{docName: path.Base(name), docData: data}, nil
	case ".zip":
		if int64(len(data)) > lim.MaxPackageBytes {
			return nil, invalid("package is %d bytes, limit is %d", len(data), lim.MaxPackageBytes)
		}
		return readPackage(data, lim)
	case "":
		return nil, invalid("file name %q has no extension", name)
	default:
		return nil, invalid("unsupported file type %s, expected .docx or .zip", path.Ext(name))
	}
}

func readPackage(data []byte, lim config.Limits) (*bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, &ValidationError{Reason: "corrupt archive", Err: err}
	}
	// Every name is checked before anything is read.
	for _, f := range zr.File {
		if err := checkEntryName(f.Name); err != nil {
			return nil, err
		}
	}

	var (
		b        bundle
		docs     []string
		inflated int64
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || ignoredEntry(f.Name) {
			continue
		}
		switch {
		case strings.EqualFold(path.Ext(f.Name), ".docx"):
			docs = append(docs, f.Name)
			if len(docs) > 1 {
				continue
			}
			if int64(f.UncompressedSize64) > lim.MaxDocumentBytes {
				return nil, invalid("document %s exceeds %d bytes", f.Name, lim.MaxDocumentBytes)
			}
			d, err := readLimited(f, lim.MaxDocumentBytes)
			if err != nil {
				return nil, err
			}
			b.docName, b.docData = path.Base(f.Name), d
			inflated += int64(len(d))
		case media.Classify(f.Name) != media.FileUnknown:
			d, err := readLimited(f, lim.MaxPackageBytes)
			if err != nil {
				return nil, err
			}
			b.media = append(b.media, media.File{Name: f.Name, Data: d})
			inflated += int64(len(d))
		}
		if inflated > lim.MaxPackageBytes {
			return nil, invalid("package inflates past %d bytes", lim.MaxPackageBytes)
		}
	}
	switch len(docs) {
	case 0:
		return nil, invalid("package contains no .docx document")
	case 1:
		return &b, nil
	default:
		return nil, invalid("package contains %d .docx documents (%s), expected one", len(docs), strings.Join(docs, ", "))
	}
}

// checkEntryName refuses names that are absolute, climb out with "..",
// use backslashes or carry a drive letter.
func checkEntryName(name string) error {
	switch {
	case name == "":
		return &IntegrityError{Entry: name, Reason: "empty name"}
	case strings.Contains(name, `\`):
		return &IntegrityError{Entry: name, Reason: "backslash in path"}
	case strings.HasPrefix(name, "/"):
		return &IntegrityError{Entry: name, Reason: "absolute path"}
	case len(name) >= 2 && name[1] == ':':
		return &IntegrityError{Entry: name, Reason: "drive letter"}
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return &IntegrityError{Entry: name, Reason: "parent directory reference"}
		}
	}
	return nil
}

// ignoredEntry skips macOS resource forks and Office lock files.
func ignoredEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return strings.HasPrefix(base, "~$") || strings.HasPrefix(base, "._") || base == ".DS_Store"
}

func readLimited(f *zip.File, max int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, &ValidationError{Reason: "corrupt archive entry " + f.Name, Err: err}
	}
	defer rc.Close()
	d, err := io.ReadAll(io.LimitReader(rc, max+1))
	if err != nil {
		return nil, &ValidationError{Reason: "corrupt archive entry " + f.Name, Err: err}
	}
	if int64(len(d)) > max {
		return nil, invalid("%s exceeds %d bytes", f.Name, max)
	}
	return d, nil
}
