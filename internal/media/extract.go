package media

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
)

const docxMediaDir = "word/media/"

// File is an archive entry already read into memory.
type File struct {
	Name string
	Data []byte
}

// FromDocx collects every supported file under word/media/ of a .docx.
// Other entries are ignored.
func FromDocx(zr *zip.Reader, n *Namer, maxBytes int64) ([]*Asset, error) {
	var out []*Asset
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasPrefix(f.Name, docxMediaDir) {
			continue
		}
		if Classify(f.Name) == FileUnknown {
			continue
		}
		data, err := readEntry(f, maxBytes)
		if err != nil {
			return nil, err
		}
		if a, ok := NewAsset(n, f.Name, data, OriginDocument); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// FromPackage collects media that came with the document in the upload
// package. Files under audio/ or images/ are expected; media found
// elsewhere is still taken, with a warning.
func FromPackage(files []File, n *Namer) ([]*Asset, []string) {
	var (
		out      []*Asset
		warnings []string
	)
	for _, f := range files {
		a, ok := NewAsset(n, f.Name, f.Data, OriginPackage)
		if !ok {
			continue
		}
		if !inMediaFolder(f.Name) {
			warnings = append(warnings, fmt.Sprintf("media file %s is outside audio/ and images/", f.Name))
		}
		out = append(out, a)
	}
	return out, warnings
}

func inMediaFolder(name string) bool {
	for _, seg := range strings.Split(path.Dir(name), "/") {
		switch strings.ToLower(seg) {
		case "audio", "images":
			return true
		}
	}
	return false
}

// readEntry reads one archive entry, refusing to inflate more than max
// bytes when max > 0.
func readEntry(f *zip.File, max int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	var r io.Reader = rc
	if max > 0 {
		r = io.LimitReader(rc, max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if max > 0 && int64(len(data)) > max {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, max)
	}
	return data, nil
}
