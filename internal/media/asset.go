// Package media extracts, associates, transcodes and uploads the audio and
// image files that come with an imported exam document.
package media

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileType codes match the question_files.file_type column.
type FileType int

const (
	FileUnknown  FileType = 0
	FileAudio    FileType = 1
	FileImage    FileType = 2
	FileDocument FileType = 3
	FileVideo    FileType = 4
)

func (t FileType) String() string {
	switch t {
	case FileAudio:
		return "audio"
	case FileImage:
		return "image"
	case FileDocument:
		return "document"
	case FileVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Folder is the storage folder an asset of this type is uploaded to.
func (t FileType) Folder() string {
	switch t {
	case FileAudio:
		return "audio"
	case FileImage:
		return "images"
	case FileVideo:
		return "video"
	default:
		return "documents"
	}
}

type Origin string

const (
	OriginDocument Origin = "document" // embedded in word/media
	OriginPackage  Origin = "package"  // sibling file in the ZIP
)

type Asset struct {
	ID           string
	FileName     string // generated, unique per run
	OriginalName string
	SourcePath   string // path inside the archive
	Data         []byte
	MimeType     string
	FileType     FileType
	Folder       string
	Origin       Origin

	ConvertedData []byte
	ConvertedMime string
	ConvertedName string

	UploadedURL string
	StorageKey  string
}

func (a *Asset) Size() int64 { return int64(len(a.Data)) }

// Payload returns the bytes and mime type to upload.
func (a *Asset) Payload() ([]byte, string) {
	if len(a.ConvertedData) > 0 {
		return a.ConvertedData, a.ConvertedMime
	}
	return a.Data, a.MimeType
}

// UploadName is the generated name of what is actually stored.
func (a *Asset) UploadName() string {
	if a.ConvertedName != "" {
		return a.ConvertedName
	}
	return a.FileName
}

var mimeByExt = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".pdf":  "application/pdf",
}

var typeByExt = map[string]FileType{
	".mp3": FileAudio, ".wav": FileAudio, ".m4a": FileAudio, ".ogg": FileAudio,
	".jpg": FileImage, ".jpeg": FileImage, ".png": FileImage, ".gif": FileImage,
	".bmp": FileImage, ".webp": FileImage, ".svg": FileImage,
	".mp4": FileVideo, ".avi": FileVideo, ".mov": FileVideo, ".wmv": FileVideo,
	".pdf": FileDocument,
}

// Classify returns the file type for a name, FileUnknown when the
// extension is not a supported media type.
func Classify(name string) FileType {
	return typeByExt[strings.ToLower(path.Ext(name))]
}

// MimeType derives the mime type from the extension.
func MimeType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	return "application/octet-stream"
}

// Namer hands out collision-free file names for one processing run.
type Namer struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func NewNamer() *Namer { return &Namer{used: map[string]struct{}{}} }

// Name turns "Track 1.MP3" into "Track_1_1a2b3c4d.mp3".
func (n *Namer) Name(original string) string {
	ext := strings.ToLower(path.Ext(original))
	base := sanitize(strings.TrimSuffix(path.Base(original), path.Ext(original)))
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		candidate := fmt.Sprintf("%s_%s%s", base, uuid.NewString()[:8], ext)
		if _, dup := n.used[candidate]; !dup {
			n.used[candidate] = struct{}{}
			return candidate
		}
	}
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\ "'<>`, r) {
			return '_'
		}
		return r
	}, s)
	if s == "" {
		return "file"
	}
	return s
}

// NewAsset classifies and names a media file. ok is false for files that
// are not supported media.
func NewAsset(n *Namer, sourcePath string, data []byte, origin Origin) (*Asset, bool) {
	name := path.Base(sourcePath)
	ft := Classify(name)
	if ft == FileUnknown {
		return nil, false
	}
	return &Asset{
		ID:           uuid.NewString(),
		FileName:     n.Name(name),
		OriginalName: name,
		SourcePath:   sourcePath,
		Data:         data,
		MimeType:     MimeType(name),
		FileType:     ft,
		Folder:       ft.Folder(),
		Origin:       origin,
	}, true
}
