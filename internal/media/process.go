package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-itembank/internal/logger"
)

// Uploader is the slice of the object store the processor needs.
type Uploader interface {
	Upload(ctx context.Context, data []byte, key, mimeType string, public bool) (string, error)
}

type ProcessOptions struct {
	MaxBytes        int64
	TranscodeImages bool
	Transcode       TranscodeOptions
	Now             func() time.Time
}

// AssetError is a single asset that could not be stored.
type AssetError struct {
	Asset string
	Op    string
	Err   error
}

func (e *AssetError) Error() string { return fmt.Sprintf("media %s: %s: %v", e.Asset, e.Op, e.Err) }
func (e *AssetError) Unwrap() error { return e.Err }

// Report summarises one processing run.
type Report struct {
	Uploaded        int
	AudioProcessed  int
	ImagesProcessed int
	ImagesConverted int
	Failed          int
	Skipped         int
	Errors          []string
	Warnings        []string
}

// Processor validates, transcodes and uploads assets one at a time.
type Processor struct {
	store Uploader
	opts  ProcessOptions
	log   *logger.Logger
}

func NewProcessor(store Uploader, opts ProcessOptions, log *logger.Logger) *Processor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	return &Processor{store: store, opts: opts, log: logger.OrNop(log).With("component", "media")}
}

// Process handles every asset in order. A failing asset is recorded and
// left without a URL; the rest still go through.
func (p *Processor) Process(ctx context.Context, assets []*Asset) Report {
	var rep Report
	for i, a := range assets {
		if err := ctx.Err(); err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("media processing stopped: %v", err))
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d media files were not uploaded", len(assets)-i))
			rep.Failed += len(assets) - i
			break
		}
		p.processOne(ctx, a, &rep)
	}
	p.log.Info("media processed", "assets", len(assets), "uploaded", rep.Uploaded, "failed", rep.Failed, "skipped", rep.Skipped)
	return rep
}

func (p *Processor) processOne(ctx context.Context, a *Asset, rep *Report) {
	fail := func(op string, err error) {
		ae := &AssetError{Asset: a.OriginalName, Op: op, Err: err}
		rep.Failed++
		rep.Errors = append(rep.Errors, ae.Error())
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s has no canonical URL; references to it stay local", a.OriginalName))
		p.log.Warn("media asset failed", "asset", a.OriginalName, "op", op, "error", err)
	}

	switch a.FileType {
	case FileAudio, FileImage:
	default:
		rep.Skipped++
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s skipped: %s files are not imported", a.OriginalName, a.FileType))
		return
	}
	if a.Size() > p.opts.MaxBytes {
		fail("validate", fmt.Errorf("size %d exceeds limit %d", a.Size(), p.opts.MaxBytes))
		return
	}

	if a.FileType == FileImage && p.opts.TranscodeImages && transcodable(a.MimeType) {
		t, err := Transcode(a.Data, p.opts.Transcode)
		if err != nil {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s could not be converted, uploading original: %v", a.OriginalName, err))
		} else {
			a.ConvertedData = t.Data
			a.ConvertedMime = t.Mime
			a.ConvertedName = strings.TrimSuffix(a.FileName, extOf(a.FileName)) + t.Ext
			rep.ImagesConverted++
		}
	}

	data, mime := a.Payload()
	key := p.key(a)
	url, err := p.store.Upload(ctx, data, key, mime, true)
	if err != nil {
		fail("upload", err)
		return
	}
	a.UploadedURL = url
	a.StorageKey = key
	rep.Uploaded++
	if a.FileType == FileAudio {
		rep.AudioProcessed++
	} else {
		rep.ImagesProcessed++
	}
}

// key is {folder}/{unix millis}_{generated base}{ext}.
func (p *Processor) key(a *Asset) string {
	name := a.UploadName()
	return fmt.Sprintf("%s/%d_%s", a.Folder, p.opts.Now().UnixMilli(), name)
}

func transcodable(mime string) bool {
	switch mime {
	case "image/jpeg", "image/png", "image/bmp":
		return true
	}
	return false
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
