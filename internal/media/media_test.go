package media

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-itembank/internal/docx/docxtest"
	"github.com/mind-engage/mindengage-itembank/internal/question"
)

func pngBytes(t *testing.T, w, h int, alpha bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	a := uint8(255)
	if alpha {
		a = 100
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 80, A: a})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNamerUnique(t *testing.T) {
	n := NewNamer()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		name := n.Name("Track 1.MP3")
		if seen[name] {
			t.Fatalf("duplicate name %q", name)
		}
		seen[name] = true
		if !strings.HasPrefix(name, "Track_1_") || !strings.HasSuffix(name, ".mp3") {
			t.Fatalf("unexpected name %q", name)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]FileType{
		"a.MP3":  FileAudio,
		"b.jpeg": FileImage,
		"c.svg":  FileImage,
		"d.mov":  FileVideo,
		"e.pdf":  FileDocument,
		"f.txt":  FileUnknown,
		"g":      FileUnknown,
	}
	for name, want := range cases {
		if got := Classify(name); got != want {
			t.Errorf("Classify(%q) = %v, want %v", name, got, want)
		}
	}
	if got := MimeType("x.WAV"); got != "audio/wav" {
		t.Errorf("MimeType = %q", got)
	}
	if FileImage.Folder() != "images" || FileAudio.Folder() != "audio" {
		t.Error("folders")
	}
}

func TestFromDocx(t *testing.T) {
	data := docxtest.New().
		Lines("Question 1").
		Media("image1.png", []byte("png")).
		Media("notes.txt", []byte("skip")).
		Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	assets, err := FromDocx(zr, NewNamer(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 {
		t.Fatalf("got %d assets, want 1", len(assets))
	}
	a := assets[0]
	if a.OriginalName != "image1.png" || a.Origin != OriginDocument || a.FileType != FileImage {
		t.Fatalf("asset = %+v", a)
	}
	if a.SourcePath != "word/media/image1.png" {
		t.Errorf("source path %q", a.SourcePath)
	}
}

func TestFromDocxLimit(t *testing.T) {
	data := docxtest.New().Media("big.png", bytes.Repeat([]byte("x"), 64)).Bytes()
	zr, _ := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if _, err := FromDocx(zr, NewNamer(), 16); err == nil {
		t.Fatal("expected size error")
	}
}

func TestFromPackageWarnsOutsideMediaFolders(t *testing.T) {
	files := []File{
		{Name: "exam/audio/listen.mp3", Data: []byte("a")},
		{Name: "images/fig.png", Data: []byte("b")},
		{Name: "misc/loose.jpg", Data: []byte("c")},
		{Name: "readme.txt", Data: []byte("d")},
	}
	assets, warnings := FromPackage(files, NewNamer())
	if len(assets) != 3 {
		t.Fatalf("got %d assets, want 3", len(assets))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "misc/loose.jpg") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func img(name string) *Asset {
	a, _ := NewAsset(NewNamer(), "images/"+name, []byte(name), OriginPackage)
	return a
}

func TestAssociatePasses(t *testing.T) {
	named := &question.Question{ID: "q1", Content: "Look at [image: map.png]"}
	keyword := &question.Question{ID: "q2", Content: "Study figure 2 carefully"}
	group := &question.Question{ID: "g", Type: question.TypeGroup, GroupContent: "Read the passage",
		Children: []*question.Question{{ID: "c1", Content: "child one"}, {ID: "c2", Content: "child two"}}}
	plain := &question.Question{ID: "q3", Content: "plain"}
	qs := []*question.Question{named, keyword, group, plain}

	assets := []*Asset{img("a.png"), img("b.png"), img("map.png"), img("c.png"), img("d.png"), img("e.png")}
	tr := KeywordAssociator{}.Associate(qs, assets)

	byQuestion := map[string]Assignment{}
	for _, as := range tr.Assignments {
		byQuestion[as.QuestionID] = as
	}
	if as := byQuestion["q1"]; as.Pass != 0 || as.FileName != "map.png" || as.Confidence != 1.0 {
		t.Errorf("q1 = %+v", as)
	}
	if as := byQuestion["q2"]; as.Pass != 1 || as.FileName != "a.png" {
		t.Errorf("q2 = %+v", as)
	}
	if as := byQuestion["g"]; as.Pass != 2 || as.FileName != "b.png" {
		t.Errorf("group should be served first in pass 2: %+v", as)
	}
	if as := byQuestion["q3"]; as.Pass != 2 || as.FileName != "c.png" {
		t.Errorf("q3 = %+v", as)
	}
	if as := byQuestion["c1"]; as.Pass != 3 || as.FileName != "d.png" {
		t.Errorf("c1 = %+v", as)
	}
	if as := byQuestion["c2"]; as.Pass != 3 || as.FileName != "e.png" {
		t.Errorf("c2 = %+v", as)
	}
	if len(tr.Unassigned) != 0 {
		t.Errorf("unassigned = %v", tr.Unassigned)
	}
	if len(named.AttachedMedia) != 1 {
		t.Errorf("attached = %v", named.AttachedMedia)
	}
}

func TestAssociateIgnoresAudioAndReportsLeftovers(t *testing.T) {
	audio, _ := NewAsset(NewNamer(), "audio/a.mp3", []byte("x"), OriginPackage)
	q := &question.Question{ID: "q", Content: "no pictures"}
	tr := KeywordAssociator{}.Associate([]*question.Question{q}, []*Asset{audio, img("x.png"), img("y.png")})
	if len(tr.Assignments) != 1 || tr.Assignments[0].FileName != "x.png" {
		t.Fatalf("assignments = %+v", tr.Assignments)
	}
	if len(tr.Unassigned) != 1 {
		t.Fatalf("unassigned = %v", tr.Unassigned)
	}
}

func TestTranscodeDownscales(t *testing.T) {
	out, err := Transcode(pngBytes(t, 400, 200, false), TranscodeOptions{MaxWidth: 100, MaxHeight: 100, Quality: 80})
	if err != nil {
		t.Fatal(err)
	}
	if out.Mime != "image/jpeg" || out.Ext != ".jpg" {
		t.Fatalf("mime = %s ext = %s", out.Mime, out.Ext)
	}
	if out.Width != 100 || out.Height != 50 {
		t.Fatalf("size = %dx%d", out.Width, out.Height)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Fatalf("decoded size = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestTranscodeKeepsAlphaAsPNG(t *testing.T) {
	out, err := Transcode(pngBytes(t, 20, 20, true), DefaultTranscodeOptions())
	if err != nil {
		t.Fatal(err)
	}
	if out.Mime != "image/png" || out.Width != 20 {
		t.Fatalf("out = %s %dx%d", out.Mime, out.Width, out.Height)
	}
}

func TestTranscodeRejectsGarbage(t *testing.T) {
	if _, err := Transcode([]byte("not an image"), DefaultTranscodeOptions()); err == nil {
		t.Fatal("expected decode error")
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	fail  string
	keys  []string
	mimes []string
}

func (f *fakeUploader) Upload(_ context.Context, _ []byte, key, mimeType string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != "" && strings.Contains(key, f.fail) {
		return "", errors.New("bucket unavailable")
	}
	f.keys = append(f.keys, key)
	f.mimes = append(f.mimes, mimeType)
	return "https://cdn.test/" + key, nil
}

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

func TestProcessPartialUploadFailure(t *testing.T) {
	n := NewNamer()
	var assets []*Asset
	for _, name := range []string{"one.png", "two.png", "three.png"} {
		a, _ := NewAsset(n, "images/"+name, []byte(name), OriginPackage)
		assets = append(assets, a)
	}
	up := &fakeUploader{fail: "two_"}
	rep := NewProcessor(up, ProcessOptions{Now: fixedNow}, nil).Process(context.Background(), assets)

	if rep.Uploaded != 2 || rep.Failed != 1 || rep.ImagesProcessed != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0], "two.png") {
		t.Fatalf("errors = %v", rep.Errors)
	}
	if assets[1].UploadedURL != "" {
		t.Errorf("failed asset got url %q", assets[1].UploadedURL)
	}
	want := "images/1700000000000_" + assets[0].FileName
	if assets[0].StorageKey != want || assets[0].UploadedURL != "https://cdn.test/"+want {
		t.Errorf("key = %q url = %q", assets[0].StorageKey, assets[0].UploadedURL)
	}
}

func TestProcessLimitsAndSkips(t *testing.T) {
	n := NewNamer()
	big, _ := NewAsset(n, "audio/big.mp3", bytes.Repeat([]byte("x"), 32), OriginPackage)
	video, _ := NewAsset(n, "clip.mp4", []byte("v"), OriginPackage)
	small, _ := NewAsset(n, "audio/small.mp3", []byte("x"), OriginPackage)
	up := &fakeUploader{}
	rep := NewProcessor(up, ProcessOptions{MaxBytes: 16, Now: fixedNow}, nil).
		Process(context.Background(), []*Asset{big, video, small})

	if rep.Uploaded != 1 || rep.AudioProcessed != 1 || rep.Failed != 1 || rep.Skipped != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0], "big.mp3") {
		t.Fatalf("errors = %v", rep.Errors)
	}
	if up.keys[0] != "audio/1700000000000_"+small.FileName {
		t.Errorf("key = %q", up.keys[0])
	}
}

func TestProcessTranscodesImages(t *testing.T) {
	a, _ := NewAsset(NewNamer(), "images/photo.png", pngBytes(t, 300, 300, false), OriginPackage)
	bad, _ := NewAsset(NewNamer(), "images/broken.png", []byte("junk"), OriginPackage)
	up := &fakeUploader{}
	rep := NewProcessor(up, ProcessOptions{
		TranscodeImages: true,
		Transcode:       TranscodeOptions{MaxWidth: 100, MaxHeight: 100, Quality: 70},
		Now:             fixedNow,
	}, nil).Process(context.Background(), []*Asset{a, bad})

	if rep.ImagesConverted != 1 || rep.Uploaded != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if !strings.HasSuffix(a.UploadName(), ".jpg") || up.mimes[0] != "image/jpeg" {
		t.Errorf("converted name %q mime %q", a.UploadName(), up.mimes[0])
	}
	if up.mimes[1] != "image/png" || len(rep.Warnings) != 1 {
		t.Errorf("fallback mime %q warnings %v", up.mimes[1], rep.Warnings)
	}
}

func TestProcessStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := NewProcessor(&fakeUploader{}, ProcessOptions{}, nil).Process(ctx, []*Asset{img("a.png"), img("b.png")})
	if rep.Uploaded != 0 || rep.Failed != 2 || len(rep.Errors) != 1 {
		t.Fatalf("report = %+v", rep)
	}
}
