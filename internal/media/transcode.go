package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// TranscodeOptions bound the size and quality of re-encoded images.
type TranscodeOptions struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // JPEG quality 1..100
}

func DefaultTranscodeOptions() TranscodeOptions {
	return TranscodeOptions{MaxWidth: 1200, MaxHeight: 800, Quality: 85}
}

// Transcoded is a re-encoded image.
type Transcoded struct {
	Data   []byte
	Mime   string
	Ext    string
	Width  int
	Height int
}

// Transcode decodes an image, downscales it to fit the bounds keeping the
// aspect ratio, and re-encodes it as JPEG, or PNG when it has transparency.
func Transcode(data []byte, opts TranscodeOptions) (*Transcoded, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), opts.MaxWidth, opts.MaxHeight)
	var src image.Image = img
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		src = dst
	}

	var out bytes.Buffer
	if hasAlpha(img) {
		if err := png.Encode(&out, src); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return &Transcoded{Data: out.Bytes(), Mime: "image/png", Ext: ".png", Width: w, Height: h}, nil
	}
	q := opts.Quality
	if q <= 0 || q > 100 {
		q = 85
	}
	if err := jpeg.Encode(&out, src, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &Transcoded{Data: out.Bytes(), Mime: "image/jpeg", Ext: ".jpg", Width: w, Height: h}, nil
}

// fitWithin scales (w, h) down to fit (maxW, maxH). It never upscales; a
// zero bound means unbounded on that axis.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale >= 1 {
		return w, h
	}
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}
