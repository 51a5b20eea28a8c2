// Package transform decodes source images and produces resized, optionally
// greyscale, re-encoded output. It performs no I/O beyond the byte slices it
// is handed.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"imagegen/encoder"
	"imagegen/logger"
	"imagegen/models"
)

// ErrDecodeFailure is returned when the source bytes are not a decodable image.
var ErrDecodeFailure = errors.New("cannot decode source image")

// ErrUnsupportedFormat aliases the models sentinel so callers can test with
// either package.
var ErrUnsupportedFormat = models.ErrUnsupportedFormat

// Options configure an Engine.
type Options struct {
	MaxDimension   int // upper bound for each output axis
	DefaultQuality int // used when the spec leaves quality unset
}

// SourceImage is a decoded source plus the metadata read from it.
type SourceImage struct {
	Image          image.Image
	OriginalWidth  int
	OriginalHeight int
	SourceFormat   string
}

// Engine is safe for concurrent use.
type Engine struct {
	opts Options
	enc  encoder.Encoder
}

// NewEngine builds an Engine. A nil enc selects encoder.Standard.
func NewEngine(opts Options, enc encoder.Encoder) *Engine {
	if enc == nil {
		enc = encoder.Standard{}
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 2000
	}
	if opts.DefaultQuality <= 0 || opts.DefaultQuality > 100 {
		opts.DefaultQuality = 85
	}
	return &Engine{opts: opts, enc: enc}
}

// Decode reads the image and its dimensions from data.
func (e *Engine) Decode(data []byte) (SourceImage, error) {
	if len(data) == 0 {
		return SourceImage{}, fmt.Errorf("%w: empty payload", ErrDecodeFailure)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return SourceImage{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	b := img.Bounds()
	return SourceImage{
		Image:          img,
		OriginalWidth:  b.Dx(),
		OriginalHeight: b.Dy(),
		SourceFormat:   format,
	}, nil
}

// Run decodes data and transforms it according to spec.
func (e *Engine) Run(ctx context.Context, data []byte, spec models.TransformSpec) ([]byte, error) {
	if !spec.Format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, spec.Format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := e.Decode(data)
	if err != nil {
		return nil, err
	}
	return e.Transform(ctx, src, spec)
}

// Transform resizes, converts and encodes a decoded source.
func (e *Engine) Transform(ctx context.Context, src SourceImage, spec models.TransformSpec) ([]byte, error) {
	if !spec.Format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, spec.Format)
	}

	w, h := TargetSize(src.OriginalWidth, src.OriginalHeight, spec.Width, spec.Height, e.opts.MaxDimension)
	img := resize(src.Image, w, h)
	if spec.Greyscale {
		img = greyscale(img)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quality := spec.Quality.OrElse(e.opts.DefaultQuality)
	var buf bytes.Buffer
	if err := e.enc.Encode(&buf, img, spec.Format, encoder.EncodeOptions{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode %s: %w", spec.Format, err)
	}

	logger.Debugf("transformed %s %dx%d -> %s %dx%d (%d bytes)",
		src.SourceFormat, src.OriginalWidth, src.OriginalHeight, spec.Format, w, h, buf.Len())
	return buf.Bytes(), nil
}

func resize(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func greyscale(img image.Image) image.Image {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
