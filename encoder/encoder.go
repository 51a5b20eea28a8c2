package encoder

import (
	"fmt"
	"image"
	"io"

	"imagegen/models"
)

// EncodeOptions are the knobs passed to every encoder.
type EncodeOptions struct {
	Quality int // 1-100, ignored by lossless formats
}

// Encoder writes img to w in the requested format.
type Encoder interface {
	Encode(w io.Writer, img image.Image, format models.Format, opts EncodeOptions) error
}

// Standard is the encoder set used in production: stdlib JPEG and PNG, cgo
// libwebp for WebP.
type Standard struct{}

// Encode dispatches on the closed Format set. This is the only place a
// format turns into an encoding routine.
func (Standard) Encode(w io.Writer, img image.Image, format models.Format, opts EncodeOptions) error {
	switch format {
	case models.FormatJPEG:
		return EncodeJPG(w, img, opts)
	case models.FormatPNG:
		return EncodePNG(w, img, opts)
	case models.FormatWebP:
		return EncodeWebP(w, img, opts)
	default:
		return fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, format)
	}
}
