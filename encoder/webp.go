package encoder

import (
	"image"
	"io"

	"github.com/chai2010/webp"
)

// EncodeWebP encodes lossy WebP at the given quality.
func EncodeWebP(w io.Writer, img image.Image, o EncodeOptions) error {
	return webp.Encode(w, img, &webp.Options{Quality: float32(o.Quality)})
}
