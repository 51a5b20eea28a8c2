package encoder

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"
)

// EncodeJPG encodes baseline JPEG at the given quality.
func EncodeJPG(w io.Writer, img image.Image, o EncodeOptions) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: o.Quality})
}

// EncodePNG encodes PNG; quality has no effect on lossless output.
func EncodePNG(w io.Writer, img image.Image, _ EncodeOptions) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	return enc.Encode(w, img)
}
