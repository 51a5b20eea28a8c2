package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"

	"imagegen/models"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8((x + y) * 2), A: 255})
		}
	}
	return img
}

func TestStandardEncodesEveryFormat(t *testing.T) {
	src := gradient(64, 32)
	for _, f := range models.AllFormats {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Standard{}.Encode(&buf, src, f, EncodeOptions{Quality: 80}))

			var decoded image.Image
			var err error
			switch f {
			case models.FormatJPEG:
				decoded, err = jpeg.Decode(&buf)
			case models.FormatPNG:
				decoded, err = png.Decode(&buf)
			case models.FormatWebP:
				decoded, err = webp.Decode(&buf)
			}
			require.NoError(t, err)
			assert.Equal(t, src.Bounds().Size(), decoded.Bounds().Size())
		})
	}
}

func TestStandardRejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Standard{}.Encode(&buf, gradient(2, 2), models.Format(0), EncodeOptions{})
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
	assert.Zero(t, buf.Len())
}

func TestJPEGQualityAffectsSize(t *testing.T) {
	src := gradient(128, 128)
	var low, high bytes.Buffer
	require.NoError(t, EncodeJPG(&low, src, EncodeOptions{Quality: 10}))
	require.NoError(t, EncodeJPG(&high, src, EncodeOptions{Quality: 95}))
	assert.Less(t, low.Len(), high.Len())
}
