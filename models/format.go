package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned for any output format outside the closed set.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is the closed set of output encodings. The zero value is invalid.
type Format int

const (
	FormatJPEG Format = iota + 1
	FormatPNG
	FormatWebP
)

// AllFormats lists every supported output format in canonical order.
var AllFormats = []Format{FormatJPEG, FormatPNG, FormatWebP}

// ParseFormat maps a user supplied format name onto a Format.
// "jpg" is accepted as an alias of jpeg; matching is case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// String returns the canonical lowercase name.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	return f >= FormatJPEG && f <= FormatWebP
}

// ContentType is the HTTP content type for the format.
func (f Format) ContentType() string {
	return "image/" + f.String()
}

// Extension returns the usual file extension without the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return f.String()
}

// Lossy reports whether the quality setting changes the encoded output.
func (f Format) Lossy() bool {
	return f == FormatJPEG || f == FormatWebP
}

func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, ErrUnsupportedFormat
	}
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
