package models

import (
	"fmt"
	"strconv"
	"strings"
)

// TransformSpec is the normalized set of transform parameters for one request.
// It is a value type; build it with ParseTransformSpec and do not mutate it.
type TransformSpec struct {
	Width     OptionalInt `json:"width"`
	Height    OptionalInt `json:"height"`
	Quality   OptionalInt `json:"quality"`
	Greyscale bool        `json:"greyscale"`
	Format    Format      `json:"format"`
}

// RawParams carries the query values exactly as received.
type RawParams struct {
	Quality   string // q
	Format    string // fm
	Width     string // w
	Height    string // h
	Greyscale string // gray
}

// SpecDefaults are the configured fallbacks applied during normalization.
type SpecDefaults struct {
	Quality int
	Format  Format
}

// ParseTransformSpec normalizes raw query input into a TransformSpec.
//
// Empty, non-numeric and non-positive dimensions are treated as unset.
// Quality above 100 is clamped; an empty, non-numeric or non-positive
// quality is unset. An empty format falls back to defaults.Format; any other unknown
// format returns ErrUnsupportedFormat.
func ParseTransformSpec(raw RawParams, defaults SpecDefaults) (TransformSpec, error) {
	format := defaults.Format
	if strings.TrimSpace(raw.Format) != "" {
		f, err := ParseFormat(raw.Format)
		if err != nil {
			return TransformSpec{}, err
		}
		format = f
	}
	if !format.Valid() {
		return TransformSpec{}, fmt.Errorf("%w: no format requested and no default configured", ErrUnsupportedFormat)
	}

	spec := TransformSpec{
		Width:     parseDimension(raw.Width),
		Height:    parseDimension(raw.Height),
		Quality:   parseQuality(raw.Quality),
		Greyscale: parseFlag(raw.Greyscale),
		Format:    format,
	}
	return spec.Normalize(defaults.Quality), nil
}

// Normalize returns the canonical form of s: quality is dropped for lossless
// formats and filled with defaultQuality for lossy ones, so that an omitted
// quality and an explicit default describe the same output.
func (s TransformSpec) Normalize(defaultQuality int) TransformSpec {
	if !s.Format.Lossy() {
		s.Quality = None()
		return s
	}
	if !s.Quality.IsSet() && defaultQuality > 0 {
		s.Quality = Some(clampQuality(defaultQuality))
	}
	return s
}

// String is used in log lines.
func (s TransformSpec) String() string {
	return fmt.Sprintf("w=%s h=%s q=%s gray=%t fm=%s", s.Width, s.Height, s.Quality, s.Greyscale, s.Format)
}

func parseDimension(s string) OptionalInt {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return None()
	}
	return Some(n)
}

func parseQuality(s string) OptionalInt {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return None()
	}
	return Some(clampQuality(n))
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	default:
		return q
	}
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
