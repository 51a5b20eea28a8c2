package transform

import "imagegen/models"

// TargetSize computes the output dimensions for a source of origW x origH.
//
//   - neither axis requested: each axis is clamped to bound on its own, so a
//     source exceeding the bound on one axis only is distorted.
//   - one axis requested: that axis is used when smaller than the original,
//     otherwise the original is kept; the other axis follows the source
//     aspect ratio. Both are then clamped to bound.
//   - both requested: each axis is used when smaller than the original,
//     otherwise the original is kept; no aspect correction. Both are clamped
//     to bound.
//
// Requests never upscale past the source resolution.
func TargetSize(origW, origH int, width, height models.OptionalInt, bound int) (int, int) {
	w, wSet := width.Get()
	h, hSet := height.Get()

	switch {
	case !wSet && !hSet:
		return clamp(origW, bound), clamp(origH, bound)

	case wSet && !hSet:
		tw := clamp(noUpscale(w, origW), bound)
		return tw, clamp(scaleAxis(tw, origH, origW), bound)

	case !wSet && hSet:
		th := clamp(noUpscale(h, origH), bound)
		return clamp(scaleAxis(th, origW, origH), bound), th

	default:
		return clamp(noUpscale(w, origW), bound), clamp(noUpscale(h, origH), bound)
	}
}

func noUpscale(requested, original int) int {
	if requested < original {
		return requested
	}
	return original
}

// scaleAxis returns set * origMissing / origSet rounded to nearest, at least 1.
func scaleAxis(set, origMissing, origSet int) int {
	if origSet <= 0 {
		return 1
	}
	v := (set*origMissing + origSet/2) / origSet
	if v < 1 {
		return 1
	}
	return v
}

func clamp(v, bound int) int {
	if bound > 0 && v > bound {
		return bound
	}
	return v
}
