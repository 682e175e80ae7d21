// Package morph produces the intermediate frame sequence between two
// normalized source images, either by landmark-aware warping or by an
// unweighted per-pixel blend.
package morph

import (
	"context"
	"fmt"
	"image"

	"github.com/xaimorph/morphd/internal/imaging"
	"github.com/xaimorph/morphd/internal/landmarks"
)

// Interpolation mode tags carried into the final result payload.
const (
	ModeLandmarkWarp = "landmark_warp"
	ModeBlend        = "blend"
)

// Frame is one step of the morph sequence. Immutable once produced.
type Frame struct {
	Index int
	Alpha float64
	Image *image.RGBA
}

// ProgressFunc is invoked after each frame is produced.
type ProgressFunc func(done, total int)

// Alphas returns n evenly spaced blend fractions. The endpoints are exactly
// 0 and 1, and when the spacing lands a frame on the midpoint it is exactly
// 0.5 rather than a float approximation.
func Alphas(n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		switch {
		case i == 0:
			out[i] = 0
		case i == n-1:
			out[i] = 1
		case 2*i == n-1:
			out[i] = 0.5
		default:
			out[i] = float64(i) / float64(n-1)
		}
	}
	return out
}

// Blend produces n frames by per-pixel linear interpolation. src and dst must
// share dimensions (the imaging package normalizes them beforehand).
func Blend(ctx context.Context, src, dst *image.RGBA, n int, progress ProgressFunc) ([]Frame, error) {
	if err := checkDims(src, dst); err != nil {
		return nil, err
	}
	alphas := Alphas(n)
	frames := make([]Frame, 0, n)
	for i, a := range alphas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frames = append(frames, Frame{Index: i, Alpha: a, Image: blendImage(src, dst, a)})
		if progress != nil {
			progress(i+1, n)
		}
	}
	return frames, nil
}

// Warp produces n frames by warping both images toward the interpolated
// landmark configuration at each blend fraction and cross-dissolving the
// results. The triangulation is computed by the caller (over the averaged
// landmark set) and reused across all frames.
func Warp(ctx context.Context, src, dst *image.RGBA, ptsA, ptsB []landmarks.Point, tris []landmarks.Triangle, n int, progress ProgressFunc) ([]Frame, error) {
	if err := checkDims(src, dst); err != nil {
		return nil, err
	}
	if len(ptsA) != len(ptsB) {
		return nil, fmt.Errorf("landmark sets differ in size: %d vs %d", len(ptsA), len(ptsB))
	}

	alphas := Alphas(n)
	frames := make([]Frame, 0, n)
	for i, a := range alphas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var img *image.RGBA
		switch a {
		case 0:
			// Endpoints are the untouched inputs, not warped approximations.
			img = imaging.Clone(src)
		case 1:
			img = imaging.Clone(dst)
		default:
			target := landmarks.Lerp(ptsA, ptsB, a)
			warpedA := warpImage(src, ptsA, target, tris)
			warpedB := warpImage(dst, ptsB, target, tris)
			img = blendImage(warpedA, warpedB, a)
		}

		frames = append(frames, Frame{Index: i, Alpha: a, Image: img})
		if progress != nil {
			progress(i+1, n)
		}
	}
	return frames, nil
}

func checkDims(src, dst *image.RGBA) error {
	if src.Bounds() != dst.Bounds() {
		return fmt.Errorf("image dimensions differ: %v vs %v", src.Bounds(), dst.Bounds())
	}
	return nil
}
