package morph

import "image"

// blendImage computes (1-a)*src + a*dst per channel.
func blendImage(src, dst *image.RGBA, a float64) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	sp, dp, op := src.Pix, dst.Pix, out.Pix
	inv := 1 - a
	for i := range op {
		op[i] = uint8(inv*float64(sp[i]) + a*float64(dp[i]) + 0.5)
	}
	return out
}
