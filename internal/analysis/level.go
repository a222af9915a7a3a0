// SPDX-License-Identifier: MIT
package analysis

import "math"

// RMS calculates the root mean square level of samples. NaN samples make
// the result NaN, which callers treat as degenerate.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	var sumSquare float64
	for _, s := range samples {
		v := float64(s)
		sumSquare += v * v
	}
	return math.Sqrt(sumSquare / float64(len(samples)))
}

// Decimate reduces src to len(dst) points by averaging equal-width buckets,
// clamped to [-1, 1]. Buckets past the end of a short src are zero.
func Decimate(dst, src []float32) {
	if len(dst) == 0 {
		return
	}
	step := math.Max(float64(len(src))/float64(len(dst)), 1)
	pos := 0.0
	for i := range dst {
		i0 := int(pos)
		i1 := min(int(pos+step), len(src))
		var acc float32
		for _, v := range src[min(i0, i1):i1] {
			acc += v
		}
		if i1 > i0 {
			dst[i] = min(max(acc/float32(i1-i0), -1), 1)
		} else {
			dst[i] = 0
		}
		pos += step
	}
}
