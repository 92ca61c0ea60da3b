package masks

// ResizePlane scales a square float32 plane to a new side length using
// bilinear sampling with corner alignment. Equal side lengths return an
// exact copy of the source.
func ResizePlane(src []float32, srcSide, dstSide int) []float32 {
	dst := make([]float32, dstSide*dstSide)
	ResizePlaneInto(dst, src, srcSide, dstSide)
	return dst
}

// ResizePlaneInto is ResizePlane writing into a caller-provided buffer of
// length dstSide*dstSide.
func ResizePlaneInto(dst, src []float32, srcSide, dstSide int) {
	if srcSide == dstSide {
		copy(dst, src)
		return
	}

	ratio := float32(0)
	if dstSide > 1 {
		ratio = float32(srcSide-1) / float32(dstSide-1)
	}

	for y := 0; y < dstSide; y++ {
		fy := float32(y) * ratio
		y0 := int(fy)
		y1 := y0 + 1
		if y1 > srcSide-1 {
			y1 = srcSide - 1
		}
		wy := fy - float32(y0)

		for x := 0; x < dstSide; x++ {
			fx := float32(x) * ratio
			x0 := int(fx)
			x1 := x0 + 1
			if x1 > srcSide-1 {
				x1 = srcSide - 1
			}
			wx := fx - float32(x0)

			top := lerp(src[y0*srcSide+x0], src[y0*srcSide+x1], wx)
			bottom := lerp(src[y1*srcSide+x0], src[y1*srcSide+x1], wx)
			dst[y*dstSide+x] = lerp(top, bottom, wy)
		}
	}
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
