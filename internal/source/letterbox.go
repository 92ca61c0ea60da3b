package source

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// Letterbox fits img into a size x size square, preserving aspect ratio and
// centering on a black background. Lanczos keeps rib and lesion edges crisp
// when downscaling large scans.
func Letterbox(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := float64(size) / float64(w)
	if s := float64(size) / float64(h); s < scale {
		scale = s
	}
	tw := int(float64(w)*scale + 0.5)
	th := int(float64(h)*scale + 0.5)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	if tw > size {
		tw = size
	}
	if th > size {
		th = size
	}

	scaled := resize.Resize(uint(tw), uint(th), img, resize.Lanczos3)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	offset := image.Pt((size-tw)/2, (size-th)/2)
	draw.Draw(dst, image.Rect(offset.X, offset.Y, offset.X+tw, offset.Y+th), scaled, scaled.Bounds().Min, draw.Src)
	return dst
}

// RGBABytes returns the contiguous RGBA pixel buffer of img. Images sliced
// from a larger backing array are repacked row by row.
func RGBABytes(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rowLen := 4 * w

	if img.Stride == rowLen && b.Min == (image.Point{}) {
		return img.Pix[:rowLen*h]
	}

	out := make([]byte, rowLen*h)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		copy(out[y*rowLen:(y+1)*rowLen], row[:rowLen])
	}
	return out
}
