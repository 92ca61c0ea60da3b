package render

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"

	"github.com/11ea/xaipneumonia/internal/compose"
)

// HeatmapImage colorizes a heatmap into a standalone image.
func HeatmapImage(hm *compose.Heatmap, cm Colormap) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, hm.Side, hm.Side))
	for y := 0; y < hm.Side; y++ {
		for x := 0; x < hm.Side; x++ {
			out.SetRGBA(x, y, cm.Map(hm.Data[y*hm.Side+x]))
		}
	}
	return out
}

// Overlay blends the colorized heatmap over the letterboxed scan. Alpha 0
// returns the scan untouched, alpha 1 replaces it with the heatmap.
func Overlay(base *image.RGBA, hm *compose.Heatmap, cm Colormap, alpha float64) (*image.RGBA, error) {
	b := base.Bounds()
	if b.Dx() != hm.Side || b.Dy() != hm.Side {
		return nil, fmt.Errorf("overlay: scan %dx%d does not match heatmap side %d", b.Dx(), b.Dy(), hm.Side)
	}

	out := image.NewRGBA(image.Rect(0, 0, hm.Side, hm.Side))
	a := float32(alpha)
	for y := 0; y < hm.Side; y++ {
		for x := 0; x < hm.Side; x++ {
			heat := cm.Map(hm.Data[y*hm.Side+x])
			off := base.PixOffset(b.Min.X+x, b.Min.Y+y)
			dst := out.PixOffset(x, y)

			out.Pix[dst] = blend(base.Pix[off], heat.R, a)
			out.Pix[dst+1] = blend(base.Pix[off+1], heat.G, a)
			out.Pix[dst+2] = blend(base.Pix[off+2], heat.B, a)
			out.Pix[dst+3] = 255
		}
	}
	return out, nil
}

func blend(base, heat uint8, alpha float32) uint8 {
	v := (1-alpha)*float32(base) + alpha*float32(heat)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Upscale resizes an image by an integer factor for viewing. Model input
// resolution is too small for a readable report.
func Upscale(img image.Image, factor int) *image.RGBA {
	b := img.Bounds()
	if factor < 1 {
		factor = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// StampQR draws a QR code carrying the run summary into the bottom-right
// corner. Overlays circulate as screenshots, the stamp keeps provenance
// attached to the pixels.
func StampQR(img *image.RGBA, payload string) error {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return err
	}

	b := img.Bounds()
	size := b.Dx() / 5
	if size < 64 {
		size = 64
	}
	qrImg := qr.Image(size)

	const margin = 8
	pos := image.Rect(b.Max.X-size-margin, b.Max.Y-size-margin, b.Max.X-margin, b.Max.Y-margin)
	xdraw.Draw(img, pos, qrImg, qrImg.Bounds().Min, xdraw.Src)
	return nil
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
