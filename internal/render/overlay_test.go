package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/11ea/xaipneumonia/internal/compose"
)

func gradientHeatmap(side int) *compose.Heatmap {
	hm := &compose.Heatmap{Data: make([]float32, side*side), Side: side, Channels: 1}
	for i := range hm.Data {
		hm.Data[i] = float32(i) / float32(side*side-1)
	}
	return hm
}

func grayBase(side int, level uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.SetRGBA(x, y, color.RGBA{level, level, level, 255})
		}
	}
	return img
}

func TestOverlayAlphaExtremes(t *testing.T) {
	cm, _ := NewColormap("gray")
	hm := gradientHeatmap(8)
	base := grayBase(8, 100)

	// Alpha 0: the scan shows through untouched.
	out, err := Overlay(base, hm, cm, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 100 {
			t.Fatalf("alpha 0 altered pixel %d: %d", i/4, out.Pix[i])
		}
	}

	// Alpha 1: pure heatmap.
	out, err = Overlay(base, hm, cm, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := HeatmapImage(hm, cm)
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != want.Pix[i] {
			t.Fatalf("alpha 1 differs from the pure heatmap at %d", i/4)
		}
	}
}

func TestOverlayMidBlend(t *testing.T) {
	cm, _ := NewColormap("gray")
	side := 4
	hm := &compose.Heatmap{Data: make([]float32, side*side), Side: side}
	for i := range hm.Data {
		hm.Data[i] = 1 // heatmap white
	}

	out, err := Overlay(grayBase(side, 0), hm, cm, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	// Black scan, white heatmap, alpha 0.5: every channel lands mid-gray.
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] < 127 || out.Pix[i] > 128 {
			t.Fatalf("Expected mid blend, got %d", out.Pix[i])
		}
	}
}

func TestOverlaySizeMismatch(t *testing.T) {
	cm, _ := NewColormap("jet")
	if _, err := Overlay(grayBase(8, 10), gradientHeatmap(4), cm, 0.5); err == nil {
		t.Fatal("expected a size mismatch error")
	}
}

func TestUpscale(t *testing.T) {
	img := grayBase(4, 200)
	out := Upscale(img, 3)

	if got := out.Bounds(); got.Dx() != 12 || got.Dy() != 12 {
		t.Fatalf("Expected 12x12, got %dx%d", got.Dx(), got.Dy())
	}
	r, _, _, _ := out.At(6, 6).RGBA()
	if r>>8 != 200 {
		t.Errorf("interior pixel changed: %d", r>>8)
	}

	if got := Upscale(img, 0).Bounds(); got.Dx() != 4 {
		t.Errorf("factor below 1 must keep the size, got %d", got.Dx())
	}
}

func TestStampQRMarksCorner(t *testing.T) {
	img := grayBase(320, 128)
	before := img.Pix[img.PixOffset(310, 310)]

	if err := StampQR(img, "model=chest_cdn class=Bacterial-Pneumonia conf=0.87"); err != nil {
		t.Fatalf("StampQR failed: %v", err)
	}

	// The stamped corner must contain both QR black and QR white modules.
	var sawDark, sawLight bool
	for y := 250; y < 316; y++ {
		for x := 250; x < 316; x++ {
			v := img.Pix[img.PixOffset(x, y)]
			if v < 64 {
				sawDark = true
			}
			if v > 192 {
				sawLight = true
			}
		}
	}
	if !sawDark || !sawLight {
		t.Errorf("QR modules not drawn (dark=%v light=%v, corner was %d)", sawDark, sawLight, before)
	}

	// Top-left stays untouched.
	if img.Pix[img.PixOffset(5, 5)] != 128 {
		t.Error("stamp leaked outside the corner")
	}
}

func TestWritePNG(t *testing.T) {
	path := "/tmp/test_overlay.png"
	if err := WritePNG(path, grayBase(16, 77)); err != nil {
		t.Fatalf("WritePNG failed: %v", err)
	}
}
