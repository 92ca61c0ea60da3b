package render

import (
	"fmt"
	"image/color"
)

// Colormap maps a normalized heatmap value to a display color.
type Colormap interface {
	Map(v float32) color.RGBA
}

// NewColormap creates a colormap based on the specified variant
func NewColormap(variant string) (Colormap, error) {
	switch variant {
	case "jet", "":
		return jetColormap{}, nil
	case "hot":
		return hotColormap{}, nil
	case "gray", "grayscale":
		return grayColormap{}, nil
	case "viridis":
		return nil, fmt.Errorf("viridis colormap not yet implemented")
	default:
		return nil, fmt.Errorf("unknown colormap variant: %s", variant)
	}
}

// jetColormap is the classic blue-cyan-green-yellow-red ramp.
type jetColormap struct{}

func (jetColormap) Map(v float32) color.RGBA {
	return color.RGBA{
		R: channelByte(1.5 - absf(4*v-3)),
		G: channelByte(1.5 - absf(4*v-2)),
		B: channelByte(1.5 - absf(4*v-1)),
		A: 255,
	}
}

// hotColormap ramps black-red-yellow-white.
type hotColormap struct{}

func (hotColormap) Map(v float32) color.RGBA {
	return color.RGBA{
		R: channelByte(3 * v),
		G: channelByte(3*v - 1),
		B: channelByte(3*v - 2),
		A: 255,
	}
}

type grayColormap struct{}

func (grayColormap) Map(v float32) color.RGBA {
	g := channelByte(v)
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

func channelByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
