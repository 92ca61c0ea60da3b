package analyzer

import (
	"image"

	"github.com/11ea/xaipneumonia/internal/compose"
)

// Region is a connected area of sustained activation in a heatmap.
type Region struct {
	Rect image.Rectangle
	Peak float32 // highest heatmap value inside the region
	Mass float64 // share of the total activation the region covers, 0.0-1.0
}

// Detector is the interface for heatmap localization strategies.
type Detector interface {
	Detect(hm *compose.Heatmap) ([]Region, error)
}
