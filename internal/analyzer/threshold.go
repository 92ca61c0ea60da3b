package analyzer

import (
	"fmt"
	"image"
	"sort"

	"github.com/11ea/xaipneumonia/internal/compose"
)

// ThresholdDetector localizes findings by binarizing the heatmap at a
// fraction of its peak value and collecting connected components.
type ThresholdDetector struct {
	MinRegionArea int     // minimum bounding-box area in pixels
	Level         float64 // binarization level as a fraction of the peak
}

// NewThresholdDetector creates a threshold-based detector with default settings
func NewThresholdDetector() *ThresholdDetector {
	return &ThresholdDetector{
		MinRegionArea: 64, // ~8x8 pixels minimum
		Level:         0.6,
	}
}

// Detect finds activation regions, strongest first by covered mass.
func (d *ThresholdDetector) Detect(hm *compose.Heatmap) ([]Region, error) {
	if hm == nil || hm.Side <= 0 {
		return nil, fmt.Errorf("empty heatmap")
	}
	side := hm.Side

	// Step 1: total mass and peak of the map
	var peak float32
	var total float64
	for _, v := range hm.Data {
		if v > peak {
			peak = v
		}
		total += float64(v)
	}
	if peak <= 0 {
		// An all-zero map localizes nothing.
		return nil, nil
	}

	// Step 2: binarize at Level * peak
	threshold := float32(d.Level) * peak
	hot := make([]bool, len(hm.Data))
	for i, v := range hm.Data {
		hot[i] = v >= threshold
	}

	// Step 3: morphological dilation so one finding is not split into shards
	dilated := dilate(hot, side, 3, 1)

	// Step 4: connected components, filtered by minimum area
	visited := make([]bool, len(dilated))
	var regions []Region
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			idx := y*side + x
			if !dilated[idx] || visited[idx] {
				continue
			}
			rect := floodFill(dilated, visited, side, x, y)
			if rect.Dx()*rect.Dy() < d.MinRegionArea {
				continue
			}
			regions = append(regions, measure(hm, rect, total))
		}
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Mass > regions[j].Mass
	})
	return regions, nil
}

// measure computes peak and mass share over one bounding rectangle.
func measure(hm *compose.Heatmap, rect image.Rectangle, total float64) Region {
	var peak float32
	var sum float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := hm.Data[y*hm.Side : (y+1)*hm.Side]
		for x := rect.Min.X; x < rect.Max.X; x++ {
			v := row[x]
			if v > peak {
				peak = v
			}
			sum += float64(v)
		}
	}

	mass := 0.0
	if total > 0 {
		mass = sum / total
	}
	return Region{Rect: rect, Peak: peak, Mass: mass}
}

// dilate performs morphological dilation to connect nearby hot pixels
func dilate(grid []bool, side, kernelSize, iterations int) []bool {
	half := kernelSize / 2

	result := make([]bool, len(grid))
	copy(result, grid)

	for iter := 0; iter < iterations; iter++ {
		temp := make([]bool, len(grid))

		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				on := false
				for ky := -half; ky <= half && !on; ky++ {
					for kx := -half; kx <= half; kx++ {
						nx, ny := x+kx, y+ky
						if nx < 0 || nx >= side || ny < 0 || ny >= side {
							continue
						}
						if result[ny*side+nx] {
							on = true
							break
						}
					}
				}
				temp[y*side+x] = on
			}
		}

		result = temp
	}

	return result
}

// floodFill walks one connected component and returns its bounding rectangle
func floodFill(grid, visited []bool, side, startX, startY int) image.Rectangle {
	minX, minY := startX, startY
	maxX, maxY := startX, startY

	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, y := p.X, p.Y
		if x < 0 || x >= side || y < 0 || y >= side {
			continue
		}

		idx := y*side + x
		if visited[idx] || !grid[idx] {
			continue
		}
		visited[idx] = true

		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}

		stack = append(stack,
			image.Point{X: x + 1, Y: y},
			image.Point{X: x - 1, Y: y},
			image.Point{X: x, Y: y + 1},
			image.Point{X: x, Y: y - 1},
		)
	}

	return image.Rect(minX, minY, maxX+1, maxY+1)
}
