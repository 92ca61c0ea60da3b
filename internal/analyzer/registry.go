package analyzer

import "fmt"

// NewDetector creates a region detector for the requested variant
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "threshold", "":
		return NewThresholdDetector(), nil
	case "otsu":
		return nil, fmt.Errorf("otsu detector not yet implemented")
	case "watershed":
		return nil, fmt.Errorf("watershed detector not yet implemented")
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}
