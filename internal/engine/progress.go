package engine

// EventKind tags a progress event.
type EventKind int

const (
	SelectionStarted EventKind = iota
	MasksGenerated
	BatchCompleted
	HeatmapReady
)

func (k EventKind) String() string {
	switch k {
	case SelectionStarted:
		return "selection started"
	case MasksGenerated:
		return "masks generated"
	case BatchCompleted:
		return "batch completed"
	case HeatmapReady:
		return "heatmap ready"
	}
	return "unknown"
}

// ProgressEvent is delivered synchronously from the pipeline goroutine.
// Layer and the layer counters are always set; the remaining fields depend
// on Kind: MaskCount for MasksGenerated, Processed/Total/Fraction for
// BatchCompleted, OutputLayer for HeatmapReady.
type ProgressEvent struct {
	Kind        EventKind
	Layer       string
	LayerIndex  int
	TotalLayers int
	MaskCount   int
	Processed   int
	Total       int
	Fraction    float64
	OutputLayer string
}

// ProgressFunc receives pipeline progress. Handlers must be fast, the
// pipeline blocks while they run.
type ProgressFunc func(ProgressEvent)
