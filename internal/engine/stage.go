package engine

// Stage tracks where a run is inside the pipeline. Stages advance strictly
// forward for each feature layer; any error jumps straight to StageFailed.
type Stage int

const (
	StageIdle Stage = iota
	StageSelectingChannels
	StageGeneratingMasks
	StageBatchedInference
	StageComputingWeights
	StageComposingHeatmap
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageSelectingChannels:
		return "selecting channels"
	case StageGeneratingMasks:
		return "generating masks"
	case StageBatchedInference:
		return "batched inference"
	case StageComputingWeights:
		return "computing weights"
	case StageComposingHeatmap:
		return "composing heatmap"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	}
	return "unknown"
}
