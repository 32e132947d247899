package analysis

const (
	minSamples      = 10
	maxSamples      = 50
	framesPerSample = 10
)

// SampleIndices picks the frames to analyze: one per ten frames, at least 10
// and at most 50, spread evenly over [0, totalFrames). Videos shorter than ten
// frames get every frame once. Returns nil for an empty video.
func SampleIndices(totalFrames int) []int {
	if totalFrames <= 0 {
		return nil
	}

	n := min(maxSamples, max(minSamples, totalFrames/framesPerSample))
	n = min(n, totalFrames)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i * totalFrames / n
	}
	return indices
}
