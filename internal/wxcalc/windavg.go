package wxcalc

import "math"

// Consensus wind averaging over half-degree bins.
const (
	windBinSize       = 18
	windInterval      = 2 * windBinSize
	windNumBins       = 720 / windInterval
	windConsensusBins = 6
)

// WindAverage accumulates wind direction observations and computes a
// consensus average direction.
type WindAverage struct {
	bins [windNumBins + windConsensusBins]int
}

// Add records one observation in degrees.
func (w *WindAverage) Add(degrees int) {
	if degrees < 0 {
		degrees = 0
	}
	w.bins[(degrees+windBinSize/2)/windBinSize%windNumBins]++
}

// Reset clears all observations.
func (w *WindAverage) Reset() {
	*w = WindAverage{}
}

// Compute returns the average direction in degrees, or Null when nothing was
// added.
func (w *WindAverage) Compute() float64 {
	for i := windNumBins; i < len(w.bins); i++ {
		w.bins[i] = w.bins[i-windNumBins]
	}

	maxIndex, maxSum := 0, 0
	for i := 0; i < windNumBins; i++ {
		sum := 0
		for j := 0; j <= windConsensusBins; j++ {
			sum += w.bins[i+j]
		}
		if sum > maxSum {
			maxSum, maxIndex = sum, i
		}
	}
	if maxSum == 0 {
		return null
	}

	sum := 0
	for i := 0; i <= windConsensusBins; i++ {
		sum += i * w.bins[maxIndex+i]
	}
	sum = sum*windInterval/maxSum + maxIndex*windInterval
	return float64(sum % 720 / 2)
}

// ConsensusDirection returns the consensus average of dirs in degrees, or
// Null when dirs is empty.
func ConsensusDirection(dirs []float64) float64 {
	var w WindAverage
	for _, d := range dirs {
		w.Add(int(math.Round(d)))
	}
	return w.Compute()
}
