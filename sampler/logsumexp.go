package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/netglm/netglm/rand"
)

// LogSumExpSample draws an index from the categorical distribution whose
// unnormalized log-weights are given. The max log-weight is subtracted before
// exponentiating, so the draw is stable under an arbitrary additive shift of
// all weights. -Inf entries are legal (probability zero); a NaN entry or an
// all-impossible weight vector is an error.
func LogSumExpSample(gen *rand.Generator, logWeights []float64) (int, error) {
	if len(logWeights) < 1 {
		return -1, errors.Errorf("Can not sample from empty log weights")
	}

	max := math.Inf(-1)
	for i, lw := range logWeights {
		if math.IsNaN(lw) {
			return -1, errors.Errorf("Log weight %d is NaN", i)
		}
		if lw > max {
			max = lw
		}
	}
	if math.IsInf(max, -1) {
		return -1, errors.Errorf("All %d log weights are impossible", len(logWeights))
	}

	total := 0.0
	probs := make([]float64, len(logWeights))
	for i, lw := range logWeights {
		probs[i] = math.Exp(lw - max)
		total += probs[i]
	}

	u := gen.Float64() * total
	cum := 0.0
	for i, p := range probs {
		cum += p
		if u < cum {
			return i, nil
		}
	}

	// Possible via float round-off on the final comparison
	return len(logWeights) - 1, nil
}

// logSumExp is a NaN-tolerant wrapper over the gonum kernel: NaN entries are
// treated as impossible, matching how the quadrature handles degenerate
// likelihood evaluations.
func logSumExp(logWeights []float64) float64 {
	clean := make([]float64, len(logWeights))
	for i, lw := range logWeights {
		if math.IsNaN(lw) {
			lw = math.Inf(-1)
		}
		clean[i] = lw
	}
	if floats.Max(clean) == math.Inf(-1) {
		return math.Inf(-1)
	}
	return floats.LogSumExp(clean)
}
