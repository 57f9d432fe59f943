package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHmcStandardNormal(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)

	negLogP := func(q []float64) float64 {
		return 0.5 * q[0] * q[0]
	}
	gradNegLogP := func(q []float64) []float64 {
		return []float64{q[0]}
	}

	adapt, err := NewStepSizeAdapter(DefStepSize, DefTargetRate)
	assert.NoError(err)

	q := []float64{3.0}
	const burn, iters = 500, 20000

	sum, sumSq := 0.0, 0.0
	accepted := 0
	for i := 0; i < burn+iters; i++ {
		var acc bool
		q, acc = Hmc(gen, negLogP, gradNegLogP, adapt.StepSize, 5, q)
		adapt.Observe(acc)
		if i < burn {
			continue
		}
		if acc {
			accepted++
		}
		sum += q[0]
		sumSq += q[0] * q[0]
	}

	mean := sum / float64(iters)
	variance := sumSq/float64(iters) - mean*mean
	assert.InDelta(0.0, mean, 0.05)
	assert.InDelta(1.0, variance, 0.1)

	// Adaptation should settle near the target acceptance rate
	assert.InDelta(DefTargetRate, float64(accepted)/float64(iters), 0.05)
}

func TestHmcRejectCopies(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)

	// An impossible target rejects every proposal
	negLogP := func(q []float64) float64 {
		return math.Inf(1)
	}
	gradNegLogP := func(q []float64) []float64 {
		return []float64{math.NaN()}
	}

	q0 := []float64{1.0, -2.0}
	q, acc := Hmc(gen, negLogP, gradNegLogP, 0.1, 3, q0)
	assert.False(acc)
	assert.Equal(q0, q)

	// Rejection returns a copy, never an alias
	q[0] = 99.0
	assert.Equal(1.0, q0[0])
}

func TestHmcNonFiniteGradientRejects(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)

	calls := 0
	negLogP := func(q []float64) float64 {
		return 0.5 * q[0] * q[0]
	}
	gradNegLogP := func(q []float64) []float64 {
		calls++
		if calls > 2 {
			return []float64{math.Inf(1)}
		}
		return []float64{q[0]}
	}

	q, acc := Hmc(gen, negLogP, gradNegLogP, 0.1, 10, []float64{0.5})
	assert.False(acc)
	assert.Equal([]float64{0.5}, q)
}

func TestHmcLargeStepStillValid(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)

	negLogP := func(q []float64) float64 {
		return 0.5 * q[0] * q[0]
	}
	gradNegLogP := func(q []float64) []float64 {
		return []float64{q[0]}
	}

	// A wildly large step mostly rejects but must never error or return a
	// non-finite position
	q := []float64{0.0}
	for i := 0; i < 200; i++ {
		var acc bool
		q, acc = Hmc(gen, negLogP, gradNegLogP, 50.0, 5, q)
		_ = acc
		assert.False(math.IsNaN(q[0]))
		assert.False(math.IsInf(q[0], 0))
	}
}
