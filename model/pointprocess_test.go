package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netglm/netglm/rand"
)

func testGen(t *testing.T) *rand.Generator {
	gen, err := rand.NewGenerator(42)
	if err != nil {
		t.Fatalf("Could not create generator: %v", err)
	}
	return gen
}

// testPop simulates a small recording from a prior draw and wraps it in a
// population. Returns the population and the ground truth.
func testPop(t *testing.T, n int, T int) (*PointProcess, *State) {
	gen := testGen(t)
	cfg := DefaultConfig(n)

	truth, err := SamplePrior(gen, cfg)
	if err != nil {
		t.Fatalf("Prior draw failed: %v", err)
	}

	data, err := Simulate(gen, cfg, truth, T)
	if err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}

	pop, err := NewPointProcess(cfg, data)
	if err != nil {
		t.Fatalf("Population build failed: %v", err)
	}

	return pop, truth
}

func TestPointProcessCreate(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig(3)
	_, err := NewPointProcess(cfg, nil)
	assert.Error(err)

	pop, truth := testPop(t, 3, 200)
	assert.Equal(3, pop.NumUnits())
	assert.NoError(truth.CheckShapes())

	lp := pop.LogProb(truth)
	assert.False(math.IsNaN(lp))
	assert.False(math.IsInf(lp, 0))
}

func TestPointProcessSample(t *testing.T) {
	assert := assert.New(t)

	pop, _ := testPop(t, 4, 100)
	gen := testGen(t)

	x, err := pop.Sample(gen)
	assert.NoError(err)
	assert.NoError(x.CheckShapes())
	assert.Equal(4, x.N)
	assert.Len(x.Glms[0].Stim, pop.Config().StimDim)
}

func TestGlmExtractInsert(t *testing.T) {
	assert := assert.New(t)

	pop, truth := testPop(t, 3, 100)
	glm := pop.Glm()

	assert.Equal(1+pop.Config().StimDim, glm.ParamDim())

	theta := glm.Extract(truth, 1)
	assert.Len(theta, glm.ParamDim())
	assert.Equal(truth.Glms[1].Bias, theta[0])

	assert.Error(glm.Insert(truth, 1, []float64{1.0}))

	theta[0] = 0.123
	theta[1] = -0.5
	assert.NoError(glm.Insert(truth, 1, theta))
	assert.Equal(0.123, truth.Glms[1].Bias)
	assert.Equal(-0.5, truth.Glms[1].Stim[0])
}

func TestGlmGradient(t *testing.T) {
	assert := assert.New(t)

	pop, truth := testPop(t, 3, 300)
	glm := pop.Glm()

	theta := glm.Extract(truth, 0)
	grad := glm.Grad(truth, 0, theta)
	assert.Len(grad, len(theta))

	const h = 1e-6
	for i := range theta {
		up := make([]float64, len(theta))
		dn := make([]float64, len(theta))
		copy(up, theta)
		copy(dn, theta)
		up[i] += h
		dn[i] -= h
		fd := (glm.LogProb(truth, 0, up) - glm.LogProb(truth, 0, dn)) / (2.0 * h)
		assert.InDelta(fd, grad[i], 1e-3*(1.0+math.Abs(fd)))
	}
}

func TestColGradient(t *testing.T) {
	assert := assert.New(t)

	pop, truth := testPop(t, 3, 300)
	glm := pop.Glm()
	net := pop.Network()

	wcol := make([]float64, truth.N)
	for pre := 0; pre < truth.N; pre++ {
		wcol[pre] = truth.W.At(pre, 1)
	}

	grad := glm.ColGrad(truth, 1, wcol)
	pg := net.WeightColPriorGrad(truth, 1, wcol)
	assert.Len(grad, truth.N)
	assert.Len(pg, truth.N)

	const h = 1e-6
	for pre := 0; pre < truth.N; pre++ {
		up := make([]float64, truth.N)
		dn := make([]float64, truth.N)
		copy(up, wcol)
		copy(dn, wcol)
		up[pre] += h
		dn[pre] -= h

		fdLik := (glm.ColLogLik(truth, 1, up) - glm.ColLogLik(truth, 1, dn)) / (2.0 * h)
		fdPri := (net.WeightColLogProb(truth, 1, up) - net.WeightColLogProb(truth, 1, dn)) / (2.0 * h)

		if !truth.Edge(pre, 1) {
			// Gated-off sources contribute nothing to the likelihood
			assert.Equal(0.0, grad[pre])
			assert.InDelta(0.0, fdLik, 1e-6)
		} else {
			assert.InDelta(fdLik, grad[pre], 1e-3*(1.0+math.Abs(fdLik)))
		}
		assert.InDelta(fdPri, pg[pre], 1e-4*(1.0+math.Abs(fdPri)))
	}
}

func TestEdgeEvaluator(t *testing.T) {
	assert := assert.New(t)

	pop, truth := testPop(t, 3, 200)
	glm := pop.Glm()

	ev := glm.EdgeEval(truth, 2)

	// Evaluating the current configuration must reproduce the unit's
	// likelihood exactly
	for pre := 0; pre < truth.N; pre++ {
		ll := ev.LogLik(pre, truth.Edge(pre, 2), truth.W.At(pre, 2))
		assert.InDelta(glm.LogLik(truth, 2), ll, 1e-9)
	}

	// Forcing an edge must match ColLogLik with the weight column edited
	// the same way
	wcol := make([]float64, truth.N)
	for pre := 0; pre < truth.N; pre++ {
		wcol[pre] = truth.W.At(pre, 2)
	}

	wasOn := truth.Edge(0, 2)
	truth.SetEdge(0, 2, true)
	forced := make([]float64, truth.N)
	copy(forced, wcol)
	forced[0] = 0.7
	assert.InDelta(glm.ColLogLik(truth, 2, forced), ev.LogLik(0, true, 0.7), 1e-9)
	truth.SetEdge(0, 2, wasOn)

	// Commit folds the decision in: later evaluations of other sources see
	// the new configuration
	truth.SetEdge(0, 2, true)
	truth.SetWeight(0, 2, 0.7)
	ev.Commit(0, true, 0.7)
	for pre := 1; pre < truth.N; pre++ {
		ll := ev.LogLik(pre, truth.Edge(pre, 2), truth.W.At(pre, 2))
		assert.InDelta(glm.LogLik(truth, 2), ll, 1e-9)
	}
}

func TestNetworkLogProb(t *testing.T) {
	assert := assert.New(t)

	pop, truth := testPop(t, 3, 100)
	net := pop.Network()

	lp := net.LogProb(truth)
	assert.False(math.IsNaN(lp))

	// Moving a weight far from its prior mean must lower the network score
	w0 := truth.W.At(0, 1)
	truth.SetWeight(0, 1, w0+50.0)
	assert.True(net.LogProb(truth) < lp)
	truth.SetWeight(0, 1, w0)

	assert.False(net.HasLocations())
	assert.Equal(pop.Config().Weights, net.Weights())
}
