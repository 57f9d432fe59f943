package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
)

func testGen(t *testing.T) *rand.Generator {
	gen, err := rand.NewGenerator(42)
	if err != nil {
		t.Fatalf("Could not create generator: %v", err)
	}
	return gen
}

// flatPop is a population whose likelihood is constant in the network: every
// update rule targeting edges or weights should leave their priors invariant
// against it. The single GLM parameter has a standard normal posterior.
type flatPop struct {
	n       int
	weights model.WeightPrior
	graph   model.BernoulliGraph
}

func newFlatPop(n int) *flatPop {
	return &flatPop{
		n:       n,
		weights: model.WeightPrior{Mu: 0.5, Sigma: 1.0, MuRef: -1.0, SigmaRef: 0.5},
		graph:   model.BernoulliGraph{Rho: 0.3, RhoSelf: 0.8},
	}
}

func (p *flatPop) NumUnits() int { return p.n }

func (p *flatPop) Sample(gen *rand.Generator) (*model.State, error) {
	x, err := model.NewState(p.n, 0, 0)
	if err != nil {
		return nil, err
	}
	for i := 0; i < p.n; i++ {
		for j := 0; j < p.n; j++ {
			x.SetEdge(i, j, gen.Float64() < p.graph.EdgeProb(x, i, j))
			mu, sigma := p.weights.Params(i, j)
			x.SetWeight(i, j, mu+sigma*gen.NormFloat64())
		}
		x.Glms[i].Bias = gen.NormFloat64()
	}
	return x, nil
}

func (p *flatPop) LogProb(x *model.State) float64 {
	lp := p.Network().LogProb(x)
	for _, g := range x.Glms {
		lp += -0.5 * g.Bias * g.Bias
	}
	return lp
}

func (p *flatPop) Glm() model.GlmModel         { return &flatGlm{} }
func (p *flatPop) Network() model.NetworkModel { return &flatNet{p} }

// flatGlm has one parameter per unit with a standard normal posterior and a
// likelihood that ignores the network entirely.
type flatGlm struct{}

func (g *flatGlm) ParamDim() int { return 1 }

func (g *flatGlm) Extract(x *model.State, n int) []float64 {
	return []float64{x.Glms[n].Bias}
}

func (g *flatGlm) Insert(x *model.State, n int, theta []float64) error {
	x.Glms[n].Bias = theta[0]
	return nil
}

func (g *flatGlm) LogProb(x *model.State, n int, theta []float64) float64 {
	return -0.5 * theta[0] * theta[0]
}

func (g *flatGlm) Grad(x *model.State, n int, theta []float64) []float64 {
	return []float64{-theta[0]}
}

func (g *flatGlm) LogLik(x *model.State, n int) float64 { return 0.0 }

func (g *flatGlm) ColLogLik(x *model.State, n int, wcol []float64) float64 { return 0.0 }

func (g *flatGlm) ColGrad(x *model.State, n int, wcol []float64) []float64 {
	return make([]float64, x.N)
}

func (g *flatGlm) EdgeEval(x *model.State, n int) model.EdgeEvaluator {
	return flatEval{}
}

type flatEval struct{}

func (e flatEval) LogLik(pre int, on bool, w float64) float64 { return 0.0 }
func (e flatEval) Commit(pre int, on bool, w float64)         {}

type flatNet struct {
	p *flatPop
}

func (m *flatNet) LogProb(x *model.State) float64 {
	lp := m.p.graph.LogProb(x)
	for i := 0; i < x.N; i++ {
		for j := 0; j < x.N; j++ {
			lp += m.p.weights.LogProb(i, j, x.W.At(i, j))
		}
	}
	return lp
}

func (m *flatNet) EdgeProb(x *model.State, pre int, post int) float64 {
	return m.p.graph.EdgeProb(x, pre, post)
}

func (m *flatNet) Weights() model.WeightPrior { return m.p.weights }

func (m *flatNet) WeightColLogProb(x *model.State, post int, wcol []float64) float64 {
	lp := 0.0
	for pre, w := range wcol {
		lp += m.p.weights.LogProb(pre, post, w)
	}
	return lp
}

func (m *flatNet) WeightColPriorGrad(x *model.State, post int, wcol []float64) []float64 {
	grad := make([]float64, len(wcol))
	for pre, w := range wcol {
		mu, sigma := m.p.weights.Params(pre, post)
		grad[pre] = -(w - mu) / (sigma * sigma)
	}
	return grad
}

func (m *flatNet) HasLocations() bool { return false }
func (m *flatNet) LocDim() int        { return 0 }

func (m *flatNet) LocLogProb(x *model.State, flatL []float64) float64 {
	return m.LogProb(x)
}

func (m *flatNet) LocGrad(x *model.State, flatL []float64) []float64 { return nil }

func TestLogSumExpSampleBasic(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)

	_, err := LogSumExpSample(gen, []float64{})
	assert.Error(err)

	_, err = LogSumExpSample(gen, []float64{0.0, math.NaN()})
	assert.Error(err)

	_, err = LogSumExpSample(gen, []float64{math.Inf(-1), math.Inf(-1)})
	assert.Error(err)

	// A -Inf entry just means probability zero
	for i := 0; i < 100; i++ {
		idx, err := LogSumExpSample(gen, []float64{math.Inf(-1), 0.0})
		assert.NoError(err)
		assert.Equal(1, idx)
	}
}

func TestLogSumExpSampleFrequency(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)

	const iters = 20000
	count := 0
	for i := 0; i < iters; i++ {
		idx, err := LogSumExpSample(gen, []float64{math.Log(0.9), math.Log(0.1)})
		assert.NoError(err)
		if idx == 0 {
			count++
		}
	}
	assert.InDelta(0.9, float64(count)/float64(iters), 0.02)
}

func TestLogSumExpSampleShiftInvariant(t *testing.T) {
	assert := assert.New(t)

	// A huge common shift must not change the draw distribution
	for _, shift := range []float64{0.0, -5000.0, 5000.0} {
		gen := testGen(t)

		const iters = 10000
		count := 0
		for i := 0; i < iters; i++ {
			idx, err := LogSumExpSample(gen, []float64{
				math.Log(0.75) + shift,
				math.Log(0.25) + shift,
			})
			assert.NoError(err)
			if idx == 0 {
				count++
			}
		}
		assert.InDelta(0.75, float64(count)/float64(iters), 0.02)
	}
}

func TestLogSumExpHelper(t *testing.T) {
	assert := assert.New(t)

	assert.InDelta(math.Log(2.0), logSumExp([]float64{0.0, 0.0}), 1e-12)
	assert.Equal(math.Inf(-1), logSumExp([]float64{math.Inf(-1), math.Inf(-1)}))

	// NaN entries count as impossible, not poison
	assert.InDelta(0.0, logSumExp([]float64{0.0, math.NaN()}), 1e-12)
	assert.Equal(math.Inf(-1), logSumExp([]float64{math.NaN()}))
}
