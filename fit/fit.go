// Package fit provides the fast point estimate used to seed a chain: a
// coordinate-descent MAP fit of an auxiliary dense-network population,
// plus the conversion step that maps its result into the target model's
// parameter space.
package fit

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"

	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
)

// Options controls the MAP estimate
type Options struct {
	// Rounds of coordinate descent (GLM block, then weight column, per unit)
	Rounds int

	// MaxIters bounds each inner LBFGS solve
	MaxIters int
}

// DefaultOptions matches the quick single-round seed the sampler wants
func DefaultOptions() Options {
	return Options{
		Rounds:   1,
		MaxIters: 50,
	}
}

// MapEstimate runs coordinate descent on the population, alternating an
// LBFGS solve of each unit's GLM block with one of its incoming weight
// column. The population should be an auxiliary dense-graph model: every
// edge on, so the likelihood is smooth in all weights. Returns a new state;
// x0 is not mutated.
func MapEstimate(pop model.Population, x0 *model.State, opts Options) (*model.State, error) {
	if x0 == nil {
		return nil, errors.New("No starting state supplied")
	}
	if opts.Rounds < 1 {
		return nil, errors.Errorf("Invalid round count %d", opts.Rounds)
	}

	x := x0.Clone()
	glm := pop.Glm()
	net := pop.Network()
	n := pop.NumUnits()

	for round := 0; round < opts.Rounds; round++ {
		for unit := 0; unit < n; unit++ {
			// GLM block
			theta, err := minimize(glm.Extract(x, unit), opts.MaxIters,
				func(v []float64) float64 {
					return neg(glm.LogProb(x, unit, v))
				},
				func(grad []float64, v []float64) {
					g := glm.Grad(x, unit, v)
					for i := range grad {
						grad[i] = neg(g[i])
					}
				})
			if err != nil {
				return nil, errors.Wrapf(err, "GLM block fit failed for unit %d", unit)
			}
			if err = glm.Insert(x, unit, theta); err != nil {
				return nil, errors.Wrapf(err, "Could not write unit %d fit back", unit)
			}

			// Incoming weight column
			q0 := make([]float64, n)
			for pre := 0; pre < n; pre++ {
				q0[pre] = x.W.At(pre, unit)
			}
			wcol, err := minimize(q0, opts.MaxIters,
				func(v []float64) float64 {
					return neg(glm.ColLogLik(x, unit, v) + net.WeightColLogProb(x, unit, v))
				},
				func(grad []float64, v []float64) {
					lg := glm.ColGrad(x, unit, v)
					pg := net.WeightColPriorGrad(x, unit, v)
					for i := range grad {
						grad[i] = neg(lg[i] + pg[i])
					}
				})
			if err != nil {
				return nil, errors.Wrapf(err, "Weight column fit failed for unit %d", unit)
			}
			for pre := 0; pre < n; pre++ {
				x.SetWeight(pre, unit, wcol[pre])
			}
		}
	}

	return x, nil
}

// minimize is a thin LBFGS wrapper. A rough seed is all the caller needs, so
// optimizer stalls (line search failures on flat regions) keep the best
// point found rather than failing the fit.
func minimize(q0 []float64, maxIters int, fn func([]float64) float64, grad func([]float64, []float64)) ([]float64, error) {
	problem := optimize.Problem{
		Func: fn,
		Grad: grad,
	}

	settings := &optimize.Settings{
		MajorIterations: maxIters,
	}

	result, err := optimize.Minimize(problem, q0, settings, &optimize.LBFGS{})
	if result == nil {
		return nil, errors.Wrap(err, "Optimizer produced no result")
	}
	if len(result.X) != len(q0) {
		return nil, errors.Errorf("Optimizer changed dimension %d -> %d", len(q0), len(result.X))
	}

	return result.X, nil
}

// neg keeps NaN out of the optimizer: impossible regions become +Inf
// objective, which LBFGS treats as an overshoot.
func neg(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return -v
}

// DenseStart samples a fresh state from the population and switches every
// edge on, zeroing the weights. MapEstimate wants this shape: with the full
// graph active the likelihood is smooth in all weight entries.
func DenseStart(pop model.Population, gen *rand.Generator) (*model.State, error) {
	x, err := pop.Sample(gen)
	if err != nil {
		return nil, errors.Wrap(err, "Could not sample a starting state")
	}

	n := pop.NumUnits()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x.SetEdge(i, j, true)
			x.SetWeight(i, j, 0.0)
		}
	}

	return x, nil
}

// Convert maps a MAP estimate from the auxiliary dense model into the target
// model's parameter space: GLM blocks and weights carry over directly, and
// edges switch on where the fitted weight is meaningfully far from zero
// (a tenth of the prior scale). The target's x0 supplies everything the
// auxiliary model lacks, such as latent locations.
func Convert(src *model.State, target model.Population, x0 *model.State) (*model.State, error) {
	if src == nil || x0 == nil {
		return nil, errors.New("Both a source estimate and a target state are required")
	}
	if src.N != x0.N {
		return nil, errors.Errorf("Source has %d units, target %d", src.N, x0.N)
	}

	x := x0.Clone()
	glm := target.Glm()
	wp := target.Network().Weights()

	for unit := 0; unit < src.N; unit++ {
		theta := glm.Extract(src, unit)
		if err := glm.Insert(x, unit, theta); err != nil {
			return nil, errors.Wrapf(err, "Unit %d block does not fit the target model", unit)
		}
	}

	for i := 0; i < src.N; i++ {
		for j := 0; j < src.N; j++ {
			w := src.W.At(i, j)
			_, sigma := wp.Params(i, j)
			x.SetWeight(i, j, w)
			x.SetEdge(i, j, math.Abs(w) > 0.1*sigma)
		}
	}

	if err := x.CheckShapes(); err != nil {
		return nil, errors.Wrap(err, "Converted state is not valid")
	}

	return x, nil
}
