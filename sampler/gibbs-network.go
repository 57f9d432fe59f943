package sampler

import (
	"github.com/pkg/errors"

	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
)

// NetColumnGibbs resamples the incoming network column of one target unit
// with a plain two-block scheme: an exact Gibbs pass over the column's edge
// indicators (joint log-probability with each entry forced to 0 and to 1),
// then a joint HMC move over the column's weights. Statistically less
// efficient than NetColumnCollapsed near sparse regimes, but makes no
// integrability assumption about the likelihood.
type NetColumnGibbs struct {
	gen   *rand.Generator
	glm   model.GlmModel
	net   model.NetworkModel
	adapt *StepSizeAdapter

	// Steps is the leapfrog step count for the weight-column move
	Steps int
}

// NewNetColumnGibbs creates the update rule; Preprocess must run before
// Update.
func NewNetColumnGibbs(gen *rand.Generator) (*NetColumnGibbs, error) {
	if gen == nil {
		return nil, errors.New("No random generator supplied")
	}

	adapt, err := NewStepSizeAdapter(DefStepSize, DefTargetRate)
	if err != nil {
		return nil, err
	}

	return &NetColumnGibbs{
		gen:   gen,
		adapt: adapt,
		Steps: 10,
	}, nil
}

// Preprocess implements ParallelUpdate
func (u *NetColumnGibbs) Preprocess(pop model.Population) error {
	if pop == nil {
		return errors.New("No population supplied")
	}
	u.glm = pop.Glm()
	u.net = pop.Network()
	return nil
}

// Update implements ParallelUpdate - resamples A[:,n] then W[:,n]
func (u *NetColumnGibbs) Update(x *model.State, n int) error {
	if u.glm == nil {
		return errors.New("Update called before Preprocess")
	}

	err := u.sampleColumnOfA(x, n)
	if err != nil {
		return err
	}
	return u.sampleColumnOfW(x, n)
}

func (u *NetColumnGibbs) sampleColumnOfA(x *model.State, n int) error {
	ev := u.glm.EdgeEval(x, n)
	w := make([]float64, x.N)
	for pre := 0; pre < x.N; pre++ {
		w[pre] = x.W.At(pre, n)
	}

	for pre := 0; pre < x.N; pre++ {
		// Each forcing re-evaluates the graph prior with the entry changed
		// and the unit's likelihood against the precomputed currents
		x.SetEdge(pre, n, false)
		lp0 := u.net.LogProb(x) + ev.LogLik(pre, false, 0.0)

		x.SetEdge(pre, n, true)
		lp1 := u.net.LogProb(x) + ev.LogLik(pre, true, w[pre])

		idx, err := LogSumExpSample(u.gen, []float64{lp0, lp1})
		if err != nil {
			return errors.Wrapf(err, "Edge %d->%d has no possible value", pre, n)
		}

		on := idx == 1
		x.SetEdge(pre, n, on)
		ev.Commit(pre, on, w[pre])
	}

	return nil
}

func (u *NetColumnGibbs) sampleColumnOfW(x *model.State, n int) error {
	q0 := make([]float64, x.N)
	for pre := 0; pre < x.N; pre++ {
		q0[pre] = x.W.At(pre, n)
	}

	// The joint gradient restricted to this column: entries outside the
	// column are fixed, which is the masked-gradient update expressed on the
	// column vector directly
	negLogP := func(wcol []float64) float64 {
		return -(u.net.WeightColLogProb(x, n, wcol) + u.glm.ColLogLik(x, n, wcol))
	}
	gradNegLogP := func(wcol []float64) []float64 {
		g := u.glm.ColGrad(x, n, wcol)
		pg := u.net.WeightColPriorGrad(x, n, wcol)
		for i := range g {
			g[i] = -(g[i] + pg[i])
		}
		return g
	}

	wcol, accepted := Hmc(u.gen, negLogP, gradNegLogP, u.adapt.StepSize, u.Steps, q0)
	u.adapt.Observe(accepted)

	if len(wcol) != x.N {
		return errors.Errorf("Weight column for unit %d came back with length %d, want %d",
			n, len(wcol), x.N)
	}
	for pre := 0; pre < x.N; pre++ {
		x.SetWeight(pre, n, wcol[pre])
	}

	return nil
}

// Adapter exposes the step size controller for monitoring
func (u *NetColumnGibbs) Adapter() *StepSizeAdapter {
	return u.adapt
}
