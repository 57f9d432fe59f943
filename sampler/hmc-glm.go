package sampler

import (
	"github.com/pkg/errors"

	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
)

// GlmHmc resamples one unit's continuous, unconstrained GLM parameters with
// Hamiltonian Monte Carlo, holding every other unit fixed. It reads but never
// writes other units' state, so it belongs in the parallel rule group.
type GlmHmc struct {
	gen   *rand.Generator
	glm   model.GlmModel
	adapt *StepSizeAdapter

	// Steps is the number of leapfrog steps per proposal. A small count with
	// an adaptive step mixes well for these smooth conditionals.
	Steps int
}

// NewGlmHmc creates the update rule; Preprocess must run before Update.
func NewGlmHmc(gen *rand.Generator) (*GlmHmc, error) {
	if gen == nil {
		return nil, errors.New("No random generator supplied")
	}

	adapt, err := NewStepSizeAdapter(DefStepSize, DefTargetRate)
	if err != nil {
		return nil, err
	}

	return &GlmHmc{
		gen:   gen,
		adapt: adapt,
		Steps: 2,
	}, nil
}

// Preprocess implements ParallelUpdate - binds the rule to the population's
// differentiable GLM block.
func (u *GlmHmc) Preprocess(pop model.Population) error {
	if pop == nil {
		return errors.New("No population supplied")
	}
	u.glm = pop.Glm()
	if u.glm.ParamDim() < 1 {
		return errors.Errorf("Population GLM block has no differentiable parameters")
	}
	return nil
}

// Update implements ParallelUpdate
func (u *GlmHmc) Update(x *model.State, n int) error {
	if u.glm == nil {
		return errors.New("Update called before Preprocess")
	}

	theta := u.glm.Extract(x, n)

	negLogP := func(v []float64) float64 {
		return -u.glm.LogProb(x, n, v)
	}
	gradNegLogP := func(v []float64) []float64 {
		g := u.glm.Grad(x, n, v)
		for i := range g {
			g[i] = -g[i]
		}
		return g
	}

	theta, accepted := Hmc(u.gen, negLogP, gradNegLogP, u.adapt.StepSize, u.Steps, theta)
	u.adapt.Observe(accepted)

	err := u.glm.Insert(x, n, theta)
	if err != nil {
		return errors.Wrapf(err, "Could not write unit %d parameters back", n)
	}

	return nil
}

// Adapter exposes the step size controller for monitoring
func (u *GlmHmc) Adapter() *StepSizeAdapter {
	return u.adapt
}
