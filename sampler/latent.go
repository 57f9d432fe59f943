package sampler

import (
	"github.com/pkg/errors"

	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
)

// LatentLocations resamples the entire latent coordinate matrix of a
// distance-based graph prior with HMC on the prior's log-probability. Every
// edge probability depends on the shared coordinates, so this is a serial,
// population-wide update: it runs once per sweep, after the parallel rules.
type LatentLocations struct {
	gen   *rand.Generator
	net   model.NetworkModel
	adapt *StepSizeAdapter

	// Steps is the leapfrog step count per proposal
	Steps int
}

// NewLatentLocations creates the update rule; Preprocess must run before
// Update.
func NewLatentLocations(gen *rand.Generator) (*LatentLocations, error) {
	if gen == nil {
		return nil, errors.New("No random generator supplied")
	}

	adapt, err := NewStepSizeAdapter(DefStepSize, DefTargetRate)
	if err != nil {
		return nil, err
	}

	return &LatentLocations{
		gen:   gen,
		adapt: adapt,
		Steps: 10,
	}, nil
}

// Preprocess implements SerialUpdate
func (u *LatentLocations) Preprocess(pop model.Population) error {
	if pop == nil {
		return errors.New("No population supplied")
	}
	u.net = pop.Network()
	if !u.net.HasLocations() {
		return errors.Errorf("Graph prior has no latent locations to sample")
	}
	return nil
}

// Update implements SerialUpdate
func (u *LatentLocations) Update(x *model.State) error {
	if u.net == nil {
		return errors.New("Update called before Preprocess")
	}

	q0 := x.LocationsFlat()

	negLogP := func(flatL []float64) float64 {
		return -u.net.LocLogProb(x, flatL)
	}
	gradNegLogP := func(flatL []float64) []float64 {
		g := u.net.LocGrad(x, flatL)
		for i := range g {
			g[i] = -g[i]
		}
		return g
	}

	flatL, accepted := Hmc(u.gen, negLogP, gradNegLogP, u.adapt.StepSize, u.Steps, q0)
	u.adapt.Observe(accepted)

	err := x.SetLocations(flatL)
	if err != nil {
		return errors.Wrap(err, "Could not write locations back")
	}

	return nil
}

// Adapter exposes the step size controller for monitoring
func (u *LatentLocations) Adapter() *StepSizeAdapter {
	return u.adapt
}
