package sampler

import (
	"github.com/netglm/netglm/model"
)

// A ParallelUpdate is a Metropolis-Hastings update rule that targets one
// unit's slot or incoming network column at a time. Invocations for different
// units write to disjoint slices of the state, so the rule is logically
// data-parallel across units (the driver still runs them sequentially, see
// Gibbs).
type ParallelUpdate interface {
	Preprocess(pop model.Population) error
	Update(x *model.State, n int) error
}

// A SerialUpdate is a population-wide Metropolis-Hastings update rule. It
// must run alone, after all parallel updates for the sweep have finished.
type SerialUpdate interface {
	Preprocess(pop model.Population) error
	Update(x *model.State) error
}
