package model

import (
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/netglm/netglm/rand"
)

// Population is the model evaluator the sampler works against: a joint
// log-probability over a full parameter state plus the per-unit and network
// sub-models the update rules need. Implementations must be pure: the same
// state always evaluates to the same log-probability.
type Population interface {
	// NumUnits returns N, fixed for the life of a chain
	NumUnits() int

	// Sample draws a fresh state from the prior
	Sample(gen *rand.Generator) (*State, error)

	// LogProb is the joint log-probability of the full state
	LogProb(x *State) float64

	// Glm exposes the per-unit GLM sub-model
	Glm() GlmModel

	// Network exposes the graph/weight prior sub-model
	Network() NetworkModel
}

// GlmModel is the per-unit view of the population: extraction and insertion
// of a unit's differentiable parameter block, log-probability and gradient
// evaluation for that block, and likelihood evaluation under the current (or
// a forced) network configuration.
type GlmModel interface {
	// ParamDim is the length of one unit's differentiable parameter vector
	ParamDim() int

	// Extract returns a copy of unit n's parameter vector
	Extract(x *State, n int) []float64

	// Insert writes theta back into unit n's slot. Errors on shape mismatch.
	Insert(x *State, n int, theta []float64) error

	// LogProb is unit n's likelihood plus parameter prior, evaluated at
	// theta with every other part of the state held fixed
	LogProb(x *State, n int, theta []float64) float64

	// Grad is the gradient of LogProb with respect to theta
	Grad(x *State, n int, theta []float64) []float64

	// LogLik is unit n's likelihood under the state as-is
	LogLik(x *State, n int) float64

	// ColLogLik is unit n's likelihood with the incoming weight column
	// replaced by wcol (adjacency as-is)
	ColLogLik(x *State, n int, wcol []float64) float64

	// ColGrad is the gradient of unit n's likelihood with respect to the
	// incoming weight column, evaluated at wcol
	ColGrad(x *State, n int, wcol []float64) []float64

	// EdgeEval precomputes unit n's currents so that repeated likelihood
	// evaluations with one forced incoming edge are cheap
	EdgeEval(x *State, n int) EdgeEvaluator
}

// EdgeEvaluator evaluates one unit's likelihood with a single incoming edge
// forced to a given configuration, against currents precomputed when the
// evaluator was created. Commit folds an accepted edge decision into the
// precomputed currents; the caller remains responsible for writing the same
// decision into the state.
type EdgeEvaluator interface {
	LogLik(pre int, on bool, w float64) float64
	Commit(pre int, on bool, w float64)
}

// NetworkModel is the graph and weight prior sub-model
type NetworkModel interface {
	// LogProb is the prior log-probability of the network portion of the
	// state: adjacency (and locations, if any) plus all weights
	LogProb(x *State) float64

	// EdgeProb is the prior probability of A[pre,post]=1, possibly a
	// function of the latent locations in x
	EdgeProb(x *State, pre int, post int) float64

	// Weights returns the edge-weight prior parameters
	Weights() WeightPrior

	// WeightColLogProb is the prior log-probability of weight column
	// W[:,post] evaluated at wcol (the weight prior is entrywise, so the
	// column term is exact)
	WeightColLogProb(x *State, post int, wcol []float64) float64

	// WeightColPriorGrad is the gradient of WeightColLogProb at wcol
	WeightColPriorGrad(x *State, post int, wcol []float64) []float64

	// HasLocations reports whether the graph prior is latent-distance based
	HasLocations() bool

	// LocDim is the latent coordinate dimensionality (0 without locations)
	LocDim() int

	// LocLogProb is the log-probability of the graph prior with the
	// locations replaced by flatL (row-major), adjacency from x
	LocLogProb(x *State, flatL []float64) float64

	// LocGrad is the gradient of LocLogProb with respect to flatL
	LocGrad(x *State, flatL []float64) []float64
}

// WeightPrior holds Gaussian edge-weight prior parameters. Self-loops are
// refractory connections and get their own (MuRef, SigmaRef) pair.
type WeightPrior struct {
	Mu       float64
	Sigma    float64
	MuRef    float64
	SigmaRef float64
}

// Params returns the (mu, sigma) pair that applies to edge pre->post
func (wp WeightPrior) Params(pre int, post int) (float64, float64) {
	if pre == post {
		return wp.MuRef, wp.SigmaRef
	}
	return wp.Mu, wp.Sigma
}

// LogProb is the prior log-density of weight w on edge pre->post
func (wp WeightPrior) LogProb(pre int, post int, w float64) float64 {
	mu, sigma := wp.Params(pre, post)
	return distuv.Normal{Mu: mu, Sigma: sigma}.LogProb(w)
}
