package model

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/netglm/netglm/rand"
)

// GraphPrior is the prior over the adjacency matrix (and latent locations,
// when the prior is distance based).
type GraphPrior interface {
	// EdgeProb is the prior probability of A[pre,post]=1
	EdgeProb(x *State, pre int, post int) float64

	// LogProb is the log-probability of the adjacency in x under the prior,
	// plus the location prior when locations exist
	LogProb(x *State) float64

	// HasLocations reports whether edge probability depends on locations
	HasLocations() bool

	// LocDim is the latent coordinate dimensionality (0 without locations)
	LocDim() int

	// LocLogProb evaluates LogProb with the locations replaced by flatL
	LocLogProb(x *State, flatL []float64) float64

	// LocGrad is the gradient of LocLogProb with respect to flatL
	LocGrad(x *State, flatL []float64) []float64

	// SampleLocations draws locations from the prior (nil without locations)
	SampleLocations(gen *rand.Generator, n int) []float64
}

// BernoulliGraph is an independent-edge prior: every off-diagonal edge is
// present with probability Rho, and every self-loop (the refractory
// connection) with probability RhoSelf.
type BernoulliGraph struct {
	Rho     float64
	RhoSelf float64
}

// EdgeProb implements GraphPrior
func (g BernoulliGraph) EdgeProb(x *State, pre int, post int) float64 {
	if pre == post {
		return g.RhoSelf
	}
	return g.Rho
}

// LogProb implements GraphPrior
func (g BernoulliGraph) LogProb(x *State) float64 {
	lp := 0.0
	for i := 0; i < x.N; i++ {
		for j := 0; j < x.N; j++ {
			lp += bernLogProb(g.EdgeProb(x, i, j), x.Edge(i, j))
		}
	}
	return lp
}

// HasLocations implements GraphPrior
func (g BernoulliGraph) HasLocations() bool { return false }

// LocDim implements GraphPrior
func (g BernoulliGraph) LocDim() int { return 0 }

// LocLogProb implements GraphPrior
func (g BernoulliGraph) LocLogProb(x *State, flatL []float64) float64 { return g.LogProb(x) }

// LocGrad implements GraphPrior
func (g BernoulliGraph) LocGrad(x *State, flatL []float64) []float64 { return nil }

// SampleLocations implements GraphPrior
func (g BernoulliGraph) SampleLocations(gen *rand.Generator, n int) []float64 { return nil }

// LatentDistanceGraph is a latent distance prior: units carry D-dimensional
// coordinates with a Normal(0, SigmaLoc) prior, and the probability of an
// off-diagonal edge is sigmoid(Offset - d^2/Delta^2) for pairwise distance d.
// Self-loops stay at RhoSelf independent of location.
type LatentDistanceGraph struct {
	Dim      int
	SigmaLoc float64
	Delta    float64
	Offset   float64
	RhoSelf  float64
}

// EdgeProb implements GraphPrior
func (g LatentDistanceGraph) EdgeProb(x *State, pre int, post int) float64 {
	if pre == post {
		return g.RhoSelf
	}
	return sigmoid(g.edgeLogit(x.LocationsFlat(), pre, post))
}

func (g LatentDistanceGraph) edgeLogit(flatL []float64, pre int, post int) float64 {
	d2 := 0.0
	for k := 0; k < g.Dim; k++ {
		diff := flatL[pre*g.Dim+k] - flatL[post*g.Dim+k]
		d2 += diff * diff
	}
	return g.Offset - d2/(g.Delta*g.Delta)
}

// LogProb implements GraphPrior
func (g LatentDistanceGraph) LogProb(x *State) float64 {
	return g.LocLogProb(x, x.LocationsFlat())
}

// HasLocations implements GraphPrior
func (g LatentDistanceGraph) HasLocations() bool { return true }

// LocDim implements GraphPrior
func (g LatentDistanceGraph) LocDim() int { return g.Dim }

// LocLogProb implements GraphPrior
func (g LatentDistanceGraph) LocLogProb(x *State, flatL []float64) float64 {
	lp := 0.0

	locPrior := distuv.Normal{Mu: 0.0, Sigma: g.SigmaLoc}
	for _, l := range flatL {
		lp += locPrior.LogProb(l)
	}

	for i := 0; i < x.N; i++ {
		for j := 0; j < x.N; j++ {
			if i == j {
				lp += bernLogProb(g.RhoSelf, x.Edge(i, j))
				continue
			}
			lp += bernLogProb(sigmoid(g.edgeLogit(flatL, i, j)), x.Edge(i, j))
		}
	}

	return lp
}

// LocGrad implements GraphPrior. For the Bernoulli edge terms the gradient of
// the logit is (A_ij - p_ij), which keeps everything analytic.
func (g LatentDistanceGraph) LocGrad(x *State, flatL []float64) []float64 {
	grad := make([]float64, len(flatL))

	for i, l := range flatL {
		grad[i] = -l / (g.SigmaLoc * g.SigmaLoc)
	}

	invD2 := 1.0 / (g.Delta * g.Delta)
	for i := 0; i < x.N; i++ {
		for j := 0; j < x.N; j++ {
			if i == j {
				continue
			}

			p := sigmoid(g.edgeLogit(flatL, i, j))
			a := 0.0
			if x.Edge(i, j) {
				a = 1.0
			}
			dLogit := a - p

			for k := 0; k < g.Dim; k++ {
				diff := flatL[i*g.Dim+k] - flatL[j*g.Dim+k]
				// d(logit)/d(l_i) = -2*(l_i-l_j)/Delta^2
				grad[i*g.Dim+k] += dLogit * (-2.0 * diff * invD2)
				grad[j*g.Dim+k] += dLogit * (2.0 * diff * invD2)
			}
		}
	}

	return grad
}

// SampleLocations implements GraphPrior
func (g LatentDistanceGraph) SampleLocations(gen *rand.Generator, n int) []float64 {
	flat := make([]float64, n*g.Dim)
	for i := range flat {
		flat[i] = g.SigmaLoc * gen.NormFloat64()
	}
	return flat
}

// bernLogProb is the Bernoulli log-pmf; impossible outcomes yield -Inf rather
// than NaN so callers can treat them as probability zero.
func bernLogProb(p float64, on bool) float64 {
	if on {
		return math.Log(p)
	}
	return math.Log1p(-p)
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}
