package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate/quad"
)

// DefGaussHermiteDeg is the default quadrature degree for collapsed weight
// integration.
const DefGaussHermiteDeg = 20

// GaussHermite holds fixed Gauss-Hermite quadrature locations for
// integrating against a Gaussian weighting function: nodes X and weights W
// with sum_k W[k] f(X[k]) ~ Int e^{-x^2} f(x) dx.
type GaussHermite struct {
	X []float64
	W []float64

	// logW[k] = log(W[k]/sqrt(pi)), the per-node offset when the Gaussian is
	// a normalized density rather than a bare e^{-x^2} kernel
	logW []float64
}

// NewGaussHermite computes the quadrature rule of the given degree
func NewGaussHermite(deg int) (*GaussHermite, error) {
	if deg < 2 {
		return nil, errors.Errorf("Gauss-Hermite degree %d is too small", deg)
	}

	gh := &GaussHermite{
		X:    make([]float64, deg),
		W:    make([]float64, deg),
		logW: make([]float64, deg),
	}

	quad.Hermite{}.FixedLocations(gh.X, gh.W, math.Inf(-1), math.Inf(1))

	logSqrtPi := 0.5 * math.Log(math.Pi)
	for k, w := range gh.W {
		gh.logW[k] = math.Log(w) - logSqrtPi
	}

	return gh, nil
}

// Deg returns the degree of the rule
func (gh *GaussHermite) Deg() int {
	return len(gh.X)
}

// WeightNodes maps the quadrature abscissae into weight space for a
// Normal(mu, sigma) integrand: w_k = sqrt(2)*sigma*x_k + mu. Nodes come back
// in increasing order.
func (gh *GaussHermite) WeightNodes(mu float64, sigma float64) []float64 {
	nodes := make([]float64, len(gh.X))
	for k, x := range gh.X {
		nodes[k] = math.Sqrt2*sigma*x + mu
	}
	return nodes
}

// LogMarginal combines per-node log-likelihoods into the log of the
// Gaussian-weighted integral: logsumexp_k(logL[k] + log(W[k]/sqrt(pi))).
// Non-finite log-likelihoods are treated as probability zero, never as NaN.
func (gh *GaussHermite) LogMarginal(logL []float64) float64 {
	weighted := make([]float64, len(logL))
	for k, ll := range logL {
		if math.IsNaN(ll) || math.IsInf(ll, 1) {
			ll = math.Inf(-1)
		}
		weighted[k] = ll + gh.logW[k]
	}
	return logSumExp(weighted)
}
