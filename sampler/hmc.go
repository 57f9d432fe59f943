package sampler

import (
	"math"

	"github.com/netglm/netglm/rand"
)

// Hmc runs Hamiltonian Monte Carlo from q0 on the negative-log-probability
// surface: a fresh standard normal momentum, nSteps leapfrog steps of size
// stepSize, then a Metropolis accept/reject on the start and end
// Hamiltonians. Returns the new position (a copy of q0 on rejection) and
// whether the proposal was accepted.
//
// A non-finite energy or gradient anywhere along the trajectory forces a
// rejection: the chain never accepts a move into a non-finite region, and
// never treats one as an error.
func Hmc(gen *rand.Generator, negLogP func([]float64) float64,
	gradNegLogP func([]float64) []float64,
	stepSize float64, nSteps int, q0 []float64) ([]float64, bool) {

	dim := len(q0)

	q := make([]float64, dim)
	copy(q, q0)

	p := make([]float64, dim)
	kinetic0 := 0.0
	for i := range p {
		p[i] = gen.NormFloat64()
		kinetic0 += 0.5 * p[i] * p[i]
	}

	h0 := negLogP(q) + kinetic0

	grad := gradNegLogP(q)
	if !allFinite(grad) {
		return reject(q0)
	}

	for step := 0; step < nSteps; step++ {
		for i := range p {
			p[i] -= 0.5 * stepSize * grad[i]
			q[i] += stepSize * p[i]
		}

		grad = gradNegLogP(q)
		if !allFinite(grad) {
			return reject(q0)
		}

		for i := range p {
			p[i] -= 0.5 * stepSize * grad[i]
		}
	}

	kinetic1 := 0.0
	for i := range p {
		kinetic1 += 0.5 * p[i] * p[i]
	}
	h1 := negLogP(q) + kinetic1

	if math.IsNaN(h0) || math.IsNaN(h1) || math.IsInf(h1, 1) {
		return reject(q0)
	}

	if math.Log(gen.Float64()) < h0-h1 {
		return q, true
	}
	return reject(q0)
}

func reject(q0 []float64) ([]float64, bool) {
	q := make([]float64, len(q0))
	copy(q, q0)
	return q, false
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
