package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/netglm/netglm/rand"
)

// Simulate generates a synthetic spike recording of length T from a ground
// truth state under the given config. The stimulus is a smoothed Gaussian
// random walk; spike counts are Poisson in each bin.
func Simulate(gen *rand.Generator, cfg Config, truth *State, T int) (*Data, error) {
	if truth == nil {
		return nil, errors.New("No ground truth state supplied")
	}
	if err := truth.CheckShapes(); err != nil {
		return nil, errors.Wrap(err, "Ground truth state is not valid")
	}
	if truth.N != cfg.N {
		return nil, errors.Errorf("Ground truth has %d units, config wants %d", truth.N, cfg.N)
	}
	if T < 1 {
		return nil, errors.Errorf("Invalid recording length %d", T)
	}

	data := &Data{
		Dt:     cfg.Dt,
		T:      T,
		Stim:   mat.NewDense(T, cfg.StimDim, nil),
		Spikes: mat.NewDense(cfg.N, T, nil),
	}

	// AR(1) stimulus keeps features smooth but wandering
	for k := 0; k < cfg.StimDim; k++ {
		s := 0.0
		for t := 0; t < T; t++ {
			s = 0.95*s + 0.3*gen.NormFloat64()
			data.Stim.Set(t, k, s)
		}
	}

	// Run the coupled point processes forward. h[n] is the exponentially
	// filtered spike history of unit n, matching the basis NewPointProcess
	// precomputes.
	decay := math.Exp(-cfg.Dt / cfg.TauCoupling)
	h := make([]float64, cfg.N)
	for t := 0; t < T; t++ {
		if t > 0 {
			for n := 0; n < cfg.N; n++ {
				h[n] = decay * (h[n] + data.Spikes.At(n, t-1))
			}
		}

		for n := 0; n < cfg.N; n++ {
			eta := truth.Glms[n].Bias
			for k, f := range truth.Glms[n].Stim {
				eta += f * data.Stim.At(t, k)
			}
			for pre := 0; pre < cfg.N; pre++ {
				if truth.Edge(pre, n) {
					eta += truth.W.At(pre, n) * h[pre]
				}
			}

			mean := cfg.Dt * math.Exp(eta)
			if !(mean < 20.0) {
				return nil, errors.Errorf("Simulated rate diverged at t=%d unit=%d (mean %v)", t, n, mean)
			}
			data.Spikes.Set(n, t, float64(poisson(gen, mean)))
		}
	}

	return data, nil
}

// poisson draws a Poisson count by inversion; fine for the small per-bin
// means simulation produces.
func poisson(gen *rand.Generator, mean float64) int {
	if mean <= 0.0 {
		return 0
	}

	l := math.Exp(-mean)
	k := 0
	p := 1.0
	for {
		p *= gen.Float64()
		if p <= l {
			return k
		}
		k++
	}
}
