package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrorSuite represents the loss/error functions we use to judge a recovered
// network against a reference adjacency. Mean values average over all edges;
// Max values report the single worst edge. Hellinger treats each edge
// marginal as a Bernoulli distribution.
type ErrorSuite struct {
	MeanAbsError  float64
	MeanHellinger float64

	MaxAbsError  float64
	MaxHellinger float64
}

// EdgeMarginals estimates the posterior edge presence probabilities from a
// trajectory of state snapshots.
func EdgeMarginals(traj []*State) (*mat.Dense, error) {
	if len(traj) < 1 {
		return nil, errors.Errorf("Can not compute marginals from an empty trajectory")
	}

	n := traj[0].N
	marg := mat.NewDense(n, n, nil)

	for _, x := range traj {
		if x.N != n {
			return nil, errors.Errorf("Trajectory mixes %d-unit and %d-unit states", n, x.N)
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if x.Edge(i, j) {
					marg.Set(i, j, marg.At(i, j)+1.0)
				}
			}
		}
	}

	marg.Scale(1.0/float64(len(traj)), marg)
	return marg, nil
}

// NewErrorSuite scores estimated edge marginals against reference
// probabilities (usually a 0/1 ground truth adjacency).
func NewErrorSuite(est *mat.Dense, ref *mat.Dense) (*ErrorSuite, error) {
	er, ec := est.Dims()
	rr, rc := ref.Dims()
	if er != rr || ec != rc {
		return nil, errors.Errorf("Marginal shape mismatch: %dx%d != %dx%d", er, ec, rr, rc)
	}

	es := ErrorSuite{}

	count := 0
	for i := 0; i < er; i++ {
		for j := 0; j < ec; j++ {
			p, q := est.At(i, j), ref.At(i, j)

			d := math.Abs(p - q)
			es.MeanAbsError += d
			es.MaxAbsError = math.Max(d, es.MaxAbsError)

			d = bernHellinger(p, q)
			es.MeanHellinger += d
			es.MaxHellinger = math.Max(d, es.MaxHellinger)

			count++
		}
	}

	fc := float64(count)
	es.MeanAbsError /= fc
	es.MeanHellinger /= fc

	return &es, nil
}

// bernHellinger is the Hellinger distance between Bernoulli(p) and
// Bernoulli(q).
func bernHellinger(p float64, q float64) float64 {
	bc := math.Sqrt(p*q) + math.Sqrt((1.0-p)*(1.0-q))
	if bc > 1.0 {
		bc = 1.0 // guard tiny float drift
	}
	return math.Sqrt(1.0 - bc)
}
