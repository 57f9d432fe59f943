package sampler

import (
	"math"

	"github.com/netglm/netglm/model"
)

// sliceWeight draws the next weight for an on-edge by slice sampling the 1-D
// log-density (likelihood plus Gaussian prior). The bracket is seeded from
// the quadrature nodes whose posterior clears the slice height, then
// stepped out and shrunk in the usual way. Favored over inverse-CDF when
// finer-grained exploration of the conditional is wanted.
func (u *NetColumnCollapsed) sliceWeight(x *model.State, ev model.EdgeEvaluator,
	pre int, post int, nodes []float64, logL []float64, mu float64, sigma float64) float64 {

	logp := func(w float64) float64 {
		d := (w - mu) / sigma
		v := ev.LogLik(pre, true, w) - 0.5*d*d
		if math.IsNaN(v) {
			return math.Inf(-1)
		}
		return v
	}

	wCur := x.W.At(pre, post)
	lpCur := logp(wCur)
	if math.IsInf(lpCur, -1) {
		// Current weight sits in an impossible region; restart from the
		// prior mean
		wCur = mu
		lpCur = logp(wCur)
		if math.IsInf(lpCur, -1) {
			return wCur
		}
	}

	// Random height in (0, p(wCur))
	h := lpCur + math.Log(u.gen.Float64())

	// Seed the bracket from grid nodes above the slice
	lb, ub := wCur, wCur
	seeded := false
	for k, w := range nodes {
		d := (w - mu) / sigma
		if logL[k]-0.5*d*d > h {
			if !seeded || w < lb {
				lb = math.Min(lb, w)
			}
			ub = math.Max(ub, w)
			seeded = true
		}
	}

	// Step out until both ends fall below the slice
	step := sigma / 10.0
	for i := 0; i < 64 && logp(lb) > h; i++ {
		lb -= step
		step *= 2.0
	}
	step = sigma / 10.0
	for i := 0; i < 64 && logp(ub) > h; i++ {
		ub += step
		step *= 2.0
	}

	// Shrink toward the current point until a draw lands inside the slice
	for i := 0; i < 128; i++ {
		w := lb + u.gen.Float64()*(ub-lb)
		if logp(w) > h {
			return w
		}
		if w < wCur {
			lb = w
		} else {
			ub = w
		}
	}

	// Bracket collapsed without a hit - keep the current value (a no-move,
	// not an error)
	return wCur
}
