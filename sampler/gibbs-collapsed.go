package sampler

import (
	"math"

	"github.com/pkg/errors"

	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
)

// NetColumnCollapsed jointly resamples one target unit's incoming edge
// indicators and weights, analytically integrating each weight out of the
// edge decision with Gauss-Hermite quadrature. Collapsing the weight avoids
// the poor mixing of the two-block scheme when edges are sparse or weak: a
// naive sampler rarely proposes turning an edge on because the current weight
// is usually worthless.
type NetColumnCollapsed struct {
	gen *rand.Generator
	glm model.GlmModel
	net model.NetworkModel
	wp  model.WeightPrior
	gh  *GaussHermite

	// ProposeFromPrior switches from exact collapsed Gibbs to a cheaper
	// Metropolis step that proposes each indicator from the edge prior and
	// accepts on the quadrature marginal-likelihood ratio. Only worthwhile
	// when the prior puts real mass on likely edges; otherwise on-proposals
	// are rare and mixing suffers.
	ProposeFromPrior bool

	// SliceWeight replaces inverse-CDF weight draws with slice sampling
	// seeded from the quadrature grid
	SliceWeight bool

	// Deg is the Gauss-Hermite degree, fixed at Preprocess time
	Deg int
}

// NewNetColumnCollapsed creates the update rule; Preprocess must run before
// Update.
func NewNetColumnCollapsed(gen *rand.Generator) (*NetColumnCollapsed, error) {
	if gen == nil {
		return nil, errors.New("No random generator supplied")
	}

	return &NetColumnCollapsed{
		gen: gen,
		Deg: DefGaussHermiteDeg,
	}, nil
}

// Preprocess implements ParallelUpdate - binds the weight prior and computes
// the quadrature rule.
func (u *NetColumnCollapsed) Preprocess(pop model.Population) error {
	if pop == nil {
		return errors.New("No population supplied")
	}

	u.glm = pop.Glm()
	u.net = pop.Network()
	u.wp = u.net.Weights()

	gh, err := NewGaussHermite(u.Deg)
	if err != nil {
		return errors.Wrap(err, "Could not build quadrature rule")
	}
	u.gh = gh

	return nil
}

// Update implements ParallelUpdate - collapsed-resamples column A[:,n] and
// W[:,n]. Sources are visited in a random permutation to avoid order bias.
func (u *NetColumnCollapsed) Update(x *model.State, n int) error {
	if u.gh == nil {
		return errors.New("Update called before Preprocess")
	}

	ev := u.glm.EdgeEval(x, n)

	for _, pre := range u.gen.Perm(x.N) {
		var err error
		if u.ProposeFromPrior {
			err = u.priorStep(x, ev, pre, n)
		} else {
			err = u.exactStep(x, ev, pre, n)
		}
		if err != nil {
			return errors.Wrapf(err, "Collapsed update failed on edge %d->%d", pre, n)
		}
	}

	return nil
}

// nodeLogLik evaluates the unit's log-likelihood with the edge forced on at
// every quadrature node. Non-finite values become -Inf (probability zero).
func (u *NetColumnCollapsed) nodeLogLik(ev model.EdgeEvaluator, pre int, nodes []float64) []float64 {
	logL := make([]float64, len(nodes))
	for k, w := range nodes {
		ll := ev.LogLik(pre, true, w)
		if math.IsNaN(ll) || math.IsInf(ll, 1) {
			ll = math.Inf(-1)
		}
		logL[k] = ll
	}
	return logL
}

// exactStep is the exact collapsed Gibbs move for one edge: sample the
// indicator from its marginal posterior (weight integrated out), then the
// weight from its exact conditional.
func (u *NetColumnCollapsed) exactStep(x *model.State, ev model.EdgeEvaluator, pre int, post int) error {
	mu, sigma := u.wp.Params(pre, post)

	p := u.net.EdgeProb(x, pre, post)
	logPrior1 := math.Log(p)
	logPrior0 := math.Log1p(-p)

	nodes := u.gh.WeightNodes(mu, sigma)
	logL := u.nodeLogLik(ev, pre, nodes)
	logG := u.gh.LogMarginal(logL)

	logL0 := ev.LogLik(pre, false, 0.0)
	if math.IsNaN(logL0) || math.IsInf(logL0, 1) {
		logL0 = math.Inf(-1)
	}

	idx, err := LogSumExpSample(u.gen, []float64{logPrior0 + logL0, logPrior1 + logG})
	if err != nil {
		return err
	}

	on := idx == 1
	x.SetEdge(pre, post, on)

	var w float64
	if on {
		if u.SliceWeight {
			w = u.sliceWeight(x, ev, pre, post, nodes, logL, mu, sigma)
		} else {
			w, err = u.sampleWeightBins(nodes, logL, mu, sigma)
			if err != nil {
				return err
			}
		}
	} else {
		// Value is irrelevant to the likelihood but must stay well-defined
		w = mu + sigma*u.gen.NormFloat64()
	}

	x.SetWeight(pre, post, w)
	ev.Commit(pre, on, w)

	return nil
}

// sampleWeightBins draws a weight from its conditional posterior given an
// on-edge: a piecewise density over the quadrature nodes with two tail bins
// extended 6 sigma past the outermost nodes, sampled by inverse-CDF
// interpolation in log space. Interpolating the concave log-CDF linearly
// overestimates tail mass; that is a known, accepted approximation here.
func (u *NetColumnCollapsed) sampleWeightBins(nodes []float64, logL []float64, mu float64, sigma float64) (float64, error) {
	deg := len(nodes)

	logPost := make([]float64, deg)
	for k, w := range nodes {
		d := (w - mu) / sigma
		logPost[k] = logL[k] - 0.5*d*d
	}

	// Bin centers: node midpoints flanked by the extended tails
	centers := make([]float64, deg+1)
	centers[0] = mu - 6.0*sigma
	for k := 0; k < deg-1; k++ {
		centers[k+1] = 0.5 * (nodes[k] + nodes[k+1])
	}
	centers[deg] = mu + 6.0*sigma

	// Per-bin mass: averaged adjacent log-densities plus log bin width
	logMass := make([]float64, deg-1)
	for k := 0; k < deg-1; k++ {
		avg := logSumExp([]float64{logPost[k], logPost[k+1]}) - math.Ln2
		logMass[k] = avg + math.Log(nodes[k+1]-nodes[k])
	}

	norm := logSumExp(logMass)
	if math.IsInf(norm, -1) || math.IsNaN(norm) {
		return 0, errors.Errorf("Weight posterior has no mass on the quadrature grid")
	}
	for k := range logMass {
		logMass[k] -= norm
	}

	logCDF := make([]float64, deg+1)
	logCDF[0] = math.Inf(-1)
	for i := 1; i < deg; i++ {
		logCDF[i] = logSumExp(logMass[:i])
	}
	logCDF[deg] = 0.0

	return interpLogCDF(math.Log(u.gen.Float64()), logCDF, centers), nil
}

// priorStep is the Metropolis variant: propose the indicator from the edge
// prior, accept on the collapsed likelihood ratio. A proposal that keeps an
// existing edge is accepted outright but still resamples the weight from its
// exact conditional.
func (u *NetColumnCollapsed) priorStep(x *model.State, ev model.EdgeEvaluator, pre int, post int) error {
	mu, sigma := u.wp.Params(pre, post)
	p := u.net.EdgeProb(x, pre, post)

	propOn := u.gen.Float64() < p
	curOn := x.Edge(pre, post)

	if propOn == curOn {
		if !curOn {
			return nil
		}
		nodes := u.gh.WeightNodes(mu, sigma)
		logL := u.nodeLogLik(ev, pre, nodes)
		w, err := u.sampleWeightNodes(nodes, logL)
		if err != nil {
			return err
		}
		x.SetWeight(pre, post, w)
		ev.Commit(pre, true, w)
		return nil
	}

	nodes := u.gh.WeightNodes(mu, sigma)
	logL := u.nodeLogLik(ev, pre, nodes)
	logG := u.gh.LogMarginal(logL)

	logL0 := ev.LogLik(pre, false, 0.0)
	if math.IsNaN(logL0) || math.IsInf(logL0, 1) {
		logL0 = math.Inf(-1)
	}

	logAccept := logG - logL0
	if !propOn {
		logAccept = logL0 - logG
	}

	if math.Log(u.gen.Float64()) >= logAccept {
		return nil // rejection is a normal outcome
	}

	x.SetEdge(pre, post, propOn)
	if propOn {
		w, err := u.sampleWeightNodes(nodes, logL)
		if err != nil {
			return err
		}
		x.SetWeight(pre, post, w)
		ev.Commit(pre, true, w)
	} else {
		ev.Commit(pre, false, 0.0)
	}

	return nil
}

// sampleWeightNodes draws a weight by inverse-CDF over the quadrature nodes
// themselves (no tail bins) - the conditional used by the prior-proposal
// mode.
func (u *NetColumnCollapsed) sampleWeightNodes(nodes []float64, logL []float64) (float64, error) {
	deg := len(nodes)

	weighted := make([]float64, deg)
	for k := range nodes {
		weighted[k] = logL[k] + u.gh.logW[k]
	}
	logG := logSumExp(weighted)
	if math.IsInf(logG, -1) || math.IsNaN(logG) {
		return 0, errors.Errorf("Weight posterior has no mass on the quadrature grid")
	}

	logCDF := make([]float64, deg)
	for i := 1; i < deg; i++ {
		logCDF[i-1] = logSumExp(weighted[:i]) - logG
	}
	logCDF[deg-1] = 0.0

	return interpLogCDF(math.Log(u.gen.Float64()), logCDF, nodes), nil
}

// interpLogCDF inverts a nondecreasing log-CDF by linear interpolation:
// returns the value whose log-CDF equals target. xs may start at -Inf.
func interpLogCDF(target float64, xs []float64, ys []float64) float64 {
	for j := 1; j < len(xs); j++ {
		if target <= xs[j] {
			x0, x1 := xs[j-1], xs[j]
			if math.IsInf(x0, -1) || x1 == x0 {
				return ys[j]
			}
			if target < x0 {
				return ys[j-1]
			}
			t := (target - x0) / (x1 - x0)
			return ys[j-1] + t*(ys[j]-ys[j-1])
		}
	}
	return ys[len(ys)-1]
}
