package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/netglm/netglm/rand"
)

// Config describes a point-process population: size, stimulus filter length,
// bin width, the fixed exponential coupling basis, and the priors.
type Config struct {
	N           int
	StimDim     int
	Dt          float64
	TauCoupling float64 // Time constant of the exponential coupling basis
	BiasMu      float64
	BiasSigma   float64
	StimSigma   float64
	Weights     WeightPrior
	Graph       GraphPrior
}

// DefaultConfig returns a workable config for n units with a sparse
// Bernoulli graph prior.
func DefaultConfig(n int) Config {
	return Config{
		N:           n,
		StimDim:     2,
		Dt:          0.01,
		TauCoupling: 0.05,
		BiasMu:      1.0,
		BiasSigma:   2.0,
		StimSigma:   1.0,
		Weights: WeightPrior{
			Mu:       0.0,
			Sigma:    1.0,
			MuRef:    -1.0,
			SigmaRef: 0.5,
		},
		Graph: BernoulliGraph{Rho: 0.25, RhoSelf: 0.9},
	}
}

// Data is a binned spike recording: per-time-bin stimulus features and
// per-unit spike counts.
type Data struct {
	Dt     float64
	T      int
	Stim   *mat.Dense // T x StimDim stimulus features
	Spikes *mat.Dense // N x T spike counts
}

// PointProcess is a concrete Population: each unit is a Poisson point-process
// GLM with an exp nonlinearity whose log-rate is bias + stimulus current +
// coupling currents gated by the adjacency and weight matrices.
type PointProcess struct {
	cfg  Config
	data *Data

	// impulse[p,t] is the coupling current unit p would contribute at time t
	// per unit of weight. Precomputed once from the spikes (the data never
	// changes during a chain).
	impulse *mat.Dense
}

// NewPointProcess validates the data against the config and precomputes the
// per-source coupling currents.
func NewPointProcess(cfg Config, data *Data) (*PointProcess, error) {
	if cfg.N < 1 {
		return nil, errors.Errorf("Invalid unit count %d", cfg.N)
	}
	if data == nil {
		return nil, errors.New("No data supplied")
	}

	sr, sc := data.Stim.Dims()
	if sr != data.T || sc != cfg.StimDim {
		return nil, errors.Errorf("Stimulus shape %dx%d does not match T=%d, StimDim=%d",
			sr, sc, data.T, cfg.StimDim)
	}

	yr, yc := data.Spikes.Dims()
	if yr != cfg.N || yc != data.T {
		return nil, errors.Errorf("Spike shape %dx%d does not match N=%d, T=%d",
			yr, yc, cfg.N, data.T)
	}

	p := &PointProcess{
		cfg:     cfg,
		data:    data,
		impulse: mat.NewDense(cfg.N, data.T, nil),
	}

	// Causal exponential filter of each unit's own spikes
	decay := math.Exp(-data.Dt / cfg.TauCoupling)
	for n := 0; n < cfg.N; n++ {
		h := 0.0
		for t := 0; t < data.T; t++ {
			if t > 0 {
				h = decay * (h + data.Spikes.At(n, t-1))
			}
			p.impulse.Set(n, t, h)
		}
	}

	return p, nil
}

// NumUnits implements Population
func (p *PointProcess) NumUnits() int {
	return p.cfg.N
}

// Config returns the population configuration
func (p *PointProcess) Config() Config {
	return p.cfg
}

// Sample implements Population - a fresh state drawn from the prior
func (p *PointProcess) Sample(gen *rand.Generator) (*State, error) {
	return SamplePrior(gen, p.cfg)
}

// SamplePrior draws a state from the priors in cfg alone. Useful for ground
// truth generation, before any recording exists.
func SamplePrior(gen *rand.Generator, cfg Config) (*State, error) {
	x, err := NewState(cfg.N, cfg.StimDim, cfg.Graph.LocDim())
	if err != nil {
		return nil, errors.Wrap(err, "Could not allocate state for prior draw")
	}

	if cfg.Graph.HasLocations() {
		err = x.SetLocations(cfg.Graph.SampleLocations(gen, cfg.N))
		if err != nil {
			return nil, errors.Wrap(err, "Could not set sampled locations")
		}
	}

	for i := 0; i < cfg.N; i++ {
		for j := 0; j < cfg.N; j++ {
			x.SetEdge(i, j, gen.Float64() < cfg.Graph.EdgeProb(x, i, j))
			mu, sigma := cfg.Weights.Params(i, j)
			x.SetWeight(i, j, mu+sigma*gen.NormFloat64())
		}
	}

	for n := 0; n < cfg.N; n++ {
		x.Glms[n].Bias = cfg.BiasMu + cfg.BiasSigma*gen.NormFloat64()
		for k := range x.Glms[n].Stim {
			x.Glms[n].Stim[k] = cfg.StimSigma * gen.NormFloat64()
		}
	}

	return x, nil
}

// LogProb implements Population
func (p *PointProcess) LogProb(x *State) float64 {
	lp := p.Network().LogProb(x)
	for n := 0; n < p.cfg.N; n++ {
		lp += p.unitLogLik(x, n, x.Glms[n].Bias, x.Glms[n].Stim, nil)
		lp += p.glmPrior(x.Glms[n].Bias, x.Glms[n].Stim)
	}
	return lp
}

// Glm implements Population
func (p *PointProcess) Glm() GlmModel {
	return &pointGlm{p}
}

// Network implements Population
func (p *PointProcess) Network() NetworkModel {
	return &pointNetwork{p}
}

// logEta computes unit n's log-rate trace. A nil wcol means the weight
// column comes from the state.
func (p *PointProcess) logEta(x *State, n int, bias float64, stim []float64, wcol []float64) []float64 {
	T := p.data.T
	eta := make([]float64, T)

	for t := 0; t < T; t++ {
		eta[t] = bias + floats.Dot(p.data.Stim.RawRowView(t), stim)
	}

	for pre := 0; pre < p.cfg.N; pre++ {
		if !x.Edge(pre, n) {
			continue
		}
		w := x.W.At(pre, n)
		if wcol != nil {
			w = wcol[pre]
		}
		if w == 0.0 {
			continue
		}
		imp := p.impulse.RawRowView(pre)
		for t := 0; t < T; t++ {
			eta[t] += w * imp[t]
		}
	}

	return eta
}

// poissonLogLik scores a log-rate trace against unit n's spikes. Constant
// terms in the counts are dropped.
func (p *PointProcess) poissonLogLik(eta []float64, n int) float64 {
	ll := 0.0
	dt := p.data.Dt
	y := p.data.Spikes.RawRowView(n)
	for t, e := range eta {
		ll += y[t]*e - dt*math.Exp(e)
	}
	return ll
}

func (p *PointProcess) unitLogLik(x *State, n int, bias float64, stim []float64, wcol []float64) float64 {
	return p.poissonLogLik(p.logEta(x, n, bias, stim, wcol), n)
}

func (p *PointProcess) glmPrior(bias float64, stim []float64) float64 {
	cfg := p.cfg
	lp := distuv.Normal{Mu: cfg.BiasMu, Sigma: cfg.BiasSigma}.LogProb(bias)
	stimPrior := distuv.Normal{Mu: 0.0, Sigma: cfg.StimSigma}
	for _, s := range stim {
		lp += stimPrior.LogProb(s)
	}
	return lp
}

// pointGlm is the GlmModel view of a PointProcess
type pointGlm struct {
	p *PointProcess
}

// ParamDim implements GlmModel
func (g *pointGlm) ParamDim() int {
	return 1 + g.p.cfg.StimDim
}

// Extract implements GlmModel
func (g *pointGlm) Extract(x *State, n int) []float64 {
	theta := make([]float64, g.ParamDim())
	theta[0] = x.Glms[n].Bias
	copy(theta[1:], x.Glms[n].Stim)
	return theta
}

// Insert implements GlmModel
func (g *pointGlm) Insert(x *State, n int, theta []float64) error {
	if len(theta) != g.ParamDim() {
		return errors.Errorf("Unit %d parameter vector has length %d, want %d",
			n, len(theta), g.ParamDim())
	}
	x.Glms[n].Bias = theta[0]
	copy(x.Glms[n].Stim, theta[1:])
	return nil
}

// LogProb implements GlmModel
func (g *pointGlm) LogProb(x *State, n int, theta []float64) float64 {
	bias, stim := theta[0], theta[1:]
	return g.p.unitLogLik(x, n, bias, stim, nil) + g.p.glmPrior(bias, stim)
}

// Grad implements GlmModel
func (g *pointGlm) Grad(x *State, n int, theta []float64) []float64 {
	p := g.p
	bias, stim := theta[0], theta[1:]
	eta := p.logEta(x, n, bias, stim, nil)

	grad := make([]float64, len(theta))
	dt := p.data.Dt
	y := p.data.Spikes.RawRowView(n)
	for t, e := range eta {
		resid := y[t] - dt*math.Exp(e)
		grad[0] += resid
		row := p.data.Stim.RawRowView(t)
		for k, s := range row {
			grad[1+k] += resid * s
		}
	}

	cfg := p.cfg
	grad[0] -= (bias - cfg.BiasMu) / (cfg.BiasSigma * cfg.BiasSigma)
	for k, s := range stim {
		grad[1+k] -= s / (cfg.StimSigma * cfg.StimSigma)
	}

	return grad
}

// LogLik implements GlmModel
func (g *pointGlm) LogLik(x *State, n int) float64 {
	return g.p.unitLogLik(x, n, x.Glms[n].Bias, x.Glms[n].Stim, nil)
}

// ColLogLik implements GlmModel
func (g *pointGlm) ColLogLik(x *State, n int, wcol []float64) float64 {
	return g.p.unitLogLik(x, n, x.Glms[n].Bias, x.Glms[n].Stim, wcol)
}

// ColGrad implements GlmModel
func (g *pointGlm) ColGrad(x *State, n int, wcol []float64) []float64 {
	p := g.p
	eta := p.logEta(x, n, x.Glms[n].Bias, x.Glms[n].Stim, wcol)

	dt := p.data.Dt
	y := p.data.Spikes.RawRowView(n)
	resid := make([]float64, len(eta))
	for t, e := range eta {
		resid[t] = y[t] - dt*math.Exp(e)
	}

	grad := make([]float64, p.cfg.N)
	for pre := 0; pre < p.cfg.N; pre++ {
		if !x.Edge(pre, n) {
			continue
		}
		grad[pre] = floats.Dot(resid, p.impulse.RawRowView(pre))
	}

	return grad
}

// EdgeEval implements GlmModel
func (g *pointGlm) EdgeEval(x *State, n int) EdgeEvaluator {
	p := g.p
	ev := &edgeEvaluator{
		p:    p,
		post: n,
		eta:  p.logEta(x, n, x.Glms[n].Bias, x.Glms[n].Stim, nil),
		cur:  make([]float64, p.cfg.N),
	}
	for pre := 0; pre < p.cfg.N; pre++ {
		if x.Edge(pre, n) {
			ev.cur[pre] = x.W.At(pre, n)
		}
	}
	return ev
}

// edgeEvaluator holds the precomputed log-rate trace for one target unit,
// mirroring the per-column current precomputation the column samplers rely
// on. cur tracks each source's effective (gated) weight in eta.
type edgeEvaluator struct {
	p    *PointProcess
	post int
	eta  []float64
	cur  []float64
}

// LogLik implements EdgeEvaluator
func (e *edgeEvaluator) LogLik(pre int, on bool, w float64) float64 {
	target := 0.0
	if on {
		target = w
	}
	delta := target - e.cur[pre]

	p := e.p
	dt := p.data.Dt
	y := p.data.Spikes.RawRowView(e.post)
	imp := p.impulse.RawRowView(pre)

	ll := 0.0
	for t, eta := range e.eta {
		v := eta + delta*imp[t]
		ll += y[t]*v - dt*math.Exp(v)
	}
	return ll
}

// Commit implements EdgeEvaluator
func (e *edgeEvaluator) Commit(pre int, on bool, w float64) {
	target := 0.0
	if on {
		target = w
	}
	delta := target - e.cur[pre]
	if delta == 0.0 {
		return
	}

	imp := e.p.impulse.RawRowView(pre)
	for t := range e.eta {
		e.eta[t] += delta * imp[t]
	}
	e.cur[pre] = target
}

// pointNetwork is the NetworkModel view of a PointProcess
type pointNetwork struct {
	p *PointProcess
}

// LogProb implements NetworkModel
func (m *pointNetwork) LogProb(x *State) float64 {
	cfg := m.p.cfg
	lp := cfg.Graph.LogProb(x)
	for i := 0; i < cfg.N; i++ {
		for j := 0; j < cfg.N; j++ {
			lp += cfg.Weights.LogProb(i, j, x.W.At(i, j))
		}
	}
	return lp
}

// EdgeProb implements NetworkModel
func (m *pointNetwork) EdgeProb(x *State, pre int, post int) float64 {
	return m.p.cfg.Graph.EdgeProb(x, pre, post)
}

// Weights implements NetworkModel
func (m *pointNetwork) Weights() WeightPrior {
	return m.p.cfg.Weights
}

// WeightColLogProb implements NetworkModel
func (m *pointNetwork) WeightColLogProb(x *State, post int, wcol []float64) float64 {
	lp := 0.0
	for pre, w := range wcol {
		lp += m.p.cfg.Weights.LogProb(pre, post, w)
	}
	return lp
}

// WeightColPriorGrad implements NetworkModel
func (m *pointNetwork) WeightColPriorGrad(x *State, post int, wcol []float64) []float64 {
	grad := make([]float64, len(wcol))
	for pre, w := range wcol {
		mu, sigma := m.p.cfg.Weights.Params(pre, post)
		grad[pre] = -(w - mu) / (sigma * sigma)
	}
	return grad
}

// HasLocations implements NetworkModel
func (m *pointNetwork) HasLocations() bool {
	return m.p.cfg.Graph.HasLocations()
}

// LocDim implements NetworkModel
func (m *pointNetwork) LocDim() int {
	return m.p.cfg.Graph.LocDim()
}

// LocLogProb implements NetworkModel
func (m *pointNetwork) LocLogProb(x *State, flatL []float64) float64 {
	return m.p.cfg.Graph.LocLogProb(x, flatL)
}

// LocGrad implements NetworkModel
func (m *pointNetwork) LocGrad(x *State, flatL []float64) []float64 {
	return m.p.cfg.Graph.LocGrad(x, flatL)
}
