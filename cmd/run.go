package cmd

import (
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/netglm/netglm/fit"
	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
	"github.com/netglm/netglm/sampler"
)

// RunExperiment simulates a ground truth network, runs the selected sampler
// on the spikes alone, and reports how well the posterior edge marginals
// recover the truth.
func RunExperiment(sp *startupParams) error {
	gen, err := rand.NewGenerator(sp.randomSeed)
	if err != nil {
		return err
	}

	cfg := model.DefaultConfig(sp.numUnits)
	if sp.latentDim > 0 {
		cfg.Graph = model.LatentDistanceGraph{
			Dim:      sp.latentDim,
			SigmaLoc: 1.0,
			Delta:    1.0,
			Offset:   0.0,
			RhoSelf:  0.9,
		}
	}

	var updCfg sampler.UpdatesConfig
	switch sp.samplerName {
	case "collapsed":
		updCfg = sampler.UpdatesConfig{
			Collapsed:        true,
			ProposeFromPrior: sp.proposePri,
			SliceWeight:      sp.sliceWeight,
		}
	case "plain":
		updCfg = sampler.UpdatesConfig{}
	default:
		return errors.Errorf("Unknown sampler %s (want collapsed or plain)", sp.samplerName)
	}

	if sp.burnIn < 0 || sp.burnIn >= sp.numSweeps {
		return errors.Errorf("Burn-in %d must be in [0, %d)", sp.burnIn, sp.numSweeps)
	}

	// Ground truth and a synthetic recording from it
	truth, err := model.SamplePrior(gen, cfg)
	if err != nil {
		return errors.Wrap(err, "Could not draw a ground truth network")
	}

	data, err := model.Simulate(gen, cfg, truth, sp.timeSteps)
	if err != nil {
		return errors.Wrap(err, "Simulation failed")
	}

	spikes := mat.Sum(data.Spikes)
	sp.out.Printf("Simulated %d bins, %d total spikes (%.2f Hz/unit)\n",
		data.T, int(spikes), spikes/(float64(sp.numUnits)*float64(data.T)*data.Dt))

	pop, err := model.NewPointProcess(cfg, data)
	if err != nil {
		return errors.Wrap(err, "Could not build the population model")
	}

	// Chain start: a prior draw, or a MAP fit of the dense auxiliary model
	var x0 *model.State
	if sp.initMap {
		sp.out.Printf("Fitting dense MAP estimate for initialization\n")
		x0, err = mapStart(gen, pop)
		if err != nil {
			return err
		}
	}

	parallel, serial, err := sampler.InitUpdates(gen, pop, updCfg)
	if err != nil {
		return errors.Wrap(err, "Could not assemble update rules")
	}

	gibbs, err := sampler.NewGibbs(gen, pop, parallel, serial)
	if err != nil {
		return err
	}

	start := time.Now()
	if sp.mon != nil {
		sp.mon.Units.Set(int64(sp.numUnits))
		sp.mon.TimeBins.Set(int64(sp.timeSteps))
		sp.mon.BurnIn.Set(int64(sp.burnIn))
		sp.mon.MaxSweeps.Set(int64(sp.numSweeps))
		gibbs.SweepHook = func(sweep int, logProb float64) {
			sp.mon.Sweeps.Set(int64(sweep + 1))
			sp.mon.LastLogProb.Set(logProb)
			sp.mon.RunTime.Set(time.Since(start).Seconds())
		}
	}

	traj, err := gibbs.Run(x0, sp.numSweeps)
	if err != nil {
		return errors.Wrap(err, "Sampling run failed")
	}
	sp.out.Printf("Ran %d sweeps in %.1fs\n", sp.numSweeps, time.Since(start).Seconds())
	if gibbs.Degraded() {
		sp.out.Printf("WARNING: step size adaptation degraded during the run\n")
	}

	// Score recovered marginals against the truth adjacency
	marg, err := model.EdgeMarginals(traj[sp.burnIn+1:])
	if err != nil {
		return errors.Wrap(err, "Could not compute edge marginals")
	}

	score, err := model.NewErrorSuite(marg, truth.A)
	if err != nil {
		return errors.Wrap(err, "Could not score marginals")
	}

	sp.out.Printf("MeanAE:%7.4f MaxAE:%7.4f Hel:%7.4f MaxHel:%7.4f\n",
		score.MeanAbsError, score.MaxAbsError, score.MeanHellinger, score.MaxHellinger)

	if sp.mon != nil {
		sp.mon.LastMeanAbsError.Set(score.MeanAbsError)
		sp.mon.LastMaxAbsError.Set(score.MaxAbsError)
		sp.mon.LastMeanHellinger.Set(score.MeanHellinger)
		sp.mon.LastMaxHellinger.Set(score.MaxHellinger)
	}

	return nil
}

// mapStart builds the chain's starting state from a coordinate-descent MAP
// fit of the dense model, converted back into the sparse model's space.
func mapStart(gen *rand.Generator, pop model.Population) (*model.State, error) {
	dense, err := fit.DenseStart(pop, gen)
	if err != nil {
		return nil, err
	}

	est, err := fit.MapEstimate(pop, dense, fit.DefaultOptions())
	if err != nil {
		return nil, errors.Wrap(err, "MAP fit failed")
	}

	x0, err := pop.Sample(gen)
	if err != nil {
		return nil, err
	}

	x0, err = fit.Convert(est, pop, x0)
	if err != nil {
		return nil, errors.Wrap(err, "Could not convert the MAP fit into a starting state")
	}

	return x0, nil
}
