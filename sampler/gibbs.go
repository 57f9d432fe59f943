package sampler

import (
	"math"
	"time"

	"github.com/op/go-logging"
	"github.com/pkg/errors"

	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
)

var log = logging.MustGetLogger("netglm")

// UpdatesConfig selects which update rules a Gibbs driver runs
type UpdatesConfig struct {
	// Collapsed selects the collapsed network column sampler over the plain
	// two-block one
	Collapsed bool

	// ProposeFromPrior enables the Metropolis prior-proposal mode of the
	// collapsed sampler
	ProposeFromPrior bool

	// SliceWeight enables the slice-sampling weight fallback of the
	// collapsed sampler
	SliceWeight bool
}

// InitUpdates assembles the update rules a population needs, preprocessed
// and partitioned into the parallel and serial groups.
func InitUpdates(gen *rand.Generator, pop model.Population, cfg UpdatesConfig) ([]ParallelUpdate, []SerialUpdate, error) {
	parallel := make([]ParallelUpdate, 0, 2)
	serial := make([]SerialUpdate, 0, 1)

	// Every population gets the per-unit GLM sampler
	glmUpd, err := NewGlmHmc(gen)
	if err != nil {
		return nil, nil, err
	}
	parallel = append(parallel, glmUpd)

	// Every population gets a network column sampler
	var netUpd ParallelUpdate
	if cfg.Collapsed {
		coll, err := NewNetColumnCollapsed(gen)
		if err != nil {
			return nil, nil, err
		}
		coll.ProposeFromPrior = cfg.ProposeFromPrior
		coll.SliceWeight = cfg.SliceWeight
		netUpd = coll
	} else {
		netUpd, err = NewNetColumnGibbs(gen)
		if err != nil {
			return nil, nil, err
		}
	}
	parallel = append(parallel, netUpd)

	// Latent-distance graph priors also sample their locations
	if pop.Network().HasLocations() {
		locUpd, err := NewLatentLocations(gen)
		if err != nil {
			return nil, nil, err
		}
		serial = append(serial, locUpd)
	}

	for _, u := range parallel {
		if err := u.Preprocess(pop); err != nil {
			return nil, nil, errors.Wrap(err, "Parallel update preprocessing failed")
		}
	}
	for _, u := range serial {
		if err := u.Preprocess(pop); err != nil {
			return nil, nil, errors.Wrap(err, "Serial update preprocessing failed")
		}
	}

	return parallel, serial, nil
}

// adapterProvider is implemented by rules that carry a step size controller
type adapterProvider interface {
	Adapter() *StepSizeAdapter
}

// Gibbs drives sweeps of update rules over a shared parameter state and
// records the trajectory. One sweep runs every parallel rule across all
// units in a fixed rule order, then every serial rule once.
//
// Execution within a sweep is strictly sequential: unit n sees every write
// made by units before it this sweep (sequential visibility). A concurrent
// driver would need either this emulated or snapshot isolation; this one
// keeps the reference semantics and a single random stream.
type Gibbs struct {
	pop      model.Population
	gen      *rand.Generator
	parallel []ParallelUpdate
	serial   []SerialUpdate
	monitor  *Monitor
	degraded bool

	// SweepHook, when set, is called after every completed sweep with the
	// sweep index and the joint log-probability. Used for progress
	// monitoring; must not mutate the state.
	SweepHook func(sweep int, logProb float64)
}

// NewGibbs creates a sweep driver over preprocessed update rules
func NewGibbs(gen *rand.Generator, pop model.Population, parallel []ParallelUpdate, serial []SerialUpdate) (*Gibbs, error) {
	if gen == nil {
		return nil, errors.New("No random generator supplied")
	}
	if pop == nil {
		return nil, errors.New("No population supplied")
	}
	if len(parallel)+len(serial) < 1 {
		return nil, errors.New("No update rules supplied")
	}

	mon, err := NewMonitor(32)
	if err != nil {
		return nil, err
	}

	return &Gibbs{
		pop:      pop,
		gen:      gen,
		parallel: parallel,
		serial:   serial,
		monitor:  mon,
	}, nil
}

// Run executes nSweeps sweeps from x0 (a prior draw when x0 is nil) and
// returns the trajectory of deep state snapshots, one per sweep plus the
// initial state. A rejected proposal anywhere is a normal outcome; a
// non-finite joint log-probability is not, and aborts the run.
func (g *Gibbs) Run(x0 *model.State, nSweeps int) ([]*model.State, error) {
	if nSweeps < 1 {
		return nil, errors.Errorf("Invalid sweep count %d", nSweeps)
	}

	x := x0
	if x == nil {
		var err error
		x, err = g.pop.Sample(g.gen)
		if err != nil {
			return nil, errors.Wrap(err, "Could not draw initial state from prior")
		}
	}

	if err := x.CheckShapes(); err != nil {
		return nil, errors.Wrap(err, "Initial state is not valid")
	}

	n := g.pop.NumUnits()
	traj := make([]*model.State, 0, nSweeps+1)
	traj = append(traj, x.Clone())

	start := time.Now()
	for sweep := 0; sweep < nSweeps; sweep++ {
		lp := g.pop.LogProb(x)
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			return traj, errors.Errorf("Joint log probability is %v at sweep %d - aborting", lp, sweep)
		}

		elapsed := time.Since(start).Seconds()
		start = time.Now()
		if elapsed > 0 {
			log.Debugf("Sweep %d: log prob %.3f (%.2f sweeps/sec)", sweep, lp, 1.0/elapsed)
		}

		for _, upd := range g.parallel {
			for unit := 0; unit < n; unit++ {
				if err := upd.Update(x, unit); err != nil {
					return traj, errors.Wrapf(err, "Parallel update failed on unit %d sweep %d", unit, sweep)
				}
			}
		}

		for _, upd := range g.serial {
			if err := upd.Update(x); err != nil {
				return traj, errors.Wrapf(err, "Serial update failed on sweep %d", sweep)
			}
		}

		g.observeAdapters()
		traj = append(traj, x.Clone())

		if g.SweepHook != nil {
			g.SweepHook(sweep, lp)
		}
	}

	return traj, nil
}

// Degraded reports whether any step size controller has shown sustained
// pinned acceptance or a collapsed step size. Informational only: the run
// keeps going.
func (g *Gibbs) Degraded() bool {
	return g.degraded
}

func (g *Gibbs) observeAdapters() {
	for _, upd := range g.parallel {
		if ap, ok := upd.(adapterProvider); ok {
			a := ap.Adapter()
			g.monitor.Observe(a.StepSize, a.AcceptRate)
		}
	}
	for _, upd := range g.serial {
		if ap, ok := upd.(adapterProvider); ok {
			a := ap.Adapter()
			g.monitor.Observe(a.StepSize, a.AcceptRate)
		}
	}

	if !g.degraded && g.monitor.Degraded() {
		g.degraded = true
		log.Warningf("Convergence degradation: acceptance pinned or step size collapsed")
	}
}
