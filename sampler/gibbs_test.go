package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netglm/netglm/model"
	"github.com/netglm/netglm/rand"
)

func TestGibbsCreate(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)
	pop := newFlatPop(2)

	parallel, serial, err := InitUpdates(gen, pop, UpdatesConfig{Collapsed: true})
	assert.NoError(err)
	assert.Len(parallel, 2)
	assert.Len(serial, 0)

	_, err = NewGibbs(nil, pop, parallel, serial)
	assert.Error(err)
	_, err = NewGibbs(gen, nil, parallel, serial)
	assert.Error(err)
	_, err = NewGibbs(gen, pop, nil, nil)
	assert.Error(err)

	g, err := NewGibbs(gen, pop, parallel, serial)
	assert.NoError(err)
	assert.False(g.Degraded())
}

func TestGibbsTrajectory(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)
	pop := newFlatPop(3)

	parallel, serial, err := InitUpdates(gen, pop, UpdatesConfig{Collapsed: true})
	assert.NoError(err)

	g, err := NewGibbs(gen, pop, parallel, serial)
	assert.NoError(err)

	_, err = g.Run(nil, 0)
	assert.Error(err)

	hookCalls := 0
	g.SweepHook = func(sweep int, logProb float64) {
		assert.Equal(hookCalls, sweep)
		assert.False(math.IsNaN(logProb))
		hookCalls++
	}

	const sweeps = 25
	traj, err := g.Run(nil, sweeps)
	assert.NoError(err)
	assert.Len(traj, sweeps+1)
	assert.Equal(sweeps, hookCalls)

	// Snapshots are deep and independent
	for i, x := range traj {
		assert.NoError(x.CheckShapes())
		for j := i + 1; j < len(traj); j++ {
			assert.False(traj[j] == x)
			assert.False(traj[j].A == x.A)
		}
	}

	// With a 3-unit network at prior rho=0.3 the trajectory should move:
	// some pair of snapshots must disagree on an edge
	moved := false
	for i := 1; i < len(traj) && !moved; i++ {
		for r := 0; r < 3 && !moved; r++ {
			for c := 0; c < 3 && !moved; c++ {
				if traj[i].Edge(r, c) != traj[0].Edge(r, c) {
					moved = true
				}
			}
		}
	}
	assert.True(moved)
}

func TestGibbsStartStateUntouched(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)
	pop := newFlatPop(2)

	parallel, serial, err := InitUpdates(gen, pop, UpdatesConfig{})
	assert.NoError(err)
	g, err := NewGibbs(gen, pop, parallel, serial)
	assert.NoError(err)

	x0, err := pop.Sample(gen)
	assert.NoError(err)

	traj, err := g.Run(x0, 10)
	assert.NoError(err)

	// The first snapshot is the start state, by value
	assert.Equal(x0.A.At(0, 1), traj[0].A.At(0, 1))
	assert.Equal(x0.W.At(1, 0), traj[0].W.At(1, 0))
	assert.False(traj[0] == x0)
}

// recoveryRun simulates a hand-built 2-unit ground truth with one strong
// directed connection and checks the sampler finds it from spikes alone.
func recoveryRun(t *testing.T, cfg UpdatesConfig) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(101)
	assert.NoError(err)

	mcfg := model.DefaultConfig(2)

	truth, err := model.NewState(2, mcfg.StimDim, 0)
	assert.NoError(err)
	truth.Glms[0].Bias = 1.0
	truth.Glms[1].Bias = 1.0

	// Strong 0->1 coupling, nothing back, inhibitory self-loops
	truth.SetEdge(0, 1, true)
	truth.SetWeight(0, 1, 2.0)
	truth.SetEdge(0, 0, true)
	truth.SetWeight(0, 0, -1.0)
	truth.SetEdge(1, 1, true)
	truth.SetWeight(1, 1, -1.0)

	data, err := model.Simulate(gen, mcfg, truth, 1500)
	assert.NoError(err)

	pop, err := model.NewPointProcess(mcfg, data)
	assert.NoError(err)

	parallel, serial, err := InitUpdates(gen, pop, cfg)
	assert.NoError(err)
	g, err := NewGibbs(gen, pop, parallel, serial)
	assert.NoError(err)

	var lps []float64
	g.SweepHook = func(sweep int, logProb float64) {
		lps = append(lps, logProb)
	}

	const sweeps, burn = 300, 100
	traj, err := g.Run(nil, sweeps)
	assert.NoError(err)
	assert.Len(traj, sweeps+1)

	// The chain should have climbed well above the prior draw it started at
	assert.Len(lps, sweeps)
	tailMean := 0.0
	for _, lp := range lps[sweeps-50:] {
		tailMean += lp
	}
	tailMean /= 50.0
	assert.True(tailMean > lps[0], "log prob did not improve: %v -> %v", lps[0], tailMean)

	marg, err := model.EdgeMarginals(traj[burn+1:])
	assert.NoError(err)

	// The true edge dominates the absent reverse edge
	assert.True(marg.At(0, 1) > 0.6, "true edge marginal %v", marg.At(0, 1))
	assert.True(marg.At(0, 1) > marg.At(1, 0)+0.2,
		"edge separation %v vs %v", marg.At(0, 1), marg.At(1, 0))
}

func TestGibbsRecoversCollapsed(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping sampling run in short mode")
	}
	recoveryRun(t, UpdatesConfig{Collapsed: true})
}

func TestGibbsRecoversPlain(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping sampling run in short mode")
	}
	recoveryRun(t, UpdatesConfig{})
}

func TestGibbsLatentLocations(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(7)
	assert.NoError(err)

	mcfg := model.DefaultConfig(3)
	mcfg.Graph = model.LatentDistanceGraph{
		Dim:      2,
		SigmaLoc: 1.0,
		Delta:    1.0,
		Offset:   0.0,
		RhoSelf:  0.9,
	}

	truth, err := model.SamplePrior(gen, mcfg)
	assert.NoError(err)

	data, err := model.Simulate(gen, mcfg, truth, 300)
	assert.NoError(err)

	pop, err := model.NewPointProcess(mcfg, data)
	assert.NoError(err)

	parallel, serial, err := InitUpdates(gen, pop, UpdatesConfig{Collapsed: true})
	assert.NoError(err)
	assert.Len(serial, 1)

	g, err := NewGibbs(gen, pop, parallel, serial)
	assert.NoError(err)

	traj, err := g.Run(nil, 30)
	assert.NoError(err)
	assert.Len(traj, 31)

	// Locations were carried through every snapshot and stayed finite
	for _, x := range traj {
		flat := x.LocationsFlat()
		assert.Len(flat, 6)
		for _, l := range flat {
			assert.False(math.IsNaN(l))
			assert.False(math.IsInf(l, 0))
		}
	}

	// The serial rule actually moved the locations at some point
	first := traj[0].LocationsFlat()
	last := traj[len(traj)-1].LocationsFlat()
	assert.NotEqual(first, last)
}

func TestLatentLocationsRequiresLocations(t *testing.T) {
	assert := assert.New(t)

	gen := testGen(t)
	u, err := NewLatentLocations(gen)
	assert.NoError(err)

	// A population without a location prior is rejected at Preprocess
	assert.Error(u.Preprocess(newFlatPop(2)))
}
