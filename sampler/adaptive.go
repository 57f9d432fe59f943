package sampler

import (
	"github.com/pkg/errors"

	"github.com/netglm/netglm/buffer"
)

// Default tuning constants for the step size controller. The EMA decay and
// the multiplicative nudge factors come from the usual HMC auto-tuning
// recipe; MinStepSize keeps the controller from driving the step to zero.
const (
	DefStepSize   = 0.05
	DefTargetRate = 0.9

	emaDecay    = 0.9
	stepGrow    = 1.02
	stepShrink  = 0.98
	MinStepSize = 1e-8
)

// StepSizeAdapter tracks an exponential moving average of HMC acceptance and
// nudges the step size multiplicatively toward a target acceptance rate.
type StepSizeAdapter struct {
	StepSize   float64
	AcceptRate float64
	Target     float64
}

// NewStepSizeAdapter creates an adapter starting at the given step size. The
// acceptance estimate starts at the target so early sweeps do not whipsaw the
// step.
func NewStepSizeAdapter(stepSize float64, target float64) (*StepSizeAdapter, error) {
	if stepSize <= 0.0 {
		return nil, errors.Errorf("Invalid initial step size %v", stepSize)
	}
	if target <= 0.0 || target >= 1.0 {
		return nil, errors.Errorf("Invalid target acceptance rate %v", target)
	}

	return &StepSizeAdapter{
		StepSize:   stepSize,
		AcceptRate: target,
		Target:     target,
	}, nil
}

// Observe folds one accept/reject outcome into the acceptance estimate and
// adjusts the step size.
func (a *StepSizeAdapter) Observe(accepted bool) {
	acc := 0.0
	if accepted {
		acc = 1.0
	}
	a.AcceptRate = emaDecay*a.AcceptRate + (1.0-emaDecay)*acc

	if a.AcceptRate > a.Target {
		a.StepSize *= stepGrow
	} else {
		a.StepSize *= stepShrink
	}

	if a.StepSize < MinStepSize {
		a.StepSize = MinStepSize
	}
}

// Monitor watches step sizes and acceptance rates over a sliding window and
// flags convergence degradation: a step size collapsing toward zero, or an
// acceptance rate pinned at either extreme for a full window. Degradation is
// reported to the caller, never acted on automatically.
type Monitor struct {
	accepts *buffer.CircularFloat
	steps   *buffer.CircularFloat
}

// NewMonitor creates a monitor over a window of the given size
func NewMonitor(window int) (*Monitor, error) {
	if window < 4 {
		return nil, errors.Errorf("Monitor window %d is too small", window)
	}
	return &Monitor{
		accepts: buffer.NewCircularFloat(window),
		steps:   buffer.NewCircularFloat(window),
	}, nil
}

// Observe records one adapter snapshot
func (m *Monitor) Observe(stepSize float64, acceptRate float64) {
	m.steps.Add(stepSize)
	m.accepts.Add(acceptRate)
}

// Degraded returns true once a full window shows pinned acceptance or a
// collapsed step size. Before the window fills it always returns false.
func (m *Monitor) Degraded() bool {
	first := m.accepts.FirstHalf()
	second := m.accepts.SecondHalf()
	if first == nil || second == nil {
		return false
	}

	const pinLo, pinHi = 0.02, 0.98

	pinned := true
	for iter := first; iter.Next(); {
		v := iter.Value()
		if v > pinLo && v < pinHi {
			pinned = false
			break
		}
	}
	if pinned {
		for iter := second; iter.Next(); {
			v := iter.Value()
			if v > pinLo && v < pinHi {
				pinned = false
				break
			}
		}
	}
	if pinned {
		return true
	}

	for iter := m.steps.SecondHalf(); iter.Next(); {
		if iter.Value() > 2.0*MinStepSize {
			return false
		}
	}
	return true
}
