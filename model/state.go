package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// UnitParams is one unit's GLM parameter record: a scalar bias and a stimulus
// filter. The coupling-filter shape (exponential basis) and the exp
// nonlinearity are fixed in this model family, so they carry no free
// parameters here.
type UnitParams struct {
	Bias float64
	Stim []float64
}

// Clone returns a deep copy of the unit's parameters
func (u *UnitParams) Clone() *UnitParams {
	cp := &UnitParams{
		Bias: u.Bias,
		Stim: make([]float64, len(u.Stim)),
	}
	copy(cp.Stim, u.Stim)
	return cp
}

// State is the single mutable parameter state passed through every update
// rule. The state owns all of its matrices: readers get values through At
// accessors and every mutation goes through an explicit setter, never through
// an aliased view.
type State struct {
	N    int           // Number of units - fixed for the life of a chain
	A    *mat.Dense    // N x N adjacency, entries exactly 0 or 1
	W    *mat.Dense    // N x N weights, well-defined everywhere (even where A=0)
	L    *mat.Dense    // N x D latent locations, nil without a location prior
	Glms []*UnitParams // Per-unit GLM records
}

// NewState allocates a zeroed state for n units with the given stimulus
// filter length. locDim < 1 means no latent locations.
func NewState(n int, stimDim int, locDim int) (*State, error) {
	if n < 1 {
		return nil, errors.Errorf("Invalid unit count %d", n)
	}
	if stimDim < 0 {
		return nil, errors.Errorf("Invalid stimulus filter length %d", stimDim)
	}

	x := &State{
		N:    n,
		A:    mat.NewDense(n, n, nil),
		W:    mat.NewDense(n, n, nil),
		Glms: make([]*UnitParams, n),
	}
	if locDim > 0 {
		x.L = mat.NewDense(n, locDim, nil)
	}
	for i := range x.Glms {
		x.Glms[i] = &UnitParams{Stim: make([]float64, stimDim)}
	}

	return x, nil
}

// Clone returns a deep copy of the state. The sweep driver snapshots the
// state once per sweep with this.
func (x *State) Clone() *State {
	cp := &State{
		N:    x.N,
		A:    mat.DenseCopyOf(x.A),
		W:    mat.DenseCopyOf(x.W),
		Glms: make([]*UnitParams, len(x.Glms)),
	}
	if x.L != nil {
		cp.L = mat.DenseCopyOf(x.L)
	}
	for i, g := range x.Glms {
		cp.Glms[i] = g.Clone()
	}
	return cp
}

// CheckShapes returns an error if any matrix or parameter record disagrees
// with the declared population size. Shape problems are fatal and are never
// silently coerced.
func (x *State) CheckShapes() error {
	ar, ac := x.A.Dims()
	if ar != x.N || ac != x.N {
		return errors.Errorf("Adjacency shape %dx%d does not match N=%d", ar, ac, x.N)
	}

	wr, wc := x.W.Dims()
	if wr != ar || wc != ac {
		return errors.Errorf("Weight shape %dx%d does not match adjacency %dx%d", wr, wc, ar, ac)
	}

	if x.L != nil {
		lr, _ := x.L.Dims()
		if lr != x.N {
			return errors.Errorf("Location row count %d does not match N=%d", lr, x.N)
		}
	}

	if len(x.Glms) != x.N {
		return errors.Errorf("GLM record count %d does not match N=%d", len(x.Glms), x.N)
	}

	stimDim := len(x.Glms[0].Stim)
	for n, g := range x.Glms {
		if len(g.Stim) != stimDim {
			return errors.Errorf("Unit %d stimulus filter length %d != %d", n, len(g.Stim), stimDim)
		}
	}

	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			a := x.A.At(i, j)
			if a != 0.0 && a != 1.0 {
				return errors.Errorf("Adjacency entry [%d,%d]=%v is not 0 or 1", i, j, a)
			}
			if math.IsNaN(x.W.At(i, j)) {
				return errors.Errorf("Weight entry [%d,%d] is NaN", i, j)
			}
		}
	}

	return nil
}

// Edge returns true when unit pre drives unit post
func (x *State) Edge(pre int, post int) bool {
	return x.A.At(pre, post) > 0.5
}

// SetEdge is the single write path for adjacency entries
func (x *State) SetEdge(pre int, post int, on bool) {
	if on {
		x.A.Set(pre, post, 1.0)
	} else {
		x.A.Set(pre, post, 0.0)
	}
}

// SetWeight is the single write path for weight entries
func (x *State) SetWeight(pre int, post int, w float64) {
	x.W.Set(pre, post, w)
}

// LocDim returns the latent location dimensionality (0 without locations)
func (x *State) LocDim() int {
	if x.L == nil {
		return 0
	}
	_, d := x.L.Dims()
	return d
}

// LocationsFlat returns a copy of the location matrix in row-major order.
// Returning a copy keeps mutation on the SetLocations write path.
func (x *State) LocationsFlat() []float64 {
	if x.L == nil {
		return nil
	}
	r, c := x.L.Dims()
	flat := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			flat[i*c+j] = x.L.At(i, j)
		}
	}
	return flat
}

// SetLocations is the single write path for the location matrix
func (x *State) SetLocations(flat []float64) error {
	if x.L == nil {
		return errors.New("State has no latent locations")
	}
	r, c := x.L.Dims()
	if len(flat) != r*c {
		return errors.Errorf("Location vector length %d does not match %dx%d", len(flat), r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x.L.Set(i, j, flat[i*c+j])
		}
	}
	return nil
}
