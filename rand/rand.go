package rand

import (
	"math"

	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
)

// A Generator uses a goroutine to populate batches of random numbers from a
// Mersenne twister. A single Generator is the one logical random stream for a
// chain: every stochastic call in the sampler takes a Generator explicitly so
// that a fixed seed reproduces the entire trajectory.
type Generator struct {
	ch chan int64

	// Cached second variate from the polar method (see NormFloat64)
	normCached bool
	normValue  float64
}

// NewGenerator starts a new background PRNG based on the given seed
func NewGenerator(seed int64) (*Generator, error) {
	return start(func(r *mt19937.MT19937) {
		r.Seed(seed)
	})
}

// NewGeneratorSlice starts a new background PRNG seeded from a key slice (the
// canonical mt19937 seeding used by the reference test vectors).
func NewGeneratorSlice(key []uint64) (*Generator, error) {
	if len(key) < 1 {
		return nil, errors.Errorf("Can not seed a generator from an empty key slice")
	}
	return start(func(r *mt19937.MT19937) {
		r.SeedFromSlice(key)
	})
}

func start(seeder func(*mt19937.MT19937)) (*Generator, error) {
	numChan := make(chan int64, 1024)

	go func() {
		r := mt19937.New()
		seeder(r)
		for {
			numChan <- r.Int63()
		}
	}()

	g := &Generator{
		ch: numChan,
	}

	return g, nil
}

// Int63 provides the same interface as Go's math/rand, but with pre-generation.
func (g *Generator) Int63() int64 {
	return <-g.ch
}

// Int63n is a copy of the current Go code
func (g *Generator) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int63() & (n - 1)
	}

	max := int64((1 << 63) - 1 - (1<<63)%uint64(n))
	v := g.Int63()
	for v > max {
		v = g.Int63()
	}

	return v % n
}

// Int31 is just a copy of the golang impl
func (g *Generator) Int31() int32 {
	return int32(g.Int63() >> 32)
}

// Int31n is just a copy of the golang impL
func (g *Generator) Int31n(n int32) int32 {
	if n <= 0 {
		panic("invalid argument to Int31n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int31() & (n - 1)
	}

	max := int32((1 << 31) - 1 - (1<<31)%uint32(n))
	v := g.Int31()

	for v > max {
		v = g.Int31()
	}

	return v % n
}

// Float64 uses the commented, simpler implmentation since we don't have the
// same support requirements for users
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63n(1<<53)) / (1 << 53)
}

// NormFloat64 returns a standard normal variate via the Marsaglia polar
// method. Variates are generated in pairs, so every other call is free.
func (g *Generator) NormFloat64() float64 {
	if g.normCached {
		g.normCached = false
		return g.normValue
	}

	var u, v, s float64
	for {
		u = 2.0*g.Float64() - 1.0
		v = 2.0*g.Float64() - 1.0
		s = u*u + v*v
		if s > 0.0 && s < 1.0 {
			break
		}
	}

	m := math.Sqrt(-2.0 * math.Log(s) / s)
	g.normValue = v * m
	g.normCached = true
	return u * m
}

// Perm returns a random permutation of [0, n) via Fisher-Yates. The network
// column samplers use this for their randomized source-unit visit order.
func (g *Generator) Perm(n int) []int {
	p := make([]int, n)
	for i := 1; i < n; i++ {
		j := int(g.Int63n(int64(i + 1)))
		p[i] = p[j]
		p[j] = i
	}
	return p
}

// Shuffle pseudo-randomizes the order of elements, a la the stdlib
func (g *Generator) Shuffle(n int, swap func(i, j int)) {
	if n < 0 {
		panic("invalid argument to Shuffle")
	}

	for i := n - 1; i > 0; i-- {
		j := int(g.Int63n(int64(i + 1)))
		swap(i, j)
	}
}
