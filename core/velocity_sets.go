package core

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
)

// ErrUnknownVelocitySet is returned by Lookup for ids that are not registered.
var ErrUnknownVelocitySet = errors.New("unknown velocity set")

// VelocitySet is a discrete velocity model DdQq: Q integer velocity vectors
// of dimension D with their quadrature weights.
type VelocitySet struct {
	Name       string
	D, Q       int
	Velocities [][]int
	Weights    []float64
}

// C returns velocity i padded to three components.
func (vs VelocitySet) C(i int) [3]int {
	var c [3]int
	copy(c[:], vs.Velocities[i])
	return c
}

// Opposite returns the index j with c_j == -c_i, or -1.
func (vs VelocitySet) Opposite(i int) int {
	ci := vs.C(i)
	for j := 0; j < vs.Q; j++ {
		cj := vs.C(j)
		if cj[0] == -ci[0] && cj[1] == -ci[1] && cj[2] == -ci[2] {
			return j
		}
	}
	return -1
}

// WeightSum returns Σ w_i.
func (vs VelocitySet) WeightSum() float64 {
	return floats.Sum(vs.Weights)
}

// FlatVelocities returns the velocities as a Q*D row-major slice, the layout
// the device kernels index with velocities[i*D + d].
func (vs VelocitySet) FlatVelocities() []int32 {
	out := make([]int32, 0, vs.Q*vs.D)
	for _, c := range vs.Velocities {
		for _, v := range c {
			out = append(out, int32(v))
		}
	}
	return out
}

func (vs VelocitySet) clone() VelocitySet {
	out := vs
	out.Velocities = make([][]int, len(vs.Velocities))
	for i, c := range vs.Velocities {
		out.Velocities[i] = append([]int(nil), c...)
	}
	out.Weights = append([]float64(nil), vs.Weights...)
	return out
}

func repeat(w float64, k int) []float64 {
	out := make([]float64, k)
	for i := range out {
		out[i] = w
	}
	return out
}

func join(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func newSet(name string, d int, c [][]int, w []float64) VelocitySet {
	return VelocitySet{Name: name, D: d, Q: len(c), Velocities: c, Weights: w}
}

// velocitySets is filled once at package initialisation and never mutated.
var velocitySets = map[string]VelocitySet{
	"D2Q9": newSet("D2Q9", 2,
		[][]int{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {-1, -1}, {1, -1}, {-1, 1}},
		join([]float64{4. / 9.}, repeat(1./9., 4), repeat(1./36., 4)),
	),
	"D3Q7": newSet("D3Q7", 3,
		[][]int{{0, 0, 0}, {1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}},
		join([]float64{1. / 4.}, repeat(1./8., 6)),
	),
	"D3Q15": newSet("D3Q15", 3,
		[][]int{
			{0, 0, 0}, {1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1},
			{1, 1, 1}, {-1, -1, -1}, {1, 1, -1}, {-1, -1, 1}, {1, -1, 1}, {-1, 1, -1},
			{-1, 1, 1}, {1, -1, -1},
		},
		join([]float64{2. / 9.}, repeat(1./9., 6), repeat(1./72., 8)),
	),
	"D3Q19": newSet("D3Q19", 3,
		[][]int{
			{0, 0, 0}, {1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1},
			{1, 1, 0}, {-1, -1, 0}, {1, 0, 1}, {-1, 0, -1}, {0, 1, 1}, {0, -1, -1},
			{1, -1, 0}, {-1, 1, 0}, {1, 0, -1}, {-1, 0, 1}, {0, 1, -1}, {0, -1, 1},
		},
		join([]float64{1. / 3.}, repeat(1./18., 6), repeat(1./36., 12)),
	),
	"D3Q27": newSet("D3Q27", 3,
		[][]int{
			{0, 0, 0}, {1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1},
			{1, 1, 0}, {-1, -1, 0}, {1, 0, 1}, {-1, 0, -1}, {0, 1, 1}, {0, -1, -1},
			{1, -1, 0}, {-1, 1, 0}, {1, 0, -1}, {-1, 0, 1}, {0, 1, -1}, {0, -1, 1},
			{1, 1, 1}, {-1, -1, -1}, {1, 1, -1}, {-1, -1, 1}, {1, -1, 1}, {-1, 1, -1},
			{-1, 1, 1}, {1, -1, -1},
		},
		join([]float64{8. / 27.}, repeat(2./27., 6), repeat(1./54., 12), repeat(1./216., 8)),
	),
}

// Lookup returns a copy of the velocity set registered under id.
func Lookup(id string) (VelocitySet, error) {
	vs, ok := velocitySets[id]
	if !ok {
		return VelocitySet{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownVelocitySet, id, VelocitySetNames())
	}
	return vs.clone(), nil
}

// VelocitySetNames returns the registered ids in sorted order.
func VelocitySetNames() []string {
	names := maps.Keys(velocitySets)
	slices.Sort(names)
	return names
}
