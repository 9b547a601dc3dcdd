package core

import "gonum.org/v1/gonum/floats"

// LatticeState holds the host copies of the four flattened arrays. The
// device copies are authoritative while a simulation is running; these are
// only refreshed by an explicit read back.
type LatticeState struct {
	Grid
	Set VelocitySet

	// F has N*Q entries, population i of cell n at n*Q + i.
	F []float64
	// Rho has N entries.
	Rho []float64
	// U has N*D entries, component d of cell n at n*D + d.
	U []float64
	// Flags has N entries.
	Flags []int32
}

// NewLatticeState allocates the arrays with populations and density set to 1,
// zero velocity and every cell flagged fluid.
func NewLatticeState(g Grid, set VelocitySet) *LatticeState {
	n := g.N()
	ls := &LatticeState{
		Grid:  g,
		Set:   set,
		F:     make([]float64, n*set.Q),
		Rho:   make([]float64, n),
		U:     make([]float64, n*set.D),
		Flags: make([]int32, n),
	}
	for i := range ls.F {
		ls.F[i] = 1
	}
	for i := range ls.Rho {
		ls.Rho[i] = 1
	}
	return ls
}

// Velocity returns the velocity vector of cell n.
func (ls *LatticeState) Velocity(n int) []float64 {
	d := ls.Set.D
	return ls.U[n*d : n*d+d]
}

// Flag returns the flag of cell (x, y, z).
func (ls *LatticeState) Flag(x, y, z int) Flag {
	return Flag(ls.Flags[ls.Idx(x, y, z)])
}

// SetFlag flags cell (x, y, z).
func (ls *LatticeState) SetFlag(x, y, z int, f Flag) {
	ls.Flags[ls.Idx(x, y, z)] = int32(f)
}

// Mass returns Σρ over all cells.
func (ls *LatticeState) Mass() float64 {
	return floats.Sum(ls.Rho)
}
