package core

// Grid provides the linear indexing shared by the host arrays, the
// collide-and-stream kernel and generated initial-condition kernels:
//
//	n = x*Ny*Nz + y*Nz + z
//
// x varies slowest. Any code touching device memory must use this formula.
type Grid struct {
	Nx, Ny, Nz int
}

// NewGrid returns a Grid with the given dimensions.
func NewGrid(nx, ny, nz int) Grid {
	return Grid{Nx: nx, Ny: ny, Nz: nz}
}

// N returns the number of cells.
func (g Grid) N() int { return g.Nx * g.Ny * g.Nz }

// Dims returns the grid dimensions as the 3D dispatch range.
func (g Grid) Dims() [3]int { return [3]int{g.Nx, g.Ny, g.Nz} }

// Idx returns the linear index of (x, y, z).
func (g Grid) Idx(x, y, z int) int {
	return x*g.Ny*g.Nz + y*g.Nz + z
}

// IdxCheck returns an index and true if the coordinates are inside the grid.
func (g Grid) IdxCheck(x, y, z int) (idx int, ok bool) {
	if !g.BoundsCheck(x, y, z) {
		return -1, false
	}
	return g.Idx(x, y, z), true
}

// BoundsCheck returns true if the coordinates are inside the grid.
func (g Grid) BoundsCheck(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.Nx && y < g.Ny && z < g.Nz
}

// Coords inverts Idx.
func (g Grid) Coords(n int) (x, y, z int) {
	area := g.Ny * g.Nz
	x = n / area
	y = (n % area) / g.Nz
	z = n % g.Nz
	return x, y, z
}

// Wrap returns the periodic image of (x, y, z).
func (g Grid) Wrap(x, y, z int) (int, int, int) {
	return pMod(x, g.Nx), pMod(y, g.Ny), pMod(z, g.Nz)
}

// pMod computes the positive modulo x % y.
func pMod(x, y int) int {
	m := x % y
	if m < 0 {
		m += y
	}
	return m
}
