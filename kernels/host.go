package kernels

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"fluidlbm/core"
	"fluidlbm/gpu"
)

// lattice is the per-dispatch view of the velocity set arguments.
type lattice struct {
	q, d     int
	c        []mgl64.Vec3
	ci       [][3]int
	w        []float64
	opposite []int
	grid     core.Grid
}

func (l *lattice) equilibrium(i int, rho float64, v mgl64.Vec3, uu float64) float64 {
	cu := l.c[i].Dot(v)
	return l.w[i] * rho * (1 + 3*cu + 4.5*cu*cu - 1.5*uu)
}

func newLattice(velocities, weights gpu.HostMemory, q, d, nx, ny, nz int) (*lattice, error) {
	if q > 27 || d > 3 || q <= 0 || d <= 0 {
		return nil, fmt.Errorf("kernels: unsupported lattice Q=%d D=%d", q, d)
	}
	if velocities.Len() != q*d || weights.Len() != q {
		return nil, fmt.Errorf("kernels: velocity set buffers hold %d velocities and %d weights for Q=%d D=%d",
			velocities.Len(), weights.Len(), q, d)
	}
	l := &lattice{q: q, d: d, grid: core.NewGrid(nx, ny, nz)}
	l.c = make([]mgl64.Vec3, q)
	l.ci = make([][3]int, q)
	l.w = make([]float64, q)
	for i := 0; i < q; i++ {
		for k := 0; k < d; k++ {
			c := int(velocities.Int(i*d + k))
			l.ci[i][k] = c
			l.c[i][k] = float64(c)
		}
		l.w[i] = weights.Float(i)
	}
	l.opposite = make([]int, q)
	for i := range l.opposite {
		l.opposite[i] = i
		for j := 0; j < q; j++ {
			if l.ci[j] == [3]int{-l.ci[i][0], -l.ci[i][1], -l.ci[i][2]} {
				l.opposite[i] = j
				break
			}
		}
	}
	return l, nil
}

func memArg(args []interface{}, i int) (gpu.HostMemory, error) {
	m, ok := args[i].(gpu.HostMemory)
	if !ok {
		return nil, fmt.Errorf("kernels: arg %d is %T, want buffer", i, args[i])
	}
	return m, nil
}

func intArg(args []interface{}, i int) (int, error) {
	v, ok := args[i].(int32)
	if !ok {
		return 0, fmt.Errorf("kernels: arg %d is %T, want int", i, args[i])
	}
	return int(v), nil
}

func realArg(args []interface{}, i int) (float64, error) {
	switch v := args[i].(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	}
	return 0, fmt.Errorf("kernels: arg %d is %T, want real", i, args[i])
}

// collideAndStream mirrors lbm_collide_and_stream.
// Args: f, rho, u, velocities, weights, omega, Q, D, Nx, Ny, Nz, f_next, flags.
func collideAndStream(global [3]int, x0, x1 int, args []interface{}) error {
	if len(args) != 13 {
		return fmt.Errorf("kernels: %s takes 13 args, got %d", CollideAndStream, len(args))
	}
	var (
		bufs [5]gpu.HostMemory
		ints [5]int
		err  error
	)
	for i := range bufs {
		if bufs[i], err = memArg(args, i); err != nil {
			return err
		}
	}
	omega, err := realArg(args, 5)
	if err != nil {
		return err
	}
	for i := range ints {
		if ints[i], err = intArg(args, 6+i); err != nil {
			return err
		}
	}
	fNext, err := memArg(args, 11)
	if err != nil {
		return err
	}
	flags, err := memArg(args, 12)
	if err != nil {
		return err
	}
	f, rho, u := bufs[0], bufs[1], bufs[2]
	q, d := ints[0], ints[1]
	l, err := newLattice(bufs[3], bufs[4], q, d, ints[2], ints[3], ints[4])
	if err != nil {
		return err
	}

	fi := make([]float64, q)
	for x := x0; x < x1 && x < l.grid.Nx; x++ {
		for y := 0; y < global[1] && y < l.grid.Ny; y++ {
			for z := 0; z < global[2] && z < l.grid.Nz; z++ {
				n := l.grid.Idx(x, y, z)
				flag := core.Flag(flags.Int(n))

				if flag == core.FlagSolid {
					for i := 0; i < q; i++ {
						fNext.SetFloat(n*q+i, f.Float(n*q+i))
					}
					continue
				}

				var r float64
				var v mgl64.Vec3
				for i := 0; i < q; i++ {
					fi[i] = f.Float(n*q + i)
					r += fi[i]
					v = v.Add(l.c[i].Mul(fi[i]))
				}

				if flag == core.FlagEquilibrium {
					r = rho.Float(n)
					v = mgl64.Vec3{}
					for k := 0; k < d; k++ {
						v[k] = u.Float(n*d + k)
					}
				} else {
					if r > 0 {
						v = v.Mul(1 / r)
					}
					rho.SetFloat(n, r)
					for k := 0; k < d; k++ {
						u.SetFloat(n*d+k, v[k])
					}
				}

				uu := v.Dot(v)
				for i := 0; i < q; i++ {
					feq := l.equilibrium(i, r, v, uu)
					post := fi[i] - omega*(fi[i]-feq)
					if flag == core.FlagEquilibrium {
						post = feq
					}

					c := l.ci[i]
					target := l.grid.Idx(l.grid.Wrap(x+c[0], y+c[1], z+c[2]))
					if core.Flag(flags.Int(target)) == core.FlagSolid {
						fNext.SetFloat(n*q+l.opposite[i], post)
					} else {
						fNext.SetFloat(target*q+i, post)
					}
				}
			}
		}
	}
	return nil
}

// equilibrium mirrors lbm_equilibrium.
// Args: f, rho, u, velocities, weights, Q, D, Nx, Ny, Nz, f_next.
func equilibrium(global [3]int, x0, x1 int, args []interface{}) error {
	if len(args) != 11 {
		return fmt.Errorf("kernels: %s takes 11 args, got %d", Equilibrium, len(args))
	}
	var (
		bufs [5]gpu.HostMemory
		ints [5]int
		err  error
	)
	for i := range bufs {
		if bufs[i], err = memArg(args, i); err != nil {
			return err
		}
	}
	for i := range ints {
		if ints[i], err = intArg(args, 5+i); err != nil {
			return err
		}
	}
	fNext, err := memArg(args, 10)
	if err != nil {
		return err
	}
	f, rho, u := bufs[0], bufs[1], bufs[2]
	q, d := ints[0], ints[1]
	l, err := newLattice(bufs[3], bufs[4], q, d, ints[2], ints[3], ints[4])
	if err != nil {
		return err
	}

	for x := x0; x < x1 && x < l.grid.Nx; x++ {
		for y := 0; y < global[1] && y < l.grid.Ny; y++ {
			for z := 0; z < global[2] && z < l.grid.Nz; z++ {
				n := l.grid.Idx(x, y, z)
				r := rho.Float(n)
				var v mgl64.Vec3
				for k := 0; k < d; k++ {
					v[k] = u.Float(n*d + k)
				}
				uu := v.Dot(v)
				for i := 0; i < q; i++ {
					feq := l.equilibrium(i, r, v, uu)
					f.SetFloat(n*q+i, feq)
					fNext.SetFloat(n*q+i, feq)
				}
			}
		}
	}
	return nil
}
