package transpiler

import (
	"fmt"
	"math"

	"fluidlbm/core"
	"fluidlbm/gpu"
)

// cell is the evaluation environment of one work-item.
type cell struct {
	x, y, z, n int
	grid       core.Grid
	locals     map[string]float64
	rho, u     gpu.HostMemory
	flags      gpu.HostMemory
	// single rounds real locals and comparisons to float32, as the
	// device computes in float below FP64.
	single bool
}

// Host returns the host implementation of fn for precision p. Velocity
// writes land at n + c and may overlap neighbouring cells, so it runs
// serially.
func (fn *Func) Host(p core.Precision) gpu.HostKernel {
	run := func(global [3]int, x0, x1 int, args []interface{}) error {
		return fn.run(p != core.FP64, global, x0, x1, args)
	}
	return gpu.HostKernel{Run: run, Serial: true}
}

// run executes fn for work-items with x in [x0, x1).
// Args: rho, u, flags, Nx, Ny, Nz.
func (fn *Func) run(single bool, global [3]int, x0, x1 int, args []interface{}) error {
	if len(args) != 6 {
		return fmt.Errorf("transpiler: %s takes 6 args, got %d", EntryPoint, len(args))
	}
	c := cell{single: single}
	var ok bool
	if c.rho, ok = args[0].(gpu.HostMemory); !ok {
		return fmt.Errorf("transpiler: rho is %T, want buffer", args[0])
	}
	if c.u, ok = args[1].(gpu.HostMemory); !ok {
		return fmt.Errorf("transpiler: u is %T, want buffer", args[1])
	}
	if c.flags, ok = args[2].(gpu.HostMemory); !ok {
		return fmt.Errorf("transpiler: flags is %T, want buffer", args[2])
	}
	var dims [3]int
	for i := range dims {
		v, ok := args[3+i].(int32)
		if !ok {
			return fmt.Errorf("transpiler: arg %d is %T, want int", 3+i, args[3+i])
		}
		dims[i] = int(v)
	}
	c.grid = core.NewGrid(dims[0], dims[1], dims[2])
	c.locals = make(map[string]float64)

	for x := x0; x < x1; x++ {
		for y := 0; y < global[1]; y++ {
			for z := 0; z < global[2]; z++ {
				n, ok := c.grid.IdxCheck(x, y, z)
				if !ok {
					continue
				}
				c.x, c.y, c.z, c.n = x, y, z, n
				clear(c.locals)
				if err := c.exec(fn.Body); err != nil {
					return fmt.Errorf("transpiler: cell (%d, %d, %d): %w", x, y, z, err)
				}
			}
		}
	}
	return nil
}

func (c *cell) exec(list []Stmt) error {
	for _, s := range list {
		switch s := s.(type) {
		case *Assign:
			v, err := c.eval(s.Value)
			if err != nil {
				return err
			}
			if err := c.store(s.Target, v); err != nil {
				return err
			}
		case *If:
			ok, err := c.test(s.Cond)
			if err != nil {
				return err
			}
			branch := s.Else
			if ok {
				branch = s.Then
			}
			if err := c.exec(branch); err != nil {
				return err
			}
		case *For:
			c.locals[s.Var] = float64([3]int{c.x, c.y, c.z}[s.Axis])
			if err := c.exec(s.Body); err != nil {
				return err
			}
		default:
			return fmt.Errorf("cannot execute %T", s)
		}
	}
	return nil
}

func (c *cell) test(cmp *Compare) (bool, error) {
	l, err := c.eval(cmp.Left)
	if err != nil {
		return false, err
	}
	r, err := c.eval(cmp.Right)
	if err != nil {
		return false, err
	}
	if c.single && (kindOf(cmp.Left) == KindReal || kindOf(cmp.Right) == KindReal) {
		l, r = float64(float32(l)), float64(float32(r))
	}
	if cmp.Op == "!=" {
		return l != r, nil
	}
	return l == r, nil
}

func (c *cell) memory(a Array) gpu.HostMemory {
	switch a {
	case ArrayRho:
		return c.rho
	case ArrayU:
		return c.u
	}
	return c.flags
}

func (c *cell) element(s *Subscript) (gpu.HostMemory, int, error) {
	mem := c.memory(s.Array)
	i := s.Array.Index(c.n, s.Component)
	if i >= mem.Len() {
		return nil, 0, fmt.Errorf("%s[%s] is element %d of %d", s.Array, s.Array.Offset(s.Component), i, mem.Len())
	}
	return mem, i, nil
}

func (c *cell) eval(e Expr) (float64, error) {
	switch e := e.(type) {
	case *Constant:
		return e.Value, nil
	case *Name:
		switch e.Ident {
		case "x":
			return float64(c.x), nil
		case "y":
			return float64(c.y), nil
		case "z":
			return float64(c.z), nil
		case "n":
			return float64(c.n), nil
		case "Nx":
			return float64(c.grid.Nx), nil
		case "Ny":
			return float64(c.grid.Ny), nil
		case "Nz":
			return float64(c.grid.Nz), nil
		}
		v, ok := c.locals[e.Ident]
		if !ok {
			return 0, fmt.Errorf("%s used before assignment", e.Ident)
		}
		return v, nil
	case *Subscript:
		mem, i, err := c.element(e)
		if err != nil {
			return 0, err
		}
		if e.Array.Kind() == KindInt {
			return float64(mem.Int(i)), nil
		}
		return mem.Float(i), nil
	}
	return 0, fmt.Errorf("cannot evaluate %T", e)
}

func (c *cell) store(target Expr, v float64) error {
	switch t := target.(type) {
	case *Name:
		if t.Kind == KindInt {
			v = math.Trunc(v)
		} else if c.single {
			v = float64(float32(v))
		}
		c.locals[t.Ident] = v
		return nil
	case *Subscript:
		mem, i, err := c.element(t)
		if err != nil {
			return err
		}
		if t.Array.Kind() == KindInt {
			mem.SetInt(i, int32(v))
		} else {
			mem.SetFloat(i, v)
		}
		return nil
	}
	return fmt.Errorf("cannot assign to %T", target)
}
