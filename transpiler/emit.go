package transpiler

import (
	"fmt"
	"strings"

	"fluidlbm/core"
)

// EntryPoint is the name of the generated kernel.
const EntryPoint = "initial_conditions"

type emitter struct {
	b      strings.Builder
	prec   core.Precision
	indent int
}

// Emit renders fn as the OpenCL C source of the initial_conditions kernel.
// Real arrays are declared with the storage type of the precision.
func Emit(fn *Func, opts Options) (string, error) {
	e := &emitter{prec: opts.Precision}
	if pragma := e.prec.Pragma(); pragma != "" {
		e.line("%s", pragma)
		e.line("")
	}
	store := e.prec.StorageType()
	e.line("__kernel void %s(", EntryPoint)
	e.line("    __global %s* rho, __global %s* u, __global int* flags, int Nx, int Ny, int Nz", store, store)
	e.line(") {")
	e.indent++
	e.line("int x = get_global_id(0);")
	e.line("int y = get_global_id(1);")
	e.line("int z = get_global_id(2);")
	e.line("")
	e.line("if (x >= Nx || y >= Ny || z >= Nz) return;")
	e.line("")
	e.line("int n = x * Ny * Nz + y * Nz + z;")
	if err := e.stmts(fn.Body); err != nil {
		return "", err
	}
	e.indent--
	e.line("}")
	return e.b.String(), nil
}

func (e *emitter) line(format string, args ...interface{}) {
	if format != "" {
		e.b.WriteString(strings.Repeat("    ", e.indent))
		fmt.Fprintf(&e.b, format, args...)
	}
	e.b.WriteByte('\n')
}

func (e *emitter) stmts(list []Stmt) error {
	for _, s := range list {
		if err := e.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) block(list []Stmt) error {
	e.indent++
	defer func() { e.indent-- }()
	return e.stmts(list)
}

func (e *emitter) stmt(s Stmt) error {
	switch s := s.(type) {
	case *Assign:
		return e.assign(s)
	case *If:
		return e.ifChain(s)
	case *For:
		e.line("{")
		e.indent++
		e.line("int %s = get_global_id(%d);", s.Var, s.Axis)
		if err := e.stmts(s.Body); err != nil {
			return err
		}
		e.indent--
		e.line("}")
		return nil
	}
	return fmt.Errorf("transpiler: cannot emit %T", s)
}

func (e *emitter) ctype(k Kind) string {
	if k == KindReal {
		return e.prec.ComputeType()
	}
	return "int"
}

// half reports whether accesses to a go through vload_half/vstore_half.
func (e *emitter) half(a Array) bool {
	return e.prec == core.FP16 && a.Kind() == KindReal
}

func (e *emitter) assign(s *Assign) error {
	value, err := e.expr(s.Value)
	if err != nil {
		return err
	}
	switch t := s.Target.(type) {
	case *Name:
		if s.Define {
			e.line("%s %s = %s;", e.ctype(t.Kind), t.Ident, value)
		} else {
			e.line("%s = %s;", t.Ident, value)
		}
		return nil
	case *Subscript:
		if e.half(t.Array) {
			e.line("vstore_half(%s, %s, %s);", value, t.Array.Offset(t.Component), t.Array)
		} else {
			e.line("%s[%s] = %s;", t.Array, t.Array.Offset(t.Component), value)
		}
		return nil
	}
	return fmt.Errorf("transpiler: cannot assign to %T", s.Target)
}

func (e *emitter) ifChain(s *If) error {
	cond, err := e.expr(s.Cond)
	if err != nil {
		return err
	}
	e.line("if (%s) {", cond)
	for {
		if err := e.block(s.Then); err != nil {
			return err
		}
		if len(s.Else) == 0 {
			e.line("}")
			return nil
		}
		next, ok := s.Else[0].(*If)
		if !ok || len(s.Else) != 1 {
			e.line("} else {")
			if err := e.block(s.Else); err != nil {
				return err
			}
			e.line("}")
			return nil
		}
		if cond, err = e.expr(next.Cond); err != nil {
			return err
		}
		e.line("} else if (%s) {", cond)
		s = next
	}
}

func (e *emitter) expr(x Expr) (string, error) {
	switch x := x.(type) {
	case *Name:
		return x.Ident, nil
	case *Constant:
		return x.Text, nil
	case *Subscript:
		if e.half(x.Array) {
			return fmt.Sprintf("vload_half(%s, %s)", x.Array.Offset(x.Component), x.Array), nil
		}
		return fmt.Sprintf("%s[%s]", x.Array, x.Array.Offset(x.Component)), nil
	case *Compare:
		l, err := e.operand(x.Left)
		if err != nil {
			return "", err
		}
		r, err := e.operand(x.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", l, x.Op, r), nil
	}
	return "", fmt.Errorf("transpiler: cannot emit %T", x)
}

// operand renders one side of a comparison. Real constants are cast to the
// compute type so single precision kernels compare float against float.
func (e *emitter) operand(x Expr) (string, error) {
	if c, ok := x.(*Constant); ok && c.Kind == KindReal && e.prec != core.FP64 {
		return fmt.Sprintf("(%s)%s", e.prec.ComputeType(), c.Text), nil
	}
	return e.expr(x)
}
