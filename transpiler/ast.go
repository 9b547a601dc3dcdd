package transpiler

// Kind is the scalar type of an expression: integers for ids, flags and
// integer literals, reals for density, velocity and float literals.
type Kind int

const (
	KindInt Kind = iota
	KindReal
)

func (k Kind) String() string {
	if k == KindReal {
		return "real"
	}
	return "int"
}

// Node is any element of the tree.
type Node interface {
	node()
}

// Stmt is a statement node: *Assign, *If or *For.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression node: *Name, *Constant, *Subscript, *Compare or
// *Tuple.
type Expr interface {
	Node
	expr()
}

// Func is a parsed initial-conditions function.
type Func struct {
	Name string
	Body []Stmt
}

// Assign stores Value into Target. Define marks a local declaration
// (`v := ...`), in which case Target is a *Name.
type Assign struct {
	Target Expr
	Value  Expr
	Define bool
	Line   int
}

// If is a conditional. An else-if chain is an If whose Else holds a single
// *If.
type If struct {
	Cond *Compare
	Then []Stmt
	Else []Stmt
	Line int
}

// For binds Var to the work-item id along Axis (0, 1, 2 for Nx, Ny, Nz)
// for the duration of Body.
type For struct {
	Var   string
	Axis  int
	Bound string
	Body  []Stmt
	Line  int
}

// Compare is an equality test, Op is "==" or "!=".
type Compare struct {
	Op          string
	Left, Right Expr
}

// Subscript addresses one of the device arrays at the current cell.
// Index is nil for zero-index access, an Expr for one index, or a *Tuple.
type Subscript struct {
	Array     Array
	Index     Expr
	Component int
}

// Name is a builtin (x, y, z, n, Nx, Ny, Nz), the loop variable or a local.
type Name struct {
	Ident string
	Kind  Kind
}

// Constant is a numeric literal kept in its source spelling.
type Constant struct {
	Text  string
	Value float64
	Kind  Kind
}

// Tuple is an index list, as in a[i, j].
type Tuple struct {
	Elems []Expr
}

func (*Func) node()      {}
func (*Assign) node()    {}
func (*If) node()        {}
func (*For) node()       {}
func (*Compare) node()   {}
func (*Subscript) node() {}
func (*Name) node()      {}
func (*Constant) node()  {}
func (*Tuple) node()     {}

func (*Assign) stmt() {}
func (*If) stmt()     {}
func (*For) stmt()    {}

func (*Compare) expr()   {}
func (*Subscript) expr() {}
func (*Name) expr()      {}
func (*Constant) expr()  {}
func (*Tuple) expr()     {}

// Arity is the number of indices of a subscript.
func (s *Subscript) Arity() int {
	switch idx := s.Index.(type) {
	case nil:
		return 0
	case *Tuple:
		return len(idx.Elems)
	}
	return 1
}

// kindOf returns the scalar type an expression evaluates to.
func kindOf(e Expr) Kind {
	switch e := e.(type) {
	case *Name:
		return e.Kind
	case *Constant:
		return e.Kind
	case *Subscript:
		return e.Array.Kind()
	}
	return KindInt
}
