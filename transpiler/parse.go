package transpiler

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"regexp"
	"strconv"
	"strings"
)

// builtins are the read-only integer names every kernel defines.
var builtins = map[string]bool{
	"x": true, "y": true, "z": true, "n": true,
	"Nx": true, "Ny": true, "Nz": true,
}

var axes = map[string]int{"Nx": 0, "Ny": 1, "Nz": 2}

// reserved are OpenCL C keywords and the builtins generated code calls,
// which are valid Go identifiers but cannot name a kernel variable.
var reserved = map[string]bool{
	"auto": true, "char": true, "do": true, "double": true, "enum": true,
	"extern": true, "float": true, "half": true, "inline": true, "int": true,
	"long": true, "register": true, "restrict": true, "short": true,
	"signed": true, "sizeof": true, "static": true, "typedef": true,
	"union": true, "unsigned": true, "void": true, "volatile": true,
	"bool": true, "uchar": true, "ushort": true, "uint": true, "ulong": true,
	"size_t": true, "ptrdiff_t": true, "intptr_t": true, "uintptr_t": true,
	"global": true, "local": true, "constant": true, "private": true,
	"kernel": true, "read_only": true, "write_only": true, "read_write": true,
	"sampler_t": true, "event_t": true, "image2d_t": true, "image3d_t": true,
	"get_global_id": true, "vload_half": true, "vstore_half": true,
}

var vectorType = regexp.MustCompile(`^(u?char|u?short|u?int|u?long|float|double|half|bool)(2|3|4|8|16)$`)

func isReserved(name string) bool {
	return reserved[name] || vectorType.MatchString(name) || strings.HasPrefix(name, "__")
}

type parseState struct {
	fset       *token.FileSet
	lineOffset int
	scopes     []map[string]Kind
	loops      int
	loopVar    string
}

// Parse reads the source of a single Go function and returns its tree.
// The package clause is optional.
func Parse(src string) (*Func, error) {
	p := &parseState{fset: token.NewFileSet()}
	text := src
	if !strings.HasPrefix(strings.TrimSpace(src), "package ") {
		text = "package initial\n" + src
		p.lineOffset = 1
	}

	file, err := parser.ParseFile(p.fset, "initial.go", text, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("transpiler: %w: %v", ErrSyntax, err)
	}

	var fn *ast.FuncDecl
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			return nil, p.unsupported(decl, "declaration", "only one function is allowed")
		}
		if fn != nil {
			return nil, p.unsupported(decl, "declaration", "only one function is allowed")
		}
		fn = fd
	}
	if fn == nil {
		return nil, fmt.Errorf("transpiler: %w: no function found", ErrSyntax)
	}
	switch {
	case fn.Recv != nil:
		return nil, p.unsupported(fn, "method", fn.Name.Name)
	case fn.Type.TypeParams != nil:
		return nil, p.unsupported(fn, "type parameters", fn.Name.Name)
	case fn.Type.Results != nil:
		return nil, p.unsupported(fn.Type.Results, "function results", fn.Name.Name)
	case fn.Body == nil:
		return nil, p.unsupported(fn, "function without body", fn.Name.Name)
	}

	body, err := p.block(fn.Body.List)
	if err != nil {
		return nil, err
	}
	return &Func{Name: fn.Name.Name, Body: body}, nil
}

func (p *parseState) line(n ast.Node) int {
	return p.fset.Position(n.Pos()).Line - p.lineOffset
}

func (p *parseState) unsupported(n ast.Node, form, detail string) error {
	return &UnsupportedConstruct{Form: form, Detail: detail, Line: p.line(n)}
}

func (p *parseState) lookup(name string) (Kind, bool) {
	if builtins[name] {
		return KindInt, true
	}
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if k, ok := p.scopes[i][name]; ok {
			return k, true
		}
	}
	return 0, false
}

func (p *parseState) declare(name string, k Kind) {
	p.scopes[len(p.scopes)-1][name] = k
}

// block parses a statement list in a fresh scope.
func (p *parseState) block(list []ast.Stmt) ([]Stmt, error) {
	p.scopes = append(p.scopes, map[string]Kind{})
	defer func() { p.scopes = p.scopes[:len(p.scopes)-1] }()

	var out []Stmt
	for _, s := range list {
		st, err := p.stmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (p *parseState) stmt(s ast.Stmt) (Stmt, error) {
	switch s := s.(type) {
	case *ast.AssignStmt:
		return p.assign(s)
	case *ast.IfStmt:
		return p.ifStmt(s)
	case *ast.RangeStmt:
		return p.rangeStmt(s)
	case *ast.ForStmt:
		return nil, p.unsupported(s, "non-range for loop", "only `for v := range Nx|Ny|Nz` is allowed")
	case *ast.ExprStmt:
		if call, ok := s.X.(*ast.CallExpr); ok {
			return nil, p.unsupported(s, "function call", types.ExprString(call.Fun))
		}
		return nil, p.unsupported(s, "expression statement", types.ExprString(s.X))
	case *ast.IncDecStmt:
		return nil, p.unsupported(s, "increment statement", types.ExprString(s.X)+s.Tok.String())
	case *ast.DeclStmt:
		return nil, p.unsupported(s, "declaration statement", "use :=")
	case *ast.ReturnStmt:
		return nil, p.unsupported(s, "return statement", "")
	case *ast.BlockStmt:
		return nil, p.unsupported(s, "block statement", "")
	case *ast.SwitchStmt, *ast.TypeSwitchStmt:
		return nil, p.unsupported(s, "switch statement", "")
	case *ast.GoStmt, *ast.DeferStmt:
		return nil, p.unsupported(s, "function call", "go/defer")
	}
	return nil, p.unsupported(s, "statement", fmt.Sprintf("%T", s))
}

func (p *parseState) assign(s *ast.AssignStmt) (Stmt, error) {
	if s.Tok != token.ASSIGN && s.Tok != token.DEFINE {
		return nil, p.unsupported(s, "compound assignment", s.Tok.String())
	}
	if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
		return nil, p.unsupported(s, "multiple assignment", "")
	}

	value, err := p.expr(s.Rhs[0])
	if err != nil {
		return nil, err
	}

	if s.Tok == token.DEFINE {
		id, ok := s.Lhs[0].(*ast.Ident)
		if !ok {
			return nil, p.unsupported(s, "declaration", types.ExprString(s.Lhs[0]))
		}
		if err := p.checkDeclarable(id); err != nil {
			return nil, err
		}
		k := kindOf(value)
		p.declare(id.Name, k)
		return &Assign{Target: &Name{Ident: id.Name, Kind: k}, Value: value, Define: true, Line: p.line(s)}, nil
	}

	target, err := p.target(s.Lhs[0])
	if err != nil {
		return nil, err
	}
	return &Assign{Target: target, Value: value, Line: p.line(s)}, nil
}

func (p *parseState) checkDeclarable(id *ast.Ident) error {
	switch {
	case id.Name == "_":
		return p.unsupported(id, "blank identifier", "")
	case builtins[id.Name]:
		return p.unsupported(id, "assignment to read-only name", id.Name)
	case isReserved(id.Name):
		return p.unsupported(id, "reserved name", id.Name)
	}
	if _, ok := lookupArray(id.Name); ok {
		return p.unsupported(id, "redeclaration", id.Name)
	}
	if _, ok := p.lookup(id.Name); ok {
		return p.unsupported(id, "redeclaration", id.Name)
	}
	return nil
}

func (p *parseState) target(e ast.Expr) (Expr, error) {
	switch t := e.(type) {
	case *ast.Ident:
		if a, ok := lookupArray(t.Name); ok {
			return p.subscript(t, a, nil)
		}
		if builtins[t.Name] {
			return nil, p.unsupported(t, "assignment to read-only name", t.Name)
		}
		k, ok := p.lookup(t.Name)
		if !ok {
			return nil, p.unsupported(t, "undefined name", t.Name)
		}
		if p.isLoopVar(t.Name) {
			return nil, p.unsupported(t, "assignment to read-only name", t.Name)
		}
		return &Name{Ident: t.Name, Kind: k}, nil
	case *ast.IndexExpr, *ast.IndexListExpr:
		return p.expr(t)
	case *ast.ParenExpr:
		return p.target(t.X)
	}
	return nil, p.unsupported(e, "assignment target", types.ExprString(e))
}

// isLoopVar reports whether name is the enclosing loop's variable, which is
// read-only.
func (p *parseState) isLoopVar(name string) bool {
	return p.loopVar != "" && name == p.loopVar
}

func (p *parseState) ifStmt(s *ast.IfStmt) (Stmt, error) {
	if s.Init != nil {
		return nil, p.unsupported(s.Init, "if statement initializer", "")
	}
	cond, err := p.condition(s.Cond)
	if err != nil {
		return nil, err
	}
	then, err := p.block(s.Body.List)
	if err != nil {
		return nil, err
	}
	out := &If{Cond: cond, Then: then, Line: p.line(s)}

	switch e := s.Else.(type) {
	case nil:
	case *ast.IfStmt:
		next, err := p.ifStmt(e)
		if err != nil {
			return nil, err
		}
		out.Else = []Stmt{next}
	case *ast.BlockStmt:
		if out.Else, err = p.block(e.List); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *parseState) rangeStmt(s *ast.RangeStmt) (Stmt, error) {
	if p.loopVar != "" {
		return nil, p.unsupported(s, "nested for loop", "")
	}
	if p.loops > 0 {
		return nil, p.unsupported(s, "second for loop", "only one loop is allowed")
	}
	key, ok := s.Key.(*ast.Ident)
	if !ok || s.Value != nil || s.Tok != token.DEFINE {
		return nil, p.unsupported(s, "range clause", "want `for v := range Nx|Ny|Nz`")
	}
	bound, ok := s.X.(*ast.Ident)
	axis, isAxis := 0, false
	if ok {
		axis, isAxis = axes[bound.Name]
	}
	if !isAxis {
		return nil, p.unsupported(s.X, "range bound", types.ExprString(s.X))
	}
	if err := p.checkDeclarable(key); err != nil {
		return nil, err
	}

	p.loops++
	p.loopVar = key.Name
	p.scopes = append(p.scopes, map[string]Kind{key.Name: KindInt})
	body, err := p.block(s.Body.List)
	p.scopes = p.scopes[:len(p.scopes)-1]
	p.loopVar = ""
	if err != nil {
		return nil, err
	}
	return &For{Var: key.Name, Axis: axis, Bound: bound.Name, Body: body, Line: p.line(s)}, nil
}

func (p *parseState) condition(e ast.Expr) (*Compare, error) {
	for {
		paren, ok := e.(*ast.ParenExpr)
		if !ok {
			break
		}
		e = paren.X
	}
	bin, ok := e.(*ast.BinaryExpr)
	if !ok {
		return nil, p.unsupported(e, "condition", types.ExprString(e))
	}
	switch bin.Op {
	case token.EQL, token.NEQ:
	case token.LAND, token.LOR:
		return nil, p.unsupported(bin, "logical operator", bin.Op.String())
	case token.LSS, token.GTR, token.LEQ, token.GEQ:
		return nil, p.unsupported(bin, "comparison operator", bin.Op.String())
	default:
		return nil, p.unsupported(bin, "condition", types.ExprString(bin))
	}
	left, err := p.expr(bin.X)
	if err != nil {
		return nil, err
	}
	right, err := p.expr(bin.Y)
	if err != nil {
		return nil, err
	}
	return &Compare{Op: bin.Op.String(), Left: left, Right: right}, nil
}

func (p *parseState) expr(e ast.Expr) (Expr, error) {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return p.expr(e.X)
	case *ast.BasicLit:
		return p.constant(e, "")
	case *ast.UnaryExpr:
		if lit, ok := unparen(e.X).(*ast.BasicLit); ok && (e.Op == token.SUB || e.Op == token.ADD) {
			sign := ""
			if e.Op == token.SUB {
				sign = "-"
			}
			return p.constant(lit, sign)
		}
		return nil, p.unsupported(e, "unary expression", types.ExprString(e))
	case *ast.Ident:
		if a, ok := lookupArray(e.Name); ok {
			return p.subscript(e, a, nil)
		}
		k, ok := p.lookup(e.Name)
		if !ok {
			return nil, p.unsupported(e, "undefined name", e.Name)
		}
		return &Name{Ident: e.Name, Kind: k}, nil
	case *ast.IndexExpr:
		return p.index(e, e.X, []ast.Expr{e.Index})
	case *ast.IndexListExpr:
		return p.index(e, e.X, e.Indices)
	case *ast.CallExpr:
		return nil, p.unsupported(e, "function call", types.ExprString(e.Fun))
	case *ast.BinaryExpr:
		switch e.Op {
		case token.EQL, token.NEQ:
			return nil, p.unsupported(e, "comparison outside if condition", types.ExprString(e))
		case token.LSS, token.GTR, token.LEQ, token.GEQ:
			return nil, p.unsupported(e, "comparison operator", e.Op.String())
		case token.LAND, token.LOR:
			return nil, p.unsupported(e, "logical operator", e.Op.String())
		}
		return nil, p.unsupported(e, "binary expression", types.ExprString(e))
	case *ast.CompositeLit:
		return nil, p.unsupported(e, "composite literal", types.ExprString(e))
	case *ast.FuncLit:
		return nil, p.unsupported(e, "function literal", "")
	case *ast.SelectorExpr:
		return nil, p.unsupported(e, "selector expression", types.ExprString(e))
	case *ast.SliceExpr:
		return nil, p.unsupported(e, "slice expression", types.ExprString(e))
	case *ast.StarExpr:
		return nil, p.unsupported(e, "pointer dereference", types.ExprString(e))
	}
	return nil, p.unsupported(e, "expression", types.ExprString(e))
}

func unparen(e ast.Expr) ast.Expr {
	for {
		paren, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = paren.X
	}
}

func (p *parseState) constant(lit *ast.BasicLit, sign string) (Expr, error) {
	var kind Kind
	switch lit.Kind {
	case token.INT:
		kind = KindInt
	case token.FLOAT:
		kind = KindReal
	default:
		return nil, p.unsupported(lit, "literal", lit.Value)
	}
	lower := strings.ToLower(lit.Value)
	if strings.Contains(lit.Value, "_") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		return nil, p.unsupported(lit, "literal", lit.Value)
	}
	if kind == KindInt && len(lit.Value) > 1 && lit.Value[0] == '0' && lower[1] != 'x' {
		// 017 is octal in both languages but almost always a typo here.
		return nil, p.unsupported(lit, "literal", lit.Value)
	}

	var v float64
	if kind == KindInt {
		i, err := strconv.ParseInt(lit.Value, 0, 32)
		if err != nil {
			return nil, p.unsupported(lit, "literal", lit.Value)
		}
		v = float64(i)
	} else {
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, p.unsupported(lit, "literal", lit.Value)
		}
		v = f
	}
	if sign == "-" {
		v = -v
	}
	return &Constant{Text: sign + lit.Value, Value: v, Kind: kind}, nil
}

func (p *parseState) index(n ast.Node, x ast.Expr, indices []ast.Expr) (Expr, error) {
	id, ok := x.(*ast.Ident)
	if !ok {
		return nil, p.unsupported(n, "subscript", types.ExprString(x))
	}
	a, ok := lookupArray(id.Name)
	if !ok {
		return nil, &UnsupportedArray{Name: id.Name, Line: p.line(n)}
	}

	var elems []Expr
	for _, ie := range indices {
		e, err := p.expr(ie)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	var index Expr
	if len(elems) == 1 {
		index = elems[0]
	} else {
		index = &Tuple{Elems: elems}
	}
	return p.subscript(n, a, index)
}

func (p *parseState) subscript(n ast.Node, a Array, index Expr) (Expr, error) {
	s := &Subscript{Array: a, Index: index}
	if got := s.Arity(); got != a.Arity() {
		return nil, &ArrayArityError{Array: a, Want: a.Arity(), Got: got, Line: p.line(n)}
	}
	if a == ArrayU {
		c, ok := index.(*Constant)
		if !ok || c.Kind != KindInt || c.Value < 0 {
			return nil, p.unsupported(n, "velocity component", "want a non-negative integer constant")
		}
		s.Component = int(c.Value)
	}
	return s, nil
}
