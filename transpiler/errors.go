package transpiler

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is returned for input that is not valid Go.
	ErrSyntax = errors.New("syntax error")

	// ErrUnsupportedConstruct is matched by every *UnsupportedConstruct.
	ErrUnsupportedConstruct = errors.New("unsupported construct")

	// ErrUnsupportedArray is matched by every *UnsupportedArray.
	ErrUnsupportedArray = errors.New("unsupported array")

	// ErrArrayArity is matched by every *ArrayArityError.
	ErrArrayArity = errors.New("wrong number of array indices")
)

// UnsupportedConstruct names a syntactic form outside the accepted subset.
type UnsupportedConstruct struct {
	Form   string
	Detail string
	Line   int
}

func (e *UnsupportedConstruct) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("transpiler: line %d: unsupported %s", e.Line, e.Form)
	}
	return fmt.Sprintf("transpiler: line %d: unsupported %s: %s", e.Line, e.Form, e.Detail)
}

func (e *UnsupportedConstruct) Unwrap() error { return ErrUnsupportedConstruct }

// UnsupportedArray is a subscript on a name other than rho, u or flags.
type UnsupportedArray struct {
	Name string
	Line int
}

func (e *UnsupportedArray) Error() string {
	return fmt.Sprintf("transpiler: line %d: unsupported array %q (want rho, u or flags)", e.Line, e.Name)
}

func (e *UnsupportedArray) Unwrap() error { return ErrUnsupportedArray }

// ArrayArityError is a subscript with the wrong number of indices.
type ArrayArityError struct {
	Array Array
	Want  int
	Got   int
	Line  int
}

func (e *ArrayArityError) Error() string {
	return fmt.Sprintf("transpiler: line %d: array %q takes %d indices, got %d", e.Line, e.Array, e.Want, e.Got)
}

func (e *ArrayArityError) Unwrap() error { return ErrArrayArity }
