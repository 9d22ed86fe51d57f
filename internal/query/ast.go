// Package query implements the JSON query language: compilation of
// array-form expressions and WHAT/WHERE/GROUP_BY/ORDER_BY query objects into
// a closed AST, and evaluation of that AST against documents.
//
// Expressions are written operator-first, e.g.
//
//	["AND", ["=", [".contact.address.state"], "CA"], [">", ["length()", [".name.first"]], 3]]
//
// Compilation fails on any unknown operator or arity mismatch; evaluation
// never fails on heterogeneous data, only on unbound parameters.
package query

import (
	"github.com/kartikbazzad/bunbase/bunquery/internal/path"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Node is an expression tree node. The set of node types is closed.
type Node interface {
	node()
}

// Op identifies unary and binary operators.
type Op uint8

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLike
	OpNotLike
	OpNot
	OpNeg
	OpAnd
	OpOr
)

var opNames = [...]string{
	OpEq: "=", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpLike: "LIKE", OpNotLike: "NOT LIKE", OpNot: "NOT", OpNeg: "-",
	OpAnd: "AND", OpOr: "OR",
}

func (o Op) String() string { return opNames[o] }

// MetaField names a document property that lives outside the body.
type MetaField uint8

const (
	MetaID MetaField = iota
	MetaSequence
	MetaRevID
)

var metaNames = [...]string{MetaID: "_id", MetaSequence: "_sequence", MetaRevID: "_rev"}

func (m MetaField) String() string { return metaNames[m] }

// QuantKind distinguishes ANY, EVERY and ANY AND EVERY.
type QuantKind uint8

const (
	QuantAny QuantKind = iota
	QuantEvery
	QuantAnyAndEvery
)

var quantNames = [...]string{QuantAny: "ANY", QuantEvery: "EVERY", QuantAnyAndEvery: "ANY AND EVERY"}

func (q QuantKind) String() string { return quantNames[q] }

// Literal is a constant value, possibly MISSING.
type Literal struct {
	Value value.Value
}

// Property reads a path from the document body.
type Property struct {
	Path path.Path
}

// PropertyOf reads a path from the result of another expression.
type PropertyOf struct {
	Expr Node
	Path path.Path
}

// Meta reads a document's id, sequence or revision id.
type Meta struct {
	Field MetaField
}

// Variable references the element bound by an enclosing quantifier. Depth
// is the frame index of the binding quantifier.
type Variable struct {
	Name  string
	Depth int
	Path  path.Path
}

// Parameter is a placeholder resolved from the run-time bindings. Positional
// parameters are named by their decimal position ("1", "2", ...).
type Parameter struct {
	Name string
}

// Unary is NOT or arithmetic negation.
type Unary struct {
	Op  Op
	Arg Node
}

// Binary is a comparison, arithmetic or LIKE operator.
type Binary struct {
	Op          Op
	Left, Right Node
}

// Logical is an n-ary AND or OR evaluated left to right with short-circuit.
type Logical struct {
	Op   Op
	Args []Node
}

// Is tests identity of values, treating MISSING and null as ordinary
// values. It always yields a boolean.
type Is struct {
	Left, Right Node
	Not         bool
}

// Between tests Low <= Arg <= High.
type Between struct {
	Arg, Low, High Node
	Not            bool
}

// In tests membership of Arg in the array List evaluates to.
type In struct {
	Arg, List Node
	Not       bool
}

// Match is a full-text search predicate. Target is either the indexed
// expression or a literal index name.
type Match struct {
	Target Node
	Query  Node
	// Slot is the position of this predicate in Query.Matches.
	Slot int
}

// Call invokes a scalar function.
type Call struct {
	Fn   *Func
	Args []Node
}

// Aggregate is a reducing function over the rows of a group. Its value is
// read from the group's accumulator by Slot.
type Aggregate struct {
	Fn   AggFunc
	Arg  Node // nil for count() of rows
	Slot int
}

// Quantifier is ANY / EVERY / ANY AND EVERY over an array.
type Quantifier struct {
	Kind   QuantKind
	Var    string
	Depth  int
	Source Node
	Pred   Node
}

// ArrayLit builds an array from its element expressions.
type ArrayLit struct {
	Items []Node
}

// ObjectLit builds an object from its member expressions.
type ObjectLit struct {
	Fields map[string]Node
}

func (*Literal) node()    {}
func (*Property) node()   {}
func (*PropertyOf) node() {}
func (*Meta) node()       {}
func (*Variable) node()   {}
func (*Parameter) node()  {}
func (*Unary) node()      {}
func (*Binary) node()     {}
func (*Logical) node()    {}
func (*Is) node()         {}
func (*Between) node()    {}
func (*In) node()         {}
func (*Match) node()      {}
func (*Call) node()       {}
func (*Aggregate) node()  {}
func (*Quantifier) node() {}
func (*ArrayLit) node()   {}
func (*ObjectLit) node()  {}

// Walk calls fn for n and, while fn returns true, for its descendants in
// depth-first order.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch t := n.(type) {
	case *PropertyOf:
		Walk(t.Expr, fn)
	case *Unary:
		Walk(t.Arg, fn)
	case *Binary:
		Walk(t.Left, fn)
		Walk(t.Right, fn)
	case *Logical:
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *Is:
		Walk(t.Left, fn)
		Walk(t.Right, fn)
	case *Between:
		Walk(t.Arg, fn)
		Walk(t.Low, fn)
		Walk(t.High, fn)
	case *In:
		Walk(t.Arg, fn)
		Walk(t.List, fn)
	case *Match:
		Walk(t.Target, fn)
		Walk(t.Query, fn)
	case *Call:
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *Aggregate:
		Walk(t.Arg, fn)
	case *Quantifier:
		Walk(t.Source, fn)
		Walk(t.Pred, fn)
	case *ArrayLit:
		for _, a := range t.Items {
			Walk(a, fn)
		}
	case *ObjectLit:
		for _, a := range t.Fields {
			Walk(a, fn)
		}
	}
}

// Contains reports whether any node in the tree satisfies pred.
func Contains(n Node, pred func(Node) bool) bool {
	found := false
	Walk(n, func(x Node) bool {
		if found {
			return false
		}
		if pred(x) {
			found = true
			return false
		}
		return true
	})
	return found
}

// IsConstant reports whether n can be evaluated without a document, a
// binding set or a group.
func IsConstant(n Node) bool {
	return !Contains(n, func(x Node) bool {
		switch x.(type) {
		case *Property, *PropertyOf, *Meta, *Variable, *Parameter, *Match, *Aggregate, *Quantifier:
			// PropertyOf and Quantifier may be constant, but folding them buys nothing.
			return true
		}
		return false
	})
}
