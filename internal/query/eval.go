package query

import (
	"errors"
	"fmt"
	"math"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

var (
	// ErrUnboundParameter is returned when an evaluated expression refers to
	// a parameter that has no value in the binding set.
	ErrUnboundParameter = errors.New("unbound query parameter")
	// ErrNoMatcher is returned when a MATCH predicate is evaluated without a
	// full-text index to answer it.
	ErrNoMatcher = errors.New("MATCH requires a full-text index")
)

// Document is the view of a stored document that expressions evaluate
// against.
type Document struct {
	ID       string
	Sequence uint64
	RevID    string
	Body     value.Value
}

// Env carries everything an expression may read during evaluation. An Env
// is used by a single goroutine.
type Env struct {
	Doc    *Document
	Params map[string]value.Value
	// Aggregates holds the results of the current group, indexed by
	// Aggregate.Slot.
	Aggregates []value.Value
	// Matcher answers MATCH predicates for the current document.
	Matcher func(m *Match, docID string) (bool, error)

	frames []value.Value
}

// Eval evaluates n in env. Type mismatches never fail; the only errors are
// unbound parameters and MATCH without a matcher.
func Eval(n Node, env *Env) (value.Value, error) {
	return env.eval(n)
}

// EvalConstant evaluates an expression that IsConstant.
func EvalConstant(n Node) (value.Value, error) {
	return (&Env{}).eval(n)
}

func (env *Env) eval(n Node) (value.Value, error) {
	switch t := n.(type) {
	case *Literal:
		return t.Value, nil

	case *Property:
		if env.Doc == nil {
			return value.Missing(), nil
		}
		return t.Path.Eval(env.Doc.Body), nil

	case *PropertyOf:
		v, err := env.eval(t.Expr)
		if err != nil {
			return v, err
		}
		return t.Path.Eval(v), nil

	case *Meta:
		if env.Doc == nil {
			return value.Missing(), nil
		}
		switch t.Field {
		case MetaID:
			return value.String(env.Doc.ID), nil
		case MetaSequence:
			return value.Number(float64(env.Doc.Sequence)), nil
		default:
			return value.String(env.Doc.RevID), nil
		}

	case *Variable:
		if t.Depth >= len(env.frames) {
			return value.Missing(), nil
		}
		return t.Path.Eval(env.frames[t.Depth]), nil

	case *Parameter:
		v, ok := env.Params[t.Name]
		if !ok {
			return value.Missing(), fmt.Errorf("%w: $%s", ErrUnboundParameter, t.Name)
		}
		return v, nil

	case *Unary:
		v, err := env.eval(t.Arg)
		if err != nil {
			return v, err
		}
		if t.Op == OpNot {
			return not3(v), nil
		}
		if v.Kind() != value.KindNumber {
			return propagate(v), nil
		}
		return value.Number(-v.AsNumber()), nil

	case *Binary:
		l, err := env.eval(t.Left)
		if err != nil {
			return l, err
		}
		r, err := env.eval(t.Right)
		if err != nil {
			return r, err
		}
		return binary(t.Op, l, r), nil

	case *Logical:
		return env.evalLogical(t)

	case *Is:
		l, err := env.eval(t.Left)
		if err != nil {
			return l, err
		}
		r, err := env.eval(t.Right)
		if err != nil {
			return r, err
		}
		return value.Bool(value.Equal(l, r) != t.Not), nil

	case *Between:
		v, err := env.eval(t.Arg)
		if err != nil {
			return v, err
		}
		lo, err := env.eval(t.Low)
		if err != nil {
			return lo, err
		}
		hi, err := env.eval(t.High)
		if err != nil {
			return hi, err
		}
		res := and3(compare(OpGe, v, lo), compare(OpLe, v, hi))
		if t.Not {
			res = not3(res)
		}
		return res, nil

	case *In:
		return env.evalIn(t)

	case *Match:
		if env.Matcher == nil || env.Doc == nil {
			return value.Missing(), ErrNoMatcher
		}
		ok, err := env.Matcher(t, env.Doc.ID)
		if err != nil {
			return value.Missing(), err
		}
		return value.Bool(ok), nil

	case *Call:
		args := make([]value.Value, len(t.Args))
		for i, a := range t.Args {
			v, err := env.eval(a)
			if err != nil {
				return v, err
			}
			args[i] = v
		}
		if !t.Fn.Raw {
			for _, a := range args {
				if a.IsMissing() {
					return a, nil
				}
			}
			for _, a := range args {
				if a.IsNull() {
					return a, nil
				}
			}
		}
		return t.Fn.Eval(args), nil

	case *Aggregate:
		if t.Slot >= len(env.Aggregates) {
			return value.Missing(), nil
		}
		return env.Aggregates[t.Slot], nil

	case *Quantifier:
		return env.evalQuantifier(t)

	case *ArrayLit:
		items := make([]value.Value, len(t.Items))
		for i, e := range t.Items {
			v, err := env.eval(e)
			if err != nil {
				return v, err
			}
			if v.IsMissing() {
				v = value.Null()
			}
			items[i] = v
		}
		return value.Array(items...), nil

	case *ObjectLit:
		fields := make(map[string]value.Value, len(t.Fields))
		for k, e := range t.Fields {
			v, err := env.eval(e)
			if err != nil {
				return v, err
			}
			fields[k] = v
		}
		return value.Object(fields), nil
	}
	return value.Missing(), fmt.Errorf("unhandled expression node %T", n)
}

func (env *Env) evalLogical(t *Logical) (value.Value, error) {
	var sawMissing, sawNull bool
	for _, a := range t.Args {
		v, err := env.eval(a)
		if err != nil {
			return v, err
		}
		switch {
		case v.IsMissing():
			sawMissing = true
		case v.IsNull():
			sawNull = true
		case v.Truthy() == (t.Op == OpOr):
			return value.Bool(t.Op == OpOr), nil
		}
	}
	switch {
	case sawMissing:
		return value.Missing(), nil
	case sawNull:
		return value.Null(), nil
	}
	return value.Bool(t.Op == OpAnd), nil
}

func (env *Env) evalIn(t *In) (value.Value, error) {
	v, err := env.eval(t.Arg)
	if err != nil {
		return v, err
	}
	list, err := env.eval(t.List)
	if err != nil {
		return list, err
	}
	switch {
	case v.IsMissing() || list.IsMissing():
		return value.Missing(), nil
	case v.IsNull() || list.Kind() != value.KindArray:
		return value.Null(), nil
	}
	found := false
	for _, item := range list.Items() {
		if value.Equal(v, item) {
			found = true
			break
		}
	}
	return value.Bool(found != t.Not), nil
}

func (env *Env) evalQuantifier(t *Quantifier) (value.Value, error) {
	src, err := env.eval(t.Source)
	if err != nil {
		return src, err
	}
	items := src.Items()
	if t.Kind == QuantAnyAndEvery && len(items) == 0 {
		return value.Bool(false), nil
	}

	env.frames = append(env.frames[:t.Depth], value.Missing())
	defer func() { env.frames = env.frames[:t.Depth] }()

	for _, item := range items {
		env.frames[t.Depth] = item
		v, err := env.eval(t.Pred)
		if err != nil {
			return v, err
		}
		if t.Kind == QuantAny {
			if v.Truthy() {
				return value.Bool(true), nil
			}
		} else if !v.Truthy() {
			return value.Bool(false), nil
		}
	}
	return value.Bool(t.Kind != QuantAny), nil
}

// binary applies a comparison, arithmetic or LIKE operator.
func binary(op Op, l, r value.Value) value.Value {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return compare(op, l, r)
	case OpLike:
		return like(l, r)
	case OpNotLike:
		return not3(like(l, r))
	}
	if l.IsMissing() || r.IsMissing() {
		return value.Missing()
	}
	if l.Kind() != value.KindNumber || r.Kind() != value.KindNumber {
		return value.Null()
	}
	a, b := l.AsNumber(), r.AsNumber()
	switch op {
	case OpAdd:
		return value.Number(a + b)
	case OpSub:
		return value.Number(a - b)
	case OpMul:
		return value.Number(a * b)
	case OpDiv:
		if b == 0 {
			return value.Null()
		}
		return value.Number(a / b)
	default:
		if b == 0 {
			return value.Null()
		}
		return value.Number(math.Mod(a, b))
	}
}

// compare implements the comparison operators. A MISSING operand yields
// MISSING, a null operand yields null, and operands of different kinds are
// unequal and unordered: every operator but != yields false for them.
func compare(op Op, l, r value.Value) value.Value {
	if l.IsMissing() || r.IsMissing() {
		return value.Missing()
	}
	if l.IsNull() || r.IsNull() {
		return value.Null()
	}
	if l.Kind() != r.Kind() {
		return value.Bool(op == OpNe)
	}
	c := value.Collate(l, r)
	switch op {
	case OpEq:
		return value.Bool(c == 0)
	case OpNe:
		return value.Bool(c != 0)
	case OpLt:
		return value.Bool(c < 0)
	case OpLe:
		return value.Bool(c <= 0)
	case OpGt:
		return value.Bool(c > 0)
	default:
		return value.Bool(c >= 0)
	}
}

func like(l, r value.Value) value.Value {
	if l.IsMissing() || r.IsMissing() {
		return value.Missing()
	}
	if l.IsNull() || r.IsNull() {
		return value.Null()
	}
	if l.Kind() != value.KindString || r.Kind() != value.KindString {
		return value.Bool(false)
	}
	return value.Bool(likeMatch(l.AsString(), r.AsString()))
}

func not3(v value.Value) value.Value {
	if v.IsMissing() || v.IsNull() {
		return v
	}
	return value.Bool(!v.Truthy())
}

func and3(a, b value.Value) value.Value {
	switch {
	case (!a.IsMissing() && !a.IsNull() && !a.Truthy()) || (!b.IsMissing() && !b.IsNull() && !b.Truthy()):
		return value.Bool(false)
	case a.IsMissing() || b.IsMissing():
		return value.Missing()
	case a.IsNull() || b.IsNull():
		return value.Null()
	}
	return value.Bool(true)
}

// propagate maps MISSING to MISSING and anything else to null.
func propagate(v value.Value) value.Value {
	if v.IsMissing() {
		return v
	}
	return value.Null()
}
