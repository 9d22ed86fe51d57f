package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Fold replaces constant subexpressions with literals.
func Fold(n Node) Node {
	if n == nil {
		return nil
	}
	if _, ok := n.(*Literal); !ok && IsConstant(n) {
		if v, err := EvalConstant(n); err == nil {
			return &Literal{Value: v}
		}
		return n
	}
	switch t := n.(type) {
	case *PropertyOf:
		t.Expr = Fold(t.Expr)
	case *Unary:
		t.Arg = Fold(t.Arg)
	case *Binary:
		t.Left, t.Right = Fold(t.Left), Fold(t.Right)
	case *Logical:
		for i := range t.Args {
			t.Args[i] = Fold(t.Args[i])
		}
	case *Is:
		t.Left, t.Right = Fold(t.Left), Fold(t.Right)
	case *Between:
		t.Arg, t.Low, t.High = Fold(t.Arg), Fold(t.Low), Fold(t.High)
	case *In:
		t.Arg, t.List = Fold(t.Arg), Fold(t.List)
	case *Match:
		t.Query = Fold(t.Query)
	case *Call:
		for i := range t.Args {
			t.Args[i] = Fold(t.Args[i])
		}
	case *Aggregate:
		t.Arg = Fold(t.Arg)
	case *Quantifier:
		t.Source, t.Pred = Fold(t.Source), Fold(t.Pred)
	case *ArrayLit:
		for i := range t.Items {
			t.Items[i] = Fold(t.Items[i])
		}
	case *ObjectLit:
		for k, e := range t.Fields {
			t.Fields[k] = Fold(e)
		}
	}
	return n
}

// Canonical renders n in a normalized array-form JSON. Two expressions
// compiled from different spellings of the same operation render the same,
// which is how query predicates are matched against index definitions.
func Canonical(n Node) string {
	var sb strings.Builder
	writeCanonical(&sb, n)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, n Node) {
	switch t := n.(type) {
	case nil:
		sb.WriteString("null")
	case *Literal:
		if t.Value.IsMissing() {
			sb.WriteString(`["MISSING"]`)
			return
		}
		if t.Value.Kind() == value.KindArray || t.Value.Kind() == value.KindObject {
			// Distinguish literal containers from operations.
			sb.WriteString(`["LITERAL",`)
			sb.WriteString(t.Value.String())
			sb.WriteByte(']')
			return
		}
		sb.WriteString(t.Value.String())
	case *Property:
		writeOp(sb, "."+t.Path.String())
		sb.WriteByte(']')
	case *PropertyOf:
		writeOp(sb, "_.")
		sb.WriteByte(',')
		writeCanonical(sb, t.Expr)
		sb.WriteByte(',')
		writeString(sb, t.Path.String())
		sb.WriteByte(']')
	case *Meta:
		writeOp(sb, "."+t.Field.String())
		sb.WriteByte(']')
	case *Variable:
		writeOp(sb, "?")
		sb.WriteByte(',')
		writeString(sb, t.Name)
		if len(t.Path) > 0 {
			sb.WriteByte(',')
			writeString(sb, t.Path.String())
		}
		sb.WriteByte(']')
	case *Parameter:
		writeOp(sb, "$")
		sb.WriteByte(',')
		writeString(sb, t.Name)
		sb.WriteByte(']')
	case *Unary:
		writeOp(sb, t.Op.String())
		writeArgs(sb, t.Arg)
	case *Binary:
		writeOp(sb, t.Op.String())
		writeArgs(sb, t.Left, t.Right)
	case *Logical:
		writeOp(sb, t.Op.String())
		writeArgs(sb, t.Args...)
	case *Is:
		if t.Not {
			writeOp(sb, "IS NOT")
		} else {
			writeOp(sb, "IS")
		}
		writeArgs(sb, t.Left, t.Right)
	case *Between:
		if t.Not {
			writeOp(sb, "NOT BETWEEN")
		} else {
			writeOp(sb, "BETWEEN")
		}
		writeArgs(sb, t.Arg, t.Low, t.High)
	case *In:
		if t.Not {
			writeOp(sb, "NOT IN")
		} else {
			writeOp(sb, "IN")
		}
		writeArgs(sb, t.Arg, t.List)
	case *Match:
		writeOp(sb, "MATCH")
		writeArgs(sb, t.Target, t.Query)
	case *Call:
		writeOp(sb, t.Fn.Name)
		writeArgs(sb, t.Args...)
	case *Aggregate:
		writeOp(sb, t.Fn.String())
		if t.Arg != nil {
			writeArgs(sb, t.Arg)
		} else {
			sb.WriteByte(']')
		}
	case *Quantifier:
		writeOp(sb, t.Kind.String())
		sb.WriteByte(',')
		writeString(sb, t.Var)
		writeArgs(sb, t.Source, t.Pred)
	case *ArrayLit:
		writeOp(sb, "[]")
		writeArgs(sb, t.Items...)
	case *ObjectLit:
		keys := make([]string, 0, len(t.Fields))
		for k := range t.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeString(sb, k)
			sb.WriteByte(':')
			writeCanonical(sb, t.Fields[k])
		}
		sb.WriteByte('}')
	}
}

func writeOp(sb *strings.Builder, op string) {
	sb.WriteByte('[')
	writeString(sb, op)
}

// writeArgs writes the remaining operands and closes the array.
func writeArgs(sb *strings.Builder, args ...Node) {
	for _, a := range args {
		sb.WriteByte(',')
		writeCanonical(sb, a)
	}
	sb.WriteByte(']')
}

func writeString(sb *strings.Builder, s string) {
	sb.WriteString(strconv.Quote(s))
}

// StaticKind returns the kind an expression always produces when its
// inputs are present, or KindMissing when that depends on the document.
func StaticKind(n Node) value.Kind {
	switch t := n.(type) {
	case *Literal:
		return t.Value.Kind()
	case *Meta:
		if t.Field == MetaSequence {
			return value.KindNumber
		}
		return value.KindString
	case *Unary:
		if t.Op == OpNot {
			return value.KindBool
		}
		return value.KindNumber
	case *Binary:
		switch t.Op {
		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			return value.KindNumber
		}
		return value.KindBool
	case *Logical, *Is, *Between, *In, *Match, *Quantifier:
		return value.KindBool
	case *Call:
		return t.Fn.Result
	case *Aggregate:
		switch t.Fn {
		case AggCount, AggSum, AggAvg:
			return value.KindNumber
		}
	case *ArrayLit:
		return value.KindArray
	case *ObjectLit:
		return value.KindObject
	}
	return value.KindMissing
}
