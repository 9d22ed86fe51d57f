package query

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Func is a scalar function. Unless Raw is set, a MISSING argument makes
// the result MISSING and a null argument makes it null before Eval runs.
type Func struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	// Result is the kind the function always returns for non-MISSING,
	// non-null input, or KindMissing when it depends on the arguments.
	Result value.Kind
	Raw    bool
	Eval   func(args []value.Value) value.Value
}

// AggFunc identifies an aggregate function.
type AggFunc uint8

const (
	AggCount AggFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

var aggNames = [...]string{AggCount: "count()", AggSum: "sum()", AggAvg: "avg()", AggMin: "min()", AggMax: "max()"}

func (a AggFunc) String() string { return aggNames[a] }

var aggregates = map[string]AggFunc{
	"count()": AggCount,
	"sum()":   AggSum,
	"avg()":   AggAvg,
	"min()":   AggMin,
	"max()":   AggMax,
}

// functions is consulted only while compiling; evaluation calls Func.Eval
// through the compiled Call node.
var functions = map[string]*Func{}

func register(f *Func) { functions[f.Name] = f }

// LookupFunc returns the scalar function registered under name, which
// includes the trailing "()". Lookup is case-insensitive.
func LookupFunc(name string) (*Func, bool) {
	f, ok := functions[strings.ToLower(name)]
	return f, ok
}

func init() {
	register(&Func{Name: "length()", MinArgs: 1, MaxArgs: 1, Result: value.KindNumber, Eval: fnLength})
	register(&Func{Name: "array_count()", MinArgs: 1, MaxArgs: 1, Result: value.KindNumber, Eval: fnArrayCount})
	register(&Func{Name: "array_length()", MinArgs: 1, MaxArgs: 1, Result: value.KindNumber, Eval: arrayFn(func(a []value.Value) value.Value {
		return value.Int(len(a))
	})})
	register(&Func{Name: "array_contains()", MinArgs: 2, MaxArgs: 2, Result: value.KindBool, Raw: true, Eval: fnArrayContains})
	register(&Func{Name: "array_sum()", MinArgs: 1, MaxArgs: 1, Result: value.KindNumber, Eval: arrayFn(func(a []value.Value) value.Value {
		sum := 0.0
		for _, v := range a {
			if v.Kind() == value.KindNumber {
				sum += v.AsNumber()
			}
		}
		return value.Number(sum)
	})})
	register(&Func{Name: "array_avg()", MinArgs: 1, MaxArgs: 1, Eval: arrayFn(func(a []value.Value) value.Value {
		sum, n := 0.0, 0
		for _, v := range a {
			if v.Kind() == value.KindNumber {
				sum += v.AsNumber()
				n++
			}
		}
		if n == 0 {
			return value.Null()
		}
		return value.Number(sum / float64(n))
	})})
	register(&Func{Name: "array_min()", MinArgs: 1, MaxArgs: 1, Eval: arrayFn(func(a []value.Value) value.Value {
		return extreme(a, -1)
	})})
	register(&Func{Name: "array_max()", MinArgs: 1, MaxArgs: 1, Eval: arrayFn(func(a []value.Value) value.Value {
		return extreme(a, 1)
	})})

	register(&Func{Name: "lower()", MinArgs: 1, MaxArgs: 1, Result: value.KindString, Eval: stringFn(strings.ToLower)})
	register(&Func{Name: "upper()", MinArgs: 1, MaxArgs: 1, Result: value.KindString, Eval: stringFn(strings.ToUpper)})
	register(&Func{Name: "trim()", MinArgs: 1, MaxArgs: 1, Result: value.KindString, Eval: stringFn(strings.TrimSpace)})
	register(&Func{Name: "ltrim()", MinArgs: 1, MaxArgs: 1, Result: value.KindString, Eval: stringFn(func(s string) string {
		return strings.TrimLeft(s, " \t\r\n")
	})})
	register(&Func{Name: "rtrim()", MinArgs: 1, MaxArgs: 1, Result: value.KindString, Eval: stringFn(func(s string) string {
		return strings.TrimRight(s, " \t\r\n")
	})})
	register(&Func{Name: "contains()", MinArgs: 2, MaxArgs: 2, Result: value.KindBool, Eval: func(args []value.Value) value.Value {
		if args[0].Kind() != value.KindString || args[1].Kind() != value.KindString {
			return value.Null()
		}
		return value.Bool(strings.Contains(args[0].AsString(), args[1].AsString()))
	}})

	register(&Func{Name: "abs()", MinArgs: 1, MaxArgs: 1, Result: value.KindNumber, Eval: mathFn(math.Abs)})
	register(&Func{Name: "ceil()", MinArgs: 1, MaxArgs: 1, Result: value.KindNumber, Eval: mathFn(math.Ceil)})
	register(&Func{Name: "floor()", MinArgs: 1, MaxArgs: 1, Result: value.KindNumber, Eval: mathFn(math.Floor)})
	register(&Func{Name: "sqrt()", MinArgs: 1, MaxArgs: 1, Result: value.KindNumber, Eval: mathFn(math.Sqrt)})
	register(&Func{Name: "round()", MinArgs: 1, MaxArgs: 2, Result: value.KindNumber, Eval: fnRound})
	register(&Func{Name: "power()", MinArgs: 2, MaxArgs: 2, Result: value.KindNumber, Eval: func(args []value.Value) value.Value {
		if args[0].Kind() != value.KindNumber || args[1].Kind() != value.KindNumber {
			return value.Null()
		}
		return value.Number(math.Pow(args[0].AsNumber(), args[1].AsNumber()))
	}})

	for name, k := range map[string]value.Kind{
		"is_string()":  value.KindString,
		"is_number()":  value.KindNumber,
		"is_array()":   value.KindArray,
		"is_object()":  value.KindObject,
		"is_boolean()": value.KindBool,
	} {
		k := k
		register(&Func{Name: name, MinArgs: 1, MaxArgs: 1, Result: value.KindBool, Eval: func(args []value.Value) value.Value {
			return value.Bool(args[0].Kind() == k)
		}})
	}
	register(&Func{Name: "type()", MinArgs: 1, MaxArgs: 1, Result: value.KindString, Raw: true, Eval: func(args []value.Value) value.Value {
		return value.String(args[0].Kind().String())
	}})
	register(&Func{Name: "ifmissing()", MinArgs: 2, MaxArgs: -1, Raw: true, Eval: func(args []value.Value) value.Value {
		for _, a := range args {
			if !a.IsMissing() {
				return a
			}
		}
		return value.Missing()
	}})
	register(&Func{Name: "ifnull()", MinArgs: 2, MaxArgs: -1, Raw: true, Eval: func(args []value.Value) value.Value {
		for _, a := range args {
			if !a.IsMissing() && !a.IsNull() {
				return a
			}
		}
		return value.Null()
	}})
}

func fnLength(args []value.Value) value.Value {
	if args[0].Kind() != value.KindString {
		return value.Null()
	}
	return value.Int(utf8.RuneCountInString(args[0].AsString()))
}

// fnArrayCount counts the elements that are neither null nor MISSING.
func fnArrayCount(args []value.Value) value.Value {
	if args[0].Kind() != value.KindArray {
		return value.Null()
	}
	n := 0
	for _, v := range args[0].Items() {
		if !v.IsNull() && !v.IsMissing() {
			n++
		}
	}
	return value.Int(n)
}

func fnArrayContains(args []value.Value) value.Value {
	if args[0].IsMissing() {
		return value.Missing()
	}
	if args[0].Kind() != value.KindArray {
		return value.Null()
	}
	for _, v := range args[0].Items() {
		if value.Equal(v, args[1]) {
			return value.Bool(true)
		}
	}
	return value.Bool(false)
}

func fnRound(args []value.Value) value.Value {
	if args[0].Kind() != value.KindNumber {
		return value.Null()
	}
	digits := 0.0
	if len(args) == 2 {
		if args[1].Kind() != value.KindNumber {
			return value.Null()
		}
		digits = math.Trunc(args[1].AsNumber())
	}
	scale := math.Pow(10, digits)
	return value.Number(math.Round(args[0].AsNumber()*scale) / scale)
}

func arrayFn(fn func([]value.Value) value.Value) func([]value.Value) value.Value {
	return func(args []value.Value) value.Value {
		if args[0].Kind() != value.KindArray {
			return value.Null()
		}
		return fn(args[0].Items())
	}
}

func stringFn(fn func(string) string) func([]value.Value) value.Value {
	return func(args []value.Value) value.Value {
		if args[0].Kind() != value.KindString {
			return value.Null()
		}
		return value.String(fn(args[0].AsString()))
	}
}

func mathFn(fn func(float64) float64) func([]value.Value) value.Value {
	return func(args []value.Value) value.Value {
		if args[0].Kind() != value.KindNumber {
			return value.Null()
		}
		return value.Number(fn(args[0].AsNumber()))
	}
}

// extreme returns the smallest (dir < 0) or largest (dir > 0) non-null
// element, or null when there is none.
func extreme(items []value.Value, dir int) value.Value {
	best := value.Null()
	for _, v := range items {
		if v.IsNull() || v.IsMissing() {
			continue
		}
		if best.IsNull() || value.Collate(v, best)*dir > 0 {
			best = v
		}
	}
	return best
}
