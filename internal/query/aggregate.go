package query

import "github.com/kartikbazzad/bunbase/bunquery/value"

// Accumulator folds the values of one aggregate over the rows of a group.
// A fresh Accumulator is used for every group.
type Accumulator struct {
	fn    AggFunc
	count int
	sum   float64
	best  value.Value
}

func NewAccumulator(fn AggFunc) *Accumulator {
	return &Accumulator{fn: fn}
}

// Add folds v into the accumulator. null and MISSING are ignored, so
// count(x) counts only rows where x has a value.
func (a *Accumulator) Add(v value.Value) {
	if v.IsMissing() || v.IsNull() {
		return
	}
	switch a.fn {
	case AggCount:
		a.count++
	case AggSum, AggAvg:
		if v.Kind() == value.KindNumber {
			a.sum += v.AsNumber()
			a.count++
		}
	case AggMin:
		if a.count == 0 || value.Collate(v, a.best) < 0 {
			a.best = v
		}
		a.count++
	case AggMax:
		if a.count == 0 || value.Collate(v, a.best) > 0 {
			a.best = v
		}
		a.count++
	}
}

// Result returns the aggregate value. Over no input, count() and sum()
// yield 0 while avg(), min() and max() yield null.
func (a *Accumulator) Result() value.Value {
	switch a.fn {
	case AggCount:
		return value.Int(a.count)
	case AggSum:
		return value.Number(a.sum)
	case AggAvg:
		if a.count == 0 {
			return value.Null()
		}
		return value.Number(a.sum / float64(a.count))
	}
	if a.count == 0 {
		return value.Null()
	}
	return a.best
}
