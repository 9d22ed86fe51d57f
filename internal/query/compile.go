package query

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kartikbazzad/bunbase/bunquery/internal/path"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// CompileError is a compile-time rejection of a query or index expression.
type CompileError struct {
	Pos string // location within the query, e.g. WHERE[2][1]
	Msg string
}

func (e *CompileError) Error() string {
	if e.Pos == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (at %s)", e.Msg, e.Pos)
}

// Column is one projected result column.
type Column struct {
	Expr  Node
	Title string
}

// Order is one ORDER_BY key.
type Order struct {
	Expr Node
	Desc bool
}

// Query is a compiled query. It is immutable and may be run any number of
// times with different bindings.
type Query struct {
	What     []Column
	Where    Node
	GroupBy  []Node
	Having   Node
	OrderBy  []Order
	Distinct bool

	// Aggregates lists every aggregate call, indexed by Aggregate.Slot.
	Aggregates []*Aggregate
	// Matches lists every MATCH predicate, indexed by Match.Slot.
	Matches []*Match
	// Params lists the distinct parameter names referenced, sorted.
	Params []string
}

func (q *Query) fold() {
	for i := range q.What {
		q.What[i].Expr = Fold(q.What[i].Expr)
	}
	if q.Where != nil {
		q.Where = Fold(q.Where)
	}
	for i := range q.GroupBy {
		q.GroupBy[i] = Fold(q.GroupBy[i])
	}
	if q.Having != nil {
		q.Having = Fold(q.Having)
	}
	for i := range q.OrderBy {
		q.OrderBy[i].Expr = Fold(q.OrderBy[i].Expr)
	}
}

// IsAggregate reports whether rows are reduced by grouping or aggregates.
func (q *Query) IsAggregate() bool {
	return len(q.GroupBy) > 0 || len(q.Aggregates) > 0
}

const querySchemaJSON = `{
	"type": "object",
	"properties": {
		"WHAT":     {"type": "array", "minItems": 1},
		"WHERE":    {"type": ["array", "boolean"]},
		"GROUP_BY": {"type": "array", "minItems": 1},
		"HAVING":   {"type": ["array", "boolean"]},
		"ORDER_BY": {"type": "array", "minItems": 1},
		"DISTINCT": {"type": "boolean"}
	},
	"additionalProperties": false
}`

var querySchema = mustSchema(querySchemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

// Compile compiles a JSON query: either a query object or a bare WHERE
// expression in array form.
func Compile(data []byte) (*Query, error) {
	var x interface{}
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, &CompileError{Msg: "query is not valid JSON: " + err.Error()}
	}
	return CompileValue(x)
}

// CompileValue compiles an already-decoded JSON query.
func CompileValue(x interface{}) (*Query, error) {
	c := newCompiler()
	switch t := x.(type) {
	case []interface{}:
		c.push("WHERE")
		where, err := c.condition(t)
		if err != nil {
			return nil, err
		}
		c.pop()
		c.q.Where = where
	case map[string]interface{}:
		if err := c.object(t); err != nil {
			return nil, err
		}
	default:
		return nil, &CompileError{Msg: "query must be a JSON object or array"}
	}
	if len(c.q.What) == 0 {
		c.q.What = []Column{{Expr: &Meta{Field: MetaID}, Title: "_id"}}
	}
	c.q.fold()
	c.q.Params = make([]string, 0, len(c.params))
	for p := range c.params {
		c.q.Params = append(c.q.Params, p)
	}
	sort.Strings(c.q.Params)
	return c.q, nil
}

// CompileIndexExpressions compiles the JSON array of expressions defining
// an index. Expressions are constant-folded and may not reference
// parameters, aggregates or MATCH.
func CompileIndexExpressions(data []byte) ([]Node, error) {
	var x interface{}
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, &CompileError{Msg: "index expressions are not valid JSON: " + err.Error()}
	}
	items, ok := x.([]interface{})
	if !ok || len(items) == 0 {
		return nil, &CompileError{Msg: "index expressions must be a non-empty array"}
	}
	c := newCompiler()
	c.allowAggregates = false
	nodes := make([]Node, 0, len(items))
	for i, item := range items {
		c.push(fmt.Sprintf("[%d]", i))
		n, err := c.item(item)
		if err != nil {
			return nil, err
		}
		if len(c.params) > 0 {
			return nil, c.errorf("index expressions may not use parameters")
		}
		c.pop()
		nodes = append(nodes, Fold(n))
	}
	return nodes, nil
}

type compiler struct {
	q               *Query
	pos             []string
	scope           []string
	params          map[string]bool
	allowAggregates bool
}

func newCompiler() *compiler {
	return &compiler{q: &Query{}, params: map[string]bool{}}
}

func (c *compiler) push(p string) { c.pos = append(c.pos, p) }
func (c *compiler) pop()          { c.pos = c.pos[:len(c.pos)-1] }

func (c *compiler) errorf(format string, args ...interface{}) error {
	return &CompileError{Pos: strings.Join(c.pos, ""), Msg: fmt.Sprintf(format, args...)}
}

func (c *compiler) object(obj map[string]interface{}) error {
	result, err := querySchema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return &CompileError{Msg: "query validation error: " + err.Error()}
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return &CompileError{Msg: "invalid query object: " + strings.Join(errs, "; ")}
	}

	if w, ok := obj["WHERE"]; ok {
		c.push("WHERE")
		where, err := c.condition(w)
		if err != nil {
			return err
		}
		c.pop()
		c.q.Where = where
	}

	if g, ok := obj["GROUP_BY"]; ok {
		for i, item := range g.([]interface{}) {
			c.push(fmt.Sprintf("GROUP_BY[%d]", i))
			n, err := c.item(item)
			if err != nil {
				return err
			}
			c.pop()
			c.q.GroupBy = append(c.q.GroupBy, n)
		}
	}

	c.allowAggregates = true
	defer func() { c.allowAggregates = false }()

	if w, ok := obj["WHAT"]; ok {
		titles := map[string]int{}
		for i, item := range w.([]interface{}) {
			c.push(fmt.Sprintf("WHAT[%d]", i))
			col, err := c.column(item, i)
			if err != nil {
				return err
			}
			c.pop()
			if n := titles[col.Title]; n > 0 {
				titles[col.Title] = n + 1
				col.Title = fmt.Sprintf("%s #%d", col.Title, n+1)
			} else {
				titles[col.Title] = 1
			}
			c.q.What = append(c.q.What, col)
		}
	}

	if h, ok := obj["HAVING"]; ok {
		if len(c.q.GroupBy) == 0 {
			return &CompileError{Pos: "HAVING", Msg: "HAVING requires GROUP_BY"}
		}
		c.push("HAVING")
		n, err := c.expr(h)
		if err != nil {
			return err
		}
		c.pop()
		c.q.Having = n
	}

	if o, ok := obj["ORDER_BY"]; ok {
		for i, item := range o.([]interface{}) {
			c.push(fmt.Sprintf("ORDER_BY[%d]", i))
			ord, err := c.order(item)
			if err != nil {
				return err
			}
			c.pop()
			c.q.OrderBy = append(c.q.OrderBy, ord)
		}
	}

	if d, ok := obj["DISTINCT"]; ok {
		c.q.Distinct = d.(bool)
	}
	return nil
}

// condition compiles a WHERE clause. MATCH is accepted only here: as the
// whole clause or as a conjunct of a top-level AND.
func (c *compiler) condition(x interface{}) (Node, error) {
	arr, ok := x.([]interface{})
	if !ok || len(arr) == 0 {
		return c.expr(x)
	}
	op, _ := arr[0].(string)
	switch strings.ToUpper(op) {
	case "AND":
		if len(arr) < 3 {
			return nil, c.errorf("AND takes at least 2 operands, got %d", len(arr)-1)
		}
		and := &Logical{Op: OpAnd}
		for i, a := range arr[1:] {
			c.push(fmt.Sprintf("[%d]", i+1))
			n, err := c.condition(a)
			if err != nil {
				return nil, err
			}
			c.pop()
			and.Args = append(and.Args, n)
		}
		return and, nil
	case "MATCH":
		return c.match(arr[1:])
	}
	return c.expr(x)
}

func (c *compiler) match(args []interface{}) (Node, error) {
	if len(args) != 2 {
		return nil, c.errorf("MATCH takes 2 operands, got %d", len(args))
	}
	var target Node
	if name, ok := args[0].(string); ok && !strings.HasPrefix(name, ".") {
		target = &Literal{Value: value.String(name)}
	} else {
		c.push("[1]")
		n, err := c.item(args[0])
		if err != nil {
			return nil, err
		}
		c.pop()
		target = n
	}
	c.push("[2]")
	q, err := c.expr(args[1])
	if err != nil {
		return nil, err
	}
	c.pop()
	m := &Match{Target: target, Query: q, Slot: len(c.q.Matches)}
	c.q.Matches = append(c.q.Matches, m)
	return m, nil
}

// item compiles an expression in a list position where a bare string
// beginning with '.' names a property.
func (c *compiler) item(x interface{}) (Node, error) {
	if s, ok := x.(string); ok && strings.HasPrefix(s, ".") {
		return c.property(s, nil)
	}
	return c.expr(x)
}

func (c *compiler) column(x interface{}, i int) (Column, error) {
	if arr, ok := x.([]interface{}); ok && len(arr) > 0 {
		if op, _ := arr[0].(string); strings.EqualFold(op, "AS") {
			if len(arr) != 3 {
				return Column{}, c.errorf("AS takes 2 operands, got %d", len(arr)-1)
			}
			alias, ok := arr[2].(string)
			if !ok || alias == "" {
				return Column{}, c.errorf("AS alias must be a non-empty string")
			}
			n, err := c.item(arr[1])
			if err != nil {
				return Column{}, err
			}
			return Column{Expr: n, Title: alias}, nil
		}
	}
	n, err := c.item(x)
	if err != nil {
		return Column{}, err
	}
	return Column{Expr: n, Title: columnTitle(n, i)}, nil
}

func columnTitle(n Node, i int) string {
	switch t := n.(type) {
	case *Property:
		return t.Path.Last()
	case *Meta:
		return t.Field.String()
	case *Variable:
		if last := t.Path.Last(); last != "" {
			return last
		}
		return t.Name
	}
	return "$" + strconv.Itoa(i+1)
}

func (c *compiler) order(x interface{}) (Order, error) {
	arr, ok := x.([]interface{})
	if !ok || len(arr) == 0 {
		n, err := c.item(x)
		return Order{Expr: n}, err
	}
	if op, ok := arr[0].(string); ok {
		switch strings.ToUpper(op) {
		case "ASC", "DESC":
			if len(arr) != 2 {
				return Order{}, c.errorf("%s takes 1 operand, got %d", strings.ToUpper(op), len(arr)-1)
			}
			n, err := c.item(arr[1])
			return Order{Expr: n, Desc: strings.EqualFold(op, "DESC")}, err
		}
		if len(arr) == 2 && strings.HasPrefix(op, ".") {
			if dir, ok := direction(arr[1]); ok {
				n, err := c.item(op)
				return Order{Expr: n, Desc: dir}, err
			}
		}
		n, err := c.expr(arr)
		return Order{Expr: n}, err
	}
	// [expr] or [expr, "DESC"]
	switch len(arr) {
	case 1:
		n, err := c.item(arr[0])
		return Order{Expr: n}, err
	case 2:
		if dir, ok := direction(arr[1]); ok {
			n, err := c.item(arr[0])
			return Order{Expr: n, Desc: dir}, err
		}
	}
	return Order{}, c.errorf("invalid ORDER_BY item")
}

func direction(x interface{}) (desc bool, ok bool) {
	s, isStr := x.(string)
	if !isStr {
		return false, false
	}
	switch strings.ToUpper(s) {
	case "ASC":
		return false, true
	case "DESC":
		return true, true
	}
	return false, false
}

// expr compiles an array-form expression or a JSON literal.
func (c *compiler) expr(x interface{}) (Node, error) {
	switch t := x.(type) {
	case nil, bool, float64, string:
		v, err := value.FromAny(t)
		if err != nil {
			return nil, c.errorf("%v", err)
		}
		return &Literal{Value: v}, nil
	case map[string]interface{}:
		obj := &ObjectLit{Fields: make(map[string]Node, len(t))}
		for k, e := range t {
			c.push("." + k)
			n, err := c.expr(e)
			if err != nil {
				return nil, err
			}
			c.pop()
			obj.Fields[k] = n
		}
		return obj, nil
	case []interface{}:
		return c.operation(t)
	}
	return nil, c.errorf("unsupported JSON value %T", x)
}

func (c *compiler) operation(arr []interface{}) (Node, error) {
	if len(arr) == 0 {
		return nil, c.errorf("empty array is not an expression")
	}
	op, ok := arr[0].(string)
	if !ok {
		return nil, c.errorf("operation must be a string, got %s", jsonType(arr[0]))
	}
	args := arr[1:]

	switch {
	case op == ".":
		return c.property("", args)
	case strings.HasPrefix(op, "."):
		return c.property(op, args)
	case op == "$":
		if len(args) != 1 {
			return nil, c.errorf("$ takes 1 operand, got %d", len(args))
		}
		return c.parameter(args[0])
	case strings.HasPrefix(op, "$"):
		if len(args) != 0 {
			return nil, c.errorf("%s takes no operands", op)
		}
		return c.parameter(op[1:])
	case op == "?":
		if len(args) == 0 {
			return nil, c.errorf("? takes a variable name")
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, c.errorf("variable name must be a string")
		}
		return c.variable(name, args[1:])
	case strings.HasPrefix(op, "?"):
		return c.variable(op[1:], args)
	case op == "_.":
		return c.propertyOf(args)
	case op == "[]":
		lit := &ArrayLit{}
		for i, a := range args {
			c.push(fmt.Sprintf("[%d]", i+1))
			n, err := c.expr(a)
			if err != nil {
				return nil, err
			}
			c.pop()
			lit.Items = append(lit.Items, n)
		}
		return lit, nil
	case strings.HasSuffix(op, "()"):
		return c.call(op, args)
	}

	upper := strings.ToUpper(op)
	switch upper {
	case "MISSING":
		if len(args) != 0 {
			return nil, c.errorf("MISSING takes no operands")
		}
		return &Literal{Value: value.Missing()}, nil
	case "AND", "OR":
		if len(args) < 2 {
			return nil, c.errorf("%s takes at least 2 operands, got %d", upper, len(args))
		}
		nodes, err := c.operands(args)
		if err != nil {
			return nil, err
		}
		if upper == "AND" {
			return &Logical{Op: OpAnd, Args: nodes}, nil
		}
		return &Logical{Op: OpOr, Args: nodes}, nil
	case "NOT":
		nodes, err := c.fixed(upper, args, 1)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNot, Arg: nodes[0]}, nil
	case "=", "==", "!=", "<>", "<", "<=", ">", ">=", "+", "*", "/", "%", "LIKE", "NOT LIKE":
		nodes, err := c.fixed(upper, args, 2)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: binaryOps[upper], Left: nodes[0], Right: nodes[1]}, nil
	case "-":
		if len(args) == 1 {
			nodes, err := c.operands(args)
			if err != nil {
				return nil, err
			}
			return &Unary{Op: OpNeg, Arg: nodes[0]}, nil
		}
		nodes, err := c.fixed(upper, args, 2)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: OpSub, Left: nodes[0], Right: nodes[1]}, nil
	case "IS", "IS NOT":
		nodes, err := c.fixed(upper, args, 2)
		if err != nil {
			return nil, err
		}
		return &Is{Left: nodes[0], Right: nodes[1], Not: upper == "IS NOT"}, nil
	case "BETWEEN", "NOT BETWEEN":
		nodes, err := c.fixed(upper, args, 3)
		if err != nil {
			return nil, err
		}
		return &Between{Arg: nodes[0], Low: nodes[1], High: nodes[2], Not: upper == "NOT BETWEEN"}, nil
	case "IN", "NOT IN":
		nodes, err := c.fixed(upper, args, 2)
		if err != nil {
			return nil, err
		}
		return &In{Arg: nodes[0], List: nodes[1], Not: upper == "NOT IN"}, nil
	case "ANY", "EVERY", "ANY AND EVERY":
		return c.quantifier(upper, args)
	case "MATCH":
		return nil, c.errorf("MATCH can only appear at top level of WHERE or within a top-level AND")
	case "ASC", "DESC":
		return nil, c.errorf("%s is only allowed in ORDER_BY", upper)
	case "AS":
		return nil, c.errorf("AS is only allowed in WHAT")
	}
	return nil, c.errorf("unknown operator %q", op)
}

var binaryOps = map[string]Op{
	"=": OpEq, "==": OpEq, "!=": OpNe, "<>": OpNe,
	"<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
	"+": OpAdd, "*": OpMul, "/": OpDiv, "%": OpMod,
	"LIKE": OpLike, "NOT LIKE": OpNotLike,
}

func (c *compiler) fixed(op string, args []interface{}, n int) ([]Node, error) {
	if len(args) != n {
		return nil, c.errorf("%s takes %d operand(s), got %d", op, n, len(args))
	}
	return c.operands(args)
}

func (c *compiler) operands(args []interface{}) ([]Node, error) {
	nodes := make([]Node, len(args))
	for i, a := range args {
		c.push(fmt.Sprintf("[%d]", i+1))
		n, err := c.expr(a)
		if err != nil {
			return nil, err
		}
		c.pop()
		nodes[i] = n
	}
	return nodes, nil
}

// property compiles a document path from an optional dotted prefix and
// further segments (strings are keys, [n] or n are indexes).
func (c *compiler) property(prefix string, segs []interface{}) (Node, error) {
	var p path.Path
	if prefix != "" && prefix != "." {
		parsed, err := path.Parse(prefix)
		if err != nil {
			return nil, c.errorf("%v", err)
		}
		p = parsed
	}
	rest, err := c.segments(segs)
	if err != nil {
		return nil, err
	}
	p = append(p, rest...)
	if len(p) == 0 {
		return nil, c.errorf("property path is empty")
	}
	if len(p) == 1 && !p[0].IsIndex {
		switch p[0].Key {
		case "_id":
			return &Meta{Field: MetaID}, nil
		case "_sequence":
			return &Meta{Field: MetaSequence}, nil
		case "_rev":
			return &Meta{Field: MetaRevID}, nil
		}
	}
	return &Property{Path: p}, nil
}

func (c *compiler) segments(segs []interface{}) (path.Path, error) {
	var p path.Path
	for _, s := range segs {
		switch t := s.(type) {
		case string:
			if t == "" {
				return nil, c.errorf("empty property name")
			}
			p = append(p, path.Key(t))
		case float64:
			i, err := intValue(t)
			if err != nil {
				return nil, c.errorf("%v", err)
			}
			p = append(p, path.Index(i))
		case []interface{}:
			if len(t) != 1 {
				return nil, c.errorf("array index segment must be [n]")
			}
			f, ok := t[0].(float64)
			if !ok {
				return nil, c.errorf("array index segment must be [n]")
			}
			i, err := intValue(f)
			if err != nil {
				return nil, c.errorf("%v", err)
			}
			p = append(p, path.Index(i))
		default:
			return nil, c.errorf("invalid property path segment %s", jsonType(s))
		}
	}
	return p, nil
}

func (c *compiler) propertyOf(args []interface{}) (Node, error) {
	if len(args) < 2 {
		return nil, c.errorf("_. takes an expression and a path")
	}
	c.push("[1]")
	base, err := c.expr(args[0])
	if err != nil {
		return nil, err
	}
	c.pop()
	var p path.Path
	if s, ok := args[1].(string); ok {
		parsed, err := path.Parse(s)
		if err != nil {
			return nil, c.errorf("%v", err)
		}
		p = parsed
		rest, err := c.segments(args[2:])
		if err != nil {
			return nil, err
		}
		p = append(p, rest...)
	} else {
		p, err = c.segments(args[1:])
		if err != nil {
			return nil, err
		}
	}
	return &PropertyOf{Expr: base, Path: p}, nil
}

func (c *compiler) parameter(x interface{}) (Node, error) {
	var name string
	switch t := x.(type) {
	case string:
		name = t
	case float64:
		i, err := intValue(t)
		if err != nil || i < 1 {
			return nil, c.errorf("positional parameter must be a positive integer")
		}
		name = strconv.Itoa(i)
	default:
		return nil, c.errorf("parameter name must be a string or number")
	}
	if name == "" {
		return nil, c.errorf("parameter name is empty")
	}
	c.params[name] = true
	return &Parameter{Name: name}, nil
}

func (c *compiler) variable(ref string, segs []interface{}) (Node, error) {
	name, rest := ref, ""
	if i := strings.IndexAny(ref, ".["); i >= 0 {
		name, rest = ref[:i], ref[i:]
	}
	if name == "" {
		return nil, c.errorf("variable name is empty")
	}
	depth := -1
	for i := len(c.scope) - 1; i >= 0; i-- {
		if c.scope[i] == name {
			depth = i
			break
		}
	}
	if depth < 0 {
		return nil, c.errorf("undefined variable %q", name)
	}
	var p path.Path
	if rest != "" {
		parsed, err := path.Parse(rest)
		if err != nil {
			return nil, c.errorf("%v", err)
		}
		p = parsed
	}
	more, err := c.segments(segs)
	if err != nil {
		return nil, err
	}
	return &Variable{Name: name, Depth: depth, Path: append(p, more...)}, nil
}

func (c *compiler) quantifier(op string, args []interface{}) (Node, error) {
	if len(args) != 3 {
		return nil, c.errorf("%s takes 3 operands, got %d", op, len(args))
	}
	name, ok := args[0].(string)
	if !ok || !isIdentifier(name) {
		return nil, c.errorf("%s variable name must be an identifier", op)
	}
	c.push("[2]")
	src, err := c.expr(args[1])
	if err != nil {
		return nil, err
	}
	c.pop()

	depth := len(c.scope)
	c.scope = append(c.scope, name)
	c.push("[3]")
	pred, err := c.expr(args[2])
	if err != nil {
		return nil, err
	}
	c.pop()
	c.scope = c.scope[:depth]

	kind := QuantAny
	switch op {
	case "EVERY":
		kind = QuantEvery
	case "ANY AND EVERY":
		kind = QuantAnyAndEvery
	}
	return &Quantifier{Kind: kind, Var: name, Depth: depth, Source: src, Pred: pred}, nil
}

func (c *compiler) call(op string, args []interface{}) (Node, error) {
	name := strings.ToLower(op)
	if agg, ok := aggregates[name]; ok {
		if !c.allowAggregates {
			return nil, c.errorf("aggregate %s is not allowed here", name)
		}
		if len(args) > 1 {
			return nil, c.errorf("%s takes at most 1 operand, got %d", name, len(args))
		}
		if agg != AggCount && len(args) != 1 {
			return nil, c.errorf("%s takes 1 operand, got %d", name, len(args))
		}
		a := &Aggregate{Fn: agg, Slot: len(c.q.Aggregates)}
		if len(args) == 1 {
			c.allowAggregates = false
			c.push("[1]")
			n, err := c.expr(args[0])
			if err != nil {
				return nil, err
			}
			c.pop()
			c.allowAggregates = true
			a.Arg = n
		}
		c.q.Aggregates = append(c.q.Aggregates, a)
		return a, nil
	}

	fn, ok := LookupFunc(name)
	if !ok {
		return nil, c.errorf("unknown function %q", op)
	}
	if len(args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(args) > fn.MaxArgs) {
		return nil, c.errorf("%s called with %d operand(s)", fn.Name, len(args))
	}
	nodes, err := c.operands(args)
	if err != nil {
		return nil, err
	}
	return &Call{Fn: fn, Args: nodes}, nil
}

func intValue(f float64) (int, error) {
	if f != math.Trunc(f) || math.Abs(f) > 1<<31 {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int(f), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func jsonType(x interface{}) string {
	switch x.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", x)
}
