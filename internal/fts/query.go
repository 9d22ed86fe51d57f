package fts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned for malformed MATCH queries.
var ErrSyntax = errors.New("full-text query syntax error")

// Op is the kind of a MATCH expression node.
type Op int

const (
	OpTerm Op = iota
	OpPrefix
	OpPhrase
	OpAnd
	OpOr
	OpNot
)

// Expr is a parsed MATCH query.
type Expr struct {
	Op       Op
	Terms    []string // one term for OpTerm/OpPrefix, several for OpPhrase
	Children []*Expr
}

// Parse parses a MATCH query. Terms separated by spaces must all match;
// "OR" between terms accepts either; a trailing '*' matches a prefix;
// double quotes require consecutive terms; a leading '-' or NOT excludes a
// term; parentheses group.
func Parse(query string, tok Tokenizer) (*Expr, error) {
	p := &parser{input: query, tok: tok}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, p.input[p.pos], p.pos)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: empty query", ErrSyntax)
	}
	if e.Op == OpNot {
		return nil, fmt.Errorf("%w: query cannot consist only of excluded terms", ErrSyntax)
	}
	return e, nil
}

type parser struct {
	input string
	pos   int
	tok   Tokenizer
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

// keyword reports whether the upper-case word kw starts at the current
// position as a whole word.
func (p *parser) keyword(kw string) bool {
	end := p.pos + len(kw)
	if end > len(p.input) || p.input[p.pos:end] != kw {
		return false
	}
	return end == len(p.input) || p.input[end] == ' ' || p.input[end] == '('
}

func (p *parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if !p.keyword("OR") {
			return left, nil
		}
		p.pos += 2
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, fmt.Errorf("%w: OR needs terms on both sides", ErrSyntax)
		}
		left = &Expr{Op: OpOr, Children: []*Expr{left, right}}
	}
}

func (p *parser) parseAnd() (*Expr, error) {
	var children []*Expr
	for {
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] == ')' || p.keyword("OR") {
			break
		}
		if p.keyword("AND") {
			p.pos += 3
			continue
		}
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if e != nil {
			children = append(children, e)
		}
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	}
	return &Expr{Op: OpAnd, Children: children}, nil
}

func (p *parser) parseUnary() (*Expr, error) {
	not := false
	if p.keyword("NOT") {
		p.pos += 3
		p.skipSpace()
		not = true
	} else if p.input[p.pos] == '-' {
		p.pos++
		not = true
	}
	e, err := p.parsePrimary()
	if err != nil || e == nil || !not {
		return e, err
	}
	return &Expr{Op: OpNot, Children: []*Expr{e}}, nil
}

func (p *parser) parsePrimary() (*Expr, error) {
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("%w: missing term at end of query", ErrSyntax)
	}
	switch p.input[p.pos] {
	case '(':
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, fmt.Errorf("%w: unbalanced parenthesis", ErrSyntax)
		}
		p.pos++
		return e, nil
	case '"':
		end := strings.IndexByte(p.input[p.pos+1:], '"')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated phrase", ErrSyntax)
		}
		phrase := p.input[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		var terms []string
		for _, t := range p.tok.Tokenize(phrase) {
			terms = append(terms, t.Term)
		}
		switch len(terms) {
		case 0:
			return nil, nil
		case 1:
			return &Expr{Op: OpTerm, Terms: terms}, nil
		}
		return &Expr{Op: OpPhrase, Terms: terms}, nil
	}

	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune(" ()\"", rune(p.input[p.pos])) {
		p.pos++
	}
	word := p.input[start:p.pos]
	prefix := strings.HasSuffix(word, "*")
	word = strings.TrimSuffix(word, "*")
	tokens := p.tok.Tokenize(word)
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(tokens) > 1 {
		// "o'brien" and similar split into several terms; treat as a phrase.
		terms := make([]string, len(tokens))
		for i, t := range tokens {
			terms[i] = t.Term
		}
		return &Expr{Op: OpPhrase, Terms: terms}, nil
	}
	if prefix {
		return &Expr{Op: OpPrefix, Terms: []string{tokens[0].Term}}, nil
	}
	return &Expr{Op: OpTerm, Terms: []string{tokens[0].Term}}, nil
}
