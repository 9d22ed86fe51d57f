package fts

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// columnGap separates the positions of successive indexed texts of one
// document so that a phrase never spans two of them.
const columnGap = 1 << 16

// Index is an inverted index from terms to the documents and positions
// containing them. Index is not safe for concurrent mutation; callers
// serialize writes and exclude readers while writing.
type Index struct {
	tok   Tokenizer
	terms map[string]map[string][]int // term -> doc id -> positions
	docs  map[string][]string         // doc id -> distinct terms
}

func NewIndex(tok Tokenizer) *Index {
	return &Index{
		tok:   tok,
		terms: make(map[string]map[string][]int),
		docs:  make(map[string][]string),
	}
}

// Tokenizer returns the tokenizer used for both documents and queries.
func (ix *Index) Tokenizer() Tokenizer { return ix.tok }

// Update replaces the indexed texts of docID. An empty texts removes it.
func (ix *Index) Update(docID string, texts []string) {
	ix.Remove(docID)
	var distinct []string
	for col, text := range texts {
		for _, t := range ix.tok.Tokenize(text) {
			postings, ok := ix.terms[t.Term]
			if !ok {
				postings = make(map[string][]int)
				ix.terms[t.Term] = postings
			}
			if _, seen := postings[docID]; !seen {
				distinct = append(distinct, t.Term)
			}
			postings[docID] = append(postings[docID], col*columnGap+t.Position)
		}
	}
	if len(distinct) > 0 {
		ix.docs[docID] = distinct
	}
}

// Remove deletes every entry for docID.
func (ix *Index) Remove(docID string) {
	for _, term := range ix.docs[docID] {
		postings := ix.terms[term]
		delete(postings, docID)
		if len(postings) == 0 {
			delete(ix.terms, term)
		}
	}
	delete(ix.docs, docID)
}

// DocCount returns the number of documents with at least one term.
func (ix *Index) DocCount() int { return len(ix.docs) }

// TermCount returns the number of distinct terms.
func (ix *Index) TermCount() int { return len(ix.terms) }

// Search parses query and returns the ids of matching documents, sorted.
func (ix *Index) Search(query string) ([]string, error) {
	e, err := Parse(query, ix.tok)
	if err != nil {
		return nil, err
	}
	ids := maps.Keys(ix.eval(e))
	slices.Sort(ids)
	return ids, nil
}

type docSet map[string]struct{}

func (ix *Index) eval(e *Expr) docSet {
	switch e.Op {
	case OpTerm:
		return keys(ix.terms[e.Terms[0]])
	case OpPrefix:
		out := docSet{}
		for term, postings := range ix.terms {
			if strings.HasPrefix(term, e.Terms[0]) {
				for id := range postings {
					out[id] = struct{}{}
				}
			}
		}
		return out
	case OpPhrase:
		return ix.phrase(e.Terms)
	case OpOr:
		out := docSet{}
		for _, c := range e.Children {
			for id := range ix.eval(c) {
				out[id] = struct{}{}
			}
		}
		return out
	case OpNot:
		// Only reachable at top level of a sub-expression; complement
		// against every indexed document.
		excluded := ix.eval(e.Children[0])
		out := docSet{}
		for id := range ix.docs {
			if _, ok := excluded[id]; !ok {
				out[id] = struct{}{}
			}
		}
		return out
	}

	// OpAnd: intersect positive children, then subtract negated ones.
	var out docSet
	var exclude []docSet
	for _, c := range e.Children {
		if c.Op == OpNot {
			exclude = append(exclude, ix.eval(c.Children[0]))
			continue
		}
		set := ix.eval(c)
		if out == nil {
			out = set
			continue
		}
		for id := range out {
			if _, ok := set[id]; !ok {
				delete(out, id)
			}
		}
	}
	if out == nil {
		out = ix.eval(&Expr{Op: OpNot, Children: []*Expr{{Op: OpOr, Children: nil}}})
	}
	for _, ex := range exclude {
		for id := range ex {
			delete(out, id)
		}
	}
	return out
}

// phrase returns documents containing terms at consecutive positions.
func (ix *Index) phrase(terms []string) docSet {
	out := docSet{}
	first := ix.terms[terms[0]]
	for id, starts := range first {
	next:
		for _, start := range starts {
			for i := 1; i < len(terms); i++ {
				if !slices.Contains(ix.terms[terms[i]][id], start+i) {
					continue next
				}
			}
			out[id] = struct{}{}
			break
		}
	}
	return out
}

func keys(postings map[string][]int) docSet {
	out := make(docSet, len(postings))
	for id := range postings {
		out[id] = struct{}{}
	}
	return out
}
