// Package index maintains secondary indexes over document expressions:
// value indexes keyed by an order-preserving encoding of the expression
// tuple, and full-text indexes over string-valued expressions.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kartikbazzad/bunbase/bunquery/internal/fts"
	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// ErrUnsupportedExpression is returned for expressions that cannot define
// an index of the requested kind.
var ErrUnsupportedExpression = errors.New("unsupported index expression")

// Kind is the type of index.
type Kind int

const (
	KindValue Kind = iota
	KindFullText
)

func (k Kind) String() string {
	if k == KindFullText {
		return "fulltext"
	}
	return "value"
}

// ParseKind accepts "value" and "fulltext" (also "fts", "full-text").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "value", "":
		return KindValue, nil
	case "fulltext", "full-text", "fts":
		return KindFullText, nil
	}
	return 0, fmt.Errorf("unknown index kind %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Definition is the persisted description of an index.
type Definition struct {
	Name             string          `json:"name"`
	Kind             Kind            `json:"kind"`
	Expressions      json.RawMessage `json:"expressions"`
	IgnoreDiacritics bool            `json:"ignore_diacritics,omitempty"`
}

// Index is a compiled, maintained index.
type Index struct {
	Def   Definition
	Exprs []query.Node
	// Canonical holds the canonical form of each expression.
	Canonical []string

	values *ValueIndex
	text   *fts.Index
}

// New compiles the definition's expressions. Full-text indexes accept only
// expressions that can produce strings.
func New(def Definition) (*Index, error) {
	exprs, err := query.CompileIndexExpressions(def.Expressions)
	if err != nil {
		return nil, err
	}
	ix := &Index{Def: def, Exprs: exprs, Canonical: make([]string, len(exprs))}
	for i, e := range exprs {
		if def.Kind == KindFullText {
			if k := query.StaticKind(e); k != value.KindMissing && k != value.KindString {
				return nil, fmt.Errorf("%w: full-text expression %s yields %s, not string",
					ErrUnsupportedExpression, query.Canonical(e), k)
			}
		}
		ix.Canonical[i] = query.Canonical(e)
	}
	if def.Kind == KindFullText {
		ix.text = fts.NewIndex(fts.Tokenizer{IgnoreDiacritics: def.IgnoreDiacritics})
	} else {
		ix.values = NewValueIndex()
	}
	return ix, nil
}

// Values returns the value-index entries, or nil for a full-text index.
func (ix *Index) Values() *ValueIndex { return ix.values }

// Text returns the full-text index, or nil for a value index.
func (ix *Index) Text() *fts.Index { return ix.text }

// Change is the new index state of one document, computed by Extract.
type Change struct {
	DocID   string
	Key     []byte   // value index; nil removes the entry
	Texts   []string // full-text index; empty removes the entry
	Deleted bool
}

// Extract computes the index change for doc. A nil doc (deleted) removes
// its entries. Value indexes skip documents whose leading expression is
// MISSING; full-text indexes skip non-string values.
func (ix *Index) Extract(docID string, doc *query.Document) (Change, error) {
	ch := Change{DocID: docID}
	if doc == nil {
		ch.Deleted = true
		return ch, nil
	}
	env := &query.Env{Doc: doc}
	var key []byte
	for i, e := range ix.Exprs {
		v, err := query.Eval(e, env)
		if err != nil {
			return ch, fmt.Errorf("index %s: %w", ix.Def.Name, err)
		}
		if ix.text != nil {
			if v.Kind() == value.KindString {
				ch.Texts = append(ch.Texts, v.AsString())
			} else {
				ch.Texts = append(ch.Texts, "")
			}
			continue
		}
		if i == 0 && v.IsMissing() {
			return ch, nil
		}
		key = value.AppendKey(key, v)
	}
	ch.Key = key
	return ch, nil
}

// Apply installs a change computed by Extract.
func (ix *Index) Apply(ch Change) {
	if ix.text != nil {
		if ch.Deleted || !hasText(ch.Texts) {
			ix.text.Remove(ch.DocID)
			return
		}
		ix.text.Update(ch.DocID, ch.Texts)
		return
	}
	if ch.Deleted || ch.Key == nil {
		ix.values.Delete(ch.DocID)
		return
	}
	ix.values.Put(ch.DocID, ch.Key)
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	if ix.text != nil {
		return ix.text.DocCount()
	}
	return ix.values.Len()
}

func hasText(texts []string) bool {
	for _, t := range texts {
		if t != "" {
			return true
		}
	}
	return false
}
