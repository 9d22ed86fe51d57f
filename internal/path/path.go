// Package path resolves property paths against JSON document trees.
package path

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// ErrInvalidPath is returned for syntactically malformed path strings.
var ErrInvalidPath = errors.New("invalid property path")

// Segment is one step of a path: an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns an object-key segment.
func Key(k string) Segment { return Segment{Key: k} }

// Index returns an array-index segment. Negative indexes count from the end.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Path is an ordered list of segments.
type Path []Segment

// Parse parses a dotted property string such as "name.first",
// ".contact.phone[0]" or "a\.b" (a single key containing a dot).
func Parse(s string) (Path, error) {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	var (
		p   Path
		key strings.Builder
		// pending is true when key holds a segment not yet appended.
		pending bool
	)
	flush := func() {
		if pending {
			p = append(p, Key(key.String()))
			key.Reset()
			pending = false
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				return nil, fmt.Errorf("%w: trailing escape in %q", ErrInvalidPath, s)
			}
			i++
			key.WriteByte(s[i])
			pending = true
		case '.':
			if !pending && (i == 0 || s[i-1] != ']') {
				return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
			}
			flush()
			if i == len(s)-1 {
				return nil, fmt.Errorf("%w: trailing '.' in %q", ErrInvalidPath, s)
			}
		case '[':
			flush()
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated index in %q", ErrInvalidPath, s)
			}
			n, err := strconv.Atoi(s[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("%w: bad index %q", ErrInvalidPath, s[i+1:i+end])
			}
			p = append(p, Index(n))
			i += end
			if i+1 < len(s) && s[i+1] != '.' && s[i+1] != '[' {
				return nil, fmt.Errorf("%w: unexpected %q after index", ErrInvalidPath, s[i+1])
			}
		default:
			key.WriteByte(c)
			pending = true
		}
	}
	flush()
	return p, nil
}

// MustParse is Parse for constant paths.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval navigates root along p. An absent key, an out-of-range index or a
// segment applied to the wrong kind of value yields MISSING, and navigating
// into MISSING stays MISSING.
func (p Path) Eval(root value.Value) value.Value {
	cur := root
	for _, seg := range p {
		if cur.IsMissing() {
			return cur
		}
		if seg.IsIndex {
			cur = cur.Index(seg.Index)
		} else {
			cur = cur.Get(seg.Key)
		}
	}
	return cur
}

// String renders p in the dotted form accepted by Parse.
func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			sb.WriteByte('[')
			sb.WriteString(strconv.Itoa(seg.Index))
			sb.WriteByte(']')
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		for j := 0; j < len(seg.Key); j++ {
			switch seg.Key[j] {
			case '.', '[', ']', '\\':
				sb.WriteByte('\\')
			}
			sb.WriteByte(seg.Key[j])
		}
	}
	return sb.String()
}

// Last returns the final key segment of p, used as a column title.
func (p Path) Last() string {
	for i := len(p) - 1; i >= 0; i-- {
		if !p[i].IsIndex {
			return p[i].Key
		}
	}
	return ""
}
