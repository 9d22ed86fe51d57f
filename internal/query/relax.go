package query

import (
	"fmt"
	"strings"
)

// Relax converts relaxed JSON to strict JSON. It accepts single-quoted
// strings and unquoted object keys, which keeps hand-written queries such
// as {WHAT: ['.name'], WHERE: ['=', ['.state'], 'CA']} readable.
func Relax(s string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(s) + 16)
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			end, err := writeQuoted(&sb, s, i)
			if err != nil {
				return "", err
			}
			i = end
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			if isKeyPosition(s, j) {
				sb.WriteByte('"')
				sb.WriteString(word)
				sb.WriteByte('"')
			} else {
				sb.WriteString(word)
			}
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

// writeQuoted copies the string literal starting at s[start] as a
// double-quoted JSON string and returns the index just past it.
func writeQuoted(sb *strings.Builder, s string, start int) (int, error) {
	quote := s[start]
	sb.WriteByte('"')
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 >= len(s) {
				return 0, fmt.Errorf("unterminated escape at offset %d", i)
			}
			i++
			if s[i] == '\'' {
				sb.WriteByte('\'')
			} else {
				sb.WriteByte('\\')
				sb.WriteByte(s[i])
			}
		case c == quote:
			sb.WriteByte('"')
			return i + 1, nil
		case c == '"':
			sb.WriteString(`\"`)
		default:
			sb.WriteByte(c)
		}
	}
	return 0, fmt.Errorf("unterminated string starting at offset %d", start)
}

func isKeyPosition(s string, i int) bool {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i < len(s) && s[i] == ':'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
