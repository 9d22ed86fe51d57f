package query

import "unicode/utf8"

// likeMatch reports whether s matches a LIKE pattern. '%' matches any run of
// characters, '_' matches exactly one, and '\' escapes the next character.
// Matching is case-sensitive.
func likeMatch(s, pattern string) bool {
	si, pi := 0, 0
	starP, starS := -1, 0
	for si < len(s) {
		if pi < len(pattern) {
			pc, pw := utf8.DecodeRuneInString(pattern[pi:])
			switch pc {
			case '%':
				starP, starS = pi+pw, si
				pi += pw
				continue
			case '_':
				_, sw := utf8.DecodeRuneInString(s[si:])
				si += sw
				pi += pw
				continue
			case '\\':
				if pi+pw < len(pattern) {
					pi += pw
					pc, pw = utf8.DecodeRuneInString(pattern[pi:])
				}
			}
			sc, sw := utf8.DecodeRuneInString(s[si:])
			if sc == pc {
				si += sw
				pi += pw
				continue
			}
		}
		if starP < 0 {
			return false
		}
		// Backtrack: let the last '%' absorb one more character.
		_, sw := utf8.DecodeRuneInString(s[starS:])
		starS += sw
		si, pi = starS, starP
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}
