package value

import (
	"encoding/binary"
	"math"
	"strings"
)

// Collate orders a and b: MISSING < null < false < true < numbers <
// strings < arrays < objects. Arrays compare element-wise; objects compare
// their (key, value) pairs in sorted key order. The result is -1, 0 or 1.
func Collate(a, b Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindArray:
		for i := 0; i < len(a.a) && i < len(b.a); i++ {
			if c := Collate(a.a[i], b.a[i]); c != 0 {
				return c
			}
		}
		return compareInts(len(a.a), len(b.a))
	case KindObject:
		ka, kb := a.Keys(), b.Keys()
		for i := 0; i < len(ka) && i < len(kb); i++ {
			if c := strings.Compare(ka[i], kb[i]); c != 0 {
				return c
			}
			if c := Collate(a.o[ka[i]], b.o[kb[i]]); c != 0 {
				return c
			}
		}
		return compareInts(len(ka), len(kb))
	}
	return 0
}

// Equal reports whether a and b collate equal. MISSING equals only MISSING.
func Equal(a, b Value) bool { return Collate(a, b) == 0 }

// CollateTuples compares two equal-purpose value lists element-wise.
func CollateTuples(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Collate(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInts(len(a), len(b))
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// rank splits booleans so that false sorts before true.
func rank(v Value) int {
	switch v.kind {
	case KindMissing:
		return 0
	case KindNull:
		return 1
	case KindBool:
		if v.b {
			return 3
		}
		return 2
	case KindNumber:
		return 4
	case KindString:
		return 5
	case KindArray:
		return 6
	}
	return 7
}

// Key encoding tags. The terminator 0x00 sorts below every tag so that a
// shorter array or object sorts before a longer one with the same prefix.
const (
	keyEnd     byte = 0x00
	keyMissing byte = 0x01
	keyNull    byte = 0x02
	keyFalse   byte = 0x03
	keyTrue    byte = 0x04
	keyNumber  byte = 0x05
	keyString  byte = 0x06
	keyArray   byte = 0x07
	keyObject  byte = 0x08
)

// AppendKey appends an order-preserving binary encoding of v to dst:
// bytes.Compare on two encodings agrees with Collate on the values. The
// encoding is self-delimiting, so the encodings of a tuple may be
// concatenated and compared as a unit.
func AppendKey(dst []byte, v Value) []byte {
	switch v.kind {
	case KindMissing:
		return append(dst, keyMissing)
	case KindNull:
		return append(dst, keyNull)
	case KindBool:
		if v.b {
			return append(dst, keyTrue)
		}
		return append(dst, keyFalse)
	case KindNumber:
		bits := math.Float64bits(v.n)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		dst = append(dst, keyNumber)
		return binary.BigEndian.AppendUint64(dst, bits)
	case KindString:
		dst = append(dst, keyString)
		return appendKeyString(dst, v.s)
	case KindArray:
		dst = append(dst, keyArray)
		for _, item := range v.a {
			dst = AppendKey(dst, item)
		}
		return append(dst, keyEnd)
	default:
		dst = append(dst, keyObject)
		for _, k := range v.Keys() {
			dst = append(dst, keyString)
			dst = appendKeyString(dst, k)
			dst = AppendKey(dst, v.o[k])
		}
		return append(dst, keyEnd)
	}
}

// appendKeyString escapes 0x00 as 0x00 0xFF and terminates with 0x00 0x01.
func appendKeyString(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			dst = append(dst, 0x00, 0xFF)
			continue
		}
		dst = append(dst, s[i])
	}
	return append(dst, 0x00, 0x01)
}

// KindKeyBounds returns the half-open key range [lo, hi) covering every
// encoded value of kind k. Booleans span both false and true.
func KindKeyBounds(k Kind) (lo, hi []byte) {
	switch k {
	case KindMissing:
		return []byte{keyMissing}, []byte{keyNull}
	case KindNull:
		return []byte{keyNull}, []byte{keyFalse}
	case KindBool:
		return []byte{keyFalse}, []byte{keyNumber}
	case KindNumber:
		return []byte{keyNumber}, []byte{keyString}
	case KindString:
		return []byte{keyString}, []byte{keyArray}
	case KindArray:
		return []byte{keyArray}, []byte{keyObject}
	}
	return []byte{keyObject}, []byte{keyObject + 1}
}
