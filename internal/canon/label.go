// Package canon reconciles heterogeneous question labels from independently
// scanned documents into a single canonical ordering, and aligns arbitrary
// answer maps onto that ordering.
package canon

import (
	"strings"
	"unicode"
)

// segment is one run of a label: either a number or a lowercased letter run.
type segment struct {
	num     int
	text    string
	numeric bool
}

// Key is a natural-order sort key for a question label: numeric runs compare
// as integers, letter runs lexically, so "2a" < "2b" < "10a". Building a Key
// never fails; labels without any numeric token sort after those with one,
// falling back to plain lexical order.
type Key struct {
	segments []segment
	fallback string
	numbered bool
}

// SortKey builds the sort key for a raw label. Deterministic: the same label
// always yields the same key. The label itself is never rewritten.
func SortKey(label string) Key {
	trimmed := strings.TrimSpace(label)
	k := Key{fallback: strings.ToLower(trimmed)}

	var num int
	var text strings.Builder
	inNum, inText := false, false
	flush := func() {
		if inNum {
			k.segments = append(k.segments, segment{num: num, numeric: true})
			k.numbered = true
			num = 0
			inNum = false
		}
		if inText {
			k.segments = append(k.segments, segment{text: text.String()})
			text.Reset()
			inText = false
		}
	}
	for _, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			if inText {
				flush()
			}
			// Cap well below overflow; OCR noise can glue digits together.
			if num < 1<<30 {
				num = num*10 + int(r-'0')
			}
			inNum = true
		case unicode.IsLetter(r):
			if inNum {
				flush()
			}
			text.WriteRune(unicode.ToLower(r))
			inText = true
		default:
			flush()
		}
	}
	flush()
	return k
}

// Less reports whether k sorts before other in natural order.
func (k Key) Less(other Key) bool {
	if k.numbered != other.numbered {
		return k.numbered
	}
	n := len(k.segments)
	if len(other.segments) < n {
		n = len(other.segments)
	}
	for i := 0; i < n; i++ {
		a, b := k.segments[i], other.segments[i]
		if a.numeric != b.numeric {
			// Numbers sort before letters at the same position.
			return a.numeric
		}
		if a.numeric {
			if a.num != b.num {
				return a.num < b.num
			}
			continue
		}
		if a.text != b.text {
			return a.text < b.text
		}
	}
	if len(k.segments) != len(other.segments) {
		return len(k.segments) < len(other.segments)
	}
	return k.fallback < other.fallback
}

// NumericPrefix extracts the first numeric token of a label ("Q12" -> "12",
// "2(a)" -> "2"), or "" when the label has none. Leading zeros are dropped
// so "Q01" and "1" share a prefix.
func NumericPrefix(label string) string {
	start := -1
	end := -1
	for i, r := range label {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			end = i + len(string(r))
			continue
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return ""
	}
	digits := strings.TrimLeft(label[start:end], "0")
	if digits == "" {
		return "0"
	}
	return digits
}
