// Package price turns the free-form price strings shown by storefronts into
// comparable whole-currency values.
package price

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseValue strips every non-digit from text and parses what is left as an
// unsigned integer. It reports false when text holds no digits at all.
//
//	ParseValue("35 990 kr") // 35990, true
//	ParseValue("38 990:-")  // 38990, true
//	ParseValue("no digits") // 0, false
//
// Separators such as spaces, U+00A0 and U+202F are ordinary non-digits here.
// Decimals are not handled: store prices are whole kronor.
func ParseValue(text string) (uint64, bool) {
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		if c := text[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(b.String(), 10, 64)
	if err != nil {
		// More digits than fit in 64 bits is not a price.
		return 0, false
	}
	return v, true
}

// Compare normalizes both prices and orders them. ok is false when either
// side has no value, in which case cmp is meaningless.
func Compare(oldText, newText string) (cmp int, ok bool) {
	oldV, ok1 := ParseValue(oldText)
	newV, ok2 := ParseValue(newText)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case newV < oldV:
		return -1, true
	case newV > oldV:
		return 1, true
	}
	return 0, true
}

// FormatKronor renders v with U+202F thousands separators and a " kr" suffix,
// e.g. 35990 -> "35 990 kr".
func FormatKronor(v uint64) string {
	digits := strconv.FormatUint(v, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteRune('\u202f')
		}
		b.WriteRune(r)
	}
	b.WriteString(" kr")
	return b.String()
}

// Clean replaces the no-break spaces storefronts use as thousands separators
// with plain spaces and trims the result.
func Clean(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\u202f", " ")
	return strings.TrimSpace(text)
}
