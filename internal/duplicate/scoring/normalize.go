package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a name for comparison: decomposed with NFD, combining
// marks dropped, lower-cased, and every run of punctuation or space turned
// into a single space. "Zoë  O'Brien-Smith" becomes "zoe o brien smith".
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

var soundexCodes = map[rune]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// Soundex returns the American Soundex code of a normalized name, ignoring
// anything that is not an ASCII letter. It returns "" when no letter remains.
func Soundex(name string) string {
	code := make([]byte, 0, 4)
	var last byte
	for _, r := range name {
		if r < 'a' || r > 'z' {
			continue
		}
		digit, coded := soundexCodes[r]
		if len(code) == 0 {
			code = append(code, byte(unicode.ToUpper(r)))
			last = digit
			continue
		}
		switch {
		case r == 'h' || r == 'w':
			// h and w do not separate letters with the same code
		case !coded:
			last = 0
		case digit != last:
			code = append(code, digit)
			last = digit
		}
		if len(code) == 4 {
			break
		}
	}
	if len(code) == 0 {
		return ""
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
