package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that carry no combining mark under NFD and so survive accent stripping.
var foldTable = map[rune]string{
	'ø': "o",
	'æ': "ae",
	'œ': "oe",
	'ß': "ss",
	'ł': "l",
	'đ': "d",
	'ð': "d",
	'þ': "th",
	'ı': "i",
	'ħ': "h",
	'ŀ': "l",
	'ŧ': "t",
}

func newStripper() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Fold lowercases s and reduces Latin letters to their closest ASCII form. Letters from
// other scripts pass through unchanged.
func Fold(s string) string {
	// transform.Chain is stateful, so each call gets its own.
	stripped, _, err := transform.String(newStripper(), strings.ToLower(s))
	if err != nil {
		stripped = strings.ToLower(s)
	}

	var sb strings.Builder
	sb.Grow(len(stripped))
	for _, r := range stripped {
		if rep, ok := foldTable[r]; ok {
			sb.WriteString(rep)
			continue
		}
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
