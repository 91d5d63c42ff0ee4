// Package names turns raw author-name strings into structured, comparable token forms.
package names

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Token is one name component.
type Token struct {
	// Text is the lowercase ASCII-folded form used for comparison.
	Text string `json:"text"`

	// Original is the lowercase form with diacritics kept.
	Original string `json:"original"`

	// Initial is set for single-letter tokens such as the "D" in "D. Port".
	Initial bool `json:"initial,omitempty"`
}

// Name is the normalized form of a raw author string.
type Name struct {
	Raw       string   `json:"raw"`
	Tokens    []Token  `json:"tokens"`
	Canonical string   `json:"canonical"`
	Preserved string   `json:"preserved"`
	Discarded []string `json:"discarded,omitempty"`
}

var titles = map[string]struct{}{
	"dr": {}, "prof": {}, "professor": {}, "mr": {}, "mrs": {}, "ms": {}, "miss": {}, "sir": {},
}

var suffixes = map[string]struct{}{
	"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {},
	"phd": {}, "md": {}, "msc": {}, "dphil": {}, "esq": {},
}

// Normalize parses raw into a Name. It never fails; input with no usable letters yields
// an empty Name.
func Normalize(raw string) Name {
	n := Name{Raw: raw}

	var parts [][]Token
	for _, part := range strings.Split(norm.NFC.String(raw), ",") {
		toks := tokenize(part)
		if len(toks) == 0 {
			continue
		}
		if allAffixes(toks) {
			for _, t := range toks {
				n.Discarded = append(n.Discarded, t.Text)
			}
			continue
		}
		parts = append(parts, toks)
	}

	// "Last, First [Middle]" becomes "First [Middle] Last".
	if len(parts) > 1 {
		parts = append(parts[1:], parts[0])
	}

	for _, part := range parts {
		for _, t := range part {
			if discard(t, len(n.Tokens)) {
				n.Discarded = append(n.Discarded, t.Text)
				continue
			}
			n.Tokens = append(n.Tokens, t)
		}
	}

	n.join()
	return n
}

// join rebuilds Canonical and Preserved from Tokens.
func (n *Name) join() {
	canon := make([]string, len(n.Tokens))
	preserved := make([]string, len(n.Tokens))
	for i, t := range n.Tokens {
		canon[i] = t.Text
		preserved[i] = t.Original
	}
	n.Canonical = strings.Join(canon, " ")
	n.Preserved = strings.Join(preserved, " ")
}

// tokenize splits s on whitespace and punctuation. Apostrophes join ("O'Brien" is one token).
func tokenize(s string) []Token {
	var out []Token
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		orig := cur.String()
		cur.Reset()
		folded := Fold(orig)
		if folded == "" {
			return
		}
		out = append(out, Token{
			Text:     folded,
			Original: orig,
			Initial:  isInitial(folded),
		})
	}

	for _, r := range strings.ToLower(s) {
		switch {
		case isApostrophe(r):
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r), unicode.Is(unicode.Mc, r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

// isInitial is limited to alphabetic scripts; a single Han character is a full name part.
func isInitial(s string) bool {
	if utf8.RuneCountInString(s) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.In(r, unicode.Latin, unicode.Greek, unicode.Cyrillic)
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '’', 'ʼ', '`', '´':
		return true
	}
	return false
}

func allAffixes(toks []Token) bool {
	for _, t := range toks {
		_, title := titles[t.Text]
		_, suffix := suffixes[t.Text]
		if !title && !suffix && !isNumeric(t.Text) {
			return false
		}
	}
	return true
}

// discard reports whether t is a title, a trailing suffix, or a DBLP homonym number
// ("Wei Wang 0001"). Suffixes are only recognised after the first kept token.
func discard(t Token, pos int) bool {
	if _, ok := titles[t.Text]; ok {
		return true
	}
	if _, ok := suffixes[t.Text]; ok && pos > 0 {
		return true
	}
	return isNumeric(t.Text)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// IsEmpty reports whether normalization left no tokens.
func (n Name) IsEmpty() bool {
	return len(n.Tokens) == 0
}

// SurnameIndex returns the index of the last full (non-initial) token, falling back to the
// last token when every token is an initial. It returns -1 for an empty name.
func (n Name) SurnameIndex() int {
	for i := len(n.Tokens) - 1; i >= 0; i-- {
		if !n.Tokens[i].Initial {
			return i
		}
	}
	return len(n.Tokens) - 1
}

// Surname returns the surname token.
func (n Name) Surname() (Token, bool) {
	i := n.SurnameIndex()
	if i < 0 {
		return Token{}, false
	}
	return n.Tokens[i], true
}

// Given returns every token except the surname, in order.
func (n Name) Given() []Token {
	i := n.SurnameIndex()
	if i < 0 {
		return nil
	}
	out := make([]Token, 0, len(n.Tokens)-1)
	out = append(out, n.Tokens[:i]...)
	return append(out, n.Tokens[i+1:]...)
}

// Initials returns the first letter of every given-name token.
func (n Name) Initials() string {
	var sb strings.Builder
	for _, t := range n.Given() {
		r, _ := utf8.DecodeRuneInString(t.Text)
		sb.WriteRune(r)
	}
	return sb.String()
}

// String returns the canonical form.
func (n Name) String() string {
	return n.Canonical
}
