package names

import "unicode/utf8"

// Variants returns the alternative spellings a bibliography may use for n: middle names
// dropped ("Victor Basili"), given names abbreviated ("V. Basili", "V. R. Basili") and
// surname first ("Basili Victor"). n itself is not included and every variant has a distinct
// canonical form. Names with fewer than two tokens have no variants.
func Variants(n Name) []Name {
	if len(n.Tokens) < 2 {
		return nil
	}
	si := n.SurnameIndex()
	surname := n.Tokens[si]
	given := n.Given()
	first := given[0]

	seen := map[string]struct{}{n.Canonical: {}}
	var out []Name
	add := func(toks ...Token) {
		v := Name{Raw: n.Raw, Tokens: toks, Discarded: n.Discarded}
		v.join()
		if _, dup := seen[v.Canonical]; dup {
			return
		}
		seen[v.Canonical] = struct{}{}
		out = append(out, v)
	}

	if len(given) > 1 {
		add(first, surname)
	}
	if ini, ok := abbreviate(first); ok {
		add(ini, surname)
	}
	if len(given) > 1 {
		abbr := make([]Token, 0, len(n.Tokens))
		for _, g := range given {
			ini, ok := abbreviate(g)
			if !ok {
				abbr = nil
				break
			}
			abbr = append(abbr, ini)
		}
		if abbr != nil {
			add(append(abbr, surname)...)
		}
	}
	if si == len(n.Tokens)-1 {
		add(surname, first)
	} else {
		add(append(append([]Token{}, given...), surname)...)
	}
	return out
}

// abbreviate turns a full given-name token into its initial. Initials are returned as is;
// tokens whose script has no initials (a Han given name) are not abbreviated.
func abbreviate(t Token) (Token, bool) {
	if t.Initial {
		return t, true
	}
	r, size := utf8.DecodeRuneInString(t.Text)
	if r == utf8.RuneError || !isInitial(t.Text[:size]) {
		return Token{}, false
	}
	o, osize := utf8.DecodeRuneInString(t.Original)
	orig := t.Original[:osize]
	if o == utf8.RuneError {
		orig = t.Text[:size]
	}
	return Token{Text: t.Text[:size], Original: orig, Initial: true}, true
}
