// Package similarity scores how likely two normalized author names are to denote the same
// person by fusing four independent signals: surname phonetics, edit distance, token-set
// overlap and initials compatibility.
package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/dport96/ISERN-Graph/internal/names"
)

// Config configures an Engine.
type Config struct {
	Weights   Weights
	Phonetic  PhoneticAlgorithm
	Nicknames names.Nicknames
}

// DefaultConfig returns equal weights, Soundex and the built-in nickname table.
func DefaultConfig() Config {
	return Config{
		Weights:   DefaultWeights(),
		Phonetic:  PhoneticSoundex,
		Nicknames: names.DefaultNicknames(),
	}
}

// Score is a fused similarity plus the components that produced it.
type Score struct {
	Fused        float64 `json:"fused"`
	Phonetic     float64 `json:"phonetic"`
	EditDistance float64 `json:"edit_distance"`
	TokenSet     float64 `json:"token_set"`
	Initials     float64 `json:"initials"`

	// InitialsApplicable is false when neither name had an initial to compare; the initials
	// signal then takes no part in the weighted average.
	InitialsApplicable bool `json:"initials_applicable"`

	// Exact is set when both names have identical canonical forms.
	Exact bool `json:"exact,omitempty"`
}

// Engine computes pairwise similarity. It is immutable and safe for concurrent use.
type Engine struct {
	weights   Weights
	encode    encoder
	nicknames names.Nicknames
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	alg, err := ParsePhoneticAlgorithm(string(cfg.Phonetic))
	if err != nil {
		return nil, err
	}
	nicks := cfg.Nicknames
	if nicks.Len() == 0 {
		nicks = names.DefaultNicknames()
	}
	return &Engine{
		weights:   cfg.Weights,
		encode:    newEncoder(alg),
		nicknames: nicks,
	}, nil
}

// Weights returns the fusion weights in use.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Score compares a and b. The result is symmetric in its arguments. An empty name scores
// zero against everything, including another empty name.
func (e *Engine) Score(a, b names.Name) Score {
	if a.IsEmpty() || b.IsEmpty() {
		return Score{}
	}
	if a.Canonical == b.Canonical {
		return Score{
			Fused:              1,
			Phonetic:           1,
			EditDistance:       1,
			TokenSet:           1,
			Initials:           1,
			InitialsApplicable: hasInitials(a) || hasInitials(b),
			Exact:              true,
		}
	}

	s := Score{
		Phonetic:     e.phonetic(a, b),
		EditDistance: editSimilarity(a.Canonical, b.Canonical),
		TokenSet:     e.tokenSet(a, b),
	}
	s.Initials, s.InitialsApplicable = initialsCompatibility(a, b)
	s.Fused = e.fuse(s)
	return s
}

func (e *Engine) fuse(s Score) float64 {
	num := e.weights.Phonetic*s.Phonetic + e.weights.EditDistance*s.EditDistance + e.weights.TokenSet*s.TokenSet
	den := e.weights.Phonetic + e.weights.EditDistance + e.weights.TokenSet
	if s.InitialsApplicable {
		num += e.weights.Initials * s.Initials
		den += e.weights.Initials
	}
	if den == 0 {
		return 0
	}
	return clamp(num / den)
}

func (e *Engine) phonetic(a, b names.Name) float64 {
	sa, _ := a.Surname()
	sb, _ := b.Surname()
	if e.phoneticMatch(sa.Text, sb.Text) {
		return 1
	}
	return 0
}

// editSimilarity is 1 - levenshtein/max(rune length).
func editSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return clamp(1 - float64(d)/float64(longest))
}

// tokenSet is the Jaccard index over nickname-rooted token keys.
func (e *Engine) tokenSet(a, b names.Name) float64 {
	ka, kb := e.keys(a), e.keys(b)
	inter := 0
	for k := range ka {
		if _, ok := kb[k]; ok {
			inter++
		}
	}
	union := len(ka) + len(kb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func (e *Engine) keys(n names.Name) map[string]struct{} {
	out := make(map[string]struct{}, len(n.Tokens))
	for _, t := range n.Tokens {
		out[e.nicknames.Key(t.Text)] = struct{}{}
	}
	return out
}

// initialsCompatibility pairs given-name tokens by position and inspects every pair in
// which at least one side is an initial. It returns the compatible fraction and whether any
// such pair existed.
func initialsCompatibility(a, b names.Name) (float64, bool) {
	ga, gb := a.Given(), b.Given()
	pairs, compatible := 0, 0
	for i := 0; i < len(ga) && i < len(gb); i++ {
		if !ga[i].Initial && !gb[i].Initial {
			continue
		}
		pairs++
		ra, _ := utf8.DecodeRuneInString(ga[i].Text)
		rb, _ := utf8.DecodeRuneInString(gb[i].Text)
		if ra == rb {
			compatible++
		}
	}
	if pairs == 0 {
		return 0, false
	}
	return float64(compatible) / float64(pairs), true
}

func hasInitials(n names.Name) bool {
	for _, t := range n.Given() {
		if t.Initial {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
