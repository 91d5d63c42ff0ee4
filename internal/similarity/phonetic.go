package similarity

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// PhoneticAlgorithm selects the sounds-alike coding applied to surnames.
type PhoneticAlgorithm string

const (
	PhoneticSoundex   PhoneticAlgorithm = "soundex"
	PhoneticMetaphone PhoneticAlgorithm = "metaphone"
	PhoneticNYSIIS    PhoneticAlgorithm = "nysiis"
)

// ParsePhoneticAlgorithm maps a configuration string to a PhoneticAlgorithm. An empty
// string selects Soundex.
func ParsePhoneticAlgorithm(s string) (PhoneticAlgorithm, error) {
	switch PhoneticAlgorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", PhoneticSoundex:
		return PhoneticSoundex, nil
	case PhoneticMetaphone, "double_metaphone":
		return PhoneticMetaphone, nil
	case PhoneticNYSIIS:
		return PhoneticNYSIIS, nil
	default:
		return "", fmt.Errorf("%w: unknown phonetic algorithm %q", domain.ErrInvalidConfiguration, s)
	}
}

// encoder returns every code a surname may be written as. Double Metaphone yields two.
type encoder func(surname string) []string

func newEncoder(alg PhoneticAlgorithm) encoder {
	switch alg {
	case PhoneticMetaphone:
		return func(s string) []string {
			primary, secondary := matchr.DoubleMetaphone(s)
			return nonEmpty(primary, secondary)
		}
	case PhoneticNYSIIS:
		return func(s string) []string {
			return nonEmpty(matchr.NYSIIS(s))
		}
	default:
		return func(s string) []string {
			return nonEmpty(matchr.Soundex(strings.ToUpper(s)))
		}
	}
}

func nonEmpty(codes ...string) []string {
	out := codes[:0]
	for _, c := range codes {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// phoneticMatch reports whether the two surnames share any code. Surnames the encoder cannot
// code (non-Latin scripts) fall back to exact comparison.
func (e *Engine) phoneticMatch(a, b string) bool {
	if !isASCIILetters(a) || !isASCIILetters(b) {
		return a == b
	}
	ca, cb := e.encode(a), e.encode(b)
	if len(ca) == 0 || len(cb) == 0 {
		return a == b
	}
	for _, x := range ca {
		for _, y := range cb {
			if x == y {
				return true
			}
		}
	}
	return false
}

func isASCIILetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 'a' || c > 'z' {
			return false
		}
	}
	return s != ""
}
