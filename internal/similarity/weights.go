package similarity

import (
	"math"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// weightSumTolerance absorbs float rounding in configured weights such as 0.33/0.33/0.34.
const weightSumTolerance = 1e-6

// Weights are the fusion weights of the four signals. They must each lie in [0,1] and sum to 1.
type Weights struct {
	Phonetic     float64 `json:"phonetic" mapstructure:"phonetic"`
	EditDistance float64 `json:"edit_distance" mapstructure:"edit_distance"`
	TokenSet     float64 `json:"token_set" mapstructure:"token_set"`
	Initials     float64 `json:"initials" mapstructure:"initials"`
}

// DefaultWeights returns equal weighting.
func DefaultWeights() Weights {
	return Weights{Phonetic: 0.25, EditDistance: 0.25, TokenSet: 0.25, Initials: 0.25}
}

// Validate rejects weights outside [0,1], NaN weights and sets that do not sum to 1.
func (w Weights) Validate() error {
	named := []struct {
		name  string
		value float64
	}{
		{"weights.phonetic", w.Phonetic},
		{"weights.edit_distance", w.EditDistance},
		{"weights.token_set", w.TokenSet},
		{"weights.initials", w.Initials},
	}
	for _, n := range named {
		if math.IsNaN(n.value) || n.value < 0 || n.value > 1 {
			return domain.NewConfigurationError(n.name, n.value, "must be within [0,1]")
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightSumTolerance {
		return domain.NewConfigurationError("weights", sum, "must sum to 1")
	}
	return nil
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Phonetic + w.EditDistance + w.TokenSet + w.Initials
}
