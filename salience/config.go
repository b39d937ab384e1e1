package salience

import (
	"fmt"
	"math"

	"github.com/nsqe/nsqe/errs"
)

// Config weights the three terms of the mesolimbic scorer. EntropyWeight,
// AttentionWeight, and RolePriorWeight must sum to 1, validated by New.
type Config struct {
	EntropyWeight   float64
	AttentionWeight float64
	RolePriorWeight float64

	// PrivacyEpsilon, when > 0, perturbs exported scores with bounded
	// Laplace noise scaled by 1/PrivacyEpsilon before ScoreTokens returns
	// them.
	PrivacyEpsilon float64

	// Seed drives both the PrivacyEpsilon noise and anything else in this
	// package that would otherwise be nondeterministic, so two calls with
	// identical inputs and Seed always agree.
	Seed int64
}

// DefaultConfig weights entropy and attention mass equally ahead of the
// role prior, with privacy noise off.
func DefaultConfig() Config {
	return Config{
		EntropyWeight:   0.4,
		AttentionWeight: 0.4,
		RolePriorWeight: 0.2,
	}
}

func (c Config) validate() error {
	sum := c.EntropyWeight + c.AttentionWeight + c.RolePriorWeight
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("%w: salience weights must sum to 1, got %.4f", errs.ErrInvalidInput, sum)
	}
	if c.PrivacyEpsilon < 0 {
		return fmt.Errorf("%w: negative privacy epsilon %.4f", errs.ErrInvalidInput, c.PrivacyEpsilon)
	}
	return nil
}
