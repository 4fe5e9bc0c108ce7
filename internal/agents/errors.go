package agents

import "errors"

// Failure classes. Callers wrap them with context and test with errors.Is.
var (
	// ErrConfiguration covers invalid topology parameters and mix fractions.
	ErrConfiguration = errors.New("configuration error")

	// ErrDegenerateNormalization means maxP equals minP for an imitation comparison.
	ErrDegenerateNormalization = errors.New("degenerate payoff normalization")

	// ErrEmptyGroup means a group game or selection found nobody to play with.
	ErrEmptyGroup = errors.New("empty group")

	// ErrInvalidAction means an action outside the game's action set was observed.
	ErrInvalidAction = errors.New("invalid action")
)
