package arithsls

import "go.uber.org/zap"

// Config carries the engine tunables. Zero values are replaced by
// DefaultConfig values in NewEngine.
type Config struct {
	// UseTabu enables the tabu window and bound-clipping discipline on
	// candidate updates.
	UseTabu bool

	// UseLookahead enables the global lookahead search loop inside
	// StartPropagation.
	UseLookahead bool

	// CB is the base of the break-count penalty: a candidate breaking k
	// previously satisfied atoms scores CB^-k.
	CB float64

	// UpdatesMaxSize caps the candidate update pool; excess candidates are
	// evicted uniformly at random before scoring.
	UpdatesMaxSize int

	// VarRange bounds the absolute value any variable may take; moves
	// leaving the range are rejected outright.
	VarRange int64

	// PawsInit is the initial weight of every root assertion.
	PawsInit int

	// PawsSP is the smoothing probability (out of 2048) of decreasing
	// weights of satisfied assertions during recalibration.
	PawsSP int

	// WP is the probability (out of 2048) of trying a pure random
	// increment/decrement move before hill climbing.
	WP int

	// RestartBase paces the restart schedule and the periodic rescore.
	RestartBase uint64

	// MaxMovesBase is the per-invocation move budget of the global search;
	// exhausting it grows the budget for the next invocation.
	MaxMovesBase uint64

	// UCB enables bandit selection of unsatisfied root assertions; when
	// false a uniform reservoir sample is used.
	UCB bool

	// UCBConstant scales the exploration bonus.
	UCBConstant float64

	// UCBNoise scales the random tie-breaking noise.
	UCBNoise float64

	// UCBForget decays touch counts during periodic rescoring; a value of
	// 1.0 disables forgetting.
	UCBForget float64

	// Logger receives diagnostic events (overflow notices, repair traces,
	// restarts). Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		UseTabu:        true,
		UseLookahead:   false,
		CB:             2.85,
		UpdatesMaxSize: 45,
		VarRange:       int64(1) << 40,
		PawsInit:       40,
		PawsSP:         52,
		WP:             100,
		RestartBase:    1000,
		MaxMovesBase:   800,
		UCB:            true,
		UCBConstant:    20.0,
		UCBNoise:       0.0002,
		UCBForget:      0.1,
		Logger:         zap.NewNop(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CB == 0 {
		c.CB = d.CB
	}
	if c.UpdatesMaxSize == 0 {
		c.UpdatesMaxSize = d.UpdatesMaxSize
	}
	if c.VarRange == 0 {
		c.VarRange = d.VarRange
	}
	if c.PawsInit == 0 {
		c.PawsInit = d.PawsInit
	}
	if c.PawsSP == 0 {
		c.PawsSP = d.PawsSP
	}
	if c.WP == 0 {
		c.WP = d.WP
	}
	if c.RestartBase == 0 {
		c.RestartBase = d.RestartBase
	}
	if c.MaxMovesBase == 0 {
		c.MaxMovesBase = d.MaxMovesBase
	}
	if c.UCBConstant == 0 {
		c.UCBConstant = d.UCBConstant
	}
	if c.UCBNoise == 0 {
		c.UCBNoise = d.UCBNoise
	}
	if c.UCBForget == 0 {
		c.UCBForget = d.UCBForget
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
