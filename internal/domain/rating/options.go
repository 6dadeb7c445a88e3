package rating

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTiers replaces the rank ladder. Empty tables are ignored.
func WithTiers(tiers []Tier) Option {
	return func(e *Engine) {
		if len(tiers) > 0 {
			e.tiers = newTierTable(tiers)
		}
	}
}

// WithKFactor overrides the delta scale.
func WithKFactor(k float64) Option {
	return func(e *Engine) {
		if k > 0 {
			e.k = k
		}
	}
}
