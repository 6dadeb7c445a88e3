package scoring

import "github.com/okian/bastion/pkg/logger"

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithLogger sets the logger used for dropped ticks and captures.
func WithLogger(l logger.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}
