package internal

// Option configures the conformance server before it starts.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig supplies a loaded configuration instead of the defaults.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
