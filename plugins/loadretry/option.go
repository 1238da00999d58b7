package loadretry

import "github.com/bft-labs/spaship/pkg/spaship"

// WithLoadRetry returns an Option that installs the load retry plugin.
//
// Usage:
//
//	o, err := spaship.New(cfg,
//	    loadretry.WithLoadRetry(loadretry.Config{
//	        InitialInterval: 200 * time.Millisecond,
//	        MaxInterval:     10 * time.Second,
//	    }),
//	)
func WithLoadRetry(cfg Config) spaship.Option {
	return spaship.WithPlugin(New(cfg))
}

// WithDefaultLoadRetry installs the load retry plugin with default settings.
func WithDefaultLoadRetry() spaship.Option {
	return WithLoadRetry(DefaultConfig())
}
