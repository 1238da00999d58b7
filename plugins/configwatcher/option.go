package configwatcher

import "github.com/bft-labs/spaship/pkg/spaship"

// WithConfigWatcher returns an Option that enables timeouts file watching.
//
// Usage:
//
//	o, err := spaship.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/spaship/timeouts.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) spaship.Option {
	plugin := New(cfg)
	return spaship.WithPlugin(plugin)
}

// WithDefaultConfigWatcher watches path with the default debounce of 100ms.
//
// Usage:
//
//	o, err := spaship.New(cfg, configwatcher.WithDefaultConfigWatcher(path))
func WithDefaultConfigWatcher(path string) spaship.Option {
	return WithConfigWatcher(DefaultConfig(path))
}
