package snapshot

import "github.com/bft-labs/spaship/pkg/spaship"

// WithSnapshot returns an Option that writes status.json to dir after every
// reroute pass.
//
// Usage:
//
//	o, err := spaship.New(cfg, snapshot.WithSnapshot("/var/lib/spaship"))
func WithSnapshot(dir string) spaship.Option {
	return spaship.WithPlugin(New(Config{Dir: dir}))
}
