// Package log provides the logging abstraction used by every spaship component.
//
// Components never talk to a concrete logging library. They receive a Logger
// and attach typed fields. The zerolog adapter is the production
// implementation and the no-op logger is the library default.
//
// # Usage
//
//	logger := log.NewZerologAdapter(zerolog.InfoLevel, os.Stderr)
//	logger.Info("application mounted", log.App("navbar"), log.Duration("took", d))
//
// Scope a logger to a component with With:
//
//	schedLog := log.With(logger, log.String("component", "reroute"))
package log
