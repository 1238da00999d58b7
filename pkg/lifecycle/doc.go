// Package lifecycle implements the transition functions that move an
// application or parcel through load, bootstrap, mount, unmount and unload.
//
// Every transition claims its record with app.Record.Begin. If the record is
// not in a valid source status the call is a no-op and returns nil, so the
// scheduler can invoke transitions without checking status first. Lifecycle
// callbacks run under the timeouts.Guard.
//
// Failures in application code never escape as errors. They move the record
// to LOAD_ERROR or SKIP_BECAUSE_BROKEN and are reported to the error handler.
// Parcels are the exception. Their failures are also returned to the caller
// that mounted or unmounted them.
//
// # Usage
//
//	t := lifecycle.New(lifecycle.Config{
//		Settings: settings,
//		Guard:    timeouts.NewGuard(clock, logger),
//		Unloads:  reg,
//		Location: history.Location,
//	})
//	_ = t.Load(ctx, rec)
//	_ = t.Bootstrap(ctx, rec)
//	_ = t.Mount(ctx, rec)
package lifecycle
