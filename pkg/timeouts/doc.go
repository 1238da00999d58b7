// Package timeouts holds lifecycle deadline policies and the guard that
// enforces them around a single lifecycle callback.
//
// A Policy has a hard deadline, a warning interval and a flag deciding
// whether passing the deadline is fatal. Settings is the process-wide store
// of per-lifecycle defaults. A loaded module may override individual fields
// with Overrides.
//
// # Guard behavior
//
// The guard starts the callback and waits. While it is pending, the first
// warning fires at Warning if that is before the deadline, and the k-th
// fires at k*Warning as long as k*Warning+Warning is still before it. At the deadline the guard fails with a *TimeoutError when
// DieOnTimeout is set. Otherwise it logs once and keeps waiting for the
// callback to settle. It never fabricates a success and it settles exactly
// once.
package timeouts
