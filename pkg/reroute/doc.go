// Package reroute implements the reconciliation loop that brings every
// registered application to the status its activity predicate asks for.
//
// At most one pass runs at a time. Triggers that arrive while a pass is
// underway are queued, and when the pass ends exactly one follow-up pass
// runs on behalf of all of them. Within a pass every unmount and unload
// settles before any application is loaded, bootstrapped or mounted.
package reroute
