// Package registry keeps the ordered set of registered applications.
//
// It validates registrations, answers status queries, classifies records
// into the load, mount, unmount and unload buckets for a reroute pass, and
// tracks which applications have an unload pending.
package registry
