// Package events defines the notifications emitted around every reroute pass
// and the synchronous bus that delivers them.
//
// A pass emits, in order:
//
//	before-app-change | before-no-app-change
//	before-routing-event        (listeners may cancel the navigation here)
//	before-mount-routing-event  (unmount and unload have settled)
//	app-change | no-app-change
//	routing-event
//
// Listeners run on the scheduler goroutine and must not block. Use
// ObserverBridge to forward notifications as CloudEvents to asynchronous
// observers.
package events
