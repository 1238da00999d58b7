// Package navigation models the environment's navigation state.
//
// A Location is an immutable snapshot of the current URL. History owns the
// current location, turns push/replace/navigate calls into navigation events
// and hands them to the installed router hook. It also captures listeners
// registered for "hashchange" and "popstate" so they can be replayed after
// the applications affected by a navigation have been unmounted.
//
// # Usage
//
//	h := navigation.NewHistory("https://shell.example/")
//	h.SetRouter(func(evt navigation.Event) { scheduler.Trigger(&evt) })
//	_ = h.NavigateToURL("/settings#profile")
package navigation
