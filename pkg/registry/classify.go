package registry

import (
	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/navigation"
)

// Changes are the buckets a reroute pass works through.
type Changes struct {
	ToLoad    []*app.Record
	ToMount   []*app.Record
	ToUnmount []*app.Record
	ToUnload  []*app.Record
}

// Total is the number of applications that will change.
func (c Changes) Total() int {
	return len(c.ToLoad) + len(c.ToMount) + len(c.ToUnmount) + len(c.ToUnload)
}

// Empty reports whether no application will change.
func (c Changes) Empty() bool {
	return c.Total() == 0
}

// Classify partitions the registered applications for a pass at loc.
// Each application lands in at most one bucket. Records in transitional
// states are left alone.
func (r *Registry) Classify(loc navigation.Location) Changes {
	var c Changes
	now := r.clock.Now()

	for _, rec := range r.Records() {
		active := r.ShouldBeActive(rec, loc)

		switch rec.Status() {
		case app.StatusLoadError:
			if active && now.Sub(rec.LoadErrorTime()) >= rec.LoadErrorCooldown() {
				c.ToLoad = append(c.ToLoad, rec)
			}
		case app.StatusNotLoaded, app.StatusLoadingSourceCode:
			if active {
				c.ToLoad = append(c.ToLoad, rec)
			}
		case app.StatusNotBootstrapped, app.StatusNotMounted:
			if !active && r.PendingUnload(rec.Name()) != nil {
				c.ToUnload = append(c.ToUnload, rec)
			} else if active {
				c.ToMount = append(c.ToMount, rec)
			}
		case app.StatusMounted:
			if !active {
				c.ToUnmount = append(c.ToUnmount, rec)
			}
		}
	}
	return c
}
