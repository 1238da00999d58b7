package state

import (
	"sort"
	"time"

	"github.com/bft-labs/spaship/pkg/app"
)

// Snapshot is the settled state after one reroute pass.
type Snapshot struct {
	// URL is the location the pass reconciled against
	URL string `json:"url"`

	// Mounted lists the mounted applications in registration order
	Mounted []string `json:"mounted"`

	// Applications maps every registered application to its status
	Applications map[string]app.Status `json:"applications"`

	// TotalAppChanges is how many applications the pass changed
	TotalAppChanges int `json:"total_app_changes"`

	// CapturedAt is when the snapshot was taken
	CapturedAt time.Time `json:"captured_at"`
}

// IsEmpty returns true if no snapshot has been recorded.
func (s Snapshot) IsEmpty() bool {
	return s.CapturedAt.IsZero()
}

// Names returns the application names in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Applications))
	for name := range s.Applications {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns how many applications are in status.
func (s Snapshot) Count(status app.Status) int {
	n := 0
	for _, st := range s.Applications {
		if st == status {
			n++
		}
	}
	return n
}
