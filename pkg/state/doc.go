// Package state persists a snapshot of the orchestrator's application
// statuses so that operators and tooling can inspect the last settled
// reroute without attaching to the process.
//
// # Usage
//
// Create a file-based repository:
//
//	repo := state.NewFileRepository("/var/lib/spaship")
//
//	snap := state.Snapshot{URL: loc.Href, Mounted: mounted, Applications: statuses}
//	if err := repo.Save(ctx, snap); err != nil {
//	    return err
//	}
//
//	// Load the last snapshot
//	s, err := repo.Load(ctx)
//
// Snapshots are written as indented JSON with snake_case field names and
// replaced atomically.
package state
