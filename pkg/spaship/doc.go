// Package spaship provides the embeddable orchestrator that activates and
// deactivates independently deployed UI applications as the location
// changes.
//
// Basic usage:
//
//	o, err := spaship.New(spaship.DefaultConfig(), spaship.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	err = o.RegisterApplication(spaship.Registration{
//	    Name:       "navbar",
//	    App:        loadNavbar,
//	    ActiveWhen: "/",
//	})
//	if err := o.Start(ctx); err != nil {
//	    return err
//	}
//	defer o.Stop(ctx)
//
//	mounted, err := o.Navigate(ctx, "/settings")
//
// Applications registered before Start are loaded but not mounted. Start
// lifts that gate and mounts whatever the current location asks for.
package spaship
