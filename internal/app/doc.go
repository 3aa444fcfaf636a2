// Package app wires the producer, consumer and supervisor into one system.
//
// New creates the shared resources: heap, channel, health signal, task
// runtime and watchdog. Start boots the generator and receiver, then the
// supervisor task that keeps them alive. A failure at either step is fatal
// for the device: the restarter is asked to restart and the error is
// returned wrapped in ErrResourceCreation.
//
// Example Usage:
//
//	sys, err := app.New(app.Options{Config: cfg, Logger: logger, Restarter: latch})
//	if err != nil {
//	    return err
//	}
//	if err := sys.Start(ctx); err != nil {
//	    return err
//	}
//	defer sys.Stop(context.Background())
package app
