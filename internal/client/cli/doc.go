// Package cli provides the interactive papershelf command-line client.
//
// The REPL works against an engine.Engine: record commands go through the
// record service, so they succeed offline and are synced later; "sync"
// runs the orchestrator on demand and "sync on|off" toggles the
// background scheduler. Notifications, including the retry action offered
// after a failed sync, are printed by a notify.Console.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
