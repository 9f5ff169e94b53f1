// Package reconcile keeps a local metadata store and an external catalog in step.
//
// A Driver walks one Target at a time in two passes. The local review enumerates
// the members the local store knows and fetches each one's external resource. The
// remote review lists the external collection and looks up every resource the
// local review did not already settle. Each pair is classified into an Action
// under the run's Policy and the action is applied before the next pair is read.
// Child targets (volumes under a schema) run after their parent target completes.
//
// A run holds no locks and never retries. It is safe to repeat: a settled pair
// classifies as NoAction on the next run.
package reconcile
