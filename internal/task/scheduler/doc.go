// Package scheduler keeps the in-memory job table and decides when jobs fire.
//
// Two job kinds exist:
//   - one-shot jobs fire once at an absolute instant and then leave the table
//   - daily jobs fire every day at HH:MM UTC until removed
//
// Firing never executes work inline. A fired job is handed to a Runner
// (the task engine in production) which calls the Dispatcher with the job's
// payload. The table is not persisted; startup reconciliation rebuilds the
// daily jobs from the record store.
package scheduler
