// Package storage persists what crosspost needs to remember between runs:
//
//   - the posted ledger, one row per (article, destination) that went out
//   - the run history, one row per finished run
//
// Storage is optional. With no driver configured Open returns a nil Store and
// callers run without duplicate protection or history.
package storage
