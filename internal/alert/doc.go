// Package alert sends short operator messages when a run fails.
//
// Alerts go through a small async pipeline: bounded queue, one worker,
// token-bucket rate limit, retry with jittered exponential backoff and an
// in-memory dedup window so a source that stays down does not page the
// operator on every scheduled tick.
//
// The service listens for run.finished events on the event bus and turns
// failed runs into alerts; other components may call Notify directly.
package alert
