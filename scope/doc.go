// Package scope provides a structured-concurrency region over a worker
// pool. A scope owns every job spawned into it, directly or
// transitively; Activate does not return until all of them have
// completed, and surfaces exactly one recorded failure.
package scope
