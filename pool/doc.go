// Package pool implements a fixed worker pool: a set of worker
// goroutines started once, drawing jobs from a shared injection queue.
// It also answers worker-identity queries and provides a probe-based
// blocking primitive that keeps a blocked worker busy executing other
// available jobs instead of sleeping.
package pool
