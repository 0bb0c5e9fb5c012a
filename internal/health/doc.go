// Package health holds the liveness and readiness probes served on both
// listeners.
//
// A [Probe] passes with a nil error. Dependency checks are built from a
// [CheckFunc] and decorated with [Named], [Timeout] and [Cached] so a slow
// shared rate limit store cannot stall or flood the endpoint. [All] joins
// them, and [ShutdownGate] fails readiness as soon as a drain begins.
package health
