// Package ratelimit bounds how many operations an identifier (usually the
// client IP) may perform per fixed time window.
//
// Each Limiter is an isolated counter space. Windows are fixed, not sliding:
// a record starts on the first check for an identifier and is replaced
// wholesale once its reset time has passed, so up to 2x the limit can land
// around a window boundary.
//
// Counters live in a Store. MemoryStore keeps them in process and evicts
// expired windows in the background; RedisStore shares them between
// instances. When a shared store fails the limiter falls back to its
// in-process store, so CheckLimit never fails toward the caller.
package ratelimit
