// Package shredder implements a concurrent tracing garbage collector for
// values reachable only through Handle, its managed reference type.
//
// Reference counting alone cannot reclaim a cycle: two values that point
// at each other stay "referenced" forever even once nothing outside the
// cycle can reach either of them. This package instead tracks every
// allocated value in a registry, periodically traces which allocations
// are reachable from handles held by mutator code, and reclaims the rest
// on a background thread.
//
// The collector is a process-wide singleton, lazily started on first use.
// There is no explicit shutdown; the background threads run for the life
// of the process.
package shredder
