// Package store provides a bounded in-memory key/value store with
// per-entry TTLs, LRU eviction and negative caching of failed loads.
// It is the single shared mutable resource of the optimization engine.
package store
