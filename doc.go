// Package tuneup keeps an application responsive by caching expensive
// resources and trimming the cache as the host runs short on CPU, memory,
// or disk.
//
// An Engine composes three parts: a bounded TTL store with LRU eviction,
// a sampler that classifies resource pressure as Low, Medium, or High,
// and a background scheduler that sweeps expired entries every interval
// and shrinks the store when pressure rises. Values are produced on
// demand through GetOrLoad; load failures are cached negatively for a
// short window so a missing asset is not re-decoded on every paint.
//
// The configuration passed to New is fixed for the Engine's lifetime.
// Changing settings means constructing a new Engine.
package tuneup
