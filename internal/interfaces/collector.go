package interfaces

// Collector is the process-wide observability surface. It is passed by
// reference into the engine rather than reached through ambient singletons
// so tests can substitute a no-op implementation.
type Collector interface {
	// Incr increments a named counter by one
	Incr(name string)

	// Add increments a named counter by n
	Add(name string, n int64)

	// Snapshot returns a copy of all counters
	Snapshot() map[string]int64
}
