// Package store defines the storage adapter contract used by the resource
// repository. An adapter loads a whole Collection of one kind and saves it
// back; saving is the serialization point and detects conflicting writes
// per record by comparing versions against the ones that were loaded.
//
// Concrete adapters live under internal/platform (file, SQL document table,
// MongoDB). MemoryAdapter in this package serves tests and ephemeral runs.
package store
