// Package interfaces provides internal interface definitions for mqttpersist.
// These are separate from the public interfaces to avoid circular imports
// between the root package and internal packages.
package interfaces

// Logger is the minimal logging surface internal packages depend on. It is
// satisfied by *logging.Logger without internal/queue and internal/writer
// needing to import internal/logging directly at the type level. The Hook
// holds its own derived logger through this interface as well.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Observer receives counts for persistence outcomes. Implementations must
// be thread-safe: methods are called from both the publish thread (queue
// enqueues and drops) and the writer goroutine (batch outcomes).
type Observer interface {
	ObserveEnqueued(kind string)
	ObserveDropped(reason string)
	ObserveBatch(inserted, deleted, failed int, tookNs uint64)
}
