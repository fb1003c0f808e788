// Package constants holds the default and hard-limit values for the
// persistence plugin's configuration, queue, and retention sweep.
package constants

import "time"

// Queue defaults and hard limits.
const (
	// HardQueueCap is the maximum number of pending queue entries. Producers
	// that would exceed it drop the oldest queued entry rather than grow
	// without bound or crash.
	HardQueueCap = 15000

	// DefaultBatchSize is the queue-size threshold that triggers an early
	// drain of the write queue, ahead of the flush-interval timeout.
	DefaultBatchSize = 100

	// MaxBatchSize is the largest batch_size option accepted; it can never
	// exceed HardQueueCap.
	MaxBatchSize = HardQueueCap

	// MinBatchSize is the smallest batch_size option accepted.
	MinBatchSize = 1
)

// Batch writer timing defaults and bounds.
const (
	// DefaultFlushInterval is how long the writer waits between drains when
	// the batch-size threshold hasn't been reached.
	DefaultFlushInterval = 50 * time.Millisecond

	// MinFlushInterval and MaxFlushInterval bound the flush_interval option.
	MinFlushInterval = 1 * time.Millisecond
	MaxFlushInterval = 10 * time.Second
)

// RetentionSweepInterval is the retention sweeper's fixed cadence.
const RetentionSweepInterval = 1 * time.Hour

// MaxExcludePatterns is the maximum number of exclude_topics patterns
// honored; patterns beyond this count are logged and ignored.
const MaxExcludePatterns = 64

// HeaderSeparator joins surviving user-property k=v pairs in the stored
// headers column. MQTT v5 user-property names and values may contain any
// UTF-8 text, but this plugin reserves ';' as the pair separator (see
// internal/store/doc.go).
const HeaderSeparator = ";"

// DisableHeadersSentinel is the exclude_headers value that disables header
// storage altogether instead of naming a single property to drop.
const DisableHeadersSentinel = "#"

// DefaultStorePath is the filesystem path used when a deployment does not
// set Config.StorePath. There is no option key for it; ParseOptions always
// leaves this default in place.
const DefaultStorePath = "mqttpersist.db"

// SupportedBrokerVersion is the only broker interface version this plugin
// negotiates. Init rejects any other value outright; this is not a
// configuration error subject to the usual log-and-default handling.
const SupportedBrokerVersion = 5
