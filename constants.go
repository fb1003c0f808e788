package persist

import "github.com/mqttsql/persist/internal/constants"

// Re-exported so callers configuring the plugin don't need to import the
// internal package directly.
const (
	HardQueueCap           = constants.HardQueueCap
	DefaultBatchSize       = constants.DefaultBatchSize
	MaxBatchSize           = constants.MaxBatchSize
	MinBatchSize           = constants.MinBatchSize
	DefaultFlushInterval   = constants.DefaultFlushInterval
	MinFlushInterval       = constants.MinFlushInterval
	MaxFlushInterval       = constants.MaxFlushInterval
	RetentionSweepInterval = constants.RetentionSweepInterval
	MaxExcludePatterns     = constants.MaxExcludePatterns
	HeaderSeparator        = constants.HeaderSeparator
	DisableHeadersSentinel = constants.DisableHeadersSentinel
	DefaultStorePath       = constants.DefaultStorePath
	SupportedBrokerVersion = constants.SupportedBrokerVersion
)
