package persist

import (
	"strconv"
	"strings"
	"time"

	"github.com/mqttsql/persist/internal/constants"
	"github.com/mqttsql/persist/internal/logging"
	"github.com/mqttsql/persist/internal/topicmatch"
)

// Option is one broker-presented (key, value) pair from the init option
// list (spec §6).
type Option struct {
	Key   string
	Value string
}

// Config is the plugin's fully-resolved, validated, immutable
// configuration. It is built once at Init and read-only afterward.
type Config struct {
	ExcludeTopics  topicmatch.ExcludeSet
	ExcludeHeaders map[string]struct{}
	DisableHeaders bool
	RetentionDays  int
	BatchSize      int
	FlushInterval  time.Duration
	StorePath      string

	// BrokerVersion is the broker interface version the host presents at
	// init, via the broker_version option. Init rejects anything other
	// than constants.SupportedBrokerVersion.
	BrokerVersion int
}

// DefaultConfig returns a Config with every option at its documented
// default.
func DefaultConfig() *Config {
	return &Config{
		ExcludeHeaders: map[string]struct{}{},
		BatchSize:      constants.DefaultBatchSize,
		FlushInterval:  constants.DefaultFlushInterval,
		StorePath:      constants.DefaultStorePath,
		BrokerVersion:  constants.SupportedBrokerVersion,
	}
}

// ParseOptions resolves opts into a Config, logging once and falling
// back to the default for any out-of-range or malformed value. Unknown
// keys are ignored at Debug level. It never returns a non-nil error —
// the signature exists so future hard-validation has somewhere to live.
func ParseOptions(opts []Option) (*Config, error) {
	cfg := DefaultConfig()

	for _, o := range opts {
		switch o.Key {
		case "exclude_topics":
			patterns := splitNonEmpty(o.Value)
			set, dropped := topicmatch.NewExcludeSet(patterns, constants.MaxExcludePatterns)
			if dropped > 0 {
				logging.Warn("exclude_topics has more than the supported pattern count, ignoring the excess", "max", constants.MaxExcludePatterns, "dropped", dropped)
			}
			cfg.ExcludeTopics = set

		case "batch_size":
			n, err := strconv.Atoi(strings.TrimSpace(o.Value))
			if err != nil || n < constants.MinBatchSize || n > constants.MaxBatchSize {
				logging.Warn("batch_size out of range, using default", "value", o.Value, "default", constants.DefaultBatchSize)
				continue
			}
			cfg.BatchSize = n

		case "flush_interval":
			ms, err := strconv.Atoi(strings.TrimSpace(o.Value))
			interval := time.Duration(ms) * time.Millisecond
			if err != nil || interval < constants.MinFlushInterval || interval > constants.MaxFlushInterval {
				logging.Warn("flush_interval out of range, using default", "value", o.Value, "default_ms", constants.DefaultFlushInterval.Milliseconds())
				continue
			}
			cfg.FlushInterval = interval

		case "retention_days":
			n, err := strconv.Atoi(strings.TrimSpace(o.Value))
			if err != nil || n < 0 {
				logging.Warn("retention_days out of range, using default", "value", o.Value)
				continue
			}
			cfg.RetentionDays = n

		case "exclude_headers":
			if strings.TrimSpace(o.Value) == constants.DisableHeadersSentinel {
				cfg.DisableHeaders = true
				continue
			}
			names := splitNonEmpty(o.Value)
			set := make(map[string]struct{}, len(names))
			for _, n := range names {
				set[n] = struct{}{}
			}
			cfg.ExcludeHeaders = set

		case "broker_version":
			n, err := strconv.Atoi(strings.TrimSpace(o.Value))
			if err != nil {
				logging.Warn("broker_version is not an integer, using default", "value", o.Value, "default", constants.SupportedBrokerVersion)
				continue
			}
			cfg.BrokerVersion = n

		default:
			logging.Debug("ignoring unrecognized option", "key", o.Key)
		}
	}

	return cfg, nil
}

// RetentionHorizon converts RetentionDays into a time.Duration; zero
// means the sweeper is disabled.
func (c *Config) RetentionHorizon() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
