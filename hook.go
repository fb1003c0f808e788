package persist

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/mqttsql/persist/internal/constants"
	"github.com/mqttsql/persist/internal/interfaces"
	"github.com/mqttsql/persist/internal/logging"
	"github.com/mqttsql/persist/internal/queue"
	"github.com/mqttsql/persist/internal/retention"
	"github.com/mqttsql/persist/internal/store"
	"github.com/mqttsql/persist/internal/ulid"
	"github.com/mqttsql/persist/internal/writer"
)

// ulidPropertyName is the user-property key the handler reads for
// delete-intent targeting and always writes on the outbound event.
const ulidPropertyName = "ulid"

// Hook is the mochi-mqtt hook that persists accepted publishes to the
// embedded store. It implements the five-state lifecycle of SPEC_FULL.md
// §4.8: a zero-value Hook is Unloaded; Init moves it to Running or, on
// any substep failure, back to Unloaded with whatever was acquired torn
// down; Stop drains and moves it to Unloaded again.
type Hook struct {
	mqtt.HookBase

	// instanceID distinguishes this hook's log lines when a broker process
	// loads more than one persist instance (e.g. against different stores).
	instanceID string

	mu     sync.Mutex
	cfg    *Config
	gen    *ulid.Locked
	db     store.API
	q      *queue.Queue
	w      *writer.Writer
	sweep  *retention.Sweeper
	cancel context.CancelFunc
	log    interfaces.Logger
	obs    interfaces.Observer
}

// New returns an unloaded Hook. Register it with the broker and call
// Init (the broker does this for you via server.AddHook).
func New() *Hook {
	return &Hook{instanceID: uuid.New().String()}
}

// ID identifies this hook instance to the broker. It is stable for the
// lifetime of the Hook value, including across Stop/Init cycles.
func (h *Hook) ID() string { return "mqttsql-persist-" + h.instanceID }

// Provides reports which broker callbacks this hook implements.
func (h *Hook) Provides(b byte) bool {
	return bytes.Contains([]byte{mqtt.OnPublish}, []byte{b})
}

// Init resolves configuration, opens the store, launches the writer and
// the retention sweeper, and transitions the hook to Running. config may
// be a *Config (already resolved), a []Option (broker-presented option
// list), or nil (defaults). The first substep is protocol-version
// negotiation: a host presenting anything other than
// constants.SupportedBrokerVersion via the broker_version option is
// rejected before any resource is acquired. Any failure here is fatal:
// partially acquired resources are torn down and the hook declines to
// register.
func (h *Hook) Init(config any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, err := resolveConfig(config)
	if err != nil {
		return WrapError("hook.init", err)
	}
	if cfg.BrokerVersion != constants.SupportedBrokerVersion {
		return NewError("hook.init", ErrCodeUnsupportedVersion,
			fmt.Sprintf("broker version %d unsupported, only %d is", cfg.BrokerVersion, constants.SupportedBrokerVersion))
	}
	h.cfg = cfg

	if h.log == nil {
		h.log = logging.Default().With(h.ID())
	}
	if h.obs == nil {
		h.obs = NoOpObserver{}
	}

	gen, err := ulid.New(ulid.Options{})
	if err != nil {
		return NewError("hook.init", ErrCodeStoreOpen, fmt.Sprintf("ulid generator: %v", err))
	}
	h.gen = ulid.NewLocked(gen)

	db, err := store.Open(cfg.StorePath, h.log)
	if err != nil {
		return NewError("hook.init", ErrCodeStoreOpen, err.Error())
	}
	h.db = db

	h.q = queue.New(constants.HardQueueCap, cfg.BatchSize, h.log, h.obs)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.w = writer.New(ctx, writer.Config{
		Queue:         h.q,
		Store:         h.db,
		FlushInterval: cfg.FlushInterval,
		Logger:        h.log,
		Observer:      h.obs,
	})
	h.w.Start()

	h.sweep = retention.New(ctx, retention.Config{
		Store:   h.db,
		Horizon: cfg.RetentionHorizon(),
		Logger:  h.log,
	})
	h.sweep.Start()

	h.log.Infof("running: store=%s batch_size=%d flush_interval=%s retention_days=%d",
		cfg.StorePath, cfg.BatchSize, cfg.FlushInterval, cfg.RetentionDays)
	return nil
}

// resolveConfig normalizes Init's config argument into a *Config.
func resolveConfig(config any) (*Config, error) {
	switch v := config.(type) {
	case nil:
		return DefaultConfig(), nil
	case *Config:
		return v, nil
	case []Option:
		return ParseOptions(v)
	default:
		return nil, NewError("hook.init", ErrCodeInvalidOption, fmt.Sprintf("unsupported config type %T", config))
	}
}

// Stop signals Draining: the writer is closed (performing a final drain
// with no timeout), the sweeper is stopped, then the store is closed. A
// store close failure is logged, not returned. After Stop returns the
// hook is Unloaded.
func (h *Hook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	if h.w != nil {
		h.w.Close()
	}
	if h.sweep != nil {
		h.sweep.Close()
	}
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			h.log.Errorf("store close failed: %v", WrapError("hook.stop", err))
		}
	}
	return nil
}

// OnPublish implements SPEC_FULL.md §4.7's per-message policy.
func (h *Hook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	id := h.gen.Next()

	switch {
	case h.cfg.ExcludeTopics.Excluded(pk.TopicName):
		// skip persistence entirely; id is still attached below
	case pk.FixedHeader.Retain && len(pk.Payload) == 0:
		h.handleDeleteIntent(pk)
	default:
		h.enqueueInsert(pk, id)
	}

	attachULID(&pk, id)
	return pk, nil
}

// handleDeleteIntent resolves a target id for a retain+empty-payload
// publish and enqueues a Delete, or logs and skips if no target exists.
func (h *Hook) handleDeleteIntent(pk packets.Packet) {
	target, ok := userProperty(pk.Properties.User, ulidPropertyName)
	if !ok {
		latest, found, err := h.db.LatestID(context.Background(), pk.TopicName)
		if err != nil {
			h.log.Errorf("delete-intent lookup failed for topic %q: %v", pk.TopicName, err)
			return
		}
		if !found {
			h.log.Warnf("delete-intent for topic %q has no target id and no existing row", pk.TopicName)
			return
		}
		target = latest
	}

	h.q.Push(store.Entry{Delete: &store.Delete{Topic: pk.TopicName, ID: target}})
}

// enqueueInsert composes the headers string and pushes an Insert entry.
func (h *Hook) enqueueInsert(pk packets.Packet, id string) {
	headers := composeHeaders(pk.Properties.User, h.cfg.ExcludeHeaders, h.cfg.DisableHeaders)

	h.q.Push(store.Entry{Insert: &store.Insert{
		ID:      id,
		Topic:   pk.TopicName,
		Payload: pk.Payload,
		Retain:  pk.FixedHeader.Retain,
		QoS:     pk.FixedHeader.Qos,
		Headers: headers,
	}})
}

// attachULID appends the outbound ulid user property. It runs on every
// code path through OnPublish, persisted or not.
func attachULID(pk *packets.Packet, id string) {
	pk.Properties.User = append(pk.Properties.User, packets.UserProperty{Key: ulidPropertyName, Val: id})
}

func userProperty(props []packets.UserProperty, key string) (string, bool) {
	for _, p := range props {
		if p.Key == key {
			return p.Val, true
		}
	}
	return "", false
}

// composeHeaders joins surviving user properties as "k=v" pairs
// separated by constants.HeaderSeparator. disableAll stores NULL
// regardless of property content; excluded drops individual names.
func composeHeaders(props []packets.UserProperty, excluded map[string]struct{}, disableAll bool) sql.NullString {
	if disableAll || len(props) == 0 {
		return sql.NullString{}
	}

	pairs := make([]string, 0, len(props))
	for _, p := range props {
		if p.Key == ulidPropertyName {
			continue
		}
		if _, skip := excluded[p.Key]; skip {
			continue
		}
		pairs = append(pairs, p.Key+"="+p.Val)
	}
	if len(pairs) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.Join(pairs, constants.HeaderSeparator), Valid: true}
}
