package persist

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqttsql/persist/internal/ulid"
)

// openRawDB opens a second connection straight to the hook's store file,
// bypassing store.API, so tests can assert on columns the API never
// surfaces (headers) or on raw insertion order (rowid).
func openRawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func rowCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM msg`).Scan(&n))
	return n
}

func newTestHook(t *testing.T, opts []Option) *Hook {
	t.Helper()
	cfg, err := ParseOptions(opts)
	require.NoError(t, err)
	cfg.StorePath = filepath.Join(t.TempDir(), "hook.db")

	h := New()
	require.NoError(t, h.Init(cfg))
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

func publishPacket(topic string, payload []byte, retain bool) packets.Packet {
	return packets.Packet{
		TopicName:   topic,
		Payload:     payload,
		FixedHeader: packets.FixedHeader{Retain: retain, Qos: 1},
	}
}

func TestOnPublishInsertsRowAndAttachesULID(t *testing.T) {
	h := newTestHook(t, nil)

	out, err := h.OnPublish(nil, publishPacket("data/sensor/1", []byte(`{"t":42}`), false))
	require.NoError(t, err)

	val, ok := userProperty(out.Properties.User, ulidPropertyName)
	require.True(t, ok, "outbound event must carry a ulid user property")
	require.NoError(t, ulid.Validate(val))

	require.Eventually(t, func() bool {
		id, found, err := h.db.LatestID(context.Background(), "data/sensor/1")
		return err == nil && found && id == val
	}, time.Second, 5*time.Millisecond)
}

func TestOnPublishExcludedTopicSkipsPersistence(t *testing.T) {
	h := newTestHook(t, []Option{{Key: "exclude_topics", Value: "cmd/#"}})

	out, err := h.OnPublish(nil, publishPacket("cmd/reboot", []byte("now"), false))
	require.NoError(t, err)

	_, ok := userProperty(out.Properties.User, ulidPropertyName)
	assert.True(t, ok, "id is still attached even when filtered")

	time.Sleep(20 * time.Millisecond)
	_, found, err := h.db.LatestID(context.Background(), "cmd/reboot")
	require.NoError(t, err)
	assert.False(t, found, "excluded topic must never be persisted")
}

func TestOnPublishDeleteIntentWithULIDProperty(t *testing.T) {
	h := newTestHook(t, nil)

	out, err := h.OnPublish(nil, publishPacket("x", []byte("a"), true))
	require.NoError(t, err)
	insertedID, _ := userProperty(out.Properties.User, ulidPropertyName)

	require.Eventually(t, func() bool {
		_, found, err := h.db.LatestID(context.Background(), "x")
		return err == nil && found
	}, time.Second, 5*time.Millisecond)

	deletePk := publishPacket("x", nil, true)
	deletePk.Properties.User = []packets.UserProperty{{Key: ulidPropertyName, Val: insertedID}}
	_, err = h.OnPublish(nil, deletePk)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, found, err := h.db.LatestID(context.Background(), "x")
		return err == nil && !found
	}, time.Second, 5*time.Millisecond)
}

func TestOnPublishDeleteIntentFallsBackToLatest(t *testing.T) {
	h := newTestHook(t, nil)

	_, err := h.OnPublish(nil, publishPacket("y", []byte("a"), true))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, found, err := h.db.LatestID(context.Background(), "y")
		return err == nil && found
	}, time.Second, 5*time.Millisecond)

	_, err = h.OnPublish(nil, publishPacket("y", nil, true))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, found, err := h.db.LatestID(context.Background(), "y")
		return err == nil && !found
	}, time.Second, 5*time.Millisecond)
}

func TestOnPublishDeleteIntentWithNoTargetIsSkipped(t *testing.T) {
	h := newTestHook(t, nil)

	out, err := h.OnPublish(nil, publishPacket("z", nil, true))
	require.NoError(t, err)

	_, ok := userProperty(out.Properties.User, ulidPropertyName)
	assert.True(t, ok)

	_, found, err := h.db.LatestID(context.Background(), "z")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOnPublishDeleteMismatchedTopicDeletesNothing(t *testing.T) {
	h := newTestHook(t, nil)

	out, err := h.OnPublish(nil, publishPacket("a", []byte("v"), true))
	require.NoError(t, err)
	id, _ := userProperty(out.Properties.User, ulidPropertyName)

	require.Eventually(t, func() bool {
		_, found, err := h.db.LatestID(context.Background(), "a")
		return err == nil && found
	}, time.Second, 5*time.Millisecond)

	mismatched := publishPacket("b", nil, true)
	mismatched.Properties.User = []packets.UserProperty{{Key: ulidPropertyName, Val: id}}
	_, err = h.OnPublish(nil, mismatched)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, found, err := h.db.LatestID(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, found, "a mismatched topic must not delete a row in a different topic")
}

func TestInitRejectsUnsupportedConfigType(t *testing.T) {
	h := New()
	err := h.Init(42)
	require.Error(t, err)
}

func TestInitRejectsUnsupportedBrokerVersion(t *testing.T) {
	cfg, err := ParseOptions([]Option{{Key: "broker_version", Value: "4"}})
	require.NoError(t, err)
	cfg.StorePath = filepath.Join(t.TempDir(), "hook.db")

	h := New()
	err = h.Init(cfg)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeUnsupportedVersion))
}

func TestOnPublishExcludeHeadersDropsExcludedProperty(t *testing.T) {
	h := newTestHook(t, []Option{{Key: "exclude_headers", Value: "secret"}})

	pk := publishPacket("y", []byte("p"), true)
	pk.Properties.User = []packets.UserProperty{
		{Key: "tag", Val: "A"},
		{Key: "secret", Val: "hidden"},
	}
	_, err := h.OnPublish(nil, pk)
	require.NoError(t, err)

	db := openRawDB(t, h.cfg.StorePath)
	var headers sql.NullString
	require.Eventually(t, func() bool {
		err := db.QueryRow(`SELECT headers FROM msg WHERE topic = ?`, "y").Scan(&headers)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	require.True(t, headers.Valid)
	assert.Contains(t, headers.String, "tag=A")
	assert.NotContains(t, headers.String, "secret")
}

func TestOnPublishThousandMessagesAcrossThousandTopicsInsertedInOrder(t *testing.T) {
	h := newTestHook(t, []Option{{Key: "batch_size", Value: "100"}, {Key: "flush_interval", Value: "20"}})

	const n = 1000
	want := make([]string, n)
	for i := 0; i < n; i++ {
		topic := fmt.Sprintf("data/sensor/%d", i)
		out, err := h.OnPublish(nil, publishPacket(topic, []byte("v"), false))
		require.NoError(t, err)

		id, ok := userProperty(out.Properties.User, ulidPropertyName)
		require.True(t, ok)
		want[i] = id
	}

	db := openRawDB(t, h.cfg.StorePath)
	require.Eventually(t, func() bool {
		return rowCount(t, db) == n
	}, 2*time.Second, 20*time.Millisecond, "expected exactly %d rows", n)

	rows, err := db.Query(`SELECT id FROM msg ORDER BY rowid ASC`)
	require.NoError(t, err)
	defer rows.Close()

	got := make([]string, 0, n)
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		got = append(got, id)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, want, got, "ids must be stored in publish order")
}
