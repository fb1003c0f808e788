package writer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqttsql/persist/internal/queue"
	"github.com/mqttsql/persist/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "writer.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriterFlushesOnTimeout(t *testing.T) {
	s := openTestStore(t)
	q := queue.New(15000, 100, nil, nil)
	w := New(context.Background(), Config{Queue: q, Store: s, FlushInterval: 20 * time.Millisecond})
	w.Start()
	defer w.Close()

	q.Push(makeInsert("01A", "data/1"))

	require.Eventually(t, func() bool {
		_, found, err := s.LatestID(context.Background(), "data/1")
		return err == nil && found
	}, time.Second, 10*time.Millisecond)
}

func TestWriterFlushesOnThreshold(t *testing.T) {
	s := openTestStore(t)
	q := queue.New(15000, 3, nil, nil)
	w := New(context.Background(), Config{Queue: q, Store: s, FlushInterval: 10 * time.Second})
	w.Start()
	defer w.Close()

	q.Push(makeInsert("01A", "x"))
	q.Push(makeInsert("01B", "x"))
	q.Push(makeInsert("01C", "x"))

	require.Eventually(t, func() bool {
		id, found, err := s.LatestID(context.Background(), "x")
		return err == nil && found && id == "01C"
	}, time.Second, 10*time.Millisecond)
}

func TestWriterFinalDrainOnClose(t *testing.T) {
	s := openTestStore(t)
	q := queue.New(15000, 100, nil, nil)
	w := New(context.Background(), Config{Queue: q, Store: s, FlushInterval: 10 * time.Second})
	w.Start()

	q.Push(makeInsert("01Z", "final"))
	w.Close()

	_, found, err := s.LatestID(context.Background(), "final")
	require.NoError(t, err)
	assert.True(t, found, "final drain on Close should have persisted the pending entry")
}

func makeInsert(id, topic string) store.Entry {
	return store.Entry{Insert: &store.Insert{ID: id, Topic: topic, Payload: []byte("p"), Retain: false, QoS: 0}}
}
