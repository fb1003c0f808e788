package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExecBatchInsertsAndDeletesInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{Insert: &Insert{ID: "01A", Topic: "x", Payload: []byte("a"), Retain: true, QoS: 1}},
		{Delete: &Delete{Topic: "x", ID: "01A"}},
	}

	result, err := s.ExecBatch(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Failed)

	_, found, err := s.LatestID(ctx, "x")
	require.NoError(t, err)
	assert.False(t, found, "row should have been deleted within the same batch")
}

func TestExecBatchDeleteRequiresTopicMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ExecBatch(ctx, []Entry{
		{Insert: &Insert{ID: "01B", Topic: "sensors/1", Payload: []byte("p"), Retain: true, QoS: 0}},
	})
	require.NoError(t, err)

	result, err := s.ExecBatch(ctx, []Entry{
		{Delete: &Delete{Topic: "sensors/2", ID: "01B"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)

	id, found, err := s.LatestID(ctx, "sensors/1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "01B", id)
}

func TestLatestIDNotFound(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.LatestID(context.Background(), "nothing/here")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRetentionDeletesOlderRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ExecBatch(ctx, []Entry{
		{Insert: &Insert{ID: "01AAAAAAAAAAAAAAAAAAAAAAAA", Topic: "old", Payload: []byte("p"), Retain: false, QoS: 0}},
		{Insert: &Insert{ID: "09ZZZZZZZZZZZZZZZZZZZZZZZZ", Topic: "new", Payload: []byte("p"), Retain: false, QoS: 0}},
	})
	require.NoError(t, err)

	removed, err := s.Retention(ctx, "05")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, found, err := s.LatestID(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.LatestID(ctx, "new")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestExecBatchEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	result, err := s.ExecBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, result)
}

func TestHeadersColumnNullWhenAbsent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ExecBatch(ctx, []Entry{
		{Insert: &Insert{ID: "01C", Topic: "y", Payload: []byte("p"), Retain: false, QoS: 0, Headers: sql.NullString{}}},
	})
	require.NoError(t, err)

	var headers sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT headers FROM msg WHERE id = ?`, "01C")
	require.NoError(t, row.Scan(&headers))
	assert.False(t, headers.Valid)
}
