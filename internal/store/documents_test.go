package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "quests", "q1", []byte(`{"name":"run"}`)))

	doc, err := s.Get(ctx, "quests", "q1")
	require.NoError(t, err)
	assert.Equal(t, "quests", doc.Collection)
	assert.Equal(t, "q1", doc.ID)
	assert.JSONEq(t, `{"name":"run"}`, string(doc.Body))
	assert.Equal(t, int64(1), doc.Version)
	assert.False(t, doc.UpdatedAt.IsZero())
}

func TestUpsert_LastWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "quests", "q1", []byte(`{"v":1}`)))
	require.NoError(t, s.Upsert(ctx, "quests", "q1", []byte(`{"v":2}`)))
	require.NoError(t, s.Upsert(ctx, "quests", "q1", []byte(`{"v":3}`)))

	doc, err := s.Get(ctx, "quests", "q1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":3}`, string(doc.Body))
	assert.Equal(t, int64(3), doc.Version)
}

func TestUpsert_RequiresAddress(t *testing.T) {
	s := createTestStore(t)

	assert.Error(t, s.Upsert(context.Background(), "", "q1", []byte(`{}`)))
	assert.Error(t, s.Upsert(context.Background(), "quests", "", []byte(`{}`)))
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Get(context.Background(), "quests", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_OrderedAndScopedToCollection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, s.Upsert(ctx, "quests", id, []byte(`{}`)))
	}
	require.NoError(t, s.Upsert(ctx, "inventory", "hp_potion", []byte(`{"count":2}`)))

	docs, err := s.List(ctx, "quests")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
	assert.Equal(t, "c", docs[2].ID)

	empty, err := s.List(ctx, "resources")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestDelete_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "quests", "q1", []byte(`{}`)))
	require.NoError(t, s.Delete(ctx, "quests", "q1"))
	require.NoError(t, s.Delete(ctx, "quests", "q1"))

	_, err := s.Get(ctx, "quests", "q1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_CancelledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "quests", "q1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMarshalBody(t *testing.T) {
	body, err := MarshalBody(map[string]any{"name": "<fish & chips>"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"<fish & chips>"}`, string(body))

	var out map[string]string
	require.NoError(t, UnmarshalBody(body, &out))
	assert.Equal(t, "<fish & chips>", out["name"])

	assert.Error(t, UnmarshalBody(nil, &out))
}
