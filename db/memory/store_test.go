package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finanzas-sd/db"
)

func TestGetMissingReturnsNil(t *testing.T) {
	s := NewStore()
	item, err := s.Get(context.Background(), db.Key{Partition: "p", Sort: "s"})
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestPutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := db.Key{Partition: "PROJECT#P-001", Sort: "HEAD"}

	require.NoError(t, s.Put(ctx, key, db.Item{"v": 1}))
	require.NoError(t, s.Put(ctx, key, db.Item{"v": 2}))

	item, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, item["v"])
}

func TestPutIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := db.Key{Partition: "p", Sort: "s"}

	require.NoError(t, s.PutIfAbsent(ctx, key, db.Item{"v": "first"}))

	err := s.PutIfAbsent(ctx, key, db.Item{"v": "second"})
	require.ErrorIs(t, err, db.ErrConditionFailed)

	item, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "first", item["v"])
}

func TestQueryPrefixInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	part := "PROJECT#P-001"

	require.NoError(t, s.Put(ctx, db.Key{Partition: part, Sort: "HEAD"}, db.Item{"kind": "head"}))
	for i := 1; i <= 3; i++ {
		sk := fmt.Sprintf("RUBRO#base_A#MOD-ING#%d", i)
		require.NoError(t, s.Put(ctx, db.Key{Partition: part, Sort: sk}, db.Item{"seq": i}))
	}
	require.NoError(t, s.Put(ctx, db.Key{Partition: part, Sort: "RUBRO#base_B#CLD-COMPUTE#1"}, db.Item{"seq": 99}))

	page, err := s.QueryPrefix(ctx, part, "RUBRO#base_A#", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Empty(t, page.NextCursor)
	for i, item := range page.Items {
		assert.Equal(t, i+1, item["seq"])
	}
}

func TestQueryPrefixPagination(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	part := "p"
	for i := 0; i < 5; i++ {
		sk := fmt.Sprintf("RUBRO#b#X#%d", i)
		require.NoError(t, s.Put(ctx, db.Key{Partition: part, Sort: sk}, db.Item{"i": i}))
	}

	var got []db.Item
	cursor := ""
	pages := 0
	for {
		page, err := s.QueryPrefix(ctx, part, "RUBRO#", cursor, 2)
		require.NoError(t, err)
		got = append(got, page.Items...)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, got, 5)
	assert.GreaterOrEqual(t, pages, 3)
}

func TestQueryPrefixEmptyPrefixReturnsAll(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Put(ctx, db.Key{Partition: "p", Sort: "HEAD"}, db.Item{}))
	require.NoError(t, s.Put(ctx, db.Key{Partition: "p", Sort: "RUBRO#b#X#1"}, db.Item{}))

	page, err := s.QueryPrefix(ctx, "p", "", "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestItemsAreIsolatedFromCallerMutation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := db.Key{Partition: "p", Sort: "s"}
	original := db.Item{"v": "kept", "metadata": map[string]any{"baseline_id": "base_A"}}
	require.NoError(t, s.Put(ctx, key, original))

	original["v"] = "mutated"
	original["metadata"].(map[string]any)["baseline_id"] = "mutated"

	item, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "kept", item["v"])
	assert.Equal(t, "base_A", item["metadata"].(map[string]any)["baseline_id"])
}
