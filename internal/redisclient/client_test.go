package redisclient

import (
	"context"
	"testing"

	"stock-ledger/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientFromRedis(rdb)
}

func TestSaveDocumentCompareAndSwap(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	doc, err := c.Load(ctx, store.TableLedger)
	require.NoError(t, err)
	assert.Empty(t, doc.Version)
	assert.Empty(t, doc.Body)

	v1, err := c.Save(ctx, store.TableLedger, []byte("id,product\n"), "")
	require.NoError(t, err)

	_, err = c.Save(ctx, store.TableLedger, []byte("other"), "")
	assert.ErrorIs(t, err, store.ErrStaleWrite)

	v2, err := c.Save(ctx, store.TableLedger, []byte("id,product\nx,y\n"), v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	_, err = c.Save(ctx, store.TableLedger, []byte("late"), v1)
	assert.ErrorIs(t, err, store.ErrStaleWrite)

	doc, err = c.Load(ctx, store.TableLedger)
	require.NoError(t, err)
	assert.Equal(t, v2, doc.Version)
	assert.Equal(t, "id,product\nx,y\n", string(doc.Body))
}

func TestLowStockSet(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.MarkLowStock(ctx, "a"))
	require.NoError(t, c.MarkLowStock(ctx, "b"))
	require.NoError(t, c.MarkLowStock(ctx, "a"))
	require.NoError(t, c.ClearLowStock(ctx, "b"))

	ids, err := c.LowStock(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a"}, ids)

	n, err := c.LowStockCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
