package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"stock-ledger/internal/store"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/save_document.lua
var saveDocumentScript string

const lowStockKey = "stock:below-alert"

type Client struct {
	rdb        *redis.Client
	saveScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientFromRedis(rdb), nil
}

// NewClientFromRedis wraps an existing connection
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:        rdb,
		saveScript: redis.NewScript(saveDocumentScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func documentKey(name string) string {
	return fmt.Sprintf("ledger:doc:%s", name)
}

// Load reads a document hash. A missing document loads as empty with no version.
func (c *Client) Load(ctx context.Context, name string) (store.Document, error) {
	result, err := c.rdb.HMGet(ctx, documentKey(name), "version", "body").Result()
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to load %s: %w", name, err)
	}

	doc := store.Document{Name: name}
	if v, ok := result[0].(string); ok {
		doc.Version = store.Version(v)
	}
	if b, ok := result[1].(string); ok {
		doc.Body = []byte(b)
	}
	return doc, nil
}

// Save atomically replaces a document using Lua script when its version still matches
func (c *Client) Save(ctx context.Context, name string, body []byte, expected store.Version) (store.Version, error) {
	next := store.VersionOf(body)

	result, err := c.saveScript.Run(ctx, c.rdb, []string{documentKey(name)},
		string(expected), string(next), string(body)).Result()
	if err != nil {
		return "", fmt.Errorf("save document script failed: %w", err)
	}

	ok, isInt := result.(int64)
	if !isInt {
		return "", fmt.Errorf("unexpected script result type")
	}
	if ok != 1 {
		return "", fmt.Errorf("%s: %w", name, store.ErrStaleWrite)
	}

	return next, nil
}

// MarkLowStock adds a stock id to the below-alert set
func (c *Client) MarkLowStock(ctx context.Context, stockID string) error {
	return c.rdb.SAdd(ctx, lowStockKey, stockID).Err()
}

// ClearLowStock removes a stock id from the below-alert set
func (c *Client) ClearLowStock(ctx context.Context, stockID string) error {
	return c.rdb.SRem(ctx, lowStockKey, stockID).Err()
}

// LowStock returns the ids currently below their alert threshold
func (c *Client) LowStock(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, lowStockKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return ids, nil
}

// LowStockCount returns the size of the below-alert set
func (c *Client) LowStockCount(ctx context.Context) (int64, error) {
	return c.rdb.SCard(ctx, lowStockKey).Result()
}
