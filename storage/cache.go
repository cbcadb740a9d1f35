package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/stackhead/task-management-app/baas"
)

// Cache wraps a document store with Redis-backed caching of List results.
// Every write evicts the owner's cached list for that collection.
type Cache struct {
	base  baas.Documents
	redis *redis.Client
	ttl   time.Duration
}

type cascadeCache struct {
	*Cache
	cascade baas.CascadeDeleter
}

// NewCache creates a caching wrapper around base. The result keeps the
// cascade capability of base when it has one.
func NewCache(base baas.Documents, client *redis.Client, ttl time.Duration) baas.Documents {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if cd, ok := base.(baas.CascadeDeleter); ok {
		return &cascadeCache{Cache: c, cascade: cd}
	}
	return c
}

func (c *Cache) List(ctx context.Context, coll baas.Collection, ownerID string) ([]baas.Document, error) {
	if docs, ok := c.load(ctx, coll, ownerID); ok {
		return docs, nil
	}
	docs, err := c.base.List(ctx, coll, ownerID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, coll, ownerID, docs)
	return docs, nil
}

func (c *Cache) Create(ctx context.Context, coll baas.Collection, ownerID, id string, fields map[string]any) (baas.Document, error) {
	d, err := c.base.Create(ctx, coll, ownerID, id, fields)
	if err != nil {
		return d, err
	}
	c.evict(ctx, ownerID, coll)
	return d, nil
}

func (c *Cache) Update(ctx context.Context, coll baas.Collection, ownerID, id string, fields map[string]any) (baas.Document, error) {
	d, err := c.base.Update(ctx, coll, ownerID, id, fields)
	if err != nil {
		return d, err
	}
	c.evict(ctx, ownerID, coll)
	return d, nil
}

func (c *Cache) Delete(ctx context.Context, coll baas.Collection, ownerID, id string) error {
	err := c.base.Delete(ctx, coll, ownerID, id)
	// A failed delete may still have removed the row remotely.
	c.evict(ctx, ownerID, coll)
	return err
}

func (c *cascadeCache) DeleteCascade(ctx context.Context, ownerID string, parent baas.Collection, parentID string, children baas.Collection, childIDs []string) error {
	err := c.cascade.DeleteCascade(ctx, ownerID, parent, parentID, children, childIDs)
	c.evict(ctx, ownerID, parent, children)
	return err
}

func (c *Cache) load(ctx context.Context, coll baas.Collection, ownerID string) ([]baas.Document, bool) {
	if c.redis == nil || c.ttl == 0 {
		return nil, false
	}
	key := listCacheKey(coll, ownerID)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var docs []baas.Document
	if err := sonic.Unmarshal(data, &docs); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return docs, true
}

func (c *Cache) store(ctx context.Context, coll baas.Collection, ownerID string, docs []baas.Document) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(docs)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, listCacheKey(coll, ownerID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string, colls ...baas.Collection) {
	if c.redis == nil {
		return
	}
	keys := make([]string, 0, len(colls))
	for _, coll := range colls {
		keys = append(keys, listCacheKey(coll, ownerID))
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func listCacheKey(coll baas.Collection, ownerID string) string {
	return "docs:" + string(coll) + ":" + ownerID
}
