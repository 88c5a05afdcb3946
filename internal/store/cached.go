package store

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/xssnick/tonutils-tracer/internal/tracing"
)

// Cached keeps recently fetched messages of another store.
// Messages without a transaction are never cached, they may be delivered later.
type Cached struct {
	next  tracing.MessageStore
	cache *lru.ARCCache
}

func NewCached(next tracing.MessageStore, size int) (*Cached, error) {
	cache, err := lru.NewARC(size)
	if err != nil {
		return nil, fmt.Errorf("failed to init message cache: %w", err)
	}
	return &Cached{
		next:  next,
		cache: cache,
	}, nil
}

func (c *Cached) FetchMessage(ctx context.Context, id string) (*tracing.Message, error) {
	if v, ok := c.cache.Get(id); ok {
		observe("cache", time.Now(), nil)
		return clone(v.(*tracing.Message)), nil
	}

	msg, err := c.next.FetchMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	if msg.Transaction != nil {
		c.cache.Add(id, clone(msg))
	}
	return msg, nil
}
