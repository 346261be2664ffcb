// Package redisstore keeps leads in Redis: one JSON string per lead plus a
// list of ids with the newest at the head.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/mebelbot/internal/leads"
)

// Backend implements leads.Backend over a Redis client.
type Backend struct {
	rdb    redis.UniversalClient
	prefix string
}

// New returns a Backend using keys "<prefix>lead:<id>" and "<prefix>leads:index".
func New(rdb redis.UniversalClient, prefix string) *Backend {
	return &Backend{rdb: rdb, prefix: prefix}
}

func (b *Backend) recordKey(id string) string { return b.prefix + "lead:" + id }
func (b *Backend) indexKey() string           { return b.prefix + "leads:index" }

func (b *Backend) Load(ctx context.Context, id string) (leads.Lead, error) {
	raw, err := b.rdb.Get(ctx, b.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return leads.Lead{}, leads.ErrNotExist
	}
	if err != nil {
		return leads.Lead{}, fmt.Errorf("redis get lead: %w", err)
	}
	var l leads.Lead
	if err := json.Unmarshal(raw, &l); err != nil {
		return leads.Lead{}, fmt.Errorf("decode lead %s: %w", id, err)
	}
	return l, nil
}

func (b *Backend) Save(ctx context.Context, lead leads.Lead) error {
	raw, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}
	if err := b.rdb.Set(ctx, b.recordKey(lead.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set lead: %w", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, id string) error {
	n, err := b.rdb.Del(ctx, b.recordKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis del lead: %w", err)
	}
	if n == 0 {
		return leads.ErrNotExist
	}
	return nil
}

func (b *Backend) IDs(ctx context.Context) ([]string, error) {
	ids, err := b.rdb.LRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange index: %w", err)
	}
	return ids, nil
}

func (b *Backend) PushID(ctx context.Context, id string) error {
	if err := b.rdb.LPush(ctx, b.indexKey(), id).Err(); err != nil {
		return fmt.Errorf("redis lpush index: %w", err)
	}
	return nil
}

func (b *Backend) RemoveIDs(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.LRem(ctx, b.indexKey(), 0, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis lrem index: %w", err)
	}
	return nil
}

var _ leads.Backend = (*Backend)(nil)
