// Package store provides the static attribute caches backing vessel.Store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aiscam-svr/internal/vessel"
)

var _ vessel.StaticCache = (*Redis)(nil)

// Redis keeps each vessel's static record as JSON under vessel:<mmsi>:static.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects and pings. A zero ttl keeps records forever.
func NewRedis(ctx context.Context, addr string, db int, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

func staticKey(mmsi uint32) string {
	return fmt.Sprintf("vessel:%d:static", mmsi)
}

func (r *Redis) Lookup(ctx context.Context, mmsi uint32) (vessel.Static, bool, error) {
	val, err := r.rdb.Get(ctx, staticKey(mmsi)).Bytes()
	if errors.Is(err, redis.Nil) {
		return vessel.Static{}, false, nil
	}
	if err != nil {
		return vessel.Static{}, false, fmt.Errorf("redis GET %s: %w", staticKey(mmsi), err)
	}
	var s vessel.Static
	if err := json.Unmarshal(val, &s); err != nil {
		return vessel.Static{}, false, fmt.Errorf("decode %s: %w", staticKey(mmsi), err)
	}
	return s, true, nil
}

func (r *Redis) Upsert(ctx context.Context, mmsi uint32, s vessel.Static) error {
	val, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, staticKey(mmsi), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", staticKey(mmsi), err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
