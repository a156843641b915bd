// Package redisstore provides a Redis-backed event store. Records are kept
// as JSON strings under one key per event, indexed by a timeline sorted set
// and one sorted set per correlation id. Scores are Unix microseconds.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dshills/conductor/internal/event"
)

const defaultPrefix = "conductor:events"

type (
	// Options configures the store.
	Options struct {
		// Redis is the client to use. The store closes it on Close.
		Redis *redis.Client
		// Prefix namespaces every key. Defaults to "conductor:events".
		Prefix string
		// Retention sets an expiry on each record. Zero keeps records
		// until Cleanup removes them.
		Retention time.Duration
	}

	// Store implements event.Store on Redis.
	Store struct {
		rdb       *redis.Client
		prefix    string
		retention time.Duration
	}
)

// New returns a store using opts.Redis.
func New(opts Options) (*Store, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: opts.Redis, prefix: prefix, retention: opts.Retention}, nil
}

func (s *Store) recordKey(id string) string { return s.prefix + ":event:" + id }
func (s *Store) timelineKey() string        { return s.prefix + ":timeline" }
func (s *Store) correlationKey(cid string) string {
	return s.prefix + ":correlation:" + cid
}

func score(t time.Time) float64 { return float64(t.UnixMicro()) }

func bound(t time.Time, open string) string {
	if t.IsZero() {
		return open
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}

// Append implements event.Store.
func (s *Store) Append(ctx context.Context, e *event.UniversalEvent) error {
	record, err := event.Encode(e)
	if err != nil {
		return err
	}
	id := e.ID.String()
	z := redis.Z{Score: score(e.Timestamp), Member: id}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(id), record, s.retention)
		pipe.ZAdd(ctx, s.timelineKey(), z)
		if cid := string(e.Source.CorrelationID); cid != "" {
			pipe.ZAdd(ctx, s.correlationKey(cid), z)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

// Query implements event.Store.
func (s *Store) Query(ctx context.Context, q event.Query) ([]*event.UniversalEvent, error) {
	match, err := q.Matcher()
	if err != nil {
		return nil, err
	}
	index := s.timelineKey()
	if q.CorrelationID != "" {
		index = s.correlationKey(string(q.CorrelationID))
	}
	rng := &redis.ZRangeBy{Min: bound(q.Since, "-inf"), Max: bound(q.Until, "+inf")}

	var ids []string
	newestFirst := q.Pattern == "" && q.Limit > 0
	if newestFirst {
		rng.Count = int64(q.Limit)
		ids, err = s.rdb.ZRevRangeByScore(ctx, index, rng).Result()
	} else {
		ids, err = s.rdb.ZRangeByScore(ctx, index, rng).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redis query: %w", err)
	}

	events, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, e := range events {
		if match(e) {
			out = append(out, e)
		}
	}
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return event.Limit(out, q.Limit), nil
}

// load fetches records for ids, skipping records that expired.
func (s *Store) load(ctx context.Context, ids []string) ([]*event.UniversalEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	out := make([]*event.UniversalEvent, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		e := new(event.UniversalEvent)
		if err := e.UnmarshalJSON([]byte(raw)); err != nil {
			return nil, fmt.Errorf("redis decode: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Cleanup implements event.Store.
func (s *Store) Cleanup(ctx context.Context, before time.Time) (int, error) {
	max := "(" + strconv.FormatInt(before.UnixMicro(), 10)
	ids, err := s.rdb.ZRangeByScore(ctx, s.timelineKey(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis cleanup: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	events, err := s.load(ctx, ids)
	if err != nil {
		return 0, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range events {
			if cid := string(e.Source.CorrelationID); cid != "" {
				pipe.ZRem(ctx, s.correlationKey(cid), e.ID.String())
			}
		}
		members := make([]any, len(ids))
		keys := make([]string, len(ids))
		for i, id := range ids {
			members[i] = id
			keys[i] = s.recordKey(id)
		}
		pipe.ZRem(ctx, s.timelineKey(), members...)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis cleanup: %w", err)
	}
	return len(ids), nil
}

// Close implements event.Store.
func (s *Store) Close() error {
	return s.rdb.Close()
}
