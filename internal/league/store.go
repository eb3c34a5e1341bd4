package league

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const mutateRetries = 5

// Store owns the persisted group documents. Every read-modify-write goes
// through Mutate, which holds an optimistic per-group critical section: two
// concurrent mutations of the same group cannot interleave, while different
// groups proceed in parallel.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// NewStoreFromURL connects a Store from a redis:// URL and pings it.
func NewStoreFromURL(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for league store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func groupKey(id string) string { return "bm:group:" + strings.TrimSpace(id) }
func groupsKey() string         { return "bm:groups" }

// Get loads a group's state, creating a default record on first reference.
func (s *Store) Get(ctx context.Context, groupID string) (*GroupState, error) {
	raw, err := s.rdb.Get(ctx, groupKey(groupID)).Bytes()
	if err == redis.Nil {
		g := &GroupState{}
		g.Normalize()
		return g, nil
	}
	if err != nil {
		return nil, err
	}
	var g GroupState
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", groupID, err)
	}
	g.Normalize()
	return &g, nil
}

// Mutate runs fn against the freshly loaded state of groupID and persists the
// result atomically. A concurrent writer forces a bounded reload-and-retry, so
// fn must be side-effect free: it may be called more than once.
func (s *Store) Mutate(ctx context.Context, groupID string, fn func(*GroupState) error) error {
	key := groupKey(groupID)
	var lastErr error
	for attempt := 0; attempt < mutateRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			g := &GroupState{}
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == nil {
				if jerr := json.Unmarshal(raw, g); jerr != nil {
					return fmt.Errorf("decode group %s: %w", groupID, jerr)
				}
			}
			g.Normalize()

			if err := fn(g); err != nil {
				return err
			}

			out, err := json.Marshal(g)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, out, 0)
			pipe.SAdd(ctx, groupsKey(), strings.TrimSpace(groupID))
			_, perr := pipe.Exec(ctx)
			return perr
		}, key)
		if err == redis.TxFailedErr {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("group %s: concurrent update retries exhausted: %w", groupID, lastErr)
}

// GroupIDs returns every group that has ever been written.
func (s *Store) GroupIDs(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, groupsKey()).Result()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
