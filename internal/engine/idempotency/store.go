// Package idempotency stores the first terminal response per (route, key)
// so redelivered webhooks are answered without re-running the action.
package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Entry struct {
	Route         string `json:"route" db:"route"`
	Key           string `json:"key" db:"idempotency_key"`
	StatusCode    int    `json:"status_code" db:"status_code"`
	Response      []byte `json:"response" db:"response"`
	CorrelationID string `json:"correlation_id" db:"correlation_id"`
	GabineteID    string `json:"gabinete_id" db:"gabinete_id"`
	CreatedAt     int64  `json:"created_at" db:"created_at"`
}

// Cacheable reports whether a response with status may be stored. Only
// outcomes that would be identical on retry qualify.
func Cacheable(status int) bool {
	switch status {
	case 200, 403, 404:
		return true
	default:
		return false
	}
}

// Store is SQL-backed; the optional Redis client is a read-through cache
// in front of Get.
type Store struct {
	db    *sqlx.DB
	cache *redis.Client
	ttl   time.Duration
}

func NewStore(db *sqlx.DB, cache *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{db: db, cache: cache, ttl: ttl}
}

func cacheKey(route, key string) string {
	return "zapgate:idem:" + route + ":" + key
}

// Get returns nil, nil on a miss.
func (s *Store) Get(ctx context.Context, route, key string) (*Entry, error) {
	if s.cache != nil {
		if e := s.fromCache(ctx, route, key); e != nil {
			return e, nil
		}
	}

	var e Entry
	err := s.db.GetContext(ctx, &e, `
		SELECT route, idempotency_key, status_code, response, correlation_id, gabinete_id, created_at
		FROM idempotency_keys
		WHERE route = ? AND idempotency_key = ?
	`, route, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	if s.cache != nil {
		s.warm(ctx, &e)
	}
	return &e, nil
}

// Save inserts e through ext, which is either the pool or the caller's
// transaction. won is false when another request already holds the key;
// the stored row is left untouched.
func (s *Store) Save(ctx context.Context, ext sqlx.ExtContext, e Entry) (bool, error) {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	res, err := sqlx.NamedExecContext(ctx, ext, `
		INSERT INTO idempotency_keys (route, idempotency_key, status_code, response, correlation_id, gabinete_id, created_at)
		VALUES (:route, :idempotency_key, :status_code, :response, :correlation_id, :gabinete_id, :created_at)
		ON CONFLICT (route, idempotency_key) DO NOTHING
	`, e)
	if err != nil {
		return false, fmt.Errorf("save idempotency key: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Prune deletes keys created before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune idempotency keys: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) fromCache(ctx context.Context, route, key string) *Entry {
	raw, err := s.cache.Get(ctx, cacheKey(route, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("route", route).Msg("idempotency cache read failed, using database")
		}
		return nil
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	return &e
}

func (s *Store) warm(ctx context.Context, e *Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(e.Route, e.Key), raw, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("route", e.Route).Msg("idempotency cache write failed")
	}
}
