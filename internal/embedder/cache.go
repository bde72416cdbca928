package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/54b3r/complaintqa/internal/rag"
)

// cacheKeyPrefix namespaces embedding entries in the shared keyspace.
const cacheKeyPrefix = "cqa:emb:"

// CacheBackend is the key-value store behind Cached.
type CacheBackend interface {
	// GetMany returns values parallel to keys, nil for misses.
	GetMany(ctx context.Context, keys []string) ([][]byte, error)

	// SetMany stores every entry with the given TTL (0 = no expiry).
	SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
}

// RedisBackend implements CacheBackend on a Redis server.
type RedisBackend struct {
	// client is the go-redis client.
	client *redis.Client
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Addr is host:port of the Redis server.
	Addr string
	// Password is the optional AUTH password.
	Password string
	// DB is the logical database number.
	DB int
}

// NewRedisBackend connects to Redis. The connection is verified lazily on
// first use; call Ping to fail fast.
func NewRedisBackend(cfg *RedisConfig) *RedisBackend {
	return &RedisBackend{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// GetMany implements CacheBackend with a single MGET.
func (r *RedisBackend) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache: mget: %w", err)
	}
	out := make([][]byte, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// SetMany implements CacheBackend in one pipeline round trip.
func (r *RedisBackend) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range entries {
			p.Set(ctx, k, v, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache: set: %w", err)
	}
	return nil
}

// Ping checks that Redis answers.
func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis cache: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// Cached wraps an embedder with a read-through cache keyed by model and text
// hash. Cache failures are logged and never fail an Embed call.
type Cached struct {
	// inner computes embeddings on cache misses.
	inner rag.Embedder
	// backend stores encoded vectors.
	backend CacheBackend
	// model namespaces keys so a model change never serves stale vectors.
	model string
	// ttl is the entry lifetime.
	ttl time.Duration
	// log receives cache failures.
	log *slog.Logger
}

// NewCached wraps inner with backend.
func NewCached(inner rag.Embedder, backend CacheBackend, model string, ttl time.Duration, log *slog.Logger) *Cached {
	if log == nil {
		log = slog.Default()
	}
	return &Cached{inner: inner, backend: backend, model: model, ttl: ttl, log: log}
}

// Embed implements rag.Embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	cached, err := c.backend.GetMany(ctx, keys)
	if err != nil {
		c.log.Warn("embedding cache read failed", slog.String("error", err.Error()))
		cached = nil
	}

	var missIdx []int
	var missTexts []string
	for i := range texts {
		if i < len(cached) && cached[i] != nil {
			if v, ok := decodeVector(cached[i]); ok {
				out[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder cache: inner embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	entries := make(map[string][]byte, len(fresh))
	for j, i := range missIdx {
		out[i] = fresh[j]
		entries[keys[i]] = encodeVector(fresh[j])
	}
	if err := c.backend.SetMany(ctx, entries, c.ttl); err != nil {
		c.log.Warn("embedding cache write failed", slog.String("error", err.Error()))
	}
	return out, nil
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

// encodeVector packs v as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
