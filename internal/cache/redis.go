// Package cache is the advisory Redis layer. Every operation is best-effort:
// a miss, a timeout or an absent client all mean "compute it fresh", and the
// values stored are always the computed results themselves, so scoring output
// is bit-identical with or without Redis.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	opTimeout  = 250 * time.Millisecond
	patternTTL = 24 * time.Hour
	ratioTTL   = time.Hour

	patternKeyPrefix = "pbn:pattern:"
	ratioKeyPrefix   = "pbn:"
)

// Client wraps the redis connection. The zero/nil client is valid and
// degrades every call to a miss.
type Client struct {
	rdb *redis.Client
}

// Connect parses the REDIS_URL and pings the server. An empty URL returns a
// nil client, which callers may use freely.
func Connect(redisURL string) (*Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

// Close releases the connection.
func (c *Client) Close() {
	if c != nil && c.rdb != nil {
		_ = c.rdb.Close()
	}
}

// GetPatternScore returns a memoized domain-pattern score.
func (c *Client) GetPatternScore(domain string) (float64, bool) {
	return c.getFloat(patternKeyPrefix + hashKey(domain))
}

// SetPatternScore stores a computed domain-pattern score.
func (c *Client) SetPatternScore(domain string, score float64) {
	c.setFloat(patternKeyPrefix+hashKey(domain), score, patternTTL)
}

// GetRatio returns a memoized content-similarity ratio. The key already
// encodes the snippet digest and threshold.
func (c *Client) GetRatio(key string) (float64, bool) {
	return c.getFloat(ratioKeyPrefix + key)
}

// SetRatio stores a computed content-similarity ratio.
func (c *Client) SetRatio(key string, ratio float64) {
	c.setFloat(ratioKeyPrefix+key, ratio, ratioTTL)
}

func (c *Client) getFloat(key string) (float64, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (c *Client) setFloat(key string, val float64, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, strconv.FormatFloat(val, 'g', -1, 64), ttl).Err(); err != nil {
		log.Printf("[cache] set %s failed: %v", key, err)
	}
}

func hashKey(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
