// Package cache provides the best-effort caches in front of the key/value
// store: a persistent TTL cache with age-stamped entries, and a Manager that
// adds a short-lived in-process layer on top of it.
//
// Nothing in this package returns storage errors to callers. Any failure to
// read, parse or write an entry is logged and treated as a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/i474232898/weather-favorites/internal/logger"
	"github.com/i474232898/weather-favorites/internal/store"
)

// Namespace prefixes every key written by the cache.
const Namespace = "cache:"

var validate = validator.New()

// Entry is the persisted shape of a cached value.
type Entry[T any] struct {
	SavedAt int64 `json:"savedAt"` // unix milliseconds
	Value   T     `json:"value"`
}

// record is used to validate an entry before its value is decoded.
type record struct {
	SavedAt *int64          `json:"savedAt" validate:"required,gt=0"`
	Value   json.RawMessage `json:"value" validate:"required"`
}

// RawEntry is a decoded record as seen by Scan.
type RawEntry struct {
	Key     string // without Namespace
	SavedAt time.Time
	Value   json.RawMessage
	Size    int // length of the serialized record
}

// TTL is a persistent cache with lazy, read-time expiration.
type TTL struct {
	store store.Store
	now   func() time.Time
	log   *zap.SugaredLogger
}

// Option configures a TTL cache.
type Option func(*TTL)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *TTL) { c.now = now }
}

// NewTTL creates a TTL cache over s.
func NewTTL(s store.Store, opts ...Option) *TTL {
	c := &TTL{
		store: s,
		now:   time.Now,
		log:   logger.Get("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the cache's current time.
func (c *TTL) Now() time.Time { return c.now() }

// Get decodes the value stored under key into dst. It returns false when the
// entry is missing, malformed, older than ttl, or cannot be decoded into dst.
// Expired entries are left in place.
func (c *TTL) Get(ctx context.Context, key string, ttl time.Duration, dst any) bool {
	raw, _, ok := c.GetRaw(ctx, key, ttl)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Debugf("decode %s: %v", key, err)
		return false
	}
	return true
}

// GetRaw returns the undecoded value and save time stored under key.
func (c *TTL) GetRaw(ctx context.Context, key string, ttl time.Duration) (json.RawMessage, time.Time, bool) {
	s, err := c.store.Get(ctx, Namespace+key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.log.Warnf("read %s: %v", key, err)
		}
		return nil, time.Time{}, false
	}

	rec, ok := c.parse(key, s)
	if !ok {
		return nil, time.Time{}, false
	}
	savedAt := time.UnixMilli(*rec.SavedAt)
	if c.now().Sub(savedAt) > ttl {
		return nil, savedAt, false
	}
	return rec.Value, savedAt, true
}

// Set stamps value with the current time and stores it under key,
// overwriting any previous entry.
func (c *TTL) Set(ctx context.Context, key string, value any) {
	b, err := json.Marshal(Entry[any]{SavedAt: c.now().UnixMilli(), Value: value})
	if err != nil {
		c.log.Warnf("encode %s: %v", key, err)
		return
	}
	if err := c.store.Set(ctx, Namespace+key, string(b)); err != nil {
		c.log.Warnf("write %s: %v", key, err)
	}
}

// Remove deletes the entry under key.
func (c *TTL) Remove(ctx context.Context, key string) {
	if err := c.store.Remove(ctx, Namespace+key); err != nil {
		c.log.Warnf("remove %s: %v", key, err)
	}
}

// ClearByPrefix removes every entry whose key starts with prefix and returns
// how many were removed.
func (c *TTL) ClearByPrefix(ctx context.Context, prefix string) int {
	return c.RemoveWhere(ctx, prefix, func(string) bool { return true })
}

// ClearAll removes every cache entry.
func (c *TTL) ClearAll(ctx context.Context) int {
	return c.ClearByPrefix(ctx, "")
}

// RemoveWhere removes entries under prefix for which match returns true.
// match receives the key without Namespace.
func (c *TTL) RemoveWhere(ctx context.Context, prefix string, match func(key string) bool) int {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		c.log.Warnf("list keys: %v", err)
		return 0
	}

	removed := 0
	full := Namespace + prefix
	for _, k := range keys {
		if !strings.HasPrefix(k, full) {
			continue
		}
		key := strings.TrimPrefix(k, Namespace)
		if !match(key) {
			continue
		}
		if err := c.store.Remove(ctx, k); err != nil {
			c.log.Warnf("remove %s: %v", key, err)
			continue
		}
		removed++
	}
	return removed
}

// Scan calls fn for every well-formed entry under prefix, regardless of age.
// Malformed entries are passed with a zero SavedAt and nil Value.
func (c *TTL) Scan(ctx context.Context, prefix string, fn func(RawEntry)) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		c.log.Warnf("list keys: %v", err)
		return
	}

	full := Namespace + prefix
	for _, k := range keys {
		if !strings.HasPrefix(k, full) {
			continue
		}
		key := strings.TrimPrefix(k, Namespace)
		s, err := c.store.Get(ctx, k)
		if err != nil {
			continue
		}
		e := RawEntry{Key: key, Size: len(s)}
		if rec, ok := c.parse(key, s); ok {
			e.SavedAt = time.UnixMilli(*rec.SavedAt)
			e.Value = rec.Value
		}
		fn(e)
	}
}

func (c *TTL) parse(key, s string) (record, bool) {
	var rec record
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		c.log.Debugf("malformed entry %s: %v", key, err)
		return record{}, false
	}
	if err := validate.Struct(rec); err != nil {
		c.log.Debugf("unrecognized entry %s: %v", key, err)
		return record{}, false
	}
	if string(rec.Value) == "null" {
		return record{}, false
	}
	return rec, true
}
