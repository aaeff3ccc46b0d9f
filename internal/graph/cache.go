// Package graph caches rendered forecast graphs.
//
// A cached graph is only served when it is younger than the graph TTL,
// was written with the current SchemaVersion, and carries the data hash of
// the inputs the caller is rendering now.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weather-favorites/internal/cache"
	"github.com/i474232898/weather-favorites/internal/location"
	"github.com/i474232898/weather-favorites/internal/logger"
	"github.com/i474232898/weather-favorites/internal/weather"
)

// Entry is the cached value of a graph.
type Entry struct {
	Markdown    string `json:"markdown"`
	Version     string `json:"version"`
	DataHash    string `json:"dataHash"`
	GeneratedAt int64  `json:"generatedAt"` // unix milliseconds

	LocationKey string  `json:"locationKey,omitempty"`
	Mode        Mode    `json:"mode,omitempty"`
	Palette     Palette `json:"palette,omitempty"`
	TargetDate  string  `json:"targetDate,omitempty"`
}

// Request describes one graph.
type Request struct {
	LocationKey location.Key
	Name        string
	Mode        Mode
	TargetDate  string // YYYY-MM-DD, optional
	Palette     Palette
	Hours       int
	Series      []weather.TimeseriesEntry
	Sun         map[string]weather.SunTimes
}

// DataHash computes the data hash of r.
func (r Request) DataHash() string {
	return ComputeDataHash(HashInput{
		Series:  r.Series,
		Name:    r.Name,
		Hours:   r.Hours,
		Sun:     r.Sun,
		Palette: r.Palette,
	})
}

// Key returns the cache key of r for the given data hash.
func (r Request) Key(dataHash string) string {
	return Key(r.LocationKey, r.Mode, r.TargetDate, dataHash, r.Palette)
}

// Renderer turns a request into markdown. Implementations must be pure.
type Renderer interface {
	Render(r Request) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(r Request) (string, error)

// Render calls f(r).
func (f RendererFunc) Render(r Request) (string, error) { return f(r) }

// Stats summarizes the persisted graph entries.
type Stats struct {
	Count      int       `json:"count"`
	Oldest     time.Time `json:"oldest,omitzero"`
	Newest     time.Time `json:"newest,omitzero"`
	TotalBytes int       `json:"totalBytes"`
}

// Cache stores rendered graphs in the persistent TTL cache.
type Cache struct {
	store *cache.TTL
	ttl   time.Duration
	group singleflight.Group
	log   *zap.SugaredLogger
}

// NewCache creates a graph cache whose entries live for ttl.
func NewCache(store *cache.TTL, ttl time.Duration) *Cache {
	return &Cache{
		store: store,
		ttl:   ttl,
		log:   logger.Get("graph"),
	}
}

// Get returns the cached markdown for r, or false when there is no valid
// entry. Entries with another schema version or data hash are misses.
func (c *Cache) Get(ctx context.Context, r Request) (string, bool) {
	hash := r.DataHash()
	return c.get(ctx, r.Key(hash), hash)
}

func (c *Cache) get(ctx context.Context, key, hash string) (string, bool) {
	var e Entry
	if !c.store.Get(ctx, key, c.ttl, &e) {
		return "", false
	}
	if e.Version != SchemaVersion {
		c.log.Debugf("version mismatch for %s: %q", key, e.Version)
		return "", false
	}
	if e.DataHash != hash {
		c.log.Debugf("data changed for %s", key)
		return "", false
	}
	return e.Markdown, true
}

// Set stores markdown as the graph for r.
func (c *Cache) Set(ctx context.Context, r Request, markdown string) {
	hash := r.DataHash()
	c.set(ctx, r, r.Key(hash), hash, markdown)
}

func (c *Cache) set(ctx context.Context, r Request, key, hash, markdown string) {
	c.store.Set(ctx, key, Entry{
		Markdown:    markdown,
		Version:     SchemaVersion,
		DataHash:    hash,
		GeneratedAt: c.store.Now().UnixMilli(),
		LocationKey: r.LocationKey.String(),
		Mode:        r.Mode,
		Palette:     r.Palette,
		TargetDate:  r.TargetDate,
	})
}

// GenerateAndCache returns the cached graph for r or renders, stores and
// returns a new one. force skips the cache lookup. Concurrent calls for the
// same key share one render.
func (c *Cache) GenerateAndCache(ctx context.Context, r Request, render Renderer, force bool) (string, error) {
	hash := r.DataHash()
	key := r.Key(hash)

	if !force {
		if md, ok := c.get(ctx, key, hash); ok {
			return md, nil
		}
	}

	v, err, _ := c.group.Do(key+"|"+hash, func() (any, error) {
		md, err := render.Render(r)
		if err != nil {
			return "", fmt.Errorf("render graph: %w", err)
		}
		c.set(ctx, r, key, hash, md)
		return md, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvalidateLocation removes every graph of locationKey.
func (c *Cache) InvalidateLocation(ctx context.Context, locationKey location.Key) int {
	prefix := LocationPrefix(locationKey)
	n := c.removeMatching(ctx, func(key string, e *Entry) bool {
		if e != nil && e.LocationKey != "" {
			return e.LocationKey == locationKey.String()
		}
		// Raw ids may contain ':', so the segment after the location must be a mode.
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			return false
		}
		mode, _, _ := strings.Cut(rest, ":")
		return Mode(mode).Valid()
	})
	c.log.Infof("invalidated %d graphs for %s", n, locationKey)
	return n
}

// InvalidateMode removes every graph rendered in mode.
func (c *Cache) InvalidateMode(ctx context.Context, mode Mode) int {
	n := c.removeMatching(ctx, func(key string, e *Entry) bool {
		if e != nil && e.Mode != "" {
			return e.Mode == mode
		}
		return strings.Contains(key, ":"+string(mode)+":")
	})
	c.log.Infof("invalidated %d %s graphs", n, mode)
	return n
}

// InvalidateDate removes every graph rendered for targetDate.
func (c *Cache) InvalidateDate(ctx context.Context, targetDate string) int {
	n := c.removeMatching(ctx, func(key string, e *Entry) bool {
		if e != nil && e.TargetDate != "" {
			return e.TargetDate == targetDate
		}
		return strings.HasSuffix(key, ":"+targetDate)
	})
	c.log.Infof("invalidated %d graphs for %s", n, targetDate)
	return n
}

// ClearAll removes every graph.
func (c *Cache) ClearAll(ctx context.Context) int {
	n := c.store.ClearByPrefix(ctx, cache.PrefixGraph)
	c.log.Infof("cleared %d graphs", n)
	return n
}

// Cleanup removes graphs saved more than maxAge ago, and graphs whose
// record cannot be read at all.
func (c *Cache) Cleanup(ctx context.Context, maxAge time.Duration) int {
	cutoff := c.store.Now().Add(-maxAge)
	var stale []string
	c.store.Scan(ctx, cache.PrefixGraph, func(e cache.RawEntry) {
		if e.SavedAt.IsZero() || e.SavedAt.Before(cutoff) {
			stale = append(stale, e.Key)
		}
	})
	for _, k := range stale {
		c.store.Remove(ctx, k)
	}
	if len(stale) > 0 {
		c.log.Infof("cleanup removed %d graphs older than %s", len(stale), maxAge)
	}
	return len(stale)
}

// Stats reports the number, age range and serialized size of stored graphs.
func (c *Cache) Stats(ctx context.Context) Stats {
	var s Stats
	c.store.Scan(ctx, cache.PrefixGraph, func(e cache.RawEntry) {
		s.Count++
		s.TotalBytes += e.Size
		if e.SavedAt.IsZero() {
			return
		}
		if s.Oldest.IsZero() || e.SavedAt.Before(s.Oldest) {
			s.Oldest = e.SavedAt
		}
		if e.SavedAt.After(s.Newest) {
			s.Newest = e.SavedAt
		}
	})
	return s
}

func (c *Cache) removeMatching(ctx context.Context, match func(key string, e *Entry) bool) int {
	var keys []string
	c.store.Scan(ctx, cache.PrefixGraph, func(re cache.RawEntry) {
		var e *Entry
		if re.Value != nil {
			var decoded Entry
			if err := json.Unmarshal(re.Value, &decoded); err == nil {
				e = &decoded
			}
		}
		if match(re.Key, e) {
			keys = append(keys, re.Key)
		}
	})
	for _, k := range keys {
		c.store.Remove(ctx, k)
	}
	return len(keys)
}
