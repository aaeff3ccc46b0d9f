package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-favorites/internal/logger"
)

// DefaultMemoryTTL bounds how long a value stays in the in-process layer.
const DefaultMemoryTTL = 5 * time.Minute

type memEntry struct {
	value    json.RawMessage
	storedAt time.Time
}

// Manager puts a short-lived in-process map in front of a TTL cache.
// The memory layer lives for the lifetime of the Manager.
type Manager struct {
	persistent *TTL
	policy     TTLPolicy
	memoryTTL  time.Duration
	now        func() time.Time
	log        *zap.SugaredLogger

	mu     sync.RWMutex
	memory map[string]memEntry
}

// NewManager creates a Manager. A memoryTTL <= 0 uses DefaultMemoryTTL.
func NewManager(persistent *TTL, policy TTLPolicy, memoryTTL time.Duration) *Manager {
	if memoryTTL <= 0 {
		memoryTTL = DefaultMemoryTTL
	}
	return &Manager{
		persistent: persistent,
		policy:     policy,
		memoryTTL:  memoryTTL,
		now:        persistent.now,
		log:        logger.Get("cache.manager"),
		memory:     make(map[string]memEntry),
	}
}

// DefaultTTL returns the persistent TTL used for key when the caller does
// not pass one.
func (m *Manager) DefaultTTL(key string) time.Duration {
	return m.policy.For(key)
}

// Persistent exposes the underlying TTL cache for prefix clearing and scans.
func (m *Manager) Persistent() *TTL { return m.persistent }

// Get decodes the value for key into dst, checking memory first and then the
// persistent layer. A ttl <= 0 uses DefaultTTL(key). The memory layer is
// checked against the memory TTL only.
func (m *Manager) Get(ctx context.Context, key string, ttl time.Duration, dst any) bool {
	if raw, ok := m.fromMemory(key); ok {
		if err := json.Unmarshal(raw, dst); err == nil {
			observe("memory", true)
			return true
		}
		m.Clear(key)
	}
	observe("memory", false)

	if ttl <= 0 {
		ttl = m.DefaultTTL(key)
	}
	raw, _, ok := m.persistent.GetRaw(ctx, key, ttl)
	if !ok {
		observe("persistent", false)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		m.log.Debugf("decode %s: %v", key, err)
		observe("persistent", false)
		return false
	}
	observe("persistent", true)

	m.remember(key, raw)
	return true
}

// Set writes value to both layers.
func (m *Manager) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		m.log.Warnf("encode %s: %v", key, err)
		return
	}
	m.remember(key, raw)
	m.persistent.Set(ctx, key, json.RawMessage(raw))
}

// Clear drops key from the memory layer only. The persistent entry expires
// by TTL or through TTL.ClearByPrefix.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.memory, key)
}

// ClearByPrefix removes entries under prefix from both layers and returns
// the number of persistent entries removed.
func (m *Manager) ClearByPrefix(ctx context.Context, prefix string) int {
	m.mu.Lock()
	for k := range m.memory {
		if strings.HasPrefix(k, prefix) {
			delete(m.memory, k)
		}
	}
	m.mu.Unlock()
	return m.persistent.ClearByPrefix(ctx, prefix)
}

// PrefixStats counts persisted entries sharing a key prefix.
type PrefixStats struct {
	Entries int `json:"entries"`
	Bytes   int `json:"bytes"`
}

// Stats reports the memory layer size and persisted entries grouped by key
// prefix (the key up to and including its first colon).
type Stats struct {
	MemoryEntries int                    `json:"memoryEntries"`
	Persistent    map[string]PrefixStats `json:"persistent"`
}

// Stats scans the persistent layer and reports entry counts per prefix.
func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.RLock()
	st := Stats{MemoryEntries: len(m.memory), Persistent: make(map[string]PrefixStats)}
	m.mu.RUnlock()

	m.persistent.Scan(ctx, "", func(e RawEntry) {
		prefix, _, found := strings.Cut(e.Key, ":")
		if found {
			prefix += ":"
		}
		ps := st.Persistent[prefix]
		ps.Entries++
		ps.Bytes += e.Size
		st.Persistent[prefix] = ps
	})
	return st
}

func (m *Manager) fromMemory(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	e, ok := m.memory[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.storedAt) > m.memoryTTL {
		m.Clear(key)
		return nil, false
	}
	return e.value, true
}

func (m *Manager) remember(key string, raw json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory[key] = memEntry{value: raw, storedAt: m.now()}
}
