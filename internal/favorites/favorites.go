// Package favorites persists the user's ordered list of saved locations.
//
// The list is stored as one JSON array under a single key. Every mutation
// reads the whole list, changes it and writes it back. The process-local
// mutex serializes those cycles within this process; writers in other
// processes sharing the same store can still lose updates, which is
// accepted because the store has no compare-and-swap.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/i474232898/weather-favorites/internal/location"
	"github.com/i474232898/weather-favorites/internal/logger"
	"github.com/i474232898/weather-favorites/internal/store"
)

// Persisted keys.
const (
	FavoritesKey     = "favorite-locations"
	FirstTimeUserKey = "first-time-user"
)

var validate = validator.New()

// ErrInvalidLocation is returned by Add for a location without a name or
// with coordinates out of range.
var ErrInvalidLocation = errors.New("invalid location")

// Location is a saved place. ID holds the canonical key once the list has
// been loaded; callers may pass any raw id (or none) when adding.
type Location struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name" validate:"required"`
	Lat  float64 `json:"lat" validate:"latitude"`
	Lon  float64 `json:"lon" validate:"longitude"`
}

// LocationKey resolves the canonical key of l.
func (l Location) LocationKey() location.Key {
	return location.Resolve(l.ID, l.Lat, l.Lon)
}

// Store manages the favorites list on top of a key/value store.
type Store struct {
	kv  store.Store
	log *zap.SugaredLogger

	mu sync.Mutex
}

// New creates a favorites Store.
func New(kv store.Store) *Store {
	return &Store{
		kv:  kv,
		log: logger.Get("favorites"),
	}
}

// List returns the saved locations in display order. Records written by
// older builds are migrated on the way: ids are rewritten to their canonical
// key, entries resolving to an already seen key are dropped (first one
// wins), and invalid records are discarded. When anything changed the
// migrated list is written back before it is returned. A failing store reads
// as an empty list.
func (s *Store) List(ctx context.Context) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		s.log.Warnf("%v", err)
		return []Location{}, nil
	}
	return list, nil
}

// Add appends candidate unless a location with the same key is already
// saved. It reports whether the list changed. Add, Remove and the moves
// leave the stored list untouched when it cannot be read.
func (s *Store) Add(ctx context.Context, candidate Location) (bool, error) {
	if err := validate.Struct(candidate); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if indexOf(list, candidate) >= 0 {
		return false, nil
	}
	key := candidate.LocationKey()

	candidate.ID = key.String()
	list = append(list, candidate)
	if err := s.save(ctx, list); err != nil {
		return false, err
	}
	s.log.Infof("added %s (%s)", key, candidate.Name)
	return true, nil
}

// Remove deletes every saved location with candidate's key. Removing a
// location that is not saved is a no-op.
func (s *Store) Remove(ctx context.Context, candidate Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, l := range list {
		if !location.Same(l, candidate) {
			kept = append(kept, l)
		}
	}
	return s.save(ctx, kept)
}

// IsFavorite reports whether a location with candidate's key is saved.
func (s *Store) IsFavorite(ctx context.Context, candidate Location) (bool, error) {
	list, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	return indexOf(list, candidate) >= 0, nil
}

// MoveUp swaps candidate with the location before it. Moving the first
// location or one that is not saved does nothing.
func (s *Store) MoveUp(ctx context.Context, candidate Location) error {
	return s.move(ctx, candidate, -1)
}

// MoveDown swaps candidate with the location after it. Moving the last
// location or one that is not saved does nothing.
func (s *Store) MoveDown(ctx context.Context, candidate Location) error {
	return s.move(ctx, candidate, 1)
}

// IsFirstTimeUser reports whether the first-time flag has not been set.
func (s *Store) IsFirstTimeUser(ctx context.Context) bool {
	_, err := s.kv.Get(ctx, FirstTimeUserKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warnf("read first-time flag: %v", err)
	}
	return err != nil
}

// MarkSeen records that the user has completed onboarding.
func (s *Store) MarkSeen(ctx context.Context) error {
	if err := s.kv.Set(ctx, FirstTimeUserKey, "false"); err != nil {
		return fmt.Errorf("set first-time flag: %w", err)
	}
	return nil
}

func (s *Store) move(ctx context.Context, candidate Location, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(list, candidate)
	j := i + delta
	if i < 0 || j < 0 || j >= len(list) {
		return nil
	}
	list[i], list[j] = list[j], list[i]
	return s.save(ctx, list)
}

// load reads and migrates the list. Callers must hold s.mu.
func (s *Store) load(ctx context.Context) ([]Location, error) {
	raw, err := s.kv.Get(ctx, FavoritesKey)
	if errors.Is(err, store.ErrNotFound) {
		return []Location{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read favorites: %w", err)
	}

	records, ok := decode(raw)
	if !ok {
		s.log.Warnf("favorites record is malformed; treating as empty")
		return []Location{}, nil
	}

	list, changed := migrate(records)
	if changed {
		s.log.Infof("migrated favorites: %d records -> %d locations", len(records), len(list))
		if err := s.save(ctx, list); err != nil {
			s.log.Warnf("persist migrated favorites: %v", err)
		}
	}
	return list, nil
}

func (s *Store) save(ctx context.Context, list []Location) error {
	if list == nil {
		list = []Location{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if err := s.kv.Set(ctx, FavoritesKey, string(b)); err != nil {
		return fmt.Errorf("write favorites: %w", err)
	}
	return nil
}

// record is the loosely typed shape of a stored favorite. Coordinates may be
// numbers or numeric strings.
type record struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
	Lat  json.RawMessage `json:"lat"`
	Lon  json.RawMessage `json:"lon"`
}

// decode splits the stored array into its elements. Elements are decoded one
// by one in migrate so a single bad record does not hide the others.
func decode(raw string) ([]json.RawMessage, bool) {
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, false
	}
	return records, true
}

// migrate canonicalizes ids, drops undecodable or invalid records and
// collapses duplicates. changed is true when the result differs from what
// was stored.
func migrate(records []json.RawMessage) ([]Location, bool) {
	out := make([]Location, 0, len(records))
	seen := make(map[location.Key]bool, len(records))
	changed := false

	for _, raw := range records {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			changed = true
			continue
		}
		l, storedID, ok := r.toLocation()
		if !ok {
			changed = true
			continue
		}
		key := l.LocationKey()
		if seen[key] {
			changed = true
			continue
		}
		seen[key] = true
		if storedID != key.String() {
			changed = true
		}
		l.ID = key.String()
		out = append(out, l)
	}
	return out, changed
}

func (r record) toLocation() (Location, string, bool) {
	lat, okLat := coerceFloat(r.Lat)
	lon, okLon := coerceFloat(r.Lon)
	if !okLat || !okLon {
		return Location{}, "", false
	}
	id := coerceID(r.ID)
	l := Location{ID: id, Name: r.Name, Lat: lat, Lon: lon}
	if err := validate.Struct(l); err != nil {
		return Location{}, "", false
	}
	return l, id, true
}

func coerceFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// coerceID accepts string or numeric ids; anything else counts as no id.
func coerceID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func indexOf(list []Location, candidate Location) int {
	for i, l := range list {
		if location.Same(l, candidate) {
			return i
		}
	}
	return -1
}
